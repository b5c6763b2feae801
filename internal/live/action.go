package live

import (
	"encoding/json"
	"fmt"

	"github.com/mailcrab/mailcrab/internal/mail"
)

// ActionKind distinguishes the three client-initiated commands that can
// arrive over the live subscription's reverse channel.
type ActionKind int

const (
	ActionRemoveAll ActionKind = iota
	ActionRemove
	ActionOpen
)

// Action is the externally-tagged command a connected client can send:
// either the bare string "RemoveAll", or an object with a single "Remove"
// or "Open" key holding a message id. encoding/json has no native support
// for this shape, so it's decoded by hand below.
type Action struct {
	Kind ActionKind
	ID   mail.ID
}

// UnmarshalJSON accepts either a bare JSON string ("RemoveAll") or a
// single-key object ({"Remove": "<uuid>"} / {"Open": "<uuid>"}).
func (a *Action) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "RemoveAll" {
			return fmt.Errorf("live: unknown action %q", asString)
		}
		a.Kind = ActionRemoveAll
		return nil
	}

	var asObject map[string]mail.ID
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("live: unrecognized action payload: %w", err)
	}
	if id, ok := asObject["Remove"]; ok {
		a.Kind = ActionRemove
		a.ID = id
		return nil
	}
	if id, ok := asObject["Open"]; ok {
		a.Kind = ActionOpen
		a.ID = id
		return nil
	}
	return fmt.Errorf("live: action object has no Remove or Open key")
}
