package httpapi

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/store"
	"github.com/mailcrab/mailcrab/internal/version"
)

// Handlers implements the read-only message inspection API.
type Handlers struct {
	store *store.Store
}

// NewHandlers creates a Handlers backed by st.
func NewHandlers(st *store.Store) *Handlers {
	return &Handlers{store: st}
}

// ListMessages handles GET /api/messages.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.store.ListMetadata())
}

// GetMessage handles GET /api/message/{id}.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.store.Get(id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSON(w, http.StatusOK, msg)
}

var cidPattern = regexp.MustCompile(`cid:([^"'\s)]+)`)

// GetMessageBody handles GET /api/message/{id}/body, returning the
// message's preferred HTML-or-text rendering with any cid: attachment
// references inlined as data: URLs.
func (h *Handlers) GetMessageBody(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.store.Get(id)
	if err != nil {
		HandleError(w, err)
		return
	}

	body := msg.Body()
	if msg.HTML != "" {
		body = inlineAttachments(body, msg.Attachments)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// inlineAttachments rewrites every cid:<id> reference in html to a data:
// URL built from the matching attachment, leaving unmatched references
// untouched.
func inlineAttachments(html string, attachments []mail.Attachment) string {
	byContentID := make(map[string]mail.Attachment, len(attachments))
	for _, a := range attachments {
		if a.ContentID != "" {
			byContentID[a.ContentID] = a
		}
	}
	if len(byContentID) == 0 {
		return html
	}

	return cidPattern.ReplaceAllStringFunc(html, func(match string) string {
		id := cidPattern.FindStringSubmatch(match)[1]
		a, ok := byContentID[id]
		if !ok {
			return match
		}
		return "data:" + a.Mime + ";base64," + a.Content
	})
}

// DeleteMessage handles POST /api/delete/{id}.
func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := h.store.Remove(id); err != nil {
		HandleError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteAll handles POST /api/delete-all.
func (h *Handlers) DeleteAll(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Version handles GET /api/version.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"version_be": version.Version})
}

func parseID(r *http.Request) (mail.ID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}
