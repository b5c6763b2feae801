// Package store holds captured messages in memory and sweeps them on a
// retention timer, mirroring the single-owner receive/tick/cancel loop of
// the original storage task this was ported from.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mailcrab/mailcrab/internal/broadcast"
	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/observability"
)

// ErrNotFound is returned when an operation references a message id that
// isn't (or is no longer) in the store.
var ErrNotFound = errors.New("store: message not found")

// minSweepInterval is the lowest tick period the retention sweeper will
// ever use, regardless of how short the configured retention period is, so
// the sweep loop can still observe shutdown promptly without spinning.
const minSweepInterval = 60 * time.Second

// Store holds the in-memory set of captured messages.
type Store struct {
	mu              sync.RWMutex
	messages        map[mail.ID]mail.Message
	retentionPeriod time.Duration
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// New creates a Store. A retentionPeriod of zero disables eviction
// entirely; the sweep goroutine still runs (at minSweepInterval) so it can
// observe context cancellation, but never removes anything. metrics may be
// nil, in which case no collector is touched.
func New(retentionPeriod time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		messages:        make(map[mail.ID]mail.Message),
		retentionPeriod: retentionPeriod,
		logger:          logger,
		metrics:         metrics,
	}
}

// Insert adds a newly ingested message to the store.
func (s *Store) Insert(msg mail.Message) {
	s.mu.Lock()
	s.messages[msg.ID] = msg
	count := len(s.messages)
	s.mu.Unlock()
	s.reportCount(count)
}

func (s *Store) reportCount(count int) {
	if s.metrics != nil {
		s.metrics.MessagesStored.Set(float64(count))
	}
}

// Get returns the full message for id, or ErrNotFound.
func (s *Store) Get(id mail.ID) (mail.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return mail.Message{}, ErrNotFound
	}
	return msg, nil
}

// ListMetadata returns every stored message's metadata projection, sorted
// ascending by time.
func (s *Store) ListMetadata() []mail.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]mail.Metadata, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, msg.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Open flips a message's opened flag to true. Returns ErrNotFound if the
// message doesn't exist.
func (s *Store) Open(id mail.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Opened = true
	s.messages[id] = msg
	return nil
}

// Remove deletes a single message. Returns ErrNotFound if it doesn't
// exist.
func (s *Store) Remove(id mail.ID) error {
	s.mu.Lock()
	if _, ok := s.messages[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.messages, id)
	count := len(s.messages)
	s.mu.Unlock()
	s.reportCount(count)
	return nil
}

// Clear drops every stored message.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = make(map[mail.ID]mail.Message)
	s.mu.Unlock()
	s.reportCount(0)
}

// Run consumes sub, the store's permanent subscription to the bus (opened
// by the caller before anything publishes, so every captured message has a
// live consumer), and drives the retention sweep, until ctx is canceled. This mirrors the original
// storage task's receive-or-tick-or-cancel select loop, expressed here as
// one goroutine consuming the subscription and another ticking the
// sweeper, joined on ctx cancellation.
func (s *Store) Run(ctx context.Context, sub *broadcast.Subscription[mail.Message]) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.consume(ctx, sub)
	}()

	interval := s.retentionPeriod / 10
	if interval < minSweepInterval {
		interval = minSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-ticker.C:
			if s.retentionPeriod <= 0 {
				continue
			}
			s.sweep(time.Now().Add(-s.retentionPeriod))
		}
	}
}

// consume pulls every message published on sub and inserts it, until ctx
// is canceled.
func (s *Store) consume(ctx context.Context, sub *broadcast.Subscription[mail.Message]) {
	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			if _, lagged := err.(broadcast.ErrLagged); lagged {
				continue
			}
			return
		}
		s.Insert(msg)
	}
}

// sweep removes every message at or older than removeBefore; a message is
// retained only if its time is strictly after the cutoff.
func (s *Store) sweep(removeBefore time.Time) {
	cutoff := removeBefore.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, msg := range s.messages {
		if msg.Time <= cutoff {
			delete(s.messages, id)
			removed++
		}
	}
	s.reportCount(len(s.messages))
	if removed > 0 && s.logger != nil {
		s.logger.Debug("retention sweep evicted messages", "count", removed)
	}
}
