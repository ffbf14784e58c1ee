package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chat_realtime_service/internal/chat/domain"
)

type frame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// recorder in-memory Transport that keeps every frame
type recorder struct {
	mu     sync.Mutex
	frames []frame
	stale  bool
}

func (r *recorder) Send(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale {
		return errors.New("send buffer full")
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) events(name domain.EventName) []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []frame
	for _, f := range r.frames {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) count(name domain.EventName) int {
	return len(r.events(name))
}

func (r *recorder) all() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

type presenceCall struct {
	userID string
	online bool
	at     time.Time
}

// memoryPresenceStore PresenceStore keeping every call
type memoryPresenceStore struct {
	mu    sync.Mutex
	calls []presenceCall
	err   error
}

func (s *memoryPresenceStore) SetUserOnline(_ context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, presenceCall{userID: userID, online: online, at: at})
	return s.err
}

func (s *memoryPresenceStore) snapshot() []presenceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presenceCall(nil), s.calls...)
}

// blockingPresenceStore holds every write until release is closed
type blockingPresenceStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingPresenceStore) SetUserOnline(ctx context.Context, _ string, _ bool, _ time.Time) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeClock manual time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 23, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
