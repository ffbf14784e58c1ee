package hub

import (
	"context"
	"sync"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/logger"

	"go.uber.org/zap"
)

type typingKey struct {
	chatID string
	userID string
}

type typingEntry struct {
	username string
	connID   string
	expiry   time.Time
}

// Typing per (chat, user) ephemeral typing state with expiry
// Repeated starts inside the window only refresh the expiry.
type Typing struct {
	broadcaster *Broadcaster
	ttl         time.Duration
	interval    time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[typingKey]typingEntry
}

// NewTyping create Typing, ttl is the debounce window and interval the sweep period
func NewTyping(broadcaster *Broadcaster, ttl, interval time.Duration) *Typing {
	return &Typing{
		broadcaster: broadcaster,
		ttl:         ttl,
		interval:    interval,
		now:         time.Now,
		entries:     make(map[typingKey]typingEntry),
	}
}

// WithClock replace the time source
func (t *Typing) WithClock(now func() time.Time) *Typing {
	t.now = now
	return t
}

// Start upsert the entry, broadcast isTyping=true to the room except the origin connection
// It reports whether an event was broadcast.
func (t *Typing) Start(chatID string, id domain.Identity, originConnID string) bool {
	key := typingKey{chatID: chatID, userID: id.UserID}
	now := t.now()

	t.mu.Lock()
	current, ok := t.entries[key]
	fresh := !ok || !now.Before(current.expiry)
	t.entries[key] = typingEntry{username: id.Username, connID: originConnID, expiry: now.Add(t.ttl)}
	t.mu.Unlock()

	if !fresh {
		return false
	}
	t.emit(key, id.Username, originConnID, true)
	return true
}

// Stop remove the entry and broadcast isTyping=false when one existed
func (t *Typing) Stop(chatID string, id domain.Identity, originConnID string) bool {
	key := typingKey{chatID: chatID, userID: id.UserID}

	t.mu.Lock()
	e, ok := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()

	if !ok {
		return false
	}
	t.emit(key, e.username, originConnID, false)
	return true
}

// IsTyping expired entries read as stopped even before the sweep runs
func (t *Typing) IsTyping(chatID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[typingKey{chatID: chatID, userID: userID}]
	return ok && t.now().Before(e.expiry)
}

// ClearUser drop every entry of a user, used when the user's last connection closes
func (t *Typing) ClearUser(userID string) int {
	t.mu.Lock()
	var cleared []typingKey
	var entries []typingEntry
	for k, e := range t.entries {
		if k.userID == userID {
			cleared = append(cleared, k)
			entries = append(entries, e)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for i, k := range cleared {
		t.emit(k, entries[i].username, "", false)
	}
	return len(cleared)
}

// Sweep reclaim expired entries and broadcast isTyping=false for each
func (t *Typing) Sweep() int {
	now := t.now()

	t.mu.Lock()
	var expired []typingKey
	var entries []typingEntry
	for k, e := range t.entries {
		if !now.Before(e.expiry) {
			expired = append(expired, k)
			entries = append(entries, e)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for i, k := range expired {
		t.emit(k, entries[i].username, "", false)
	}
	return len(expired)
}

// Len number of tracked entries, expired or not
func (t *Typing) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweep every interval until ctx is done
func (t *Typing) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("typing sweeper stopped")
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				logger.Log.Debug("typing entries expired", zap.Int("count", n))
			}
		}
	}
}

func (t *Typing) emit(key typingKey, username, excludeConnID string, typing bool) {
	t.broadcaster.BroadcastExcept(domain.ChatRoom(key.chatID), excludeConnID, domain.NewEvent(domain.EventTypingUpdate, domain.TypingPayload{
		ChatID:   key.chatID,
		UserID:   key.userID,
		Username: username,
		IsTyping: typing,
	}))
}
