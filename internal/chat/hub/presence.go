package hub

import (
	"context"
	"sync"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/metrics"

	"go.uber.org/zap"
)

// PresenceStore persists online state and last seen time of a user
type PresenceStore interface {
	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
}

// Presence derives online / offline transitions from registry occupancy
type Presence struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       PresenceStore
	now         func() time.Time

	locks        *userLocks
	persistLocks *userLocks
	mu           sync.RWMutex
	lastSeen     map[string]time.Time
	seq          map[string]uint64
}

// pendingWrite a transition waiting to be persisted
type pendingWrite struct {
	userID string
	online bool
	at     time.Time
	seq    uint64
}

// NewPresence create Presence
func NewPresence(registry *Registry, broadcaster *Broadcaster, store PresenceStore) *Presence {
	return &Presence{
		registry:     registry,
		broadcaster:  broadcaster,
		store:        store,
		now:          time.Now,
		locks:        newUserLocks(),
		persistLocks: newUserLocks(),
		lastSeen:     make(map[string]time.Time),
		seq:          make(map[string]uint64),
	}
}

// WithClock replace the time source
func (p *Presence) WithClock(now func() time.Time) *Presence {
	p.now = now
	return p
}

// Connect register a connection, join the user's personal room and emit user:online on 0 -> 1
func (p *Presence) Connect(ctx context.Context, connID string, id domain.Identity, t Transport) error {
	w, err := p.connect(connID, id, t)
	if err != nil {
		return err
	}
	if w != nil {
		p.persist(ctx, *w)
	}
	return nil
}

func (p *Presence) connect(connID string, id domain.Identity, t Transport) (*pendingWrite, error) {
	unlock := p.locks.lock(id.UserID)
	defer unlock()

	count, err := p.registry.Register(connID, id.UserID, t)
	if err != nil {
		return nil, err
	}
	if err := p.registry.JoinRoom(connID, domain.UserRoom(id.UserID)); err != nil {
		return nil, err
	}
	metrics.WsConnections.Inc()

	if count != 1 {
		return nil, nil
	}
	w := p.transition(id.UserID, true)
	return &w, nil
}

// Disconnect unregister a connection and emit user:offline on 1 -> 0
// It reports whether the user went offline.
func (p *Presence) Disconnect(ctx context.Context, connID string) (string, bool, error) {
	userID, ok := p.registry.UserOf(connID)
	if !ok {
		return "", false, domain.ErrUnknownConnection
	}

	w, err := p.disconnect(userID, connID)
	if err != nil {
		return "", false, err
	}
	if w == nil {
		return userID, false, nil
	}
	p.persist(ctx, *w)
	return userID, true, nil
}

func (p *Presence) disconnect(userID, connID string) (*pendingWrite, error) {
	unlock := p.locks.lock(userID)
	defer unlock()

	_, remaining, err := p.registry.Unregister(connID)
	if err != nil {
		return nil, err
	}
	metrics.WsConnections.Dec()

	if remaining > 0 {
		return nil, nil
	}
	w := p.transition(userID, false)
	return &w, nil
}

// IsOnline user has at least one connection
func (p *Presence) IsOnline(userID string) bool {
	return p.registry.IsOnline(userID)
}

// Snapshot current presence of a user
// lastSeenAt is zero when the user never went offline since process start.
func (p *Presence) Snapshot(userID string) domain.PresencePayload {
	p.mu.RLock()
	seen := p.lastSeen[userID]
	p.mu.RUnlock()

	online := p.registry.IsOnline(userID)
	if online {
		seen = p.now()
	}
	return domain.PresencePayload{UserID: userID, IsOnline: online, LastSeenAt: seen}
}

// transition runs under the user's lock so online / offline broadcasts strictly alternate
// The store write is returned to the caller and done after the lock is released.
func (p *Presence) transition(userID string, online bool) pendingWrite {
	now := p.now()
	name := domain.EventUserOnline

	p.mu.Lock()
	p.seq[userID]++
	seq := p.seq[userID]
	if !online {
		p.lastSeen[userID] = now
	}
	p.mu.Unlock()

	if online {
		metrics.OnlineUsers.Inc()
	} else {
		name = domain.EventUserOffline
		metrics.OnlineUsers.Dec()
	}

	p.broadcaster.BroadcastAll(domain.NewEvent(name, domain.PresencePayload{
		UserID:     userID,
		IsOnline:   online,
		LastSeenAt: now,
	}))
	return pendingWrite{userID: userID, online: online, at: now, seq: seq}
}

// persist write w unless a newer transition of the same user superseded it
// Writes of one user are serialized, so the stored state ends at the latest transition.
func (p *Presence) persist(ctx context.Context, w pendingWrite) {
	if p.store == nil {
		return
	}
	unlock := p.persistLocks.lock(w.userID)
	defer unlock()

	p.mu.RLock()
	latest := p.seq[w.userID]
	p.mu.RUnlock()
	if latest != w.seq {
		return
	}

	if err := p.store.SetUserOnline(ctx, w.userID, w.online, w.at); err != nil {
		logger.Log.Error("persist presence",
			zap.String("userID", w.userID),
			zap.Bool("online", w.online),
			zap.Error(err),
		)
	}
}

// userLocks per user mutex, entries are dropped when unused
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[string]*userLock)}
}

func (l *userLocks) lock(key string) func() {
	l.mu.Lock()
	ul, ok := l.m[key]
	if !ok {
		ul = &userLock{}
		l.m[key] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
