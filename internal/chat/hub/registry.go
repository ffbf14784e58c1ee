package hub

import (
	"fmt"
	"sync"

	"chat_realtime_service/internal/chat/domain"

	"github.com/samber/lo"
)

// Transport delivers encoded frames to one live session.
// Send must not block; a full or closed session returns an error.
type Transport interface {
	Send(frame []byte) error
}

type connection struct {
	id        string
	userID    string
	rooms     map[string]struct{}
	transport Transport
}

type target struct {
	connID    string
	transport Transport
}

// Registry 記錄每個 user 的連線以及每個 room 訂閱的連線
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection         // connID -> connection
	users map[string]map[string]struct{} // userID -> connIDs
	rooms map[string]map[string]struct{} // roomID -> connIDs
}

// NewRegistry create Registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		users: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register add a connection for userID and return the user's connection count after it
func (r *Registry) Register(connID, userID string, t Transport) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return len(r.users[userID]), fmt.Errorf("%w: %s", domain.ErrDuplicateConnection, connID)
	}

	r.conns[connID] = &connection{
		id:        connID,
		userID:    userID,
		rooms:     make(map[string]struct{}),
		transport: t,
	}
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][connID] = struct{}{}
	return len(r.users[userID]), nil
}

// JoinRoom subscribe connection to room
// Membership of the underlying user must be checked by the caller.
func (r *Registry) JoinRoom(connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, connID)
	}
	c.rooms[roomID] = struct{}{}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][connID] = struct{}{}
	return nil
}

// LeaveRoom idempotent
func (r *Registry) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		delete(c.rooms, roomID)
	}
	r.removeFromRoom(connID, roomID)
}

// LeaveRoomForUser unsubscribe every connection of userID from room
// It returns the connection ids that were subscribed.
func (r *Registry) LeaveRoomForUser(userID, roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for connID := range r.users[userID] {
		c := r.conns[connID]
		if _, ok := c.rooms[roomID]; !ok {
			continue
		}
		delete(c.rooms, roomID)
		r.removeFromRoom(connID, roomID)
		left = append(left, connID)
	}
	return left
}

// Unregister remove the connection from every room and from its user
// It returns the owning user and the user's remaining connection count.
func (r *Registry) Unregister(connID string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", domain.ErrUnknownConnection, connID)
	}
	for roomID := range c.rooms {
		r.removeFromRoom(connID, roomID)
	}
	delete(r.conns, connID)

	remaining := 0
	if set, ok := r.users[c.userID]; ok {
		delete(set, connID)
		remaining = len(set)
		if remaining == 0 {
			delete(r.users, c.userID)
		}
	}
	return c.userID, remaining, nil
}

func (r *Registry) removeFromRoom(connID, roomID string) {
	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
}

// UserOf owner of a connection
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return c.userID, true
}

// ConnectionsForUser snapshot of the user's connection ids
func (r *Registry) ConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.users[userID])
}

// ConnectionsInRoom snapshot of the room's connection ids
func (r *Registry) ConnectionsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[roomID])
}

// InRoom check connection is subscribed to room
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// IsOnline user has at least one connection
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionCount total live connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// OnlineUserCount users with at least one connection
func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Registry) roomTargets(roomID, exclude string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	out := make([]target, 0, len(set))
	for connID := range set {
		if connID == exclude {
			continue
		}
		out = append(out, target{connID: connID, transport: r.conns[connID].transport})
	}
	return out
}

func (r *Registry) allTargets() []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]target, 0, len(r.conns))
	for connID, c := range r.conns {
		out = append(out, target{connID: connID, transport: c.transport})
	}
	return out
}

func (r *Registry) connTarget(connID string) (target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return target{}, false
	}
	return target{connID: connID, transport: c.transport}, true
}
