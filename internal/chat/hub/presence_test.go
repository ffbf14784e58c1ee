package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/logger"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceFixture() (*Registry, *Broadcaster, *memoryPresenceStore, *Presence) {
	logger.SetNewNop()
	r := NewRegistry()
	b := NewBroadcaster(r)
	store := &memoryPresenceStore{}
	return r, b, store, NewPresence(r, b, store)
}

func TestPresence_ConnectJoinsPersonalRoom(t *testing.T) {
	r, _, _, p := newPresenceFixture()
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx, "c1", domain.Identity{UserID: "alice"}, &recorder{}))
	assert.True(t, r.InRoom("c1", domain.UserRoom("alice")))

	err := p.Connect(ctx, "c1", domain.Identity{UserID: "alice"}, &recorder{})
	assert.ErrorIs(t, err, domain.ErrDuplicateConnection)
}

// scenario: two connections, first disconnect is silent, second emits exactly one offline
func TestPresence_MultipleConnectionsCollapse(t *testing.T) {
	_, _, store, p := newPresenceFixture()
	ctx := context.Background()
	alice := domain.Identity{UserID: "alice", Username: "Alice"}

	bob := &recorder{}
	require.NoError(t, p.Connect(ctx, "bob-1", domain.Identity{UserID: "bob"}, bob))

	require.NoError(t, p.Connect(ctx, "c1", alice, &recorder{}))
	require.NoError(t, p.Connect(ctx, "c2", alice, &recorder{}))
	assert.Equal(t, 2, bob.count(domain.EventUserOnline), "bob and alice online once each")

	user, offline, err := p.Disconnect(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.False(t, offline)
	assert.Equal(t, 0, bob.count(domain.EventUserOffline))
	assert.True(t, p.IsOnline("alice"))

	_, offline, err = p.Disconnect(ctx, "c2")
	require.NoError(t, err)
	assert.True(t, offline)
	assert.False(t, p.IsOnline("alice"))

	events := bob.events(domain.EventUserOffline)
	require.Len(t, events, 1)
	var payload domain.PresencePayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "alice", payload.UserID)
	assert.False(t, payload.IsOnline)
	assert.False(t, payload.LastSeenAt.IsZero())

	calls := store.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, presenceCall{userID: "alice", online: false, at: calls[2].at}, calls[2])

	snap := p.Snapshot("alice")
	assert.False(t, snap.IsOnline)
	assert.Equal(t, calls[2].at, snap.LastSeenAt)
}

func TestPresence_StoreFailureDoesNotBlockBroadcast(t *testing.T) {
	_, _, store, p := newPresenceFixture()
	store.err = errors.New("pg down")
	ctx := context.Background()

	watcher := &recorder{}
	require.NoError(t, p.Connect(ctx, "w", domain.Identity{UserID: "watcher"}, watcher))
	require.NoError(t, p.Connect(ctx, "c1", domain.Identity{UserID: "alice"}, &recorder{}))
	_, _, err := p.Disconnect(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, 2, watcher.count(domain.EventUserOnline))
	assert.Equal(t, 1, watcher.count(domain.EventUserOffline))
}

func TestPresence_DisconnectUnknown(t *testing.T) {
	_, _, _, p := newPresenceFixture()
	_, _, err := p.Disconnect(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownConnection)
}

// concurrent connects / disconnects of one user: broadcasts alternate and the stored state ends offline
func TestPresence_ConcurrentTransitionsSettle(t *testing.T) {
	_, _, store, p := newPresenceFixture()
	ctx := context.Background()
	alice := domain.Identity{UserID: "alice"}

	watcher := &recorder{}
	require.NoError(t, p.Connect(ctx, "w", domain.Identity{UserID: "watcher"}, watcher))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			assert.NoError(t, p.Connect(ctx, connID, alice, &recorder{}))
			_, _, err := p.Disconnect(ctx, connID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var states []bool
	for _, f := range watcher.all() {
		var payload domain.PresencePayload
		require.NoError(t, json.Unmarshal(f.Data, &payload))
		if payload.UserID == "alice" {
			states = append(states, payload.IsOnline)
		}
	}
	require.NotEmpty(t, states)
	for i, online := range states {
		assert.Equal(t, i%2 == 0, online, "broadcast %d", i)
	}

	calls := lo.Filter(store.snapshot(), func(c presenceCall, _ int) bool { return c.userID == "alice" })
	require.NotEmpty(t, calls)
	assert.LessOrEqual(t, len(calls), len(states))
	assert.False(t, calls[len(calls)-1].online)
	assert.False(t, p.IsOnline("alice"))
}

// a slow store must not hold the user's lock
func TestPresence_SlowStoreDoesNotBlockConnections(t *testing.T) {
	logger.SetNewNop()
	r := NewRegistry()
	b := NewBroadcaster(r)
	store := &blockingPresenceStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	p := NewPresence(r, b, store)
	ctx := context.Background()
	alice := domain.Identity{UserID: "alice"}

	firstDone := make(chan error, 1)
	go func() { firstDone <- p.Connect(ctx, "c1", alice, &recorder{}) }()

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("store was never called")
	}

	// 第一個連線還卡在 store, 同一個 user 的第二個連線要能進出
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		assert.NoError(t, p.Connect(ctx, "c2", alice, &recorder{}))
		_, offline, err := p.Disconnect(ctx, "c2")
		assert.NoError(t, err)
		assert.False(t, offline)
	}()

	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second connection blocked behind the store write")
	}
	assert.True(t, p.IsOnline("alice"))

	close(store.release)
	require.NoError(t, <-firstDone)
}
