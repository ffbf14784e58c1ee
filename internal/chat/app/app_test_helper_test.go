package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/pkg/config"
	"chat_realtime_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

func init() {
	logger.SetNewNop()
}

type wireFrame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// recorder hub.Transport keeping every frame
type recorder struct {
	mu     sync.Mutex
	frames []wireFrame
}

func (r *recorder) Send(b []byte) error {
	var f wireFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recorder) events(name domain.EventName) []wireFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.frames, func(f wireFrame, _ int) bool { return f.Event == name })
}

func (r *recorder) count(name domain.EventName) int {
	return len(r.events(name))
}

func (r *recorder) last() wireFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return wireFrame{}
	}
	return r.frames[len(r.frames)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

type nopPresenceStore struct{}

func (nopPresenceStore) SetUserOnline(context.Context, string, bool, time.Time) error { return nil }

// memoryChatRepository in-memory ChatRepository
type memoryChatRepository struct {
	mu    sync.RWMutex
	chats map[string]*domain.Chat
}

func newMemoryChatRepository() *memoryChatRepository {
	return &memoryChatRepository{chats: make(map[string]*domain.Chat)}
}

func (r *memoryChatRepository) CreateChat(_ context.Context, chat *domain.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *chat
	c.MemberIDs = append([]string(nil), chat.MemberIDs...)
	r.chats[chat.ID] = &c
	return nil
}

func (r *memoryChatRepository) FindByID(_ context.Context, chatID string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	return &cp, nil
}

func (r *memoryChatRepository) FindPrivateChat(_ context.Context, userA, userB string) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chats {
		if c.Type == domain.ChatTypePrivate && len(c.MemberIDs) == 2 && c.HasMember(userA) && c.HasMember(userB) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryChatRepository) ListByMember(_ context.Context, userID string) ([]domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Chat{}
	for _, c := range r.chats {
		if c.HasMember(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryChatRepository) AddMember(_ context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	if !c.HasMember(userID) {
		c.MemberIDs = append(c.MemberIDs, userID)
	}
	return nil
}

func (r *memoryChatRepository) RemoveMember(_ context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	c.MemberIDs = lo.Without(c.MemberIDs, userID)
	c.Admins = lo.Without(c.Admins, userID)
	return nil
}

func (r *memoryChatRepository) IsChatMember(_ context.Context, chatID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[chatID]
	return ok && c.HasMember(userID), nil
}

func (r *memoryChatRepository) ChatMemberIDs(_ context.Context, chatID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), c.MemberIDs...), nil
}

func (r *memoryChatRepository) UpdateGroup(_ context.Context, chatID string, patch domain.GroupPatch, at time.Time) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok || c.Type != domain.ChatTypeGroup {
		return nil, domain.ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.AvatarURL != nil {
		c.AvatarURL = *patch.AvatarURL
	}
	c.UpdatedAt = at
	cp := *c
	return &cp, nil
}

func (r *memoryChatRepository) SearchGroups(_ context.Context, userID, query string, limit int64) ([]domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Chat{}
	for _, c := range r.chats {
		if c.Type == domain.ChatTypeGroup && c.HasMember(userID) &&
			strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryMessageRepository in-memory MessageRepository, timestamps strictly increase
type memoryMessageRepository struct {
	mu    sync.Mutex
	msgs  map[string]*domain.Message
	clock time.Time
}

func newMemoryMessageRepository() *memoryMessageRepository {
	return &memoryMessageRepository{
		msgs:  make(map[string]*domain.Message),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memoryMessageRepository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

// insertAt seed a message with a given timestamp
func (r *memoryMessageRepository) insertAt(chatID, senderID string, at time.Time) *domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := &domain.Message{
		ID: uuid.New().String(), ChatID: chatID, SenderID: senderID,
		Content: "seed", Type: domain.MessageTypeText, CreatedAt: at, UpdatedAt: at,
	}
	r.msgs[msg.ID] = msg
	return msg
}

func (r *memoryMessageRepository) PersistMessage(_ context.Context, in domain.SendMessageInput) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	msg := &domain.Message{
		ID: uuid.New().String(), ChatID: in.ChatID, SenderID: in.SenderID, Content: in.Content,
		Type: in.Type, Attachments: in.Attachments, ReplyToID: in.ReplyToID, CreatedAt: now, UpdatedAt: now,
	}
	r.msgs[msg.ID] = msg
	cp := *msg
	return &cp, nil
}

func (r *memoryMessageRepository) owned(messageID, userID string) (*domain.Message, error) {
	msg, ok := r.msgs[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != userID {
		return nil, domain.ErrNotOwner
	}
	if msg.IsDeleted {
		return nil, domain.ErrAlreadyDeleted
	}
	return msg, nil
}

func (r *memoryMessageRepository) PersistEdit(_ context.Context, messageID, userID, content string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.owned(messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.Type != domain.MessageTypeText {
		return nil, fmt.Errorf("%w: only text messages can be edited", domain.ErrValidation)
	}
	msg.Content, msg.IsEdited, msg.UpdatedAt = content, true, r.tick()
	cp := *msg
	return &cp, nil
}

func (r *memoryMessageRepository) PersistDelete(_ context.Context, messageID, userID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != userID {
		return nil, domain.ErrNotOwner
	}
	msg.Content, msg.Attachments, msg.IsDeleted, msg.UpdatedAt = "", nil, true, r.tick()
	cp := *msg
	return &cp, nil
}

func (r *memoryMessageRepository) ResolveMessageTimestamp(_ context.Context, chatID, messageID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[messageID]
	if !ok || msg.ChatID != chatID {
		return time.Time{}, domain.ErrNotFound
	}
	return msg.CreatedAt, nil
}

func (r *memoryMessageRepository) FindMessagesBefore(_ context.Context, chatID string, before time.Time, limit int64) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Message{}
	for _, m := range r.msgs {
		if m.ChatID == chatID && !m.IsDeleted && m.CreatedAt.Before(before) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryMessageRepository) CountUnreadSince(_ context.Context, chatID, userID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.ChatID == chatID && m.SenderID != userID && !m.IsDeleted && m.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// memoryReadPositionRepository max-merge under a mutex, same contract as the mongo $max update
type memoryReadPositionRepository struct {
	mu  sync.Mutex
	pos map[string]time.Time
}

func newMemoryReadPositionRepository() *memoryReadPositionRepository {
	return &memoryReadPositionRepository{pos: make(map[string]time.Time)}
}

func (r *memoryReadPositionRepository) AdvanceReadPosition(_ context.Context, chatID, userID string, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.ReadPositionKey(chatID, userID)
	if cur, ok := r.pos[key]; ok && !ts.After(cur) {
		return false, nil
	}
	r.pos[key] = ts
	return true, nil
}

func (r *memoryReadPositionRepository) FindReadPosition(_ context.Context, chatID, userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos[domain.ReadPositionKey(chatID, userID)], nil
}

// memoryNotificationRepository in-memory NotificationRepository
type memoryNotificationRepository struct {
	mu   sync.Mutex
	rows []domain.Notification
}

func (r *memoryNotificationRepository) PersistNotifications(_ context.Context, recipientIDs []string, draft domain.NotificationDraft) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	out := lo.Map(lo.Uniq(recipientIDs), func(userID string, _ int) domain.Notification {
		return domain.Notification{
			ID: uuid.New().String(), UserID: userID, Type: draft.Type, Title: draft.Title, Body: draft.Body,
			ChatID: draft.ChatID, MessageID: draft.MessageID, TriggeredBy: draft.TriggeredBy, CreatedAt: now,
		}
	})
	r.rows = append(r.rows, out...)
	return out, nil
}

func (r *memoryNotificationRepository) forUser(userID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.rows, func(n domain.Notification, _ int) bool { return n.UserID == userID })
}

func (r *memoryNotificationRepository) ListByUser(_ context.Context, userID string, _ time.Time, limit int) ([]domain.Notification, error) {
	rows := r.forUser(userID)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *memoryNotificationRepository) CountUnread(_ context.Context, userID string) (int64, error) {
	return int64(lo.CountBy(r.forUser(userID), func(n domain.Notification) bool { return !n.IsRead })), nil
}

func (r *memoryNotificationRepository) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id && r.rows[i].UserID == userID {
			r.rows[i].IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memoryNotificationRepository) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].UserID == userID && !r.rows[i].IsRead {
			r.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memoryNotificationRepository) Delete(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id && r.rows[i].UserID == userID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// realtimeFixture the whole realtime core on in-memory collaborators
type realtimeFixture struct {
	chats    *memoryChatRepository
	messages *memoryMessageRepository
	reads    *memoryReadPositionRepository
	notifies *memoryNotificationRepository

	registry    *hub.Registry
	broadcaster *hub.Broadcaster
	presence    *hub.Presence
	typing      *hub.Typing

	chatUC    *ChatUseCase
	messageUC *MessageUseCase
	readUC    *ReadReceiptUseCase
	handler   *ChatWebsocketHandler

	now time.Time
	mu  sync.Mutex
}

func newRealtimeFixture(typingTTL time.Duration) *realtimeFixture {
	f := &realtimeFixture{
		chats:    newMemoryChatRepository(),
		messages: newMemoryMessageRepository(),
		reads:    newMemoryReadPositionRepository(),
		notifies: &memoryNotificationRepository{},
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.registry = hub.NewRegistry()
	f.broadcaster = hub.NewBroadcaster(f.registry)
	f.presence = hub.NewPresence(f.registry, f.broadcaster, nopPresenceStore{}).WithClock(f.clock)
	f.typing = hub.NewTyping(f.broadcaster, typingTTL, time.Second).WithClock(f.clock)

	notifyUC := NewNotificationUseCase(f.chats, f.notifies, f.broadcaster)
	f.chatUC = NewChatUseCase(f.chats, f.registry, f.typing)
	f.messageUC = NewMessageUseCase(f.chats, f.messages, f.reads, notifyUC, f.broadcaster, nil)
	f.readUC = NewReadReceiptUseCase(f.chats, f.messages, f.reads, f.broadcaster, nil)
	f.handler = NewChatWebsocketHandler(f.chats, f.messageUC, f.readUC, f.registry, f.broadcaster, f.presence, f.typing,
		config.Realtime{})
	return f
}

func (f *realtimeFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *realtimeFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *realtimeFixture) group(chatID, name string, members ...string) {
	_ = f.chats.CreateChat(context.Background(), &domain.Chat{
		ID: chatID, Type: domain.ChatTypeGroup, Name: name, MemberIDs: members, JoinMode: domain.JoinModeOpen,
	})
}

// connect register a connection and join the chat rooms it is a member of
func (f *realtimeFixture) connect(connID, userID string, chatIDs ...string) (*Session, *recorder) {
	rec := &recorder{}
	s := NewSession(connID, domain.Identity{UserID: userID, Username: userID}, 0, 0)
	if err := f.presence.Connect(context.Background(), connID, s.Identity, rec); err != nil {
		panic(err)
	}
	for _, chatID := range chatIDs {
		f.handler.Dispatch(context.Background(), s, request(domain.JoinChat, "", domain.JoinChatRequest{ChatID: chatID}))
	}
	return s, rec
}

// disconnect same path as the websocket handler on close
func (f *realtimeFixture) disconnect(s *Session) {
	f.handler.disconnect(s)
}

func request(action domain.Action, ackID string, data interface{}) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(domain.WSRequest{Event: string(action), AckID: ackID, Data: raw})
	return b
}
