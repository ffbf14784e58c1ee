package app

import (
	"context"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
)

// ReadReceiptUseCase read position synchronizer shared by REST and websocket
type ReadReceiptUseCase struct {
	chatRepo    repository.ChatRepository
	msgRepo     repository.MessageRepository
	readRepo    repository.ReadPositionRepository
	broadcaster *hub.Broadcaster
	journal     repository.EventJournal
}

// NewReadReceiptUseCase create ReadReceiptUseCase
func NewReadReceiptUseCase(
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	readRepo repository.ReadPositionRepository,
	broadcaster *hub.Broadcaster,
	journal repository.EventJournal,
) *ReadReceiptUseCase {
	return &ReadReceiptUseCase{
		chatRepo:    chatRepo,
		msgRepo:     msgRepo,
		readRepo:    readRepo,
		broadcaster: broadcaster,
		journal:     journal,
	}
}

// MarkRead advance the read position up to messageID.
// The store keeps max(current, ts) so concurrent calls converge; message:read is sent only when it moved.
func (uc *ReadReceiptUseCase) MarkRead(ctx context.Context, chatID, userID, messageID string) (*domain.ReadReceiptPayload, bool, error) {
	if err := requireMember(ctx, uc.chatRepo, chatID, userID); err != nil {
		return nil, false, err
	}

	ts, err := uc.msgRepo.ResolveMessageTimestamp(ctx, chatID, messageID)
	if err != nil {
		return nil, false, err
	}

	advanced, err := uc.readRepo.AdvanceReadPosition(ctx, chatID, userID, ts)
	if err != nil {
		return nil, false, err
	}

	receipt := &domain.ReadReceiptPayload{
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    ts,
	}
	if !advanced {
		return receipt, false, nil
	}

	uc.broadcaster.Broadcast(domain.ChatRoom(chatID), domain.NewEvent(domain.EventMessageRead, receipt))
	appendJournal(ctx, uc.journal, domain.JournalEntry{
		Event:      domain.EventMessageRead,
		ChatID:     chatID,
		ActorID:    userID,
		Data:       receipt,
		OccurredAt: ts,
	})
	return receipt, true, nil
}
