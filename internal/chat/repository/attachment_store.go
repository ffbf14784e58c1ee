package repository

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/database"

	"github.com/google/uuid"
)

// AttachmentStore object storage of message attachments
type AttachmentStore interface {
	Upload(ctx context.Context, ownerID, filename, mimeType string, size int64, r io.Reader) (*domain.Attachment, error)
	PresignURL(ctx context.Context, objectKey string) (string, error)
}

type minioAttachmentStore struct {
	client     *database.MinIOClient
	presignTTL time.Duration
}

// NewMinIOAttachmentStore create AttachmentStore on minio
func NewMinIOAttachmentStore(client *database.MinIOClient, presignTTL time.Duration) AttachmentStore {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &minioAttachmentStore{client: client, presignTTL: presignTTL}
}

// Upload object key is attachments/<owner>/<uuid><ext>
func (s *minioAttachmentStore) Upload(ctx context.Context, ownerID, filename, mimeType string, size int64, r io.Reader) (*domain.Attachment, error) {
	id := uuid.New().String()
	key := fmt.Sprintf("attachments/%s/%s%s", ownerID, id, strings.ToLower(path.Ext(filename)))

	if err := s.client.PutObject(ctx, key, r, size, mimeType); err != nil {
		return nil, storageErr("upload attachment", err)
	}
	url, err := s.PresignURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &domain.Attachment{
		ID:        id,
		Filename:  filename,
		ObjectKey: key,
		MimeType:  mimeType,
		Size:      size,
		URL:       url,
	}, nil
}

// PresignURL temporary GET url of an object
func (s *minioAttachmentStore) PresignURL(ctx context.Context, objectKey string) (string, error) {
	url, err := s.client.PresignGetURL(ctx, objectKey, s.presignTTL)
	if err != nil {
		return "", storageErr("presign attachment", err)
	}
	return url, nil
}
