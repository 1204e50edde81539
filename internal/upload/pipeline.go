// ABOUTME: Audio upload pipeline: store the recording, sign a retrieval URL, then record the message row
// ABOUTME: Each step fails fast with a classified error; nothing is retried here

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-sync/internal/conversation"
	"github.com/2389/coven-sync/internal/errdefs"
	"github.com/2389/coven-sync/internal/objects"
	"github.com/2389/coven-sync/internal/session"
	"github.com/2389/coven-sync/internal/store"
)

// SignedURLTTL is how long a signed retrieval URL stays valid.
const SignedURLTTL = 900 * time.Second

// MessageTypeAudio is the type column of an audio message row.
const MessageTypeAudio = "audio"

// ErrMissingConversation is returned when no conversation id is given.
var ErrMissingConversation = errors.New("conversation id is required")

// Request is one recorded clip to upload.
type Request struct {
	ConversationID string
	Data           []byte
	MimeType       string
	DurationMs     float64
	Waveform       []float64 // optional amplitude samples
}

// Meta is embedded in the persisted message row.
type Meta struct {
	URL        string `json:"url"`
	Path       string `json:"path"`
	Mime       string `json:"mime"`
	DurationMs int64  `json:"duration_ms"`
	Waveform   []int  `json:"waveform,omitempty"`
}

// Result describes a completed upload.
type Result struct {
	MessageID   string `json:"message_id"`
	StoragePath string `json:"storage_path"`
	SignedURL   string `json:"signed_url"`
	Meta        Meta   `json:"meta"`
}

// Pipeline uploads audio for the current session's owner.
type Pipeline struct {
	sessions session.Provider
	objects  objects.Store
	backend  store.Backend
	ttl      time.Duration
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(sessions session.Provider, objs objects.Store, backend store.Backend, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sessions: sessions,
		objects:  objs,
		backend:  backend,
		ttl:      SignedURLTTL,
		logger:   logger.With("component", "upload"),
		now:      time.Now,
		newID:    newMessageID,
	}
}

// SetSignedURLTTL overrides how long signed URLs stay valid. Non-positive
// values keep the default.
func (p *Pipeline) SetSignedURLTTL(ttl time.Duration) {
	if ttl > 0 {
		p.ttl = ttl
	}
}

// UploadAudio runs the full pipeline for req.
func (p *Pipeline) UploadAudio(ctx context.Context, req Request) (*Result, error) {
	sess, ok := p.sessions.Current(ctx)
	if !ok {
		return nil, errdefs.Unauthenticated("upload.audio")
	}
	if req.ConversationID == "" {
		return nil, ErrMissingConversation
	}

	duration := NormalizeDuration(req.DurationMs)
	waveform := NormalizeWaveform(req.Waveform)
	ext := ExtensionForMIME(req.MimeType)
	startedAt := p.now()
	objectPath := StoragePath(sess.OwnerID, req.ConversationID, startedAt, ext)

	if err := p.objects.Upload(ctx, objectPath, req.Data, req.MimeType); err != nil {
		p.logger.Warn("audio upload failed", "path", objectPath, "error", err)
		return nil, errdefs.UploadFailed("upload.store", err)
	}

	signedURL, err := p.objects.CreateSignedURL(ctx, objectPath, p.ttl)
	if err != nil {
		p.logger.Warn("signing audio url failed", "path", objectPath, "error", err)
		return nil, errdefs.SigningFailed("upload.sign", err)
	}
	if signedURL == "" {
		return nil, errdefs.SigningFailed("upload.sign", nil)
	}

	meta := Meta{
		URL:        signedURL,
		Path:       objectPath,
		Mime:       req.MimeType,
		DurationMs: duration,
		Waveform:   waveform,
	}
	messageID := p.newID()

	_, err = p.backend.Insert(ctx, store.TableMessages, store.Row{
		"id":              messageID,
		"profile_id":      sess.OwnerID,
		"conversation_id": req.ConversationID,
		"type":            MessageTypeAudio,
		"content":         nil,
		"meta":            meta,
		"created_at":      startedAt.UTC().Format(conversation.TimestampLayout),
	})
	if err != nil {
		// The object is already stored; the caller retries the whole
		// operation, which writes a new path.
		p.logger.Warn("recording audio message failed", "message_id", messageID, "path", objectPath, "error", err)
		return nil, errdefs.Persistence("upload.record", err)
	}

	p.logger.Info("audio message uploaded",
		"message_id", messageID,
		"conversation_id", req.ConversationID,
		"path", objectPath,
		"bytes", len(req.Data),
		"duration_ms", duration)

	return &Result{
		MessageID:   messageID,
		StoragePath: objectPath,
		SignedURL:   signedURL,
		Meta:        meta,
	}, nil
}

// StoredMessage is a row of the messages table.
type StoredMessage struct {
	ID             string  `json:"id"`
	ProfileID      string  `json:"profile_id"`
	ConversationID string  `json:"conversation_id"`
	Type           string  `json:"type"`
	Content        *string `json:"content"`
	Meta           any     `json:"meta"`
	CreatedAt      string  `json:"created_at"`
}

// ListMessages returns the current owner's message rows for a conversation,
// oldest first.
func (p *Pipeline) ListMessages(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	sess, ok := p.sessions.Current(ctx)
	if !ok {
		return nil, errdefs.Unauthenticated("upload.list")
	}

	rows, err := p.backend.Select(ctx, store.Query{
		Table: store.TableMessages,
		Filters: []store.Filter{
			store.Eq("profile_id", sess.OwnerID),
			store.Eq("conversation_id", conversationID),
		},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, errdefs.Persistence("upload.list", err)
	}

	out := make([]StoredMessage, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		msg := StoredMessage{ID: id, Meta: row["meta"]}
		msg.ProfileID, _ = row["profile_id"].(string)
		msg.ConversationID, _ = row["conversation_id"].(string)
		msg.Type, _ = row["type"].(string)
		msg.CreatedAt, _ = row["created_at"].(string)
		if c, ok := row["content"].(string); ok {
			msg.Content = &c
		}
		out = append(out, msg)
	}
	return out, nil
}

// newMessageID returns a random UUID, or a time-plus-random id if the
// system random source is unavailable.
func newMessageID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return fmt.Sprintf("%d-%016x", time.Now().UnixMilli(), rand.Uint64())
}
