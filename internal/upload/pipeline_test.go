package upload

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-sync/internal/errdefs"
	"github.com/2389/coven-sync/internal/objects"
	"github.com/2389/coven-sync/internal/session"
	"github.com/2389/coven-sync/internal/store"
)

// fakeObjects records calls and fails on demand.
type fakeObjects struct {
	uploaded    map[string][]byte
	contentType map[string]string
	uploadErr   error
	signErr     error
	emptyURL    bool
	signedTTL   time.Duration
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploaded: map[string][]byte{}, contentType: map[string]string{}}
}

func (f *fakeObjects) Upload(ctx context.Context, p string, data []byte, ct string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[p] = data
	f.contentType[p] = ct
	return nil
}

func (f *fakeObjects) CreateSignedURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.signedTTL = ttl
	if f.emptyURL {
		return "", nil
	}
	return "https://objects.test/" + p + "?token=t", nil
}

func newTestPipeline(owner string, objs objects.Store, backend store.Backend) *Pipeline {
	p := NewPipeline(session.Static{OwnerID: owner}, objs, backend, nil)
	p.now = func() time.Time { return time.UnixMilli(1714557600123) }
	p.newID = func() string { return "msg-1" }
	return p
}

func TestUploadAudio_Scenario(t *testing.T) {
	objs := newFakeObjects()
	backend := store.NewMockStore()
	p := newTestPipeline("owner-1", objs, backend)

	res, err := p.UploadAudio(context.Background(), Request{
		ConversationID: "conv-9",
		Data:           []byte("audio-bytes"),
		MimeType:       "audio/mp4;codecs=mp4a.40.2",
		DurationMs:     1500.7,
		Waveform:       []float64{300, -5, 10.6, math.NaN()},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, "owner-1/conv-9/1714557600123.mp4", res.StoragePath)
	assert.Regexp(t, regexp.MustCompile(`^owner-1/conv-9/\d+\.mp4$`), res.StoragePath)
	assert.Equal(t, "https://objects.test/owner-1/conv-9/1714557600123.mp4?token=t", res.SignedURL)
	assert.Equal(t, Meta{
		URL:        res.SignedURL,
		Path:       res.StoragePath,
		Mime:       "audio/mp4;codecs=mp4a.40.2",
		DurationMs: 1501,
		Waveform:   []int{255, 0, 11},
	}, res.Meta)

	assert.Equal(t, []byte("audio-bytes"), objs.uploaded[res.StoragePath])
	assert.Equal(t, "audio/mp4;codecs=mp4a.40.2", objs.contentType[res.StoragePath])
	assert.Equal(t, 900*time.Second, objs.signedTTL)

	rows := backend.Rows(store.TableMessages)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "msg-1", row["id"])
	assert.Equal(t, "owner-1", row["profile_id"])
	assert.Equal(t, "conv-9", row["conversation_id"])
	assert.Equal(t, "audio", row["type"])
	assert.Nil(t, row["content"])

	meta, ok := row["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, res.SignedURL, meta["url"])
	assert.Equal(t, res.StoragePath, meta["path"])
	assert.Equal(t, 1501.0, meta["duration_ms"])
	assert.Equal(t, []any{255.0, 0.0, 11.0}, meta["waveform"])
}

func TestUploadAudio_OmitsEmptyWaveform(t *testing.T) {
	backend := store.NewMockStore()
	p := newTestPipeline("o", newFakeObjects(), backend)

	res, err := p.UploadAudio(context.Background(), Request{
		ConversationID: "c",
		MimeType:       "audio/webm",
		DurationMs:     math.NaN(),
		Waveform:       []float64{math.NaN()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Meta.DurationMs)
	assert.Nil(t, res.Meta.Waveform)

	data, err := json.Marshal(res.Meta)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "waveform")

	meta := backend.Rows(store.TableMessages)[0]["meta"].(map[string]any)
	_, has := meta["waveform"]
	assert.False(t, has)
}

func TestUploadAudio_Unauthenticated(t *testing.T) {
	objs := newFakeObjects()
	backend := store.NewMockStore()
	p := newTestPipeline("", objs, backend)

	_, err := p.UploadAudio(context.Background(), Request{ConversationID: "c", MimeType: "audio/webm"})
	assert.True(t, errors.Is(err, errdefs.ErrUnauthenticated))
	assert.Empty(t, objs.uploaded)
	assert.Empty(t, backend.Rows(store.TableMessages))
}

func TestUploadAudio_MissingConversation(t *testing.T) {
	p := newTestPipeline("o", newFakeObjects(), store.NewMockStore())
	_, err := p.UploadAudio(context.Background(), Request{MimeType: "audio/webm"})
	assert.ErrorIs(t, err, ErrMissingConversation)
}

func TestUploadAudio_UploadFailed(t *testing.T) {
	objs := newFakeObjects()
	objs.uploadErr = errors.New("bucket quota exceeded")
	backend := store.NewMockStore()

	_, err := newTestPipeline("o", objs, backend).UploadAudio(context.Background(), Request{ConversationID: "c"})
	assert.True(t, errors.Is(err, errdefs.ErrUploadFailed))
	assert.Equal(t, "bucket quota exceeded", err.Error())
	assert.Empty(t, backend.Rows(store.TableMessages))
}

func TestUploadAudio_SigningFailed(t *testing.T) {
	objs := newFakeObjects()
	objs.signErr = errors.New("signer offline")
	backend := store.NewMockStore()

	_, err := newTestPipeline("o", objs, backend).UploadAudio(context.Background(), Request{ConversationID: "c"})
	assert.True(t, errors.Is(err, errdefs.ErrSigningFailed))
	assert.Equal(t, "signer offline", err.Error())
	assert.Empty(t, backend.Rows(store.TableMessages))

	objs.signErr = nil
	objs.emptyURL = true
	_, err = newTestPipeline("o", objs, backend).UploadAudio(context.Background(), Request{ConversationID: "c"})
	assert.True(t, errors.Is(err, errdefs.ErrSigningFailed))
}

func TestUploadAudio_RecordFailed(t *testing.T) {
	backend := store.NewMockStore()
	backend.FailWith(errors.New("insert denied by policy"))

	_, err := newTestPipeline("o", newFakeObjects(), backend).UploadAudio(context.Background(), Request{ConversationID: "c"})
	assert.True(t, errors.Is(err, errdefs.ErrPersistence))
	assert.Equal(t, "insert denied by policy", err.Error())
}

func TestUploadAudio_WithFSStoreAndSQLite(t *testing.T) {
	ctx := context.Background()
	objs, err := objects.NewFSStore(objects.Options{
		Root:    t.TempDir(),
		Bucket:  "audio",
		BaseURL: "http://127.0.0.1:8088",
		Secret:  []byte("s3cret"),
	})
	require.NoError(t, err)
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPipeline(session.Static{OwnerID: "owner-1"}, objs, db, nil)

	res, err := p.UploadAudio(ctx, Request{
		ConversationID: "conv-1",
		Data:           []byte("OggS"),
		MimeType:       "audio/ogg",
		DurationMs:     2000,
		Waveform:       []float64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^owner-1/conv-1/\d+\.ogg$`), res.StoragePath)
	_, err = uuidParse(res.MessageID)
	require.NoError(t, err)

	u, err := url.Parse(res.SignedURL)
	require.NoError(t, err)
	rc, ct, err := objs.Open(res.StoragePath, u.Query().Get("token"))
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "audio/ogg", ct)

	msgs, err := p.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, res.MessageID, msgs[0].ID)
	assert.Equal(t, "audio", msgs[0].Type)
	assert.Nil(t, msgs[0].Content)
	meta := msgs[0].Meta.(map[string]any)
	assert.Equal(t, res.StoragePath, meta["path"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, meta["waveform"])

	other := NewPipeline(session.Static{OwnerID: "owner-2"}, objs, db, nil)
	msgs, err = other.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestNewMessageID(t *testing.T) {
	a, b := newMessageID(), newMessageID()
	assert.NotEqual(t, a, b)
	_, err := uuidParse(a)
	assert.NoError(t, err)
}

func uuidParse(s string) (string, error) {
	id, err := uuid.Parse(s)
	return id.String(), err
}

func TestUploadAudio_SignedURLTTLOverride(t *testing.T) {
	objs := newFakeObjects()
	p := newTestPipeline("owner-1", objs, store.NewMockStore())
	p.SetSignedURLTTL(0)
	p.SetSignedURLTTL(2 * time.Minute)

	_, err := p.UploadAudio(context.Background(), Request{ConversationID: "c", Data: []byte("x"), MimeType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, objs.signedTTL)
}
