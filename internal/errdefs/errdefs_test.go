package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistence_PassesBackendMessageThrough(t *testing.T) {
	cause := errors.New("relation \"agent_conversations\" does not exist")
	err := Persistence("conversation.fetch_all", cause)

	assert.Equal(t, cause.Error(), err.Error())
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrUploadFailed))
}

func TestError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", UploadFailed("upload.put", errors.New("bucket not found")))

	assert.True(t, Is(err, ErrUploadFailed))

	var classified *Error
	assert.True(t, errors.As(err, &classified))
	assert.Equal(t, "upload.put", classified.Op)
	assert.Equal(t, "bucket not found", classified.Message)
}

func TestSigningFailed_NoURL(t *testing.T) {
	err := SigningFailed("upload.sign", nil)
	assert.Equal(t, "storage returned no signed url", err.Error())
	assert.True(t, errors.Is(err, ErrSigningFailed))
}

func TestUnauthenticated(t *testing.T) {
	err := Unauthenticated("upload.audio")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, "not authenticated", err.Error())
}
