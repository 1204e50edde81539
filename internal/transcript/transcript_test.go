// ABOUTME: Tests for HTML transcript rendering
// ABOUTME: Checks markdown conversion, escaping and attachment listing

package transcript

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-sync/internal/conversation"
)

func TestRender(t *testing.T) {
	name := "Scout"
	url := "https://objects.example.com/a.webm?token=x"
	dur := 2.5
	rec := conversation.Record{
		AgentName: &name,
		Messages: []conversation.Message{
			{ID: "m1", Author: conversation.RoleUser, Content: "Find **trails** near me", Timestamp: "2026-03-01T09:00:00Z"},
			{ID: "m2", Author: conversation.RoleAgent, Content: "- Ridge loop\n- Creek path", Timestamp: "2026-03-01T09:00:05Z"},
			{ID: "m3", Author: conversation.RoleUser, Timestamp: "2026-03-01T09:01:00Z", Attachments: []conversation.Attachment{
				{ID: "a1", Name: "note.webm", Size: 2048, MimeType: "audio/webm", URL: &url, Kind: conversation.AttachmentAudio, DurationSeconds: &dur},
			}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rec, "Agent"))
	out := buf.String()

	assert.Contains(t, out, "<title>Scout</title>")
	assert.Contains(t, out, "<strong>trails</strong>")
	assert.Contains(t, out, "<li>Ridge loop</li>")
	assert.Contains(t, out, "<b>You</b>")
	assert.Contains(t, out, "<b>Scout</b>")
	assert.Contains(t, out, `href="https://objects.example.com/a.webm?token=x"`)
	assert.Contains(t, out, "audio/webm, 2.0 KB, 2.5s")
}

func TestRender_EscapesRawHTML(t *testing.T) {
	rec := conversation.Record{
		Messages: []conversation.Message{
			{ID: "m1", Author: conversation.RoleAgent, Content: "<script>alert(1)</script>", Timestamp: "t"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rec, "Agent"))

	assert.NotContains(t, buf.String(), "<script>")
	assert.Contains(t, buf.String(), "<title>Agent</title>")
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, conversation.Record{}, "Agent"))
	assert.Contains(t, buf.String(), "No messages.")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "3.0 MB", humanSize(3*1024*1024))
}
