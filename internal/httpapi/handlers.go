// ABOUTME: Route handlers for conversations, chats, agents, audio uploads and integration settings
// ABOUTME: Every /api handler acts on the owner attached by requireSession

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/2389/coven-sync/internal/conversation"
	"github.com/2389/coven-sync/internal/integration"
	"github.com/2389/coven-sync/internal/objects"
	"github.com/2389/coven-sync/internal/upload"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/conversations
func (s *Server) handleListConversations(c echo.Context) error {
	records, err := s.conversations.FetchAll(c.Request().Context(), ownerID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// GET /api/chats
func (s *Server) handleListChats(c echo.Context) error {
	records, err := s.conversations.FetchAll(c.Request().Context(), ownerID(c))
	if err != nil {
		return writeError(c, err)
	}

	chats := make([]conversation.ChatSummary, 0, len(records))
	for _, rec := range records {
		chats = append(chats, conversation.ToChatSummary(rec, DefaultAgentName, DefaultPreview))
	}
	return c.JSON(http.StatusOK, chats)
}

// PUT /api/conversations/:agentID
func (s *Server) handleUpsertConversation(c echo.Context) error {
	var upd conversation.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}

	rec, err := s.conversations.Upsert(c.Request().Context(), ownerID(c), c.Param("agentID"), upd)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// DELETE /api/conversations/:agentID
func (s *Server) handleDeleteConversation(c echo.Context) error {
	if err := s.conversations.Delete(c.Request().Context(), ownerID(c), c.Param("agentID")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /api/agents/:agentID
func (s *Server) handleGetAgent(c echo.Context) error {
	rec, err := s.conversations.Get(c.Request().Context(), ownerID(c), c.Param("agentID"))
	if err != nil {
		return writeError(c, err)
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "agent not found", Kind: "not_found"})
	}
	return c.JSON(http.StatusOK, conversation.ToAgentProfile(*rec, DefaultAgentName))
}

// GET /api/agents/:agentID/settings merges the agent profile with the
// owner's integration secret.
func (s *Server) handleGetSettings(c echo.Context) error {
	agentID := c.Param("agentID")
	rec, err := s.conversations.Get(c.Request().Context(), ownerID(c), agentID)
	if err != nil {
		return writeError(c, err)
	}
	if rec == nil {
		rec = &conversation.Record{AgentID: agentID}
	}

	profile := conversation.ToAgentProfile(*rec, DefaultAgentName)
	settings := integration.Settings{
		Name:        profile.Name,
		Description: profile.Description,
		AvatarURL:   profile.AvatarURL,
		Tools:       profile.Tools,
	}
	return c.JSON(http.StatusOK, integration.MergeIntoSettings(settings, s.secrets.Read(ownerID(c))))
}

// POST /api/conversations/:conversationID/audio
//
// Multipart fields: audio (file), duration_ms (number), waveform (JSON array).
// An Idempotency-Key header makes retries return the first result.
func (s *Server) handleUploadAudio(c echo.Context) error {
	var idemKey string
	if k := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")); k != "" {
		idemKey = ownerID(c) + "/" + c.Param("conversationID") + "/" + k
		if res, ok := s.uploaded.Get(idemKey); ok {
			s.logger.Debug("replaying audio upload", "message_id", res.MessageID)
			return c.JSON(http.StatusCreated, res)
		}
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		return badRequest(c, "audio file is required")
	}
	if fh.Size > MaxAudioBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "audio file too large", Kind: "invalid_request"})
	}

	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "reading audio file failed")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxAudioBytes+1))
	if err != nil {
		return badRequest(c, "reading audio file failed")
	}

	var durationMs float64
	if raw := strings.TrimSpace(c.FormValue("duration_ms")); raw != "" {
		durationMs, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest(c, "duration_ms must be a number")
		}
	}

	var waveform []float64
	if raw := strings.TrimSpace(c.FormValue("waveform")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &waveform); err != nil {
			return badRequest(c, "waveform must be a JSON array of numbers")
		}
	}

	mimeType := fh.Header.Get(echo.HeaderContentType)
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	res, err := s.uploads.UploadAudio(c.Request().Context(), upload.Request{
		ConversationID: c.Param("conversationID"),
		Data:           data,
		MimeType:       mimeType,
		DurationMs:     durationMs,
		Waveform:       waveform,
	})
	if err != nil {
		return writeError(c, err)
	}
	if idemKey != "" {
		s.uploaded.Put(idemKey, res)
	}
	return c.JSON(http.StatusCreated, res)
}

// GET /api/conversations/:conversationID/messages
func (s *Server) handleListMessages(c echo.Context) error {
	msgs, err := s.uploads.ListMessages(c.Request().Context(), c.Param("conversationID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

// GET /api/integration
func (s *Server) handleGetIntegration(c echo.Context) error {
	rec := s.secrets.Read(ownerID(c))
	if rec == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no integration configured", Kind: "not_found"})
	}
	return c.JSON(http.StatusOK, rec)
}

// PUT /api/integration
func (s *Server) handlePutIntegration(c echo.Context) error {
	var payload integration.Payload
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return badRequest(c, "invalid request body")
	}

	rec, err := s.secrets.Write(ownerID(c), payload)
	if err != nil {
		s.logger.Error("saving integration secret failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "saving integration failed"})
	}
	return c.JSON(http.StatusOK, rec)
}

// GET /objects/:bucket/*?token=
func (s *Server) handleObject(c echo.Context) error {
	if s.objects == nil || c.Param("bucket") != s.objects.Bucket() {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "object not found", Kind: "not_found"})
	}

	objectPath, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return badRequest(c, "invalid object path")
	}

	rc, contentType, err := s.objects.Open(objectPath, c.QueryParam("token"))
	switch {
	case errors.Is(err, objects.ErrInvalidSignature):
		return c.JSON(http.StatusForbidden, errorResponse{Error: err.Error(), Kind: "forbidden"})
	case errors.Is(err, objects.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "object not found", Kind: "not_found"})
	case errors.Is(err, objects.ErrInvalidPath):
		return badRequest(c, err.Error())
	case err != nil:
		s.logger.Error("opening object failed", "path", objectPath, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "opening object failed"})
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "private, max-age=60")
	return c.Stream(http.StatusOK, contentType, rc)
}
