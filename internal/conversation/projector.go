// ABOUTME: Projects stored conversation records into the chat-list and agent-profile views
// ABOUTME: Applies fallbacks for missing fields and truncates previews

package conversation

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Preview limits. Longer previews keep PreviewCut characters plus Ellipsis.
const (
	PreviewLimit = 140
	PreviewCut   = 137
	Ellipsis     = "…"
)

// timeOfDay is the layout of ChatSummary.LastUpdated.
const timeOfDay = "15:04"

// now is swapped in tests.
var now = time.Now

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	AgentID     string  `json:"agent_id"`
	Name        string  `json:"name"`
	AvatarURL   *string `json:"avatar_url"`
	Preview     string  `json:"preview"`
	LastUpdated string  `json:"last_updated"`
}

// AgentProfile is the agent as last saved with its conversation.
type AgentProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AvatarURL   *string  `json:"avatar_url"`
	WebhookURL  string   `json:"webhook_url"`
	Tools       []string `json:"tools"`
}

// ToChatSummary builds the chat-list entry for rec.
func ToChatSummary(rec Record, fallbackName, fallbackPreview string) ChatSummary {
	preview := fallbackPreview
	if rec.Summary != nil && strings.TrimSpace(*rec.Summary) != "" {
		preview = *rec.Summary
	} else if last := rec.LastMessage(); last != nil && last.Content != "" {
		preview = last.Content
	}

	return ChatSummary{
		AgentID:     rec.AgentID,
		Name:        orDefault(rec.AgentName, fallbackName),
		AvatarURL:   rec.AgentAvatarURL,
		Preview:     Truncate(preview),
		LastUpdated: lastUpdated(rec),
	}
}

// ToAgentProfile builds the profile view for rec.
func ToAgentProfile(rec Record, fallbackName string) AgentProfile {
	tools := rec.AgentTools
	if tools == nil {
		tools = []string{}
	}
	return AgentProfile{
		ID:          rec.AgentID,
		Name:        orDefault(rec.AgentName, fallbackName),
		Description: orDefault(rec.AgentDescription, ""),
		AvatarURL:   rec.AgentAvatarURL,
		WebhookURL:  orDefault(rec.AgentWebhookURL, ""),
		Tools:       tools,
	}
}

// Truncate shortens s to PreviewCut characters plus Ellipsis when it is
// longer than PreviewLimit characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewCut]) + Ellipsis
}

// lastUpdated formats the first usable timestamp as local time of day.
// A present but unparseable timestamp falls back to the current time.
func lastUpdated(rec Record) string {
	for _, ts := range []*string{rec.LastMessageAt, rec.UpdatedAt, rec.CreatedAt} {
		if ts == nil || *ts == "" {
			continue
		}
		if t, ok := parseTimestamp(*ts); ok {
			return t.Local().Format(timeOfDay)
		}
		break
	}
	return now().Local().Format(timeOfDay)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func orDefault(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
