// ABOUTME: Sanitizer that turns untrusted rows from the remote store into typed records
// ABOUTME: Malformed elements are dropped silently; nothing here returns an error

package conversation

import (
	"math"
	"strings"
)

// SanitizeTools keeps the trimmed, non-empty string elements of raw with
// duplicates removed. Anything that is not a list yields an empty slice.
func SanitizeTools(raw any) []string {
	items, ok := asList(raw)
	if !ok {
		return []string{}
	}

	seen := make(map[string]struct{}, len(items))
	tools := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tools = append(tools, name)
	}
	return tools
}

// SanitizeMessages keeps the elements of raw that are well-formed messages.
// Anything that is not a list of objects yields an empty slice.
func SanitizeMessages(raw any) []Message {
	items, ok := asList(raw)
	if !ok {
		return []Message{}
	}

	messages := make([]Message, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg, ok := toMessage(obj)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// SanitizeRecord maps a raw agent_conversations row into a Record. List
// columns go through SanitizeTools and SanitizeMessages; string columns pass
// through, with null and non-string values becoming nil.
func SanitizeRecord(row map[string]any) Record {
	return Record{
		ID:               stringValue(row[ColID]),
		ProfileID:        stringValue(row[ColProfileID]),
		AgentID:          stringValue(row[ColAgentID]),
		AgentName:        optionalString(row[ColAgentName]),
		AgentDescription: optionalString(row[ColAgentDescription]),
		AgentAvatarURL:   optionalString(row[ColAgentAvatarURL]),
		AgentWebhookURL:  optionalString(row[ColAgentWebhookURL]),
		AgentTools:       SanitizeTools(row[ColAgentTools]),
		Messages:         SanitizeMessages(row[ColMessages]),
		Summary:          optionalString(row[ColSummary]),
		LastMessageAt:    optionalString(row[ColLastMessageAt]),
		CreatedAt:        optionalString(row[ColCreatedAt]),
		UpdatedAt:        optionalString(row[ColUpdatedAt]),
	}
}

// isMessage is the type predicate for a raw message object.
func isMessage(obj map[string]any) bool {
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return false
	}
	author, ok := obj["author"].(string)
	if !ok || !Role(author).Valid() {
		return false
	}
	if _, ok := obj["content"].(string); !ok {
		return false
	}
	if _, ok := obj["timestamp"].(string); !ok {
		return false
	}
	return true
}

func toMessage(obj map[string]any) (Message, bool) {
	if !isMessage(obj) {
		return Message{}, false
	}
	msg := Message{
		ID:        obj["id"].(string),
		Author:    Role(obj["author"].(string)),
		Content:   obj["content"].(string),
		Timestamp: obj["timestamp"].(string),
	}
	if attachments := sanitizeAttachments(obj["attachments"]); len(attachments) > 0 {
		msg.Attachments = attachments
	}
	return msg, true
}

// sanitizeAttachments keeps objects with a non-empty string id. The remaining
// fields are coerced to their zero values when mistyped.
func sanitizeAttachments(raw any) []Attachment {
	items, ok := asList(raw)
	if !ok {
		return nil
	}

	var attachments []Attachment
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"].(string)
		if !ok || id == "" {
			continue
		}

		att := Attachment{
			ID:       id,
			Name:     stringValue(obj["name"]),
			MimeType: stringValue(obj["mimeType"]),
			URL:      optionalString(obj["url"]),
			Kind:     AttachmentFile,
		}
		if size, ok := finiteNumber(obj["size"]); ok && size > 0 {
			att.Size = byteSize(size)
		}
		if kind, _ := obj["kind"].(string); kind == string(AttachmentAudio) {
			att.Kind = AttachmentAudio
			if d, ok := finiteNumber(obj["durationSeconds"]); ok && d >= 0 {
				att.DurationSeconds = &d
			}
		}
		attachments = append(attachments, att)
	}
	return attachments
}

// byteSize truncates a positive size to whole bytes, saturating at the int64 range.
func byteSize(size float64) int64 {
	if size >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(size)
}

// asList accepts the list shapes a decoded JSON value or an in-process
// caller can produce.
func asList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
