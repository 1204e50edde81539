// ABOUTME: Data model for per-agent conversation records and their messages
// ABOUTME: JSON tags are the persisted column and key names and must not change

package conversation

// Role is the author of a message. Exactly two roles exist.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleUser
}

// AttachmentKind distinguishes plain files from recorded audio.
type AttachmentKind string

const (
	AttachmentFile  AttachmentKind = "file"
	AttachmentAudio AttachmentKind = "audio"
)

// Attachment is a file or audio clip attached to a message.
type Attachment struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Size            int64          `json:"size"`
	MimeType        string         `json:"mimeType"`
	URL             *string        `json:"url,omitempty"`
	Kind            AttachmentKind `json:"kind"`
	DurationSeconds *float64       `json:"durationSeconds,omitempty"` // audio only
}

// Message is one entry of a conversation. Content may be empty for
// audio-only messages. Timestamp is an ISO-8601 string.
type Message struct {
	ID          string       `json:"id"`
	Author      Role         `json:"author"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Record is the stored conversation between one owner and one agent.
// Exactly one Record exists per (ProfileID, AgentID).
type Record struct {
	ID               string    `json:"id"`
	ProfileID        string    `json:"profile_id"`
	AgentID          string    `json:"agent_id"`
	AgentName        *string   `json:"agent_name"`
	AgentDescription *string   `json:"agent_description"`
	AgentAvatarURL   *string   `json:"agent_avatar_url"`
	AgentWebhookURL  *string   `json:"agent_webhook_url"`
	AgentTools       []string  `json:"agent_tools"`
	Messages         []Message `json:"messages"`
	Summary          *string   `json:"summary"`
	LastMessageAt    *string   `json:"last_message_at"`
	CreatedAt        *string   `json:"created_at"`
	UpdatedAt        *string   `json:"updated_at"`
}

// LastMessage returns the final message, or nil for an empty conversation.
func (r *Record) LastMessage() *Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[len(r.Messages)-1]
}

// Update carries the fields a caller intends to change. A nil field is left
// untouched on an existing record and absent on a new one; it never means
// "set to null".
type Update struct {
	AgentName        *string   `json:"agent_name,omitempty"`
	AgentDescription *string   `json:"agent_description,omitempty"`
	AgentAvatarURL   *string   `json:"agent_avatar_url,omitempty"`
	AgentWebhookURL  *string   `json:"agent_webhook_url,omitempty"`
	AgentTools       []string  `json:"agent_tools,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Summary          *string   `json:"summary,omitempty"`
	LastMessageAt    *string   `json:"last_message_at,omitempty"`
}

// Column names of the agent_conversations table.
const (
	TableConversations = "agent_conversations"

	ColID               = "id"
	ColProfileID        = "profile_id"
	ColAgentID          = "agent_id"
	ColAgentName        = "agent_name"
	ColAgentDescription = "agent_description"
	ColAgentAvatarURL   = "agent_avatar_url"
	ColAgentWebhookURL  = "agent_webhook_url"
	ColAgentTools       = "agent_tools"
	ColMessages         = "messages"
	ColSummary          = "summary"
	ColLastMessageAt    = "last_message_at"
	ColCreatedAt        = "created_at"
	ColUpdatedAt        = "updated_at"
)
