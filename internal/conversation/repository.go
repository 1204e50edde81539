// ABOUTME: Repository for agent_conversations: fetch-all, get, upsert, append and delete per owner
// ABOUTME: Rows are repaired through the sanitizer; backend failures surface as persistence errors

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-sync/internal/errdefs"
	"github.com/2389/coven-sync/internal/store"
)

// ErrMissingIdentity is returned when an owner or agent id is empty.
var ErrMissingIdentity = errors.New("owner id and agent id are required")

// TimestampLayout is the fixed-width UTC layout written to created_at and
// updated_at, so the columns order correctly as plain strings.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// conflictKey is the logical identity of a conversation.
var conflictKey = []string{ColProfileID, ColAgentID}

// Repository reads and writes conversation records for an owner.
type Repository struct {
	backend store.Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewRepository creates a Repository over backend.
func NewRepository(backend store.Backend, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		backend: backend,
		logger:  logger.With("component", "conversation"),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// FetchAll returns every record of ownerID, most recently updated first and
// records without updated_at last. No records is an empty slice, not an error.
func (r *Repository) FetchAll(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := r.backend.Select(ctx, store.Query{
		Table:      TableConversations,
		Filters:    []store.Filter{store.Eq(ColProfileID, ownerID)},
		OrderBy:    ColUpdatedAt,
		Descending: true,
		NullsLast:  true,
	})
	if err != nil {
		return nil, errdefs.Persistence("conversation.fetch_all", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, SanitizeRecord(row))
	}
	return records, nil
}

// Get returns the record for (ownerID, agentID), or nil when none exists.
func (r *Repository) Get(ctx context.Context, ownerID, agentID string) (*Record, error) {
	rows, err := r.backend.Select(ctx, store.Query{
		Table:   TableConversations,
		Filters: identity(ownerID, agentID),
		Limit:   1,
	})
	if err != nil {
		return nil, errdefs.Persistence("conversation.get", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := SanitizeRecord(rows[0])
	return &rec, nil
}

// Upsert applies upd to the record for (ownerID, agentID), creating it if
// needed, and returns the stored result.
//
// Backends implementing store.ConflictUpserter get a single atomic statement.
// Otherwise an update is tried first and an insert follows when it touched no
// rows. Two callers racing on the same pair can both see zero rows and both
// insert; only a unique index on (profile_id, agent_id) in the store stops
// the second one.
func (r *Repository) Upsert(ctx context.Context, ownerID, agentID string, upd Update) (*Record, error) {
	if ownerID == "" || agentID == "" {
		return nil, ErrMissingIdentity
	}

	now := r.now().UTC().Format(TimestampLayout)
	values := updateValues(upd)
	values[ColUpdatedAt] = now

	if upserter, ok := r.backend.(store.ConflictUpserter); ok {
		insert := withIdentity(values, r.newID(), ownerID, agentID, now)
		rows, err := upserter.Upsert(ctx, TableConversations, conflictKey, insert)
		if err != nil {
			return nil, errdefs.Persistence("conversation.upsert", err)
		}
		return r.first(rows, "conversation.upsert")
	}

	rows, err := r.backend.Update(ctx, TableConversations, identity(ownerID, agentID), values)
	if err != nil {
		return nil, errdefs.Persistence("conversation.upsert", err)
	}
	if len(rows) > 0 {
		if len(rows) > 1 {
			r.logger.Warn("duplicate conversation records", "profile_id", ownerID, "agent_id", agentID, "count", len(rows))
		}
		return r.first(rows, "conversation.upsert")
	}

	r.logger.Debug("no conversation to update, inserting", "profile_id", ownerID, "agent_id", agentID)
	rows, err = r.backend.Insert(ctx, TableConversations, withIdentity(values, r.newID(), ownerID, agentID, now))
	if err != nil {
		return nil, errdefs.Persistence("conversation.upsert", err)
	}
	return r.first(rows, "conversation.upsert")
}

// AppendMessages adds msgs to the end of the conversation and moves
// last_message_at to the final appended timestamp. It is a read-modify-write
// and shares the upsert race.
func (r *Repository) AppendMessages(ctx context.Context, ownerID, agentID string, msgs ...Message) (*Record, error) {
	existing, err := r.Get(ctx, ownerID, agentID)
	if err != nil {
		return nil, err
	}

	var history []Message
	if existing != nil {
		history = existing.Messages
	}
	history = append(append([]Message{}, history...), msgs...)

	upd := Update{Messages: history}
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1].Timestamp
		upd.LastMessageAt = &last
	}
	return r.Upsert(ctx, ownerID, agentID, upd)
}

// Delete removes the record for (ownerID, agentID). Deleting a record that
// does not exist is not an error.
func (r *Repository) Delete(ctx context.Context, ownerID, agentID string) error {
	n, err := r.backend.Delete(ctx, TableConversations, identity(ownerID, agentID))
	if err != nil {
		return errdefs.Persistence("conversation.delete", err)
	}
	r.logger.Debug("deleted conversation", "profile_id", ownerID, "agent_id", agentID, "rows", n)
	return nil
}

func (r *Repository) first(rows []store.Row, op string) (*Record, error) {
	if len(rows) == 0 {
		return nil, errdefs.Persistence(op, errors.New("store returned no row"))
	}
	rec := SanitizeRecord(rows[0])
	return &rec, nil
}

func identity(ownerID, agentID string) []store.Filter {
	return []store.Filter{store.Eq(ColProfileID, ownerID), store.Eq(ColAgentID, agentID)}
}

// updateValues turns the provided fields of upd into column values.
func updateValues(upd Update) store.Row {
	values := store.Row{}
	setString := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	setString(ColAgentName, upd.AgentName)
	setString(ColAgentDescription, upd.AgentDescription)
	setString(ColAgentAvatarURL, upd.AgentAvatarURL)
	setString(ColAgentWebhookURL, upd.AgentWebhookURL)
	setString(ColSummary, upd.Summary)
	setString(ColLastMessageAt, upd.LastMessageAt)
	if upd.AgentTools != nil {
		values[ColAgentTools] = SanitizeTools(upd.AgentTools)
	}
	if upd.Messages != nil {
		values[ColMessages] = upd.Messages
	}
	return values
}

func withIdentity(values store.Row, id, ownerID, agentID, now string) store.Row {
	out := make(store.Row, len(values)+4)
	for k, v := range values {
		out[k] = v
	}
	out[ColID] = id
	out[ColProfileID] = ownerID
	out[ColAgentID] = agentID
	out[ColCreatedAt] = now
	return out
}
