// Package conversation keeps per-agent conversation records in sync with the
// remote store and shapes them for the chat UI.
//
// # Records
//
// One Record exists per (owner, agent) pair. It holds a snapshot of the agent
// as last saved (name, description, avatar, webhook, tool names), the ordered
// message history, an optional cached summary, and ISO-8601 timestamps.
//
// # Sanitizer
//
// Rows from the store are untrusted. SanitizeRecord, SanitizeMessages and
// SanitizeTools filter them element by element: anything that fails its type
// check is dropped, never reported. A partly corrupt row still yields a usable
// Record.
//
// # Repository
//
// Repository wraps a store.Backend:
//
//	repo := conversation.NewRepository(backend, logger)
//	records, err := repo.FetchAll(ctx, ownerID)
//	rec, err := repo.Upsert(ctx, ownerID, agentID, conversation.Update{Summary: &s})
//	err = repo.Delete(ctx, ownerID, agentID)
//
// Upsert uses the backend's atomic conflict upsert when available and falls
// back to update-then-insert otherwise. The fallback can create duplicates
// under concurrent writers unless the store enforces UNIQUE(profile_id, agent_id).
//
// Backend failures come back as *errdefs.Error with kind ErrPersistence.
//
// # Projector
//
// ToChatSummary and ToAgentProfile map a Record into the two view shapes,
// filling in fallbacks and truncating previews to 140 characters.
package conversation
