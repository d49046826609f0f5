// Package audit records workflow actions for later review. The trail
// complements stock movements: movements say what changed on a balance,
// audit entries say who drove the workflow there.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"retailcore/internal/core/id"
)

// Action classifies an audited workflow step.
type Action string

const (
	ActionCreate   Action = "create"
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionReceive  Action = "receive"
	ActionDispatch Action = "dispatch"
	ActionCancel   Action = "cancel"
	ActionCheckout Action = "checkout"
	ActionHold     Action = "hold"
	ActionResume   Action = "resume"
	ActionAdjust   Action = "adjust"
)

// Entry is one recorded workflow action.
type Entry struct {
	ID         id.ID           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   id.ID           `db:"entity_id" json:"entityId"`
	Action     Action          `db:"action" json:"action"`
	ActorID    string          `db:"actor_id" json:"actorId"`
	Changes    json.RawMessage `db:"changes" json:"changes,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Recorder persists audit entries. Recording is best-effort at call
// sites that sit outside a transaction, mandatory inside one.
type Recorder interface {
	Record(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error

	// History returns the recorded trail for one entity, newest first.
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}
