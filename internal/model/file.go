package model

import (
	"encoding/json"
	"time"
)

// Fichier holds metadata about a stored artifact. Path-like storage details
// are kept out of JSON output.
type Fichier struct {
	ID          int64     `json:"id"`
	Nom         string    `json:"nom"`
	TypeMime    string    `json:"typeMime"`
	ObjectKey   string    `json:"-"`
	Taille      int64     `json:"taille"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IntentKind names the external effect an intent guards.
type IntentKind string

const (
	IntentEditionDecision IntentKind = "decision.edition"
	IntentGenerationBilan IntentKind = "bilan.generation"
)

// IntentStatus describes the lifecycle of a write-ahead intent.
type IntentStatus string

const (
	// IntentPending means a handler is performing the external effect.
	IntentPending IntentStatus = "pending"
	// IntentFailed means the effect failed and a redelivery is scheduled.
	IntentFailed    IntentStatus = "failed"
	IntentCompleted IntentStatus = "completed"
	IntentAbandoned IntentStatus = "abandoned"
)

// EffectIntent is recorded before an external effect and completed in the
// same transaction as the commit point that follows it.
type EffectIntent struct {
	ID        string       `json:"id"`
	Kind      IntentKind   `json:"kind"`
	Ref       int64        `json:"ref"`
	Status    IntentStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	ObjectKey string       `json:"objectKey,omitempty"`
	LastError string       `json:"lastError,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// DeadLetter is a message that exhausted its redelivery attempts.
type DeadLetter struct {
	ID        string          `json:"id"`
	TaskType  string          `json:"taskType"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"createdAt"`
}
