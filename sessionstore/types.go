package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smokeyworks/smokey/libdbexec"
)

var ErrNotFound = libdbexec.ErrNotFound

// SessionStatus tracks an interactive tool handoff.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionLaunched  SessionStatus = "launched"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionCreated, SessionLaunched, SessionCompleted, SessionFailed:
		return true
	}
	return false
}

// Session is an ephemeral handoff record created when task execution routes
// control to an interactive tool. Discarded once the task consumes its result.
type Session struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"taskId"`
	Tool      string          `json:"tool"`
	Status    SessionStatus   `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListTaskSessions(ctx context.Context, taskID string) ([]*Session, error)
	// UpdateSessionStatus is status-guarded; zero rows affected yields
	// ErrNotFound.
	UpdateSessionStatus(ctx context.Context, id string, from, to SessionStatus) error
	SetSessionResult(ctx context.Context, id string, to SessionStatus, result json.RawMessage) error
	DeleteSession(ctx context.Context, id string) error
}
