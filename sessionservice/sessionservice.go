// Package sessionservice manages the ephemeral handoff records created when
// task execution routes control to an interactive tool.
package sessionservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	"github.com/smokeyworks/smokey/sessionstore"
	"github.com/smokeyworks/smokey/tooling"
)

type Service interface {
	CreateSession(ctx context.Context, taskID, tool string, payload json.RawMessage) (*sessionstore.Session, error)
	GetSession(ctx context.Context, sessionID string) (*sessionstore.Session, error)
	// LaunchSession moves a created session to launched and returns the
	// routing descriptor for the interactive tool.
	LaunchSession(ctx context.Context, sessionID string) (*tooling.Descriptor, error)
	CompleteSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error)
	FailSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error)
	ListTaskSessions(ctx context.Context, taskID string) ([]*sessionstore.Session, error)
	// DiscardSession drops a session once the owning task consumed its
	// result.
	DiscardSession(ctx context.Context, sessionID string) error
}

type service struct {
	dbInstance libdb.DBManager
}

func New(db libdb.DBManager) Service {
	return &service{dbInstance: db}
}

func (s *service) CreateSession(ctx context.Context, taskID, tool string, payload json.RawMessage) (*sessionstore.Session, error) {
	if taskID == "" {
		return nil, apiframework.MissingParameter("taskId")
	}
	if _, ok := tooling.LaunchPath(tool); !ok {
		return nil, apiframework.InvalidParameterValue("tool",
			fmt.Sprintf("tool %q has no interactive entry point", tool))
	}

	session := &sessionstore.Session{
		ID:      uuid.New().String(),
		TaskID:  taskID,
		Tool:    tool,
		Status:  sessionstore.SessionCreated,
		Payload: payload,
	}
	tx := s.dbInstance.WithoutTransaction()
	if err := sessionstore.New(tx).CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*sessionstore.Session, error) {
	tx := s.dbInstance.WithoutTransaction()
	return sessionstore.New(tx).GetSession(ctx, sessionID)
}

func (s *service) LaunchSession(ctx context.Context, sessionID string) (*tooling.Descriptor, error) {
	tx := s.dbInstance.WithoutTransaction()
	sessions := sessionstore.New(tx)

	session, err := sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != sessionstore.SessionCreated {
		return nil, fmt.Errorf("%w: cannot launch a %s session",
			apiframework.ErrInvalidState, session.Status)
	}
	path, ok := tooling.LaunchPath(session.Tool)
	if !ok {
		return nil, fmt.Errorf("%w: tool %q has no interactive entry point",
			apiframework.ErrInternalServerError, session.Tool)
	}
	if err := sessions.UpdateSessionStatus(ctx, sessionID, sessionstore.SessionCreated, sessionstore.SessionLaunched); err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s changed underneath this request",
				apiframework.ErrConcurrentModification, sessionID)
		}
		return nil, err
	}

	return &tooling.Descriptor{
		Path:  path,
		Query: map[string]string{"session": session.ID, "task": session.TaskID},
		State: session.Payload,
	}, nil
}

func (s *service) finishSession(ctx context.Context, sessionID string, to sessionstore.SessionStatus, result json.RawMessage) (*sessionstore.Session, error) {
	tx := s.dbInstance.WithoutTransaction()
	sessions := sessionstore.New(tx)

	session, err := sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != sessionstore.SessionLaunched {
		return nil, fmt.Errorf("%w: cannot finish a %s session",
			apiframework.ErrInvalidState, session.Status)
	}
	if err := sessions.SetSessionResult(ctx, sessionID, to, result); err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s changed underneath this request",
				apiframework.ErrConcurrentModification, sessionID)
		}
		return nil, err
	}
	session.Status = to
	session.Result = result
	return session, nil
}

func (s *service) CompleteSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	return s.finishSession(ctx, sessionID, sessionstore.SessionCompleted, result)
}

func (s *service) FailSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	return s.finishSession(ctx, sessionID, sessionstore.SessionFailed, result)
}

func (s *service) ListTaskSessions(ctx context.Context, taskID string) ([]*sessionstore.Session, error) {
	tx := s.dbInstance.WithoutTransaction()
	return sessionstore.New(tx).ListTaskSessions(ctx, taskID)
}

func (s *service) DiscardSession(ctx context.Context, sessionID string) error {
	tx := s.dbInstance.WithoutTransaction()
	return sessionstore.New(tx).DeleteSession(ctx, sessionID)
}
