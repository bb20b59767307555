package clientsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/smokeyworks/smokey/sessionservice"
	"github.com/smokeyworks/smokey/sessionstore"
	"github.com/smokeyworks/smokey/tooling"
)

// HTTPSessionService implements the sessionservice.Service interface
// using HTTP calls to the API
type HTTPSessionService struct {
	httpService
}

// NewHTTPSessionService creates a new HTTP client that implements sessionservice.Service
func NewHTTPSessionService(baseURL, token string, client *http.Client) sessionservice.Service {
	return &HTTPSessionService{newHTTPService(baseURL, token, client)}
}

type sessionAction struct {
	Action    string          `json:"action"`
	TaskID    string          `json:"taskId,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func (s *HTTPSessionService) CreateSession(ctx context.Context, taskID, tool string, payload json.RawMessage) (*sessionstore.Session, error) {
	var session sessionstore.Session
	body := sessionAction{Action: "create", TaskID: taskID, Tool: tool, Payload: payload}
	if err := s.doJSON(ctx, "POST", "/tool-sessions", body, http.StatusCreated, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *HTTPSessionService) GetSession(ctx context.Context, sessionID string) (*sessionstore.Session, error) {
	var session sessionstore.Session
	if err := s.doJSON(ctx, "GET", "/tool-sessions/"+url.PathEscape(sessionID), nil, http.StatusOK, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *HTTPSessionService) LaunchSession(ctx context.Context, sessionID string) (*tooling.Descriptor, error) {
	var descriptor tooling.Descriptor
	body := sessionAction{Action: "launch", SessionID: sessionID}
	if err := s.doJSON(ctx, "POST", "/tool-sessions", body, http.StatusOK, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (s *HTTPSessionService) finishSession(ctx context.Context, action, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	var session sessionstore.Session
	body := sessionAction{Action: action, SessionID: sessionID, Result: result}
	if err := s.doJSON(ctx, "POST", "/tool-sessions", body, http.StatusOK, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *HTTPSessionService) CompleteSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	return s.finishSession(ctx, "complete", sessionID, result)
}

func (s *HTTPSessionService) FailSession(ctx context.Context, sessionID string, result json.RawMessage) (*sessionstore.Session, error) {
	return s.finishSession(ctx, "fail", sessionID, result)
}

func (s *HTTPSessionService) ListTaskSessions(ctx context.Context, taskID string) ([]*sessionstore.Session, error) {
	sessions := []*sessionstore.Session{}
	path := "/tool-sessions?taskId=" + url.QueryEscape(taskID)
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *HTTPSessionService) DiscardSession(ctx context.Context, sessionID string) error {
	return s.doJSON(ctx, "DELETE", "/tool-sessions/"+url.PathEscape(sessionID), nil, http.StatusOK, nil)
}

var _ sessionservice.Service = (*HTTPSessionService)(nil)
