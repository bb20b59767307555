package sessionapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	serverops "github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/sessionservice"
)

// AddSessionRoutes registers the interactive tool session endpoints.
func AddSessionRoutes(mux *http.ServeMux, sessionService sessionservice.Service) {
	h := &sessionHandler{service: sessionService}

	mux.HandleFunc("POST /tool-sessions", h.sessionAction)
	mux.HandleFunc("GET /tool-sessions", h.listTaskSessions)
	mux.HandleFunc("GET /tool-sessions/{id}", h.getSession)
	mux.HandleFunc("DELETE /tool-sessions/{id}", h.discardSession)
}

type sessionHandler struct {
	service sessionservice.Service
}

// sessionActionRequest is the dispatch body for POST /tool-sessions.
type sessionActionRequest struct {
	Action    string          `json:"action"`
	TaskID    string          `json:"taskId,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Creates, launches or finishes a tool session
//
// Supported actions: create, launch, complete, fail. Launch responds with
// the routing descriptor for the interactive tool.
func (h *sessionHandler) sessionAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := serverops.Decode[sessionActionRequest](r) // @request sessionapi.sessionActionRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	switch req.Action {
	case "create":
		session, err := h.service.CreateSession(ctx, req.TaskID, req.Tool, req.Payload)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.CreateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusCreated, session) // @response sessionstore.Session
	case "launch":
		descriptor, err := h.service.LaunchSession(ctx, req.SessionID)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, descriptor) // @response tooling.Descriptor
	case "complete":
		session, err := h.service.CompleteSession(ctx, req.SessionID, req.Result)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, session) // @response sessionstore.Session
	case "fail":
		session, err := h.service.FailSession(ctx, req.SessionID, req.Result)
		if err != nil {
			_ = serverops.Error(w, r, err, serverops.UpdateOperation)
			return
		}
		_ = serverops.Encode(w, r, http.StatusOK, session) // @response sessionstore.Session
	default:
		_ = serverops.Error(w, r, fmt.Errorf("%w: %s", serverops.ErrUnknownAction, req.Action), serverops.CreateOperation)
	}
}

// Lists the sessions opened for one task
func (h *sessionHandler) listTaskSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := serverops.GetQueryParam(r, "taskId", "", "The task whose sessions to list.")
	if taskID == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing taskId parameter %w", serverops.ErrBadQueryValue), serverops.ListOperation)
		return
	}

	sessions, err := h.service.ListTaskSessions(ctx, taskID)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, sessions) // @response []*sessionstore.Session
}

// Retrieves one tool session
func (h *sessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The session identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.GetOperation)
		return
	}

	session, err := h.service.GetSession(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.GetOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, session) // @response sessionstore.Session
}

// Discards a consumed tool session
func (h *sessionHandler) discardSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The session identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.DeleteOperation)
		return
	}

	if err := h.service.DiscardSession(ctx, id); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, "session discarded") // @response string
}
