package timelineapi

import (
	"fmt"
	"net/http"
	"time"

	serverops "github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/smokeyworks/smokey/timelineservice"
)

// AddTimelineRoutes registers the timeline scheduler and reassessment queue
// endpoints.
func AddTimelineRoutes(mux *http.ServeMux, timelineService timelineservice.Service, reassessService reassessservice.Service) {
	h := &timelineHandler{timeline: timelineService, reassess: reassessService}

	mux.HandleFunc("GET /timeline", h.getTimeline)
	mux.HandleFunc("POST /timeline/instantiate", h.instantiate)
	mux.HandleFunc("POST /timeline/regenerate", h.regenerate)
	mux.HandleFunc("POST /timeline/phases/{id}/reschedule", h.reschedulePhase)
	mux.HandleFunc("POST /timeline/phases/{id}/skip", h.skipPhase)
	mux.HandleFunc("GET /reassess", h.listDue)
	mux.HandleFunc("POST /reassess/sweep", h.sweep)
}

type timelineHandler struct {
	timeline timelineservice.Service
	reassess reassessservice.Service
}

// Returns the ordered phase list of a client's timeline
func (h *timelineHandler) getTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID := serverops.GetQueryParam(r, "clientId", "", "The client whose timeline to read.")
	if clientID == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing clientId parameter %w", serverops.ErrBadQueryValue), serverops.GetOperation)
		return
	}

	phases, err := h.timeline.GetClientTimeline(ctx, clientID)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.GetOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, phases) // @response []*timelinestore.Phase
}

type clientRequest struct {
	ClientID string `json:"clientId"`
}

// Derives the dated phase plan from the client's tier and contract start
func (h *timelineHandler) instantiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := serverops.Decode[clientRequest](r) // @request timelineapi.clientRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}
	if req.ClientID == "" {
		_ = serverops.Error(w, r, serverops.MissingParameter("clientId"), serverops.CreateOperation)
		return
	}

	phases, err := h.timeline.InstantiateTimeline(ctx, req.ClientID)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusCreated, phases) // @response []*timelinestore.Phase
}

// Recomputes pending phases and queued scheduled plans
//
// Work that already started is preserved.
func (h *timelineHandler) regenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := serverops.Decode[clientRequest](r) // @request timelineapi.clientRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}
	if req.ClientID == "" {
		_ = serverops.Error(w, r, serverops.MissingParameter("clientId"), serverops.UpdateOperation)
		return
	}

	phases, err := h.timeline.RegenerateTimeline(ctx, req.ClientID)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, map[string]any{
		"success": true,
		"phases":  phases,
	}) // @response map[string]any
}

type rescheduleRequest struct {
	Date time.Time `json:"date"`
}

// Moves a pending phase to a new date
func (h *timelineHandler) reschedulePhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The phase identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	req, err := serverops.Decode[rescheduleRequest](r) // @request timelineapi.rescheduleRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}
	if req.Date.IsZero() {
		_ = serverops.Error(w, r, serverops.MissingParameter("date"), serverops.UpdateOperation)
		return
	}

	phase, err := h.timeline.ReschedulePhase(ctx, id, req.Date)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, phase) // @response timelinestore.Phase
}

// Marks a pending phase as intentionally bypassed
func (h *timelineHandler) skipPhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The phase identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	phase, err := h.timeline.SkipPhase(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, phase) // @response timelinestore.Phase
}

// Lists completed plans due for reassessment grouped by date
//
// Keys are ISO YYYY-MM-DD dates taken from each plan's reassessAfter.
func (h *timelineHandler) listDue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID := serverops.GetQueryParam(r, "clientId", "", "Optional client filter.")

	grouped, err := h.reassess.ListDue(ctx, clientID)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, grouped) // @response map[string][]*planstore.Plan
}

// Publishes every due reassessment group on the bus
func (h *timelineHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.reassess.Sweep(ctx)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ExecuteOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, map[string]int{"due": total}) // @response map[string]int
}
