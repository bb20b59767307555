package clientsdk

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/smokeyworks/smokey/timelineservice"
	"github.com/smokeyworks/smokey/timelinestore"
)

// HTTPTimelineService implements the timelineservice.Service interface
// using HTTP calls to the API
type HTTPTimelineService struct {
	httpService
}

// NewHTTPTimelineService creates a new HTTP client that implements timelineservice.Service
func NewHTTPTimelineService(baseURL, token string, client *http.Client) timelineservice.Service {
	return &HTTPTimelineService{newHTTPService(baseURL, token, client)}
}

type timelineClientRequest struct {
	ClientID string `json:"clientId"`
}

func (s *HTTPTimelineService) InstantiateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	phases := []*timelinestore.Phase{}
	if err := s.doJSON(ctx, "POST", "/timeline/instantiate", timelineClientRequest{ClientID: clientID}, http.StatusCreated, &phases); err != nil {
		return nil, err
	}
	return phases, nil
}

func (s *HTTPTimelineService) RegenerateTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	var result struct {
		Success bool                   `json:"success"`
		Phases  []*timelinestore.Phase `json:"phases"`
	}
	if err := s.doJSON(ctx, "POST", "/timeline/regenerate", timelineClientRequest{ClientID: clientID}, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result.Phases, nil
}

func (s *HTTPTimelineService) GetClientTimeline(ctx context.Context, clientID string) ([]*timelinestore.Phase, error) {
	phases := []*timelinestore.Phase{}
	path := "/timeline?clientId=" + url.QueryEscape(clientID)
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &phases); err != nil {
		return nil, err
	}
	return phases, nil
}

func (s *HTTPTimelineService) ReschedulePhase(ctx context.Context, phaseID string, date time.Time) (*timelinestore.Phase, error) {
	var phase timelinestore.Phase
	body := struct {
		Date time.Time `json:"date"`
	}{Date: date}
	if err := s.doJSON(ctx, "POST", "/timeline/phases/"+url.PathEscape(phaseID)+"/reschedule", body, http.StatusOK, &phase); err != nil {
		return nil, err
	}
	return &phase, nil
}

func (s *HTTPTimelineService) SkipPhase(ctx context.Context, phaseID string) (*timelinestore.Phase, error) {
	var phase timelinestore.Phase
	if err := s.doJSON(ctx, "POST", "/timeline/phases/"+url.PathEscape(phaseID)+"/skip", nil, http.StatusOK, &phase); err != nil {
		return nil, err
	}
	return &phase, nil
}

var _ timelineservice.Service = (*HTTPTimelineService)(nil)

// HTTPReassessService implements the reassessservice.Service interface
// using HTTP calls to the API
type HTTPReassessService struct {
	httpService
}

// NewHTTPReassessService creates a new HTTP client that implements reassessservice.Service
func NewHTTPReassessService(baseURL, token string, client *http.Client) reassessservice.Service {
	return &HTTPReassessService{newHTTPService(baseURL, token, client)}
}

func (s *HTTPReassessService) ListDue(ctx context.Context, clientID string) (map[string][]*planstore.Plan, error) {
	grouped := map[string][]*planstore.Plan{}
	path := "/reassess"
	if clientID != "" {
		path += "?clientId=" + url.QueryEscape(clientID)
	}
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &grouped); err != nil {
		return nil, err
	}
	return grouped, nil
}

func (s *HTTPReassessService) Sweep(ctx context.Context) (int, error) {
	var result map[string]int
	if err := s.doJSON(ctx, "POST", "/reassess/sweep", nil, http.StatusOK, &result); err != nil {
		return 0, err
	}
	return result["due"], nil
}

var _ reassessservice.Service = (*HTTPReassessService)(nil)
