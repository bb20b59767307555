package clientsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/smokeyworks/smokey/checkpointservice"
	"github.com/smokeyworks/smokey/execservice"
	"github.com/smokeyworks/smokey/planstore"
)

// HTTPExecService implements the execservice.Service interface
// using HTTP calls to the API
type HTTPExecService struct {
	httpService
}

// NewHTTPExecService creates a new HTTP client that implements execservice.Service
func NewHTTPExecService(baseURL, token string, client *http.Client) execservice.Service {
	return &HTTPExecService{newHTTPService(baseURL, token, client)}
}

func (s *HTTPExecService) ExecuteTask(ctx context.Context, planID string, taskNumber int) (*planstore.Task, error) {
	var task planstore.Task
	body := planAction{Action: "execute-task", TaskNumber: taskNumber}
	if err := s.doJSON(ctx, "POST", "/plans/"+url.PathEscape(planID), body, http.StatusOK, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

var _ execservice.Service = (*HTTPExecService)(nil)

// HTTPCheckpointService implements the checkpointservice.Service interface
// using HTTP calls to the API
type HTTPCheckpointService struct {
	httpService
}

// NewHTTPCheckpointService creates a new HTTP client that implements checkpointservice.Service
func NewHTTPCheckpointService(baseURL, token string, client *http.Client) checkpointservice.Service {
	return &HTTPCheckpointService{newHTTPService(baseURL, token, client)}
}

func (s *HTTPCheckpointService) evaluate(ctx context.Context, planID string, body planAction) (*planstore.Checkpoint, error) {
	var checkpoint planstore.Checkpoint
	if err := s.doJSON(ctx, "POST", "/plans/"+url.PathEscape(planID), body, http.StatusOK, &checkpoint); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (s *HTTPCheckpointService) Evaluate(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	return s.evaluate(ctx, planID, planAction{Action: "checkpoint", TaskNumber: taskNumber})
}

func (s *HTTPCheckpointService) EvaluateWithAudit(ctx context.Context, planID string, taskNumber int) (*planstore.Checkpoint, error) {
	return s.evaluate(ctx, planID, planAction{Action: "checkpoint-with-audit", TaskNumber: taskNumber})
}

func (s *HTTPCheckpointService) ManualEvaluate(ctx context.Context, planID string, taskNumber int, result planstore.CheckpointResult, reasoning string) (*planstore.Checkpoint, error) {
	return s.evaluate(ctx, planID, planAction{
		Action:     "manual-checkpoint",
		TaskNumber: taskNumber,
		Result:     string(result),
		Reasoning:  reasoning,
	})
}

func (s *HTTPCheckpointService) ListReviewQueue(ctx context.Context, limit int64) ([]checkpointservice.ReviewItem, error) {
	items := []checkpointservice.ReviewItem{}
	path := fmt.Sprintf("/review-queue?limit=%d", limit)
	if err := s.doJSON(ctx, "GET", path, nil, http.StatusOK, &items); err != nil {
		return nil, err
	}
	return items, nil
}

var _ checkpointservice.Service = (*HTTPCheckpointService)(nil)
