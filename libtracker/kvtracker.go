package libtracker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	libkv "github.com/smokeyworks/smokey/libkvstore"
)

// KVActivitySink persists operation spans into the key-value store so the
// audit trail survives process restarts and is queryable over HTTP.
type KVActivitySink struct {
	kvManager libkv.KVManager
}

func NewKVActivityTracker(kvManager libkv.KVManager) *KVActivitySink {
	return &KVActivitySink{
		kvManager: kvManager,
	}
}

type TrackedEvent struct {
	ID         string            `json:"id"`
	Operation  string            `json:"operation"`
	Subject    string            `json:"subject"`
	Start      time.Time         `json:"start"`
	End        *time.Time        `json:"end,omitempty"`
	Error      *string           `json:"error,omitempty"`
	EntityID   *string           `json:"entityID,omitempty"`
	EntityData any               `json:"entityData,omitempty"`
	Duration   float64           `json:"duration"` // Duration in milliseconds
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"requestID,omitempty"`
}

type TrackedRequest struct {
	ID string `json:"id"`
}

func (t *KVActivitySink) Start(
	ctx context.Context,
	operation string,
	subject string,
	kvArgs ...any,
) (func(error), func(string, any), func()) {
	startTime := time.Now().UTC()

	event := &TrackedEvent{
		ID:        uuid.New().String(),
		Operation: operation,
		Subject:   subject,
		Start:     startTime,
		Metadata:  extractMetadata(kvArgs...),
	}
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		event.RequestID = reqID
	}

	reportErr := func(err error) {
		if err != nil {
			errStr := err.Error()
			event.Error = &errStr
		}
	}
	reportChange := func(id string, data any) {
		event.EntityID = &id
		event.EntityData = data
	}

	end := func() {
		now := time.Now().UTC()
		event.End = &now
		duration := time.Since(startTime)
		if duration > 0 {
			event.Duration = float64(duration) / float64(time.Millisecond)
		}
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("SERVERBUG: Failed to marshal activity event: %v", err)
			return
		}

		kv, err := t.kvManager.Executor(ctx)
		if err != nil {
			log.Printf("SERVERBUG: Failed to get KV executor: %v", err)
			return
		}

		if err := kv.ListPush(ctx, "activity:log", data); err != nil {
			log.Printf("SERVERBUG: Failed to push activity event: %v", err)
		}

		// Maintain last 1000 events
		if err := kv.ListTrim(ctx, "activity:log", 0, 999); err != nil {
			log.Printf("SERVERBUG: Failed to trim activity log: %v", err)
		}
		if event.RequestID != "" {
			reqKey := "activity:request:" + event.RequestID
			if err := kv.ListPush(ctx, reqKey, data); err != nil {
				log.Printf("SERVERBUG: Failed to push requestID activity event: %v", err)
			}
			treq, err := json.Marshal(TrackedRequest{ID: event.RequestID})
			if err != nil {
				log.Printf("SERVERBUG: Failed to marshal tracked request: %v", err)
			} else if err := kv.SetAdd(ctx, "activity:requests", treq); err != nil {
				log.Printf("SERVERBUG: Failed to track requestID: %v", err)
			}
		}
	}

	return reportErr, reportChange, end
}

func extractMetadata(args ...any) map[string]string {
	meta := make(map[string]string)
	for i := 0; i+1 < len(args); i += 2 {
		key, okKey := args[i].(string)
		val, okVal := args[i+1].(string)
		if okKey && okVal {
			meta[key] = val
		}
	}
	return meta
}

// GetActivityLogs returns the newest limit events from the shared trail.
func (t *KVActivitySink) GetActivityLogs(ctx context.Context, limit int) ([]TrackedEvent, error) {
	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	listLen, err := kv.ListLength(ctx, "activity:log")
	if err != nil {
		return nil, err
	}

	start := int64(0)
	stop := int64(limit - 1)
	if listLen < stop+1 {
		stop = listLen - 1
	}

	rawItems, err := kv.ListRange(ctx, "activity:log", start, stop)
	if err != nil {
		return nil, err
	}

	var results []TrackedEvent
	for _, raw := range rawItems {
		var evt TrackedEvent
		if err := json.Unmarshal(raw, &evt); err == nil {
			results = append(results, evt)
		}
	}

	return results, nil
}

// GetActivityLogsByRequestID returns every event stamped with requestID.
func (t *KVActivitySink) GetActivityLogsByRequestID(ctx context.Context, requestID string) ([]TrackedEvent, error) {
	if requestID == "" {
		return nil, nil
	}

	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.ListRange(ctx, "activity:request:"+requestID, 0, -1)
	if err != nil {
		return nil, err
	}

	var results []TrackedEvent
	for _, raw := range rawItems {
		var evt TrackedEvent
		if err := json.Unmarshal(raw, &evt); err == nil {
			results = append(results, evt)
		}
	}

	return results, nil
}

// GetRecentRequestIDs returns the distinct request IDs seen on the trail.
func (t *KVActivitySink) GetRecentRequestIDs(ctx context.Context, limit int) ([]TrackedRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	kv, err := t.kvManager.Executor(ctx)
	if err != nil {
		return nil, err
	}

	rawItems, err := kv.SetMembers(ctx, "activity:requests")
	if err != nil {
		return nil, err
	}

	var requestIDs []TrackedRequest
	seen := make(map[string]struct{}, len(rawItems))
	for _, raw := range rawItems {
		var req TrackedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		if _, exists := seen[req.ID]; exists {
			continue
		}
		seen[req.ID] = struct{}{}
		requestIDs = append(requestIDs, req)
		if len(requestIDs) >= limit {
			break
		}
	}

	return requestIDs, nil
}

var _ ActivityTracker = (*KVActivitySink)(nil)
