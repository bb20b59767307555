// Package clientsdk is the HTTP client for the engine API. Every SDK type
// implements the matching service interface, so callers can swap a remote
// engine for an in-process one without code changes.
package clientsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/checkpointservice"
	"github.com/smokeyworks/smokey/clientservice"
	"github.com/smokeyworks/smokey/execservice"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/smokeyworks/smokey/sessionservice"
	"github.com/smokeyworks/smokey/timelineservice"
)

// Client is the main SDK client that provides access to all services
type Client struct {
	ClientService     clientservice.Service
	PlanService       planservice.Service
	ExecService       execservice.Service
	CheckpointService checkpointservice.Service
	TimelineService   timelineservice.Service
	ReassessService   reassessservice.Service
	SessionService    sessionservice.Service
}

// Config holds configuration for the SDK client
type Config struct {
	BaseURL string
	Token   string
}

func createClient(config Config, httpClient *http.Client) (*Client, error) {
	return &Client{
		ClientService:     NewHTTPClientService(config.BaseURL, config.Token, httpClient),
		PlanService:       NewHTTPPlanService(config.BaseURL, config.Token, httpClient),
		ExecService:       NewHTTPExecService(config.BaseURL, config.Token, httpClient),
		CheckpointService: NewHTTPCheckpointService(config.BaseURL, config.Token, httpClient),
		TimelineService:   NewHTTPTimelineService(config.BaseURL, config.Token, httpClient),
		ReassessService:   NewHTTPReassessService(config.BaseURL, config.Token, httpClient),
		SessionService:    NewHTTPSessionService(config.BaseURL, config.Token, httpClient),
	}, nil
}

// NewClient validates server compatibility and returns the service bundle.
func NewClient(ctx context.Context, config Config, httpClient *http.Client) (*Client, error) {
	about, err := fetchServerVersion(ctx, config, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to validate server version: %w", err)
	}

	sdkVersion := apiframework.GetVersion()

	// Special case for development (when version is unknown)
	if about.Version == "unknown" || strings.Contains(about.Version, "dev") {
		return createClient(config, httpClient)
	}

	if sdkVersion != about.Version {
		return nil, fmt.Errorf(
			"version mismatch: server=%q, sdk=%q (must be identical)\n"+
				"Hint: Run 'go get github.com/smokeyworks/smokey@%s' to fix",
			about.Version,
			sdkVersion,
			about.Version,
		)
	}

	return createClient(config, httpClient)
}

func fetchServerVersion(ctx context.Context, config Config, httpClient *http.Client) (apiframework.AboutServer, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/version", nil)
	if err != nil {
		return apiframework.AboutServer{}, err
	}

	if config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+config.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return apiframework.AboutServer{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiframework.AboutServer{}, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var about apiframework.AboutServer
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return apiframework.AboutServer{}, err
	}
	return about, nil
}

// httpService carries the shared request plumbing for one SDK service.
type httpService struct {
	client  *http.Client
	baseURL string
	token   string
}

func newHTTPService(baseURL, token string, client *http.Client) httpService {
	if client == nil {
		client = http.DefaultClient
	}
	return httpService{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
	}
}

// doJSON performs one round trip. A nil out discards the response body; any
// status other than expectStatus is decoded into the API error taxonomy.
func (s httpService) doJSON(ctx context.Context, method, path string, body any, expectStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectStatus {
		return apiframework.HandleAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
