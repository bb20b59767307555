package serverapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/checkpointservice"
	"github.com/smokeyworks/smokey/clientservice"
	"github.com/smokeyworks/smokey/clientstore"
	"github.com/smokeyworks/smokey/execservice"
	"github.com/smokeyworks/smokey/internal/clientapi"
	"github.com/smokeyworks/smokey/internal/planapi"
	"github.com/smokeyworks/smokey/internal/sessionapi"
	"github.com/smokeyworks/smokey/internal/timelineapi"
	"github.com/smokeyworks/smokey/libauth"
	libbus "github.com/smokeyworks/smokey/libbus"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	libkv "github.com/smokeyworks/smokey/libkvstore"
	"github.com/smokeyworks/smokey/libroutine"
	"github.com/smokeyworks/smokey/libtracker"
	"github.com/smokeyworks/smokey/planservice"
	"github.com/smokeyworks/smokey/planstore"
	"github.com/smokeyworks/smokey/reassessservice"
	"github.com/smokeyworks/smokey/sessionservice"
	"github.com/smokeyworks/smokey/sessionstore"
	"github.com/smokeyworks/smokey/timelineservice"
	"github.com/smokeyworks/smokey/timelinestore"
	"github.com/smokeyworks/smokey/tooling"
)

// SubjectTriggerSweep forces an immediate reassessment sweep when published.
const SubjectTriggerSweep = "trigger_sweep"

func New(
	ctx context.Context,
	mux *http.ServeMux,
	nodeInstanceID string,
	tenancy string,
	config *Config,
	dbInstance libdb.DBManager,
	pubsub libbus.Messenger,
	kvManager libkv.KVManager,
	registry *tooling.Registry,
	resolver libauth.Resolver,
) (func() error, error) {
	cleanup := func() error { return nil }

	exec := dbInstance.WithoutTransaction()
	for _, initSchema := range []func(context.Context, libdb.Exec) error{
		clientstore.InitSchema,
		planstore.InitSchema,
		timelinestore.InitSchema,
		sessionstore.InitSchema,
	} {
		if err := initSchema(ctx, exec); err != nil {
			return cleanup, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	stdOuttracker := libtracker.NewLogActivityTracker(slog.Default())
	serveropsChainedTracker := libtracker.ChainedTracker{
		stdOuttracker,
	}
	var kvSink *libtracker.KVActivitySink
	if kvManager != nil {
		kvSink = libtracker.NewKVActivityTracker(kvManager)
		serveropsChainedTracker = append(serveropsChainedTracker, kvSink)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Error(w, r, apiframework.ErrNotFound, apiframework.ListOperation)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		// OK
	})
	version := apiframework.GetVersion()
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		apiframework.Encode(w, r, http.StatusOK, apiframework.AboutServer{Version: version, NodeInstanceID: nodeInstanceID, Tenancy: tenancy})
	})

	toolTimeout := 30 * time.Second
	if config.ToolTimeout != "" {
		parsed, err := time.ParseDuration(config.ToolTimeout)
		if err != nil {
			return cleanup, fmt.Errorf("invalid tool_timeout: %w", err)
		}
		toolTimeout = parsed
	}

	clientService := clientservice.New(dbInstance)
	clientService = clientservice.WithActivityTracker(clientService, serveropsChainedTracker)
	clientapi.AddClientRoutes(mux, clientService)

	planService := planservice.New(dbInstance)
	planService = planservice.WithActivityTracker(planService, serveropsChainedTracker)

	execService := execservice.New(dbInstance, registry, resolver, planService, pubsub, toolTimeout)
	execService = execservice.WithActivityTracker(execService, serveropsChainedTracker)

	checkpointService := checkpointservice.New(dbInstance, registry, planService, kvManager, toolTimeout)
	checkpointService = checkpointservice.WithActivityTracker(checkpointService, serveropsChainedTracker)
	planapi.AddPlanRoutes(mux, planService, execService, checkpointService)

	timelineService := timelineservice.New(dbInstance, planService)
	timelineService = timelineservice.WithActivityTracker(timelineService, serveropsChainedTracker)

	reassessService := reassessservice.New(dbInstance, pubsub)
	reassessService = reassessservice.WithActivityTracker(reassessService, serveropsChainedTracker)
	timelineapi.AddTimelineRoutes(mux, timelineService, reassessService)

	sessionService := sessionservice.New(dbInstance)
	sessionService = sessionservice.WithActivityTracker(sessionService, serveropsChainedTracker)
	sessionapi.AddSessionRoutes(mux, sessionService)

	if kvSink != nil {
		addActivityRoutes(mux, kvSink)
	}

	sweepInterval := time.Hour
	if config.SweepInterval != "" {
		parsed, err := time.ParseDuration(config.SweepInterval)
		if err != nil {
			return cleanup, fmt.Errorf("invalid sweep_interval: %w", err)
		}
		sweepInterval = parsed
	}

	group := libroutine.GetGroup()
	group.StartLoop(
		ctx,
		&libroutine.LoopConfig{
			Key:          "reassessSweep",
			Threshold:    3,
			ResetTimeout: 10 * time.Second,
			Interval:     sweepInterval,
			Operation: func(ctx context.Context) error {
				_, err := reassessService.Sweep(ctx)
				return err
			},
		},
	)

	triggerCh := make(chan []byte, 10)
	sub, err := pubsub.Stream(ctx, SubjectTriggerSweep, triggerCh)
	if err != nil {
		return cleanup, fmt.Errorf("failed to subscribe to %s: %w", SubjectTriggerSweep, err)
	}
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-triggerCh:
				if !ok {
					return
				}
				group.ForceUpdate("reassessSweep")
			}
		}
	}()

	return cleanup, nil
}

// addActivityRoutes exposes the persisted audit trail.
func addActivityRoutes(mux *http.ServeMux, sink *libtracker.KVActivitySink) {
	mux.HandleFunc("GET /activity", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
				apiframework.Error(w, r, fmt.Errorf("%w: invalid limit format, expected integer", apiframework.ErrUnprocessableEntity), apiframework.ListOperation)
				return
			}
		}
		logs, err := sink.GetActivityLogs(r.Context(), limit)
		if err != nil {
			apiframework.Error(w, r, err, apiframework.ListOperation)
			return
		}
		apiframework.Encode(w, r, http.StatusOK, logs)
	})
	mux.HandleFunc("GET /activity/requests", func(w http.ResponseWriter, r *http.Request) {
		requests, err := sink.GetRecentRequestIDs(r.Context(), 100)
		if err != nil {
			apiframework.Error(w, r, err, apiframework.ListOperation)
			return
		}
		apiframework.Encode(w, r, http.StatusOK, requests)
	})
	mux.HandleFunc("GET /activity/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		logs, err := sink.GetActivityLogsByRequestID(r.Context(), r.PathValue("id"))
		if err != nil {
			apiframework.Error(w, r, err, apiframework.ListOperation)
			return
		}
		apiframework.Encode(w, r, http.StatusOK, logs)
	})
}

type Config struct {
	DatabaseURL   string `json:"database_url"`
	Port          string `json:"port"`
	Addr          string `json:"addr"`
	NATSURL       string `json:"nats_url"`
	NATSUser      string `json:"nats_user"`
	NATSPassword  string `json:"nats_password"`
	KVAddr        string `json:"kv_addr"`
	KVPassword    string `json:"kv_password"`
	SQLitePath    string `json:"sqlite_path"`
	JWTSecret     string `json:"jwt_secret"`
	// OperatorIdentities is a comma-separated list of identities granted the
	// operator and cta_override capabilities.
	OperatorIdentities string `json:"operator_identities"`
	ToolTimeout   string `json:"tool_timeout"`
	SweepInterval string `json:"sweep_interval"`

	AuditToolURL     string `json:"audit_tool_url"`
	BurntToolURL     string `json:"burnt_tool_url"`
	ContentToolURL   string `json:"content_tool_url"`
	StructureToolURL string `json:"structure_tool_url"`
}

func LoadConfig[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config pointer is nil")
	}
	config := map[string]string{}
	for _, kvPair := range os.Environ() {
		ar := strings.SplitN(kvPair, "=", 2)
		if len(ar) < 2 {
			continue
		}
		key := strings.ToLower(ar[0])
		value := ar[1]
		config[key] = value
	}

	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal env vars: %w", err)
	}
	err = json.Unmarshal(b, cfg)
	if err != nil {
		return fmt.Errorf("failed to unmarshal into config struct: %w", err)
	}

	return nil
}
