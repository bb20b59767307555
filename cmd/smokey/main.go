package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/ctaflow"
	"github.com/smokeyworks/smokey/libauth"
	libbus "github.com/smokeyworks/smokey/libbus"
	libdb "github.com/smokeyworks/smokey/libdbexec"
	libkv "github.com/smokeyworks/smokey/libkvstore"
	"github.com/smokeyworks/smokey/libroutine"
	"github.com/smokeyworks/smokey/serverapi"
	"github.com/smokeyworks/smokey/tooling"
)

var (
	cliSetTenancy  string
	Tenancy        = "2f1aa2cc-5f4e-4c43-9a16-5a2a0e9c1d01"
	nodeInstanceID = "NODE-Instance-UNSET-dev"
)

func initDatabase(ctx context.Context, cfg *serverapi.Config) (libdb.DBManager, error) {
	if cfg.DatabaseURL != "" {
		var dbInstance libdb.DBManager
		err := libroutine.NewRoutine(10, time.Minute).ExecuteWithRetry(ctx, time.Second, 3, func(ctx context.Context) error {
			var err error
			dbInstance, err = libdb.NewPostgresDBManager(ctx, cfg.DatabaseURL, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		return dbInstance, nil
	}
	if cfg.SQLitePath != "" {
		dbInstance, err := libdb.NewSQLiteDBManager(ctx, cfg.SQLitePath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		return dbInstance, nil
	}
	return nil, fmt.Errorf("DATABASE_URL or SQLITE_PATH is required")
}

func initPubSub(ctx context.Context, cfg *serverapi.Config) (libbus.Messenger, error) {
	if cfg.NATSURL == "" {
		// Single-process mode.
		return libbus.NewInMem(), nil
	}
	return libbus.NewPubSub(ctx, &libbus.Config{
		NATSURL:      cfg.NATSURL,
		NATSUser:     cfg.NATSUser,
		NATSPassword: cfg.NATSPassword,
	})
}

// initRegistry wires the external tool services. Tools without a configured
// endpoint fall back to local echo so development setups stay runnable.
func initRegistry(cfg *serverapi.Config) (*tooling.Registry, error) {
	registry := tooling.NewRegistry()

	endpoints := map[string]string{
		ctaflow.ToolAudit:     cfg.AuditToolURL,
		ctaflow.ToolBurnt:     cfg.BurntToolURL,
		ctaflow.ToolContent:   cfg.ContentToolURL,
		ctaflow.ToolStructure: cfg.StructureToolURL,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			registry.Register(&tooling.EchoTool{ToolName: name})
			continue
		}
		tool, err := tooling.NewWebTool(name, endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to configure tool %s: %w", name, err)
		}
		registry.Register(tool)
	}
	registry.Register(&tooling.EchoTool{ToolName: ctaflow.ToolSmokey})

	return registry, nil
}

func initResolver(cfg *serverapi.Config) libauth.Resolver {
	grants := map[string][]libauth.Capability{}
	identities := cfg.OperatorIdentities
	if identities == "" {
		identities = "operator"
	}
	for _, identity := range strings.Split(identities, ",") {
		identity = strings.TrimSpace(identity)
		if identity == "" {
			continue
		}
		grants[identity] = []libauth.Capability{
			libauth.CapabilityOperator,
			libauth.CapabilityCTAOverride,
		}
	}
	return &libauth.StaticResolver{Grants: grants}
}

func main() {
	if cliSetTenancy != "" {
		Tenancy = cliSetTenancy
	}
	nodeInstanceID = uuid.NewString()[0:8]

	config := &serverapi.Config{}
	if err := serverapi.LoadConfig(config); err != nil {
		log.Fatalf("%s: failed to load configuration: %v", nodeInstanceID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanups := []func() error{}
	defer func() {
		for _, cleanup := range cleanups {
			if err := cleanup(); err != nil {
				log.Printf("%s cleanup failed: %v", nodeInstanceID, err)
			}
		}
	}()

	dbInstance, err := initDatabase(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing database failed: %v", nodeInstanceID, err)
	}
	defer dbInstance.Close()

	ps, err := initPubSub(ctx, config)
	if err != nil {
		log.Fatalf("%s initializing PubSub failed: %v", nodeInstanceID, err)
	}
	defer ps.Close()

	var kvManager libkv.KVManager
	if config.KVAddr != "" {
		kvManager, err = libkv.NewManager(libkv.Config{
			KVAddr:     config.KVAddr,
			KVPassword: config.KVPassword,
		}, 10*time.Second)
		if err != nil {
			log.Fatalf("%s initializing KV store failed: %v", nodeInstanceID, err)
		}
		defer kvManager.Close()
	}

	registry, err := initRegistry(config)
	if err != nil {
		log.Fatalf("%s initializing tool registry failed: %v", nodeInstanceID, err)
	}

	internalMux := http.NewServeMux()
	cleanup, err := serverapi.New(ctx, internalMux, nodeInstanceID, Tenancy, config, dbInstance, ps, kvManager, registry, initResolver(config))
	cleanups = append(cleanups, cleanup)
	if err != nil {
		log.Fatalf("%s initializing API handler failed: %v", nodeInstanceID, err)
	}

	var apiHandler http.Handler = internalMux
	apiHandler = apiframework.RequestIDMiddleware(apiHandler)
	apiHandler = apiframework.TracingMiddleware(apiHandler)
	if config.JWTSecret != "" {
		apiHandler = apiframework.TokenMiddleware([]byte(config.JWTSecret), apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	port := config.Port
	if port == "" {
		port = "8080"
	}
	log.Printf("%s %s starting server on :%s", Tenancy, nodeInstanceID, port)
	if err := http.ListenAndServe(config.Addr+":"+port, mux); err != nil {
		log.Fatalf("%s server failed: %v", nodeInstanceID, err)
	}
}
