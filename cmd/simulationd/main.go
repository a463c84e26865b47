package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/platform/auditlog"
	"github.com/agentsim-labs/agentsim-go/internal/platform/auth"
	"github.com/agentsim-labs/agentsim-go/internal/platform/env"
	"github.com/agentsim-labs/agentsim-go/internal/platform/httpserver"
	"github.com/agentsim-labs/agentsim-go/internal/platform/k8s"
	"github.com/agentsim-labs/agentsim-go/internal/platform/objectstore"
	"github.com/agentsim-labs/agentsim-go/internal/platform/postgres"
	"github.com/agentsim-labs/agentsim-go/internal/platform/redis"
	"github.com/agentsim-labs/agentsim-go/internal/progress"
	repopg "github.com/agentsim-labs/agentsim-go/internal/repo/postgres"
	"github.com/agentsim-labs/agentsim-go/internal/reports"
	"github.com/agentsim-labs/agentsim-go/internal/runnerexec"
	"github.com/agentsim-labs/agentsim-go/internal/service/dashboard"
	"github.com/agentsim-labs/agentsim-go/internal/service/executions"
	storageminio "github.com/agentsim-labs/agentsim-go/internal/storage/objectstore"
	"github.com/agentsim-labs/agentsim-go/internal/storage/templates"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("SIMULATIOND_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("SIMULATIOND_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	redisCfg, err := redis.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid redis config", "error", err)
		os.Exit(2)
	}
	redisClient, err := redis.Open(ctx, redisCfg)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	runnerTokenSecret := strings.TrimSpace(env.String("AGENTSIM_RUNNER_TOKEN_SECRET", ""))
	runnerTokenTTL, err := env.Duration("AGENTSIM_RUNNER_TOKEN_TTL", 12*time.Hour)
	if err != nil {
		logger.Error("invalid runner token ttl", "error", err)
		os.Exit(2)
	}
	progressTTL, err := env.Duration("AGENTSIM_PROGRESS_TTL", 24*time.Hour)
	if err != nil {
		logger.Error("invalid progress ttl", "error", err)
		os.Exit(2)
	}

	var oidcService *auth.OIDCService
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		oidcService, err = auth.NewOIDCService(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(2)
		}
		authenticator = oidcService
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeDisabled:
		authenticator = nil
	default:
		logger.Error("unsupported auth mode", "mode", string(authCfg.Mode))
		os.Exit(2)
	}
	if runnerTokenSecret != "" && authenticator != nil {
		authenticator = auth.RunnerTokenAuthenticator{
			Secret: runnerTokenSecret,
			Next:   authenticator,
		}
	}

	objectStore, err := storageminio.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store wrapper init failed", "error", err)
		os.Exit(2)
	}
	resolver, err := templates.NewResolver(objectStore, storeCfg.BucketTemplates)
	if err != nil {
		logger.Error("template resolver init failed", "error", err)
		os.Exit(2)
	}
	cache, err := progress.NewRedisStore(redisClient, progressTTL)
	if err != nil {
		logger.Error("progress cache init failed", "error", err)
		os.Exit(2)
	}
	reporter, err := reports.NewObjectExporter(objectStore, storeCfg.BucketReports)
	if err != nil {
		logger.Error("report exporter init failed", "error", err)
		os.Exit(2)
	}

	launcherMode := strings.ToLower(strings.TrimSpace(env.String("AGENTSIM_RUNNER_LAUNCHER", "disabled")))
	runnerImage := strings.TrimSpace(env.String("AGENTSIM_RUNNER_IMAGE", ""))
	callbackURL := strings.TrimSpace(env.String("AGENTSIM_URL", "http://localhost:8084"))
	runnerNamespace := strings.TrimSpace(env.String("AGENTSIM_RUNNER_K8S_NAMESPACE", ""))
	var launcher runnerexec.Launcher
	switch launcherMode {
	case "", "disabled":
		launcher = nil
	case "kubernetes", "k8s":
		client, err := k8s.NewInClusterClient()
		if err != nil {
			logger.Error("k8s client init failed", "error", err)
			os.Exit(2)
		}
		jobTTLSeconds, err := env.Int("AGENTSIM_RUNNER_K8S_JOB_TTL_SECONDS", 3600)
		if err != nil {
			logger.Error("invalid job ttl seconds", "error", err)
			os.Exit(2)
		}
		jobServiceAccount := env.String("AGENTSIM_RUNNER_K8S_JOB_SERVICE_ACCOUNT", "")
		l, err := runnerexec.NewKubernetesJobLauncher(client, runnerNamespace, int32(jobTTLSeconds), jobServiceAccount)
		if err != nil {
			logger.Error("k8s launcher init failed", "error", err)
			os.Exit(2)
		}
		launcher = l
	case "docker":
		l, err := runnerexec.NewDockerLauncher(env.String("AGENTSIM_DOCKER_BIN", "docker"))
		if err != nil {
			logger.Error("docker launcher init failed", "error", err)
			os.Exit(2)
		}
		launcher = l
	default:
		logger.Error("unsupported runner launcher", "mode", launcherMode)
		os.Exit(2)
	}
	if launcher != nil && runnerImage == "" {
		logger.Error("missing runner image", "env", "AGENTSIM_RUNNER_IMAGE")
		os.Exit(2)
	}

	simulationStore := repopg.NewSimulationStore(db)
	executionStore := repopg.NewExecutionStore(db)
	groupStore := repopg.NewGroupExecutionStore(db)
	templateStore := repopg.NewTemplateStore(db)

	coordinator, err := executions.New(executions.Config{
		Logger:            logger,
		Simulations:       simulationStore,
		Executions:        executionStore,
		Groups:            groupStore,
		Templates:         templateStore,
		Resolver:          resolver,
		Cache:             cache,
		Launcher:          launcher,
		RunnerImage:       runnerImage,
		CallbackURL:       callbackURL,
		RunnerTokenSecret: runnerTokenSecret,
		RunnerTokenTTL:    runnerTokenTTL,
	})
	if err != nil {
		logger.Error("coordinator init failed", "error", err)
		os.Exit(2)
	}
	dashboardSvc := dashboard.New(simulationStore, executionStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("simulationd"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"simulationd",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "redis",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return redisClient.Ping(checkCtx).Err()
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	if oidcService != nil {
		mux.HandleFunc("/auth/logout", oidcService.LogoutHandler())
		mux.HandleFunc("/auth/session", oidcService.SessionHandler())
		if err := authCfg.ValidateForLogin(); err == nil {
			login, err := oidcService.LoginHandler()
			if err != nil {
				logger.Error("oidc login handler init failed", "error", err)
				os.Exit(2)
			}
			callback, err := oidcService.CallbackHandler()
			if err != nil {
				logger.Error("oidc callback handler init failed", "error", err)
				os.Exit(2)
			}
			mux.HandleFunc("/auth/login", login)
			mux.HandleFunc("/auth/callback", callback)
		}
	} else {
		mux.HandleFunc("/auth/session", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"mode": string(authCfg.Mode)})
		})
	}

	api := newSimulationAPI(
		logger,
		db,
		simulationStore,
		templateStore,
		resolver,
		coordinator,
		dashboardSvc,
		reporter,
	)
	api.register(mux)

	var handler http.Handler = mux
	if authenticator != nil {
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.MethodRoleAuthorizer(),
			Audit: func(ctx context.Context, event auth.DenyEvent) error {
				auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return auditlog.InsertAuthDeny(auditCtx, db, "simulationd", event)
			},
			SkipPrefixes: []string{"/healthz", "/readyz", "/auth/"},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "simulationd",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "simulationd", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
