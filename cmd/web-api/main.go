package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api/node"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api/results"
	taskapi "github.com/tcJackClay/HuanuCanvas-sub001/internal/api/task"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/guard"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/orchestrator"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/config"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/logger"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/redisx"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/remote"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/repository"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/result"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/state"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/store"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting HuanuCanvas Task Service")

	// Initialize database
	if err := repository.InitDB(cfg.Database.Path); err != nil {
		zap.L().Fatal("Failed to initialize database",
			zap.Error(err))
	}
	defer repository.Close()

	// Initialize Redis (optional). Without it the single-flight guard falls
	// back to the in-process implementation.
	var opGuard guard.Guard = guard.NewMemoryGuard()
	if cfg.RedisService.Enabled {
		if err := redisx.Init(cfg); err != nil {
			zap.L().Warn("Redis initialization failed, using in-process guard",
				zap.Error(err))
		} else {
			defer redisx.Close()
			opGuard = guard.NewRedisGuard(redisx.GetClient(), time.Hour)
		}
	}

	// Wire the orchestration core.
	client := remote.NewHTTPClient(cfg.RemoteExecutor.BaseURL, cfg.RemoteExecutor.RequestTimeout())
	taskStore := store.NewTaskStore()
	processor := result.NewProcessor()
	repo := repository.NewResultRepo()

	orch := orchestrator.New(client, taskStore, processor, repo, orchestrator.Options{
		PollInterval:    cfg.RemoteExecutor.PollInterval(),
		MaxPollAttempts: cfg.RemoteExecutor.MaxPollAttempts,
		SubmitRetry: remote.RetryPolicy{
			MaxAttempts: cfg.RemoteExecutor.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.RemoteExecutor.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RemoteExecutor.Retry.MaxDelayMs) * time.Millisecond,
			Retryable:   remote.IsTransient,
		},
	})
	defer orch.Shutdown()

	coordinator := state.NewCoordinator(orch, cfg.State.Debounce())
	defer coordinator.Close()

	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	// Create router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	// Setup routes
	api.SetupRouter(r, api.Deps{
		Tasks: &taskapi.Handler{
			Orch:             orch,
			Guard:            opGuard,
			Client:           client,
			BatchConcurrency: cfg.RemoteExecutor.BatchConcurrency,
		},
		Nodes:   &node.Handler{Coordinator: coordinator},
		Results: &results.Handler{Repo: repo},
	})

	logger.Info("Task service listening",
		zap.String("addr", cfg.GetWebServiceAddr()),
		zap.String("executor", cfg.RemoteExecutor.BaseURL),
		zap.String("database", cfg.Database.Path))

	// Start server
	if err := r.Run(fmt.Sprintf("%s:%d", cfg.WebService.Host, cfg.WebService.Port)); err != nil {
		zap.L().Fatal("Failed to start server",
			zap.Error(err))
	}
}
