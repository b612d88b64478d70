package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"powersvc/adapters/contrast"
	"powersvc/adapters/covariance"
	"powersvc/adapters/engine/glmm"
	"powersvc/adapters/store"
	"powersvc/app"
	"powersvc/internal"
	"powersvc/internal/api"
	"powersvc/internal/compute"
	"powersvc/internal/config"
	"powersvc/internal/params"
	"powersvc/internal/validation"
	"powersvc/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB     *sqlx.DB
	Ledger ports.RunLedger

	// Computation
	Engine       ports.PowerEngine
	Orchestrator *compute.Orchestrator

	// Use cases
	Validator    *validation.Validator
	Assembler    *params.Assembler
	PowerService *app.PowerService
}

// New creates a new dependency injection container. The run ledger is
// opened only when cfg names a driver.
func New(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	if err := c.initLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}
	c.initCompute()
	c.initServices()

	logger.Info("container initialized (timeout %s, max workers %d, ledger %q)",
		cfg.Compute.Timeout, cfg.Compute.MaxWorkers, cfg.Ledger.Driver)
	return c, nil
}

func (c *Container) initLedger(ctx context.Context) error {
	switch c.Config.Ledger.Driver {
	case "":
		return nil
	case "memory":
		c.Ledger = store.NewInMemoryRunLedger(store.DefaultMemoryCapacity)
		return nil
	}
	db, err := store.Open(ctx, c.Config.Ledger.Driver, c.Config.Ledger.URL)
	if err != nil {
		return err
	}
	c.DB = db
	c.Ledger = store.NewRunLedger(db)
	return nil
}

func (c *Container) initCompute() {
	c.Engine = glmm.NewEngine(c.Logger.With("component", "engine"))
	c.Orchestrator = compute.NewOrchestrator(c.Engine, compute.Options{
		Timeout:     c.Config.Compute.Timeout,
		IdleTimeout: c.Config.Compute.WorkerIdleTimeout,
		MaxWorkers:  c.Config.Compute.MaxWorkers,
	}, c.Logger.With("component", "orchestrator"))
}

func (c *Container) initServices() {
	c.Validator = validation.NewValidator(validation.Limits{
		MaxGroups: c.Config.Limits.MaxGroups,
		MaxCases:  c.Config.Limits.MaxCases,
	})
	c.Assembler = params.NewAssembler(contrast.NewBuilder(), covariance.NewBuilder(), c.Logger.With("component", "assembler"))
	c.PowerService = app.NewPowerService(c.Validator, c.Assembler, c.Orchestrator, c.Ledger, c.Logger)
}

// Router builds the public gin router
func (c *Container) Router() *gin.Engine {
	handler := api.NewPowerHandler(c.PowerService, c.Logger.With("component", "http"), c.Config.Server.MaxBodyBytes)
	return api.NewRouter(handler, c.Config.Server.GinMode)
}

// OpsRouter builds the health, profiling and ledger router
func (c *Container) OpsRouter() http.Handler {
	return api.NewOpsRouter(c.Orchestrator.Pool(), c.Ledger)
}

// Close drains the worker pool and closes the ledger database
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	if c.Orchestrator != nil {
		if err := c.Orchestrator.Close(ctx); err != nil {
			firstErr = fmt.Errorf("failed to drain workers: %w", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close ledger: %w", err)
		}
	}
	return firstErr
}
