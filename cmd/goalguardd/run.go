package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/goalguard/internal/auditstore"
	"github.com/fyrsmithlabs/goalguard/internal/config"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/http"
	"github.com/fyrsmithlabs/goalguard/internal/logging"
	"github.com/fyrsmithlabs/goalguard/internal/orchestrator"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

var runCmd = &cobra.Command{
	Use:   "run [goal-file]",
	Short: "Execute the goals listed in a YAML goal file",
	Long: `Execute every goal in the file through the gated workflow. Independent
goals run concurrently up to the configured limit; each goal advances
strictly sequentially through its own state machine.

Examples:
  # Execute goals with the default configuration
  goalguardd run goals.yaml

  # Execute with an explicit config file
  goalguardd run --config /etc/goalguard/config.yaml goals.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runGoals,
}

func runGoals(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	gf, err := loadGoalFile(args[0])
	if err != nil {
		return err
	}

	invoker, err := tools.NewExecInvoker(cfg.Exec(), logger)
	if err != nil {
		return fmt.Errorf("create tool invoker: %w", err)
	}

	var sink orchestrator.AuditSink = orchestrator.NopSink{}
	var store *auditstore.Store
	if cfg.Store.Path != "" {
		store, err = auditstore.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()
		sink = store
	}

	ocfg := cfg.Orchestrator()
	logger.Info("controller configured",
		zap.String("scorecard_profile", ocfg.Profile.Version),
		zap.Int("max_reflexion_retries", ocfg.MaxRetries),
		zap.Bool("walk_forward_enabled", ocfg.Product.EnableWalkForward),
	)
	controller := orchestrator.New(invoker, sink, logger, ocfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, cancelling runs", zap.String("signal", sig.String()))
		cancel()
	}()

	var server *http.Server
	if store != nil {
		server, err = http.NewServer(store, logger, &http.Config{
			Host: "localhost",
			Port: cfg.Server.Port,
		})
		if err != nil {
			return fmt.Errorf("create ops server: %w", err)
		}
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	var g errgroup.Group
	g.SetLimit(cfg.Runs.MaxConcurrent)

	results := make([]*goalrun.GoalRun, len(gf.Goals))
	for i, entry := range gf.Goals {
		i, entry := i, entry
		g.Go(func() error {
			run, err := controller.Run(ctx, entry.Request())
			results[i] = run
			if err != nil {
				var exhausted *orchestrator.RetryBudgetExhaustedError
				if errors.As(err, &exhausted) || errors.Is(err, context.Canceled) {
					// Terminal failure of one goal never aborts the others.
					return nil
				}
				return err
			}
			return nil
		})
	}
	err = g.Wait()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("ops server shutdown failed", zap.Error(serr))
		}
	}

	if err != nil {
		return err
	}

	var failed int
	for _, run := range results {
		if run == nil {
			continue
		}
		fmt.Printf("%s  %-20s  %s\n", run.ID, run.State, run.Goal)
		if run.State != goalrun.StateCommitted {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d goals did not reach committed", failed, len(gf.Goals))
	}
	return nil
}
