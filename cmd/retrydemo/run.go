package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jzx17/goretry/internal/config"
	"github.com/jzx17/goretry/internal/remote"
	"github.com/jzx17/goretry/internal/scheduler"
	"github.com/jzx17/goretry/internal/service"
	"github.com/jzx17/goretry/pkg/retry"
	"github.com/jzx17/goretry/pkg/types"
	"github.com/jzx17/goretry/pkg/worker"
)

// statelessLabel names the stateless series
const statelessLabel = "retryTestService"

var withEndpoint bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fire retry jobs against the endpoint at a fixed rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, appConfig, logger, withEndpoint)
	},
}

func init() {
	runCmd.Flags().BoolVar(&withEndpoint, "with-endpoint", false, "also serve the unstable endpoint and /metrics on server.addr")
}

func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, serve bool) error {
	clock := types.NewRealClock()
	reg := prometheus.NewRegistry()
	client := remote.NewClient(cfg.Endpoint.BaseURL, cfg.Endpoint.Timeout, logger.Named("client"))

	listeners := []retry.RetryListener{
		retry.NewLoggingListener(logger.Named("retry")),
		retry.NewMetricsListener(reg),
	}

	pool, err := worker.NewFixedWorkerPool(&worker.FixedWorkerPoolConfig{
		PoolSize:  cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		Clock:     clock,
		Logger:    logger.Named("pool"),
	})
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:   cfg.Scheduler.Interval,
		JobTimeout: cfg.Scheduler.JobTimeout,
		Pool:       pool,
		Clock:      clock,
		Logger:     logger.Named("scheduler"),
	})
	if err != nil {
		return err
	}

	if cfg.Scheduler.Mode == config.ModeStateless || cfg.Scheduler.Mode == config.ModeBoth {
		policy, err := cfg.Retry.Policy(statelessLabel)
		if err != nil {
			return err
		}
		executor, err := retry.NewRetryExecutor(policy,
			retry.WithListener(listeners...),
			retry.WithClock(clock),
			retry.WithLogger(logger.Named("executor")))
		if err != nil {
			return err
		}
		svc := service.NewUnstableService(executor, client, service.WithLogger(logger.Named("unstable")))
		sched.Add(scheduler.UnstableJob("stateless", svc, logger))
	}

	if cfg.Scheduler.Mode == config.ModeStateful || cfg.Scheduler.Mode == config.ModeBoth {
		policy, err := cfg.Retry.Policy("")
		if err != nil {
			return err
		}

		var cache retry.RetryContextCache
		onEvict := retry.RegisterCacheMetrics(reg, policy.Label, func() retry.RetryContextCache { return cache })
		cache = cfg.Retry.NewCache(clock, onEvict)

		executor, err := retry.NewRetryExecutor(policy,
			retry.WithListener(listeners...),
			retry.WithCache(cache),
			retry.WithClock(clock),
			retry.WithLogger(logger.Named("executor")))
		if err != nil {
			return err
		}
		svc := service.NewMessageService(executor, client, service.WithLogger(logger.Named("message")))
		msg := service.TextMessage{MessageID: cfg.Scheduler.MessageID}
		sched.Add(scheduler.MessageJob("stateful", svc, msg, logger))
	}

	if err := pool.Start(ctx); err != nil {
		return err
	}

	// the first of endpoint and scheduler to fail stops the other
	g, gctx := errgroup.WithContext(ctx)
	if serve {
		gin.SetMode(gin.ReleaseMode)
		srv := remote.NewServer(cfg.Server.Addr, logger.Named("endpoint"), remote.WithMetrics(reg))
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error { return sched.Run(gctx) })

	runErr := g.Wait()
	return errors.Join(runErr, pool.Close())
}
