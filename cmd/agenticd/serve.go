package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentic-browser/internal/api"
	"agentic-browser/internal/auth"
	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/job"
	"agentic-browser/internal/storage/mysql"
	"agentic-browser/pkg/logger"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Inicia a API HTTP e os workers de jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(false)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					logger.Named("agenticd").Warn("释放资源失败", "error", err)
				}
			}()
			return a.serve(cmd.Context())
		},
	}
}

// jobBackends 按配置创建任务存储与队列。
func (a *app) jobBackends(ctx context.Context) (job.Store, job.Queue, error) {
	var store job.Store
	switch a.cfg.Storage.JobStore.Driver {
	case "mysql":
		db, err := mysql.Open(ctx, sqlConfig(a.cfg.Storage.JobStore))
		if err != nil {
			return nil, nil, err
		}
		store = mysql.NewJobRepository(db)
	case "memory", "":
		store = job.NewMemoryStore()
	default:
		return nil, nil, xerrors.New(xerrors.CodeConfiguration, "未知的任务存储驱动: "+a.cfg.Storage.JobStore.Driver)
	}

	var (
		queue job.Queue
		err   error
	)
	switch a.cfg.Queue.Driver {
	case "redis":
		client, cerr := a.redisClient(ctx)
		if cerr != nil {
			_ = store.Close()
			return nil, nil, cerr
		}
		queue, err = job.NewRedisQueue(client, a.cfg.Queue.RedisKey)
	case "rabbitmq":
		queue, err = job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:      a.cfg.Queue.AMQPURL,
			Queue:    a.cfg.Queue.AMQPQueue,
			Prefetch: a.cfg.Queue.Workers,
		})
	case "memory", "":
		queue = job.NewMemoryQueue(a.cfg.Queue.Buffer)
	default:
		err = xerrors.New(xerrors.CodeConfiguration, "未知的队列驱动: "+a.cfg.Queue.Driver)
	}
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, queue, nil
}

func (a *app) serve(ctx context.Context) error {
	log := logger.Named("agenticd")

	store, queue, err := a.jobBackends(ctx)
	if err != nil {
		return err
	}
	jobs := job.NewService(store, queue, a.cfg.Queue.MaxRetries, a.metrics)
	a.onClose(jobs.Close)

	processor := job.NewProcessor(a.controller, store, queue, queue,
		job.WithWorkerCount(a.cfg.Queue.Workers),
		job.WithAlertDispatcher(a.alerts),
		job.WithProcessorMetrics(a.metrics),
	)

	interval := time.Duration(a.cfg.Telemetry.IntervalMillis) * time.Millisecond
	if a.cfg.Telemetry.Enabled {
		a.sampler.Start(ctx, interval)
		defer a.sampler.Stop()
	}

	server := api.NewServer(a.cfg.Server.Address, api.Deps{
		Runner:            a.controller,
		Jobs:              jobs,
		Chat:              a.chat,
		Onboarding:        a.onboarding,
		Telemetry:         a.sampler,
		TelemetryInterval: interval,
		Evidence:          a.archives,
		Metrics:           a.metrics,
		Auth:              auth.NewService(a.cfg.Auth.Tokens),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return processor.Start(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	log.Info("agenticd 已启动", "addr", a.cfg.Server.Address, "env", a.cfg.Server.Env, "queue", a.cfg.Queue.Driver)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
