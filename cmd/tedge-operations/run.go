package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/configuration"
	"github.com/goliatone/go-operations/cron"
	"github.com/goliatone/go-operations/dispatcher"
	"github.com/goliatone/go-operations/httpapi"
	"github.com/goliatone/go-operations/metrics"
	"github.com/goliatone/go-operations/registry"
	"github.com/goliatone/go-operations/runner"
	"github.com/goliatone/go-operations/store"
)

type RunCmd struct {
	Workflows     string        `help:"Directory of workflow files." default:"/etc/tedge/operations" env:"TEDGE_OPS_WORKFLOWS" type:"path"`
	Store         string        `help:"Journal backend." default:"inmem" enum:"inmem,diskv" env:"TEDGE_OPS_STORE"`
	StorePath     string        `help:"Directory of the diskv journal." default:"/var/lib/tedge/operations" env:"TEDGE_OPS_STORE_PATH" type:"path"`
	Listen        string        `help:"HTTP API address, empty to disable." default:":8088" env:"TEDGE_OPS_LISTEN"`
	TmpDir        string        `help:"Directory for configuration downloads." default:"/tmp" env:"TEDGE_OPS_TMP_DIR" type:"path"`
	ScriptTimeout time.Duration `help:"Kill workflow scripts running longer than this." default:"5m" env:"TEDGE_OPS_SCRIPT_TIMEOUT"`
	Janitor       string        `help:"Cron expression of the download janitor." default:"@every 1h" env:"TEDGE_OPS_JANITOR"`
	JanitorMaxAge time.Duration `help:"Age after which stale downloads are removed." default:"24h" env:"TEDGE_OPS_JANITOR_MAX_AGE"`
}

func (c *RunCmd) Run(g *Globals, logger operations.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(g.Root)
	if err := registerWorkflowDir(reg, c.Workflows, logger); err != nil {
		return err
	}

	manager := configuration.NewManager(
		configuration.WithLogger(logger),
		configuration.WithTmpDir(c.TmpDir),
	)
	if err := reg.Register(configuration.Workflow(), manager.Inbox()); err != nil {
		return err
	}
	if err := reg.Initialize(); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	journal, err := c.openStore()
	if err != nil {
		return err
	}

	client, closeClient, err := g.connect(ctx, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	d := dispatcher.New(reg, client,
		dispatcher.WithLogger(logger),
		dispatcher.WithExecutor(runner.NewExecExecutor(runner.WithExecTimeout(c.ScriptTimeout))),
		dispatcher.WithStore(journal),
		dispatcher.WithMetrics(metrics.NewPrometheus(promReg)),
	)

	scheduler := cron.NewScheduler(cron.WithLogger(logger))
	if _, err := configuration.NewJanitor(manager, c.JanitorMaxAge).Schedule(scheduler, c.Janitor); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.Serve(ctx, client) })
	group.Go(func() error { return manager.Run(ctx, d.Outbox()) })
	group.Go(func() error {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return scheduler.Stop(stopCtx)
	})
	if c.Listen != "" {
		srv := &http.Server{
			Addr: c.Listen,
			Handler: httpapi.New(httpapi.Config{
				Root:      g.Root,
				Store:     journal,
				Publisher: d,
				Workflows: reg,
				Gatherer:  promReg,
				Version:   version,
				Logger:    logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			logger.Info("HTTP API listening on %s", c.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("tedge-operations %s started with %d workflows", version, len(reg.Entries()))
	err = group.Wait()
	logger.Info("tedge-operations stopped")
	return err
}

func (c *RunCmd) openStore() (store.Store, error) {
	switch c.Store {
	case "diskv":
		if err := os.MkdirAll(c.StorePath, 0o755); err != nil {
			return nil, err
		}
		return store.NewDiskvStore(c.StorePath), nil
	default:
		return store.NewInMemoryStore(), nil
	}
}

// registerWorkflowDir registers every valid workflow file of dir. Invalid
// files are logged and skipped.
func registerWorkflowDir(reg *registry.Registry, dir string, logger operations.Logger) error {
	results, err := operations.LoadWorkflowDir(dir)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			logger.Warn("skipping workflow %s: %v", res.Path, res.Err)
			continue
		}
		if err := reg.RegisterWorkflow(res.Workflow); err != nil {
			logger.Warn("skipping workflow %s: %v", res.Path, err)
			continue
		}
		logger.Info("registered workflow %s for %s", res.Workflow.Name, res.Workflow.Filter)
	}
	return nil
}
