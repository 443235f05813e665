package main

import (
	"context"
	"net/http"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	configv1 "github.com/linskybing/faculty-admission/api/config/v1"
	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/metrics"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/store"
	"github.com/linskybing/faculty-admission/internal/watch"
)

const defaultMetricsAddress = ":9464"

func exporterCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:  "exporter",
		Usage: "serve ledger, request, admission and allocation metrics for Prometheus until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "the metrics listen address", Value: defaultMetricsAddress},
			&cli.DurationFlag{Name: "directory-refresh", Usage: "how often to refetch a remote directory", Value: time.Minute},
		},
		Action: func(c *cli.Context) error {
			return runExporter(c, o)
		},
	}
}

// newExporterRegistry registers collectors reading the state files under
// stateDir on every scrape. The exporter never takes the state dir lock.
func newExporterRegistry(stateDir string, dir directory.Lister) *prometheus.Registry {
	ledgerPath := filepath.Join(stateDir, store.LedgerFile)
	requestsPath := filepath.Join(stateDir, store.RequestsFile)
	totalsPath := filepath.Join(stateDir, store.TotalsFile)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewLedgerCollector(metrics.Namespace, func() ([]ledger.Entry, error) {
			return store.ReadLedger(ledgerPath)
		}),
		metrics.NewRequestCollector(metrics.Namespace, func() ([]request.Request, error) {
			return store.ReadRequests(requestsPath)
		}),
		metrics.NewTotalsCollector(metrics.Namespace, func() (metrics.Totals, error) {
			return store.ReadTotals(totalsPath)
		}),
		metrics.NewAllocationCollector(metrics.Namespace, dir),
	)
	return reg
}

// reloadDirectory rebuilds the allocation directory from the config file at
// path. A config that fails validation leaves the current directory in place.
func reloadDirectory(path string, into *directory.Static) error {
	config, err := configv1.NewConfig(path)
	if err != nil {
		return err
	}
	next, err := directory.FromConfig(config)
	if err != nil {
		return err
	}
	into.Replace(next)
	return nil
}

func runExporter(c *cli.Context, o *options) error {
	config, err := loadConfig(o)
	if err != nil {
		return err
	}
	dir, err := newDirectory(c, o, config)
	if err != nil {
		return err
	}
	addr := c.String("listen")
	if !c.IsSet("listen") && config.Flags.MetricsAddress != nil {
		addr = *config.Flags.MetricsAddress
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(newExporterRegistry(stateDir(c, o, config), dir), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := context.WithCancel(commandContext(c))
	defer cancel()
	sigs := watch.Signals(syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		klog.InfoS("Serving metrics", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case s := <-sigs:
			klog.InfoS("Received signal, shutting down", "signal", s)
			cancel()
		case <-ctx.Done():
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	})

	switch d := dir.(type) {
	case *directory.Remote:
		interval := c.Duration("directory-refresh")
		g.Go(func() error {
			wait.UntilWithContext(ctx, func(ctx context.Context) {
				if err := d.Fetch(ctx); err != nil {
					klog.ErrorS(err, "Refreshing allocation directory failed, keeping the previous listing")
				}
			}, interval)
			return nil
		})
	case *directory.Static:
		if o.configFile == "" {
			break
		}
		w, err := watch.Files(o.configFile)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer w.Close()
		g.Go(func() error {
			return w.Run(ctx, func(path string) error {
				return reloadDirectory(path, d)
			})
		})
	}

	return g.Wait()
}
