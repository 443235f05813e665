package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	configv1 "github.com/linskybing/faculty-admission/api/config/v1"
	"github.com/linskybing/faculty-admission/internal/admission"
	"github.com/linskybing/faculty-admission/internal/directory"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/metrics"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/store"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

// engine is the admission core wired to a locked state directory.
type engine struct {
	config     *configv1.Config
	classifier *timewindow.Classifier
	directory  directory.Lister
	state      *store.Dir
	ledger     *ledger.Ledger
	query      *request.QueryService
	service    *admission.Service
}

func loadConfig(o *options) (*configv1.Config, error) {
	if o.configFile == "" {
		klog.V(2).InfoS("No config file given, using the default allocation directory")
		return configv1.GetDefaultConfig(), nil
	}
	return configv1.NewConfig(o.configFile)
}

// stateDir prefers the command line, then the config file, then the default.
func stateDir(c *cli.Context, o *options, config *configv1.Config) string {
	if c.IsSet("state-dir") || config.Flags.StateDir == nil {
		return o.stateDir
	}
	return *config.Flags.StateDir
}

func newClassifier(config *configv1.Config) (*timewindow.Classifier, error) {
	loc, err := config.Location()
	if err != nil {
		return nil, errors.Wrap(err, "loading timezone")
	}
	first, final, err := config.CutoffDurations()
	if err != nil {
		return nil, err
	}
	return timewindow.NewClassifier(first, final, loc)
}

// newDirectory returns the remote directory when --directory is set and the
// config file's allocations otherwise.
func newDirectory(c *cli.Context, o *options, config *configv1.Config) (directory.Lister, error) {
	if o.directoryEndpoint == "" {
		static, err := directory.FromConfig(config)
		if err != nil {
			return nil, err
		}
		return static, nil
	}
	remote, err := directory.NewRemote(o.directoryEndpoint)
	if err != nil {
		return nil, err
	}
	if err := remote.Fetch(commandContext(c)); err != nil {
		return nil, err
	}
	return remote, nil
}

func openEngine(c *cli.Context, o *options) (*engine, error) {
	config, err := loadConfig(o)
	if err != nil {
		return nil, err
	}
	dir, err := newDirectory(c, o, config)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(config)
	if err != nil {
		return nil, err
	}

	state, err := store.Open(stateDir(c, o, config))
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(dir, state.Ledger())
	if err != nil {
		_ = state.Close()
		return nil, err
	}
	requests, err := state.Requests()
	if err != nil {
		_ = state.Close()
		return nil, err
	}

	return &engine{
		config:     config,
		classifier: classifier,
		directory:  dir,
		state:      state,
		ledger:     l,
		query:      request.NewQueryService(requests),
		service:    admission.NewService(dir, classifier, l, requests, admission.WithRecorder(metrics.NewRecorder(state.Totals()))),
	}, nil
}

func (e *engine) Close() error {
	return e.state.Close()
}

// withEngine opens the engine for the duration of fn.
func withEngine(o *options, fn func(c *cli.Context, e *engine) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := openEngine(c, o)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.Close(); err != nil {
				klog.ErrorS(err, "Closing state dir")
			}
		}()
		return fn(c, e)
	}
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
