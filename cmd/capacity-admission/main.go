package main

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

const defaultStateDir = "/var/lib/capacity-admission"

type options struct {
	configFile        string
	stateDir          string
	directoryEndpoint string
	verbosity         int
	now               string
}

func main() {
	app := newApp(clock.RealClock{})
	if err := app.Run(os.Args); err != nil {
		klog.ErrorS(err, "Command failed")
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func newApp(clk clock.PassiveClock) *cli.App {
	o := &options{}

	c := cli.NewApp()
	c.Name = "capacity-admission"
	c.Usage = "Admit resource requests against daily per-allocation capacity"
	c.Before = func(*cli.Context) error {
		return initLogging(o.verbosity)
	}
	c.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"config-file"},
			Usage:       "the path to a config file with the allocation directory and cutoffs",
			Destination: &o.configFile,
			EnvVars:     []string{"CAPACITY_ADMISSION_CONFIG"},
		},
		&cli.StringFlag{
			Name:        "state-dir",
			Value:       defaultStateDir,
			Usage:       "the directory holding the ledger and request files",
			Destination: &o.stateDir,
			EnvVars:     []string{"CAPACITY_ADMISSION_STATE_DIR"},
		},
		&cli.StringFlag{
			Name:        "directory",
			Usage:       "fetch allocations from a directory service (http://host:port or unix:///path) instead of the config file",
			Destination: &o.directoryEndpoint,
			EnvVars:     []string{"CAPACITY_ADMISSION_DIRECTORY"},
		},
		&cli.IntFlag{
			Name:        "v",
			Usage:       "log verbosity",
			Destination: &o.verbosity,
		},
		&cli.StringFlag{
			Name:        "now",
			Usage:       "evaluate the command at this RFC3339 time instead of the current time",
			Destination: &o.now,
		},
	}
	c.Commands = []*cli.Command{
		submitCommand(o, clk),
		approveCommand(o),
		statusCommand(o),
		setStatusCommand(o),
		getCommand(o),
		pendingCommand(o),
		requestsCommand(o),
		releaseCommand(o, clk),
		ledgerCommand(o, clk),
		exporterCommand(o),
	}
	return c
}

func initLogging(verbosity int) error {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("v", strconv.Itoa(verbosity)); err != nil {
		return errors.Wrap(err, "setting log verbosity")
	}
	return nil
}

// currentTime returns --now when given and the clock's time otherwise.
func (o *options) currentTime(clk clock.PassiveClock) (time.Time, error) {
	if o.now == "" {
		return clk.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, o.now)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid --now %q", o.now)
	}
	return t, nil
}
