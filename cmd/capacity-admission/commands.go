package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/linskybing/faculty-admission/internal/admission"
	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/ledger"
	"github.com/linskybing/faculty-admission/internal/request"
	"github.com/linskybing/faculty-admission/internal/resources"
	"github.com/linskybing/faculty-admission/internal/timewindow"
)

type decisionView struct {
	Verdict decision.Verdict `json:"verdict"`
	Rule    decision.Rule    `json:"rule"`
	Pool    string           `json:"pool"`
}

type submitView struct {
	Request     request.Request `json:"request"`
	Decision    decisionView    `json:"decision"`
	Period      string          `json:"period"`
	ForTomorrow bool            `json:"forTomorrow"`
	Error       string          `json:"error,omitempty"`
}

type statusView struct {
	ID     string           `json:"id"`
	Status decision.Verdict `json:"status"`
}

type releaseView struct {
	Day         timewindow.Day   `json:"day"`
	Allocation  string           `json:"allocation"`
	Surrendered resources.Bundle `json:"surrendered"`
}

type entryView struct {
	Day                timewindow.Day   `json:"day"`
	AllocationID       string           `json:"allocationId"`
	Total              resources.Bundle `json:"total"`
	Available          resources.Bundle `json:"available"`
	AssignedRequestIDs []string         `json:"assignedRequestIds"`
}

func toEntryView(e ledger.Entry) entryView {
	return entryView{
		Day:                e.Day,
		AllocationID:       e.AllocationID,
		Total:              e.Total,
		Available:          e.Available,
		AssignedRequestIDs: sets.List(e.AssignedRequestIDs),
	}
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return errors.Errorf("%s: expected %d argument(s), got %d", c.Command.Name, n, c.NArg())
	}
	return nil
}

// parseDeadline accepts RFC3339, or a local "2006-01-02T15:04" or
// "2006-01-02" in loc. A bare date means the end of that day.
func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return time.Time{}, errors.Errorf("invalid deadline %q", s)
}

func submitCommand(o *options, clk clock.PassiveClock) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "submit a resource request and print the admission outcome",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "the requesting owner id", Required: true},
			&cli.StringFlag{Name: "allocation", Usage: "the allocation to draw from", Required: true},
			&cli.StringFlag{Name: "cpu", Usage: "CPUs requested", Value: "0"},
			&cli.StringFlag{Name: "gpu", Usage: "GPUs requested", Value: "0"},
			&cli.StringFlag{Name: "memory", Usage: "memory requested, e.g. 16Gi", Value: "0"},
			&cli.StringFlag{Name: "deadline", Usage: "when the resources are needed by", Required: true},
			&cli.StringFlag{Name: "description", Usage: "free text"},
		},
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			bundle, err := resources.Parse(c.String("cpu"), c.String("gpu"), c.String("memory"))
			if err != nil {
				return err
			}
			deadline, err := parseDeadline(c.String("deadline"), e.classifier.Location())
			if err != nil {
				return err
			}
			now, err := o.currentTime(clk)
			if err != nil {
				return err
			}

			res, err := e.service.Submit(c.Context, admission.SubmitRequest{
				Description:  c.String("description"),
				Bundle:       bundle,
				OwnerID:      c.String("owner"),
				AllocationID: c.String("allocation"),
				Deadline:     deadline,
			}, now)
			if res.Request.ID == "" {
				return err
			}
			view := submitView{
				Request: res.Request,
				Decision: decisionView{
					Verdict: res.Decision.Verdict,
					Rule:    res.Decision.Rule,
					Pool:    res.Decision.Pool.String(),
				},
				Period:      res.Period.String(),
				ForTomorrow: res.ForTomorrow,
			}
			if err != nil {
				view.Error = err.Error()
			}
			if perr := printJSON(c, view); perr != nil {
				return perr
			}
			return err
		}),
	}
}

func approveCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "approve a pending or waiting request, booking its capacity",
		ArgsUsage: "<request-id>",
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			r, err := e.service.Approve(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c, r)
		}),
	}
}

func statusCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "print a request's status",
		ArgsUsage: "<request-id>",
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			id := c.Args().First()
			status, err := e.query.GetStatus(id)
			if err != nil {
				return err
			}
			return printJSON(c, statusView{ID: id, Status: status})
		}),
	}
}

func setStatusCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:      "set-status",
		Usage:     "override a request's status without touching the ledger",
		ArgsUsage: "<request-id> <PENDING_MANUAL|APPROVED|REJECTED|WAITING_FOR_OVERFLOW>",
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			if err := requireArgs(c, 2); err != nil {
				return err
			}
			id := c.Args().Get(0)
			status, err := decision.ParseVerdict(c.Args().Get(1))
			if err != nil {
				return err
			}
			if err := e.query.SetStatus(id, status); err != nil {
				return err
			}
			return printJSON(c, statusView{ID: id, Status: status})
		}),
	}
}

func getCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print a request",
		ArgsUsage: "<request-id>",
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			r, err := e.query.Get(c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c, r)
		}),
	}
}

func pendingCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:      "pending",
		Usage:     "list an allocation's requests awaiting manual review",
		ArgsUsage: "<allocation-id>",
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			pending, err := e.query.PendingForAllocation(c.Args().First())
			if err != nil {
				return err
			}
			if pending == nil {
				pending = []request.Request{}
			}
			return printJSON(c, pending)
		}),
	}
}

func requestsCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:  "requests",
		Usage: "list an owner's request ids in submission order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "the owner id", Required: true},
		},
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			ids, err := e.query.IDsByOwner(c.String("owner"))
			if err != nil {
				return err
			}
			if ids == nil {
				ids = []string{}
			}
			return printJSON(c, ids)
		}),
	}
}

// dayFlag returns --day, or today in the configured timezone.
func dayFlag(c *cli.Context, o *options, clk clock.PassiveClock, classifier *timewindow.Classifier) (timewindow.Day, error) {
	if s := c.String("day"); s != "" {
		return timewindow.ParseDay(s)
	}
	now, err := o.currentTime(clk)
	if err != nil {
		return "", err
	}
	return classifier.Today(now), nil
}

func releaseCommand(o *options, clk clock.PassiveClock) *cli.Command {
	return &cli.Command{
		Name:  "release",
		Usage: "surrender an allocation's unused capacity for a day to the overflow pool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "allocation", Usage: "the allocation releasing capacity", Required: true},
			&cli.StringFlag{Name: "day", Usage: "the day to release, YYYY-MM-DD (default today)"},
		},
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			day, err := dayFlag(c, o, clk, e.classifier)
			if err != nil {
				return err
			}
			allocation := c.String("allocation")
			surrendered, err := e.service.Release(c.Context, day, allocation)
			if err != nil {
				return err
			}
			return printJSON(c, releaseView{Day: day, Allocation: allocation, Surrendered: surrendered})
		}),
	}
}

func ledgerCommand(o *options, clk clock.PassiveClock) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "print ledger entries",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "day", Usage: "only this day, YYYY-MM-DD"},
			&cli.StringFlag{Name: "allocation", Usage: "only this allocation"},
		},
		Action: withEngine(o, func(c *cli.Context, e *engine) error {
			var day timewindow.Day
			if c.IsSet("day") {
				d, err := dayFlag(c, o, clk, e.classifier)
				if err != nil {
					return err
				}
				day = d
			}
			allocation := c.String("allocation")
			views := []entryView{}
			for _, entry := range e.ledger.Entries(day) {
				if allocation != "" && entry.AllocationID != allocation {
					continue
				}
				views = append(views, toEntryView(entry))
			}
			return printJSON(c, views)
		}),
	}
}

// commandContext returns the cli context's context, never nil.
func commandContext(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
