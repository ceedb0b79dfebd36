package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/cron"
	"github.com/goliatone/go-doorstep/render"
	"github.com/goliatone/go-doorstep/trip"
)

type statusCmd struct{}

func (statusCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		view, err := a.store.View()
		if err != nil {
			return err
		}
		printStatus(a.out, view, a.orch.Phase())
		return nil
	})
}

func printStatus(out io.Writer, view doorstep.View, phase trip.Phase) {
	inst := view.Instance
	fmt.Fprintf(out, "phase:     %s\n", phase)
	if id := inst.DeliveryID(); id != "" {
		fmt.Fprintf(out, "delivery:  %s (generation %d)\n", id, inst.Generation)
		fmt.Fprintf(out, "scenario:  %s\n", inst.Scenario)
	}
	if len(view.Steps) > 0 {
		fmt.Fprintln(out, "steps:")
		for i, step := range view.Steps {
			marker := " "
			switch {
			case inst.Ledger.IsDone(step):
				marker = "x"
			case view.HasStep && i == view.Cursor:
				marker = ">"
			}
			fmt.Fprintf(out, "  [%s] %s\n", marker, step)
		}
	}
	if inst.DeliveryID() != "" {
		gate := "closed"
		if view.GateOpen {
			gate = "open"
		}
		fmt.Fprintf(out, "completion gate: %s\n", gate)
		fmt.Fprintf(out, "messages sent: %d, calls made: %d\n", inst.Ledger.MessagesSent, inst.Ledger.CallsMade)
	}
	if inst.SuccessFlash {
		fmt.Fprintln(out, "delivery closed out successfully")
	}
	fmt.Fprintf(out, "delivered: %s\n", joinIDs(inst.Outcomes.Delivered))
	fmt.Fprintf(out, "returned:  %s\n", joinIDs(inst.Outcomes.Returned))
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}

type nextCmd struct{}

func (nextCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		phase, err := a.orch.Tick(rc.ctx)
		if err != nil {
			return err
		}
		inst := a.store.Instance()
		fmt.Fprintf(a.out, "%s %s (%s)\n", phase, inst.DeliveryID(), inst.Scenario)
		return nil
	})
}

type renderCmd struct{}

func (renderCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		req, err := a.session.RenderCurrent(rc.ctx)
		if err != nil {
			return err
		}
		if req == nil {
			fmt.Fprintln(a.out, "nothing to render")
			return nil
		}
		if req.Completed() {
			fmt.Fprintf(a.out, "%s completed\n", req.Step)
		}
		return nil
	})
}

type completeCmd struct {
	Step     string `arg:"" help:"Step to mark as done."`
	Messages int    `help:"Messages sent while performing the step." default:"0"`
	Calls    int    `help:"Calls made while performing the step." default:"0"`
}

func (c *completeCmd) Run(rc *runContext) error {
	step, err := doorstep.ParseStep(c.Step)
	if err != nil {
		return err
	}
	return rc.withApp(func(a *app) error {
		view, err := a.store.View()
		if err != nil {
			return err
		}

		var tr doorstep.Transition
		if view.HasStep && view.Current == step {
			tr, err = render.NewRequest(view, a.store).Done(rc.ctx, render.Completion{
				MessagesSent: c.Messages,
				CallsMade:    c.Calls,
			})
		} else {
			tr, err = a.store.CompleteStep(rc.ctx, step)
		}
		if err != nil {
			return err
		}
		if !tr.Changed {
			fmt.Fprintf(a.out, "%s already done\n", step)
			return nil
		}
		fmt.Fprintf(a.out, "%s done\n", step)
		return nil
	})
}

type scenarioCmd struct {
	Name string `arg:"" help:"Scenario to assign."`
}

func (c *scenarioCmd) Run(rc *runContext) error {
	scenario, err := doorstep.ParseScenario(c.Name)
	if err != nil {
		return err
	}
	return rc.withApp(func(a *app) error {
		id := a.store.Instance().DeliveryID()
		if id == "" {
			return doorstep.NewError(doorstep.ErrNoActiveDelivery, "", nil, nil)
		}
		if _, err := a.store.SetScenario(rc.ctx, id, scenario); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s now follows %s\n", id, scenario)
		return nil
	})
}

type stateCmd struct {
	Set map[string]string `help:"Fact to record, e.g. --set customerResponded=true." short:"s"`
}

func (c *stateCmd) Run(rc *runContext) error {
	patch, err := parsePatch(c.Set)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("nothing to record, pass at least one --set key=value")
	}
	return rc.withApp(func(a *app) error {
		if _, err := a.store.UpdateDeliveryState(rc.ctx, patch); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "delivery state updated")
		return nil
	})
}

type deliverCmd struct{}

func (deliverCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		outcome, err := a.orch.HandleOrderComplete(rc.ctx)
		if err != nil {
			return err
		}
		printOutcome(a.out, outcome)
		return nil
	})
}

type returnCmd struct {
	Reason string `help:"Why the parcel goes back. Defaults to the recorded return reason."`
}

func (c *returnCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		outcome, err := a.orch.HandleOrderReturn(rc.ctx, c.Reason)
		if err != nil {
			return err
		}
		printOutcome(a.out, outcome)
		return nil
	})
}

func printOutcome(out io.Writer, o trip.Outcome) {
	if o.Duplicate {
		fmt.Fprintf(out, "%s was already %s\n", o.DeliveryID, o.Kind)
		return
	}
	fmt.Fprintf(out, "%s %s\n", o.DeliveryID, o.Kind)
}

type resetCmd struct{}

func (resetCmd) Run(rc *runContext) error {
	return rc.withApp(func(a *app) error {
		if _, err := a.store.Reset(rc.ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "delivery reset")
		return nil
	})
}

type runCmd struct {
	Tick string        `help:"Override the configured tick expression."`
	For  time.Duration `help:"Stop after this long, e.g. 8h for a shift. Zero runs until interrupted."`
}

// newScheduler builds the tick scheduler from the orchestrator and logging
// config.
func newScheduler(a *app) (*cron.Scheduler, error) {
	loc, err := a.cfg.Orchestrator.Location()
	if err != nil {
		return nil, err
	}
	parser, err := cron.ParseParser(a.cfg.Orchestrator.Parser)
	if err != nil {
		return nil, err
	}
	return cron.NewScheduler(
		cron.WithLogger(a.logger),
		cron.WithLogLevel(cron.LogLevelFor(a.cfg.Logging.Level)),
		cron.WithLocation(loc),
		cron.WithParser(parser),
	), nil
}

func (c *runCmd) Run(rc *runContext) error {
	a, err := rc.open()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(rc.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	views := make(chan struct{}, 1)
	unsubscribe := a.store.Subscribe(func(doorstep.View) {
		select {
		case views <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	phase, err := a.orch.Start(ctx)
	if err != nil && !doorstep.IsTransient(err) {
		a.Close(context.Background())
		return err
	}
	if err != nil {
		a.logger.Warn("start incomplete, the next tick retries: %v", err)
	}
	a.logger.Info("trip started in phase %s", phase)

	expr := a.cfg.Orchestrator.Tick
	if c.Tick != "" {
		expr = c.Tick
	}
	scheduler, err := newScheduler(a)
	if err != nil {
		a.Close(context.Background())
		return err
	}
	if _, err := scheduler.ScheduleTicks(cron.JobConfig{Expression: expr}, a.orch); err != nil {
		a.Close(context.Background())
		return err
	}
	if c.For > 0 {
		_, err := scheduler.ScheduleAfter(c.For, cron.JobConfig{}, func(context.Context) error {
			a.logger.Info("run window of %s elapsed", c.For)
			stop()
			return nil
		})
		if err != nil {
			a.Close(context.Background())
			return err
		}
	}
	if err := scheduler.Start(ctx); err != nil {
		a.Close(context.Background())
		return err
	}

	var server *http.Server
	if a.prom != nil && a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.prom.Handler())
		server = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped: %v", err)
			}
		}()
	}

	// Renders run off the listener so a renderer completing its step does
	// not re-enter the store from inside a notification.
	select {
	case views <- struct{}{}:
	default:
	}
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-views:
			if _, err := a.session.RenderCurrent(ctx); err != nil {
				a.logger.Error("render failed: %v", err)
			}
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := scheduler.Stop(shutdown); err != nil {
		errs = append(errs, err)
	}
	if server != nil {
		if err := server.Shutdown(shutdown); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(shutdown); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
