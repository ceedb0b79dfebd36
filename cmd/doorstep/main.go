// Command doorstep drives the delivery scenario engine from a terminal.
// Every invocation rehydrates the active delivery from storage, so a
// delivery can be walked across separate runs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/config"
)

type globals struct {
	Config   string `help:"Path to the YAML config file." short:"c" type:"path" env:"DOORSTEP_CONFIG"`
	LogLevel string `help:"Override the configured log level." name:"log-level"`
}

type cli struct {
	globals

	Status   statusCmd   `cmd:"" help:"Show the active delivery and its steps."`
	Next     nextCmd     `cmd:"" help:"Advance the trip: fetch the next delivery when none is in progress."`
	Render   renderCmd   `cmd:"" help:"Render the current step."`
	Complete completeCmd `cmd:"" help:"Mark a step as done."`
	Scenario scenarioCmd `cmd:"" help:"Reassign the scenario of the active delivery."`
	State    stateCmd    `cmd:"" help:"Record delivery facts."`
	Deliver  deliverCmd  `cmd:"" help:"Close the active delivery out as delivered."`
	Return   returnCmd   `cmd:"" help:"Close the active delivery out as returned to the warehouse."`
	Reset    resetCmd    `cmd:"" help:"Clear scenario, facts and completed steps of the active delivery."`
	Run      runCmd      `cmd:"" help:"Tick the trip on a schedule until interrupted."`
}

// runContext is bound into every command's Run method.
type runContext struct {
	ctx    context.Context
	out    io.Writer
	logOut io.Writer
	global *globals
}

func (r *runContext) open() (*app, error) {
	cfg, err := config.Load(r.global.Config)
	if err != nil {
		return nil, err
	}
	if r.global.LogLevel != "" {
		cfg.Logging.Level = r.global.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return newApp(cfg, r.out, r.logOut)
}

// withApp opens the app, rehydrates the store, runs fn and drains
// background work before returning.
func (r *runContext) withApp(fn func(a *app) error) error {
	a, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			a.logger.Warn("shutdown incomplete: %v", err)
		}
	}()
	if err := a.store.Open(r.ctx); err != nil {
		return err
	}
	return fn(a)
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("doorstep"),
		kong.Description("Walk a driver through the compliance steps of each delivery."),
		kong.UsageOnError(),
	)

	rc := &runContext{
		ctx:    context.Background(),
		out:    os.Stdout,
		logOut: os.Stderr,
		global: &c.globals,
	}
	if err := kctx.Run(rc); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

// describeError adds operator guidance for the error classes the engine
// distinguishes.
func describeError(err error) string {
	switch {
	case doorstep.IsConfigurationDefect(err):
		return fmt.Sprintf("configuration defect: %v\nfix the scenario table or register a renderer, then retry", err)
	case doorstep.HasCode(err, doorstep.ErrCodeStepNotCurrent):
		return fmt.Sprintf("%v\ncomplete the current step first, see: doorstep status", err)
	case doorstep.HasCode(err, doorstep.ErrCodeFetchFailed):
		return fmt.Sprintf("could not fetch the next delivery: %v\nretry with: doorstep next", err)
	case doorstep.IsTransient(err):
		return fmt.Sprintf("temporary failure: %v\nretry the command", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
