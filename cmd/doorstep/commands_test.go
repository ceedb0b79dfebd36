package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/config"
	"github.com/goliatone/go-doorstep/cron"
)

func TestNewSchedulerHonorsOrchestratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.Parser = config.ParserSeconds
	cfg.Orchestrator.Timezone = "UTC"
	a := &app{cfg: cfg, logger: doorstep.NewFmtLogger(&bytes.Buffer{})}

	scheduler, err := newScheduler(a)
	require.NoError(t, err)
	defer scheduler.Stop(context.Background())

	_, err = scheduler.ScheduleCron(cron.JobConfig{Expression: "*/5 * * * * *"}, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.Timezone = "Mars/Olympus"

	_, err := newScheduler(&app{cfg: cfg, logger: doorstep.NewFmtLogger(&bytes.Buffer{})})
	assert.Error(t, err)
}

func TestDescribeErrorPointsAtCurrentStep(t *testing.T) {
	err := doorstep.NewError(doorstep.ErrStepNotCurrent, "step captureParcelImage is not the current step", nil, nil)
	assert.Contains(t, describeError(err), "complete the current step first")
}
