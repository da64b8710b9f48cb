package jobs

import (
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Timer fires the periodic trigger: while the ledger has entries it retries
// them, otherwise it starts a fresh full scan. Ticks that land during a
// running bulk job hit the same single-flight gate as manual triggers and
// are skipped.
type Timer struct {
	cron   *cron.Cron
	orch   *Orchestrator
	logger zerolog.Logger
}

func NewTimer(orch *Orchestrator, logger zerolog.Logger) *Timer {
	return &Timer{
		cron:   cron.New(),
		orch:   orch,
		logger: logger,
	}
}

// Schedule registers the tick on the given cron expression and starts the
// schedule. An empty expression disables the timer.
func (t *Timer) Schedule(expr string) error {
	if expr == "" {
		t.logger.Info().Msg("timer trigger disabled")
		return nil
	}
	if _, err := t.cron.AddFunc(expr, t.tick); err != nil {
		return err
	}
	t.cron.Start()
	t.logger.Info().Str("cron", expr).Msg("timer trigger scheduled")
	return nil
}

// Stop halts the schedule. Already-dispatched runs drain on their own.
func (t *Timer) Stop() {
	<-t.cron.Stop().Done()
}

func (t *Timer) tick() {
	var err error
	if t.orch.Status().HasFailures() {
		err = t.orch.RetryFailed()
	} else {
		err = t.orch.StartFullScan(0)
	}
	if errors.Is(err, ErrBusy) {
		t.logger.Debug().Msg("timer tick skipped: job still running")
		return
	}
	if err != nil {
		t.logger.Error().Err(err).Msg("timer tick failed")
	}
}
