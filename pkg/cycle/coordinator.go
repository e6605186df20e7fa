package cycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
	"bingwall/pkg/deliver"
	"bingwall/pkg/fetch"
	"bingwall/pkg/render"
	"bingwall/pkg/state"
	"bingwall/pkg/store"
	"bingwall/pkg/timer"
)

// ftvWidth and ftvHeight are the Frame TV's native 4K geometry.
const (
	ftvWidth  = 3840
	ftvHeight = 2160
)

// Fetcher downloads feed candidates into the store.
type Fetcher interface {
	FetchNew(ctx context.Context) (fetch.Result, error)
}

// DesktopUpdater swaps the desktop wallpaper to the given date's image.
type DesktopUpdater interface {
	UpdateCurrent(date string) error
}

// Deliverer pushes staged variant files to the TV transport.
type Deliverer interface {
	Mode() deliver.Mode
	Deliver(ctx context.Context, files []string) error
}

// Coordinator runs one complete cycle per invocation: rollover, gate,
// attempt bookkeeping, and the three operations. Delivery failures never
// corrupt fetch state and vice versa; each operation fails on its own and
// is retried on its own.
type Coordinator struct {
	cfg       *config.Config
	states    *state.Store
	store     *store.Store
	fetcher   Fetcher
	desktop   DesktopUpdater
	deliverer Deliverer
	log       *logrus.Entry
}

func NewCoordinator(cfg *config.Config, states *state.Store, st *store.Store, fetcher Fetcher, desktop DesktopUpdater, deliverer Deliverer, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		states:    states,
		store:     st,
		fetcher:   fetcher,
		desktop:   desktop,
		deliverer: deliverer,
		log:       log,
	}
}

// RunCycle executes one gated attempt. The state lock must already be
// held. The returned error is reserved for cycles that could not run at
// all (unreadable or unwritable state); operation failures are expressed
// through the Outcome and the persisted failure reasons.
func (c *Coordinator) RunCycle(ctx context.Context, now time.Time) (Outcome, error) {
	log := c.log.WithField("cycle", uuid.NewString()[:8])

	st, err := c.states.Load()
	if err != nil {
		return Failed, fmt.Errorf("failed to load run state: %w", err)
	}

	today := state.DateOf(now)
	retryOn := c.cfg.Retry.Enabled

	if retryOn {
		mutated := Rollover(now, st, c.cfg)
		if mutated {
			log.WithField("date", today).Info("daily retry state reset")
		}

		// A configured-mode change invalidates the previous delivery
		// success; the new mode has not delivered anything yet.
		if mode := string(c.deliverer.Mode()); st.Flag(state.OpFTVDeliver) && st.DeliveryMode != mode {
			log.WithFields(logrus.Fields{"was": st.DeliveryMode, "now": mode}).Info("delivery mode changed, delivery must re-run")
			st.SetFlag(state.OpFTVDeliver, false, "")
			mutated = true
		}

		if !ShouldAttempt(now, st, c.cfg) {
			if mutated {
				if err := c.states.Save(st); err != nil {
					return Failed, fmt.Errorf("failed to persist run state: %w", err)
				}
			}
			log.WithFields(logrus.Fields{
				"attempts":     st.AttemptsToday,
				"last_success": st.LastSuccessDate,
			}).Info("gate closed, skipping cycle")
			return Skipped, nil
		}

		st.AttemptsToday++
		st.LastRunDate = today
		st.LastAttemptTime = now.Format(time.RFC3339)
		if err := c.states.Save(st); err != nil {
			return Failed, fmt.Errorf("failed to persist run state: %w", err)
		}
		log.WithFields(logrus.Fields{
			"attempt": st.AttemptsToday,
			"max":     c.cfg.Retry.MaxAttemptsPerDay,
		}).Info("starting attempt")
	} else {
		// With retry disabled every invocation runs every operation
		// unconditionally and the durable state stays untouched.
		st = state.New()
		st.LastRunDate = today
	}

	c.runOperations(ctx, now, st, log, retryOn)

	outcome := c.outcome(st, retryOn)
	if retryOn {
		if outcome == Succeeded {
			st.MarkSuccess(now)
		}
		if err := c.states.Save(st); err != nil {
			return Failed, fmt.Errorf("failed to persist run state: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"outcome": string(outcome),
		"flags":   st.OperationFlags,
	}).Info("cycle complete")
	return outcome, nil
}

// runOperations re-attempts every enabled operation whose flag is still
// false. Flags already true stand for work completed earlier today.
func (c *Coordinator) runOperations(ctx context.Context, now time.Time, st *state.RunState, log *logrus.Entry, persist bool) {
	today := state.DateOf(now)

	if st.Flag(state.OpFetch) {
		log.Info("fetch already succeeded today, skipping download")
	} else {
		c.runFetch(ctx, st, log, persist)
	}

	if c.cfg.DesktopImg.Enabled {
		if st.Flag(state.OpDesktopSet) {
			log.Info("desktop already updated today")
		} else {
			c.runDesktop(today, st, log, persist)
		}
	}

	if c.cfg.FTV.Enabled {
		if st.Flag(state.OpFTVDeliver) {
			log.Info("TV delivery already succeeded today")
		} else {
			c.runDelivery(ctx, now, st, log, persist)
		}
	}
}

func (c *Coordinator) runFetch(ctx context.Context, st *state.RunState, log *logrus.Entry, persist bool) {
	t := timer.Start("fetch", log)
	result, err := c.fetcher.FetchNew(ctx)
	t.Stop()

	switch {
	case err != nil:
		c.mark(st, persist, state.OpFetch, false, err.Error(), log)
		return
	case result.Failed > 0:
		reason := fmt.Sprintf("%d of %d downloads failed", result.Failed, result.Failed+len(result.Downloaded))
		c.mark(st, persist, state.OpFetch, false, reason, log)
	default:
		c.mark(st, persist, state.OpFetch, true, "", log)
	}

	if len(result.Downloaded) > 0 && !c.cfg.RetainImages {
		if evicted, err := c.store.EvictExcess(c.cfg.NumberOfImagesToKeep); err != nil {
			log.WithError(err).Warn("failed to trim image collection")
		} else if len(evicted) > 0 {
			log.WithField("evicted", len(evicted)).Info("trimmed image collection")
		}
	}
}

func (c *Coordinator) runDesktop(today string, st *state.RunState, log *logrus.Entry, persist bool) {
	t := timer.Start("desktop_set", log)
	err := c.desktop.UpdateCurrent(today)
	t.Stop()

	if err != nil {
		c.mark(st, persist, state.OpDesktopSet, false, err.Error(), log)
		return
	}
	c.mark(st, persist, state.OpDesktopSet, true, "", log)
}

func (c *Coordinator) runDelivery(ctx context.Context, now time.Time, st *state.RunState, log *logrus.Entry, persist bool) {
	t := timer.Start("ftv_deliver", log)
	defer t.Stop()

	staged, err := c.stageToday(now)
	if err != nil {
		c.mark(st, persist, state.OpFTVDeliver, false, err.Error(), log)
		return
	}
	if len(staged) == 0 {
		c.mark(st, persist, state.OpFTVDeliver, false, "no image stored for today", log)
		return
	}

	if err := c.deliverer.Deliver(ctx, staged); err != nil {
		c.mark(st, persist, state.OpFTVDeliver, false, err.Error(), log)
		return
	}
	st.DeliveryMode = string(c.deliverer.Mode())
	c.mark(st, persist, state.OpFTVDeliver, true, "", log)
}

// stageToday renders TV variants for every stored image sharing today's
// month and day, the set the mm/dd tree groups for the TV rotation.
func (c *Coordinator) stageToday(now time.Time) ([]string, error) {
	records, err := c.store.List()
	if err != nil {
		return nil, err
	}

	monthDay := now.Format("01-02")
	var todays []store.ImageRecord
	for _, rec := range records {
		if strings.HasSuffix(rec.Date, monthDay) {
			todays = append(todays, rec)
		}
	}
	if len(todays) == 0 {
		return nil, nil
	}

	spec := render.Spec{
		Width:   ftvWidth,
		Height:  ftvHeight,
		Quality: c.cfg.FTV.JpgQuality,
		Overlay: true,
	}
	return c.store.StageFTV(todays, spec)
}

// mark records one operation result and persists the state right away, so
// a crash between operations never loses a completed step.
func (c *Coordinator) mark(st *state.RunState, persist bool, op string, ok bool, reason string, log *logrus.Entry) {
	st.SetFlag(op, ok, reason)
	entry := log.WithField("operation", op)
	if ok {
		entry.Info("operation succeeded")
	} else {
		entry.WithField("reason", reason).Warn("operation failed")
	}
	if persist {
		if err := c.states.Save(st); err != nil {
			entry.WithError(err).Error("failed to persist run state")
		}
	}
}

func (c *Coordinator) outcome(st *state.RunState, retryOn bool) Outcome {
	if PolicySatisfied(st, c.cfg) {
		return Succeeded
	}
	if !st.Flag(state.OpFetch) {
		if !retryOn || st.AttemptsToday >= c.cfg.Retry.MaxAttemptsPerDay {
			return Failed
		}
	}
	return PartialFailure
}
