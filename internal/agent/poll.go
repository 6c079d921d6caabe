package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/influxdb"
)

// maxConcurrentReads bounds parallel brightness reads in one tick.
const maxConcurrentReads = 4

// identityTimeout bounds identity store calls from the poll loop.
const identityTimeout = 5 * time.Second

// pollLoop ticks every poll interval and on refresh requests until ctx is
// cancelled. It runs whether or not a broker session is live.
func (a *Agent) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Agent.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		case <-a.refresh:
			a.logger.Debug("refresh requested")
			a.tick(ctx)
			ticker.Reset(a.cfg.Agent.PollInterval)
		}
	}
}

// tick enumerates, correlates and publishes the resulting changes.
// Enumeration failures skip the tick and keep the registry as it was.
func (a *Agent) tick(ctx context.Context) {
	start := a.now()

	outputs, err := a.outputs.ListOutputs(ctx)
	if err != nil {
		a.skip(start, "listing outputs", err)
		return
	}
	buses, err := a.buses.ListBuses(ctx)
	if err != nil {
		a.skip(start, "listing buses", err)
		return
	}

	res := display.Correlate(outputs, buses, a.currentOverrides(), a.registry.Snapshot())
	res.Taken = start
	a.logWarnings(res.Warnings)

	changes := a.registry.ApplyCorrelation(res)
	changes = append(changes, a.refreshState(ctx, start)...)
	changes = mergeChanges(changes)

	a.publishChanges(changes)
	a.persist(ctx, changes)
	a.writeTelemetry(start)

	a.recorder.PollCompleted(PollOK, a.now().Sub(start))
	a.recorder.Displays(a.registry.Snapshot())
}

func (a *Agent) skip(start time.Time, what string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.logger.Warn("poll skipped", "step", what, "error", err)
	a.recorder.PollCompleted(PollSkipped, a.now().Sub(start))
}

// refreshState reads brightness for every present brightness-capable
// display and clears the unresponsive flag on power-only displays that
// were just enumerated. Displays busy with a command are skipped.
func (a *Agent) refreshState(ctx context.Context, at time.Time) []display.Change {
	var (
		mu      sync.Mutex
		changes []display.Change
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	for _, d := range a.registry.Present() {
		if !d.HasBrightness() {
			if d.Unresponsive {
				responsive := false
				c, err := a.registry.UpdateState(d.UniqueID, display.StateUpdate{Unresponsive: &responsive, At: at})
				if err == nil && c.Fields != 0 {
					mu.Lock()
					changes = append(changes, c)
					mu.Unlock()
				}
			}
			continue
		}

		g.Go(func() error {
			c, err := a.commander.TryReadBrightness(gctx, d)
			switch {
			case errors.Is(err, control.ErrBusy):
				a.logger.Debug("brightness read skipped, display busy", "unique_id", d.UniqueID)
			case err != nil:
				a.logger.Debug("brightness read failed", "unique_id", d.UniqueID, "error", err)
			}
			if c.Fields != 0 {
				mu.Lock()
				changes = append(changes, c)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return changes
}

// mergeChanges folds changes to the same display into one, keeping the
// latest record.
func mergeChanges(changes []display.Change) []display.Change {
	if len(changes) < 2 {
		return changes
	}

	byID := make(map[string]display.Change, len(changes))
	for _, c := range changes {
		prev, ok := byID[c.UniqueID]
		if ok {
			c.Fields |= prev.Fields
			c.New = c.New || prev.New
		}
		byID[c.UniqueID] = c
	}

	out := make([]display.Change, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// logWarnings logs correlation warnings the first time they appear.
func (a *Agent) logWarnings(warnings []string) {
	current := make(map[string]bool, len(warnings))
	for _, w := range warnings {
		current[w] = true
		if !a.lastWarnings[w] {
			a.logger.Warn("correlation warning", "warning", w)
		}
	}
	a.lastWarnings = current
}

// loadIdentities seeds the registry from the identity store so unique ids
// survive restarts.
func (a *Agent) loadIdentities(ctx context.Context) {
	if a.identities == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()

	displays, err := a.identities.List(ctx)
	if err != nil {
		a.logger.Warn("loading display identities", "error", err)
		return
	}
	n := a.registry.Restore(displays)
	a.logger.Info("restored display identities", "count", n)
}

// persist saves identities when a display was added or re-bound.
func (a *Agent) persist(ctx context.Context, changes []display.Change) {
	if a.identities == nil {
		return
	}

	dirty := false
	for _, c := range changes {
		if c.New || c.Has(display.FieldIdentity) {
			dirty = true
			break
		}
	}
	if !dirty {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()
	if err := a.identities.Upsert(ctx, a.registry.Present()); err != nil {
		a.logger.Warn("saving display identities", "error", err)
	}
}

// writeTelemetry samples every present display.
func (a *Agent) writeTelemetry(at time.Time) {
	if a.telemetry == nil {
		return
	}
	for _, d := range a.registry.Present() {
		a.telemetry.WriteDisplayState(influxdb.DisplayState{
			UniqueID:   d.UniqueID,
			OutputID:   d.OutputID,
			Power:      string(d.Power),
			Brightness: d.Brightness,
			Available:  d.Available(),
			Resolution: d.Resolution,
			Time:       at,
		})
	}
}
