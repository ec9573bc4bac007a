// Package window creates the fixed-size, closed-open analysis windows
// that group scored events for meta-analysis (§4.5).
package window

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
)

// Windower creates windows for a system, advancing a high-water mark so
// each call only considers time that hasn't been windowed yet.
type Windower struct {
	store *store.Store
}

// New builds a Windower over store.
func New(s *store.Store) *Windower {
	return &Windower{store: s}
}

// Advance creates zero or more fixed-length windows for systemID,
// starting just after the latest existing window (or the earliest
// unwindowed event, if no window exists yet), up to "now". Windows with
// no events in their interval are skipped (§4.5 "empty windows are not
// created"). maxEventsPerWindow is not used: every window spans exactly
// size and is created with trigger "time"; a window is never closed
// early on an event count.
func (w *Windower) Advance(ctx context.Context, systemID string, size time.Duration, now time.Time, maxEventsPerWindow int) ([]models.Window, error) {
	latest, err := w.store.Windows.LatestTo(ctx, systemID)
	if err != nil {
		return nil, err
	}

	start := latest
	if start.IsZero() {
		earliest, ok, err := w.store.Events.EarliestEventTime(ctx, systemID, time.Time{})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		start = alignDown(earliest, size)
	}

	var created []models.Window
	for {
		to := start.Add(size)
		if !to.Before(now) {
			break
		}
		has, err := w.store.Events.HasEventsIn(ctx, systemID, start, to)
		if err != nil {
			return nil, err
		}
		if has {
			win := models.Window{
				ID:       uuid.NewString(),
				SystemID: systemID,
				FromTS:   start,
				ToTS:     to,
				Trigger:  "time",
			}
			if err := w.store.Windows.Create(ctx, win); err != nil {
				return nil, err
			}
			created = append(created, win)
		}
		start = to
	}
	return created, nil
}

func alignDown(t time.Time, size time.Duration) time.Time {
	return t.Truncate(size)
}
