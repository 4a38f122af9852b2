// Package timeline turns raw contract status events into a shipment history.
package timeline

import (
	"sort"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

type eventKey struct {
	status domain.ShipmentStatus
	at     int64
}

// Reconcile deduplicates events by (status, timestamp), keeping the first
// occurrence, and orders them by timestamp. Events sharing a timestamp keep
// their input order. The current status is that of the last event.
//
// Reconcile is pure: the input slice is not modified and
// Reconcile(Reconcile(e).Events) equals Reconcile(e).
func Reconcile(events []domain.TimelineEvent) domain.Timeline {
	if len(events) == 0 {
		return domain.Timeline{Events: []domain.TimelineEvent{}, Status: domain.StatusUnknown}
	}

	seen := make(map[eventKey]struct{}, len(events))
	out := make([]domain.TimelineEvent, 0, len(events))
	for _, ev := range events {
		k := eventKey{status: ev.Status, at: ev.Timestamp.UnixNano()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if ev.Location != nil {
			loc := *ev.Location
			ev.Location = &loc
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return domain.Timeline{
		Events:    out,
		Status:    out[len(out)-1].Status,
		HasStatus: true,
	}
}

// Apply returns s with its timeline replaced by the reconciled events.
// Status follows the last event; location and last update follow it when
// the event carries them and is not older than what s already has.
func Apply(s domain.Shipment, events []domain.TimelineEvent) domain.Shipment {
	tl := Reconcile(events)
	out := s.Clone()
	out.Timeline = tl.Events
	if !tl.HasStatus {
		return out
	}

	last := tl.Events[len(tl.Events)-1]
	out.Status = tl.Status
	if last.Timestamp.Before(s.LastUpdate) {
		return out
	}
	out.LastUpdate = last.Timestamp
	if last.Location != nil {
		loc := *last.Location
		out.Location = &loc
	}
	return out
}
