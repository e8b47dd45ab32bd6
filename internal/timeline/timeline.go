// Package timeline tracks shipment-leg delivery progress for the journey
// strip on the dashboard.
package timeline

import (
	"fmt"
	"math"
	"strings"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusInTransit Status = "InTransit"
	StatusDelivered Status = "Delivered"
)

type Entry struct {
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
}

// Label renders the entry for display: "Delivered" for delivered legs,
// otherwise the rounded percentage.
func (e Entry) Label() string {
	if strings.EqualFold(string(e.Status), string(StatusDelivered)) {
		return string(StatusDelivered)
	}
	return fmt.Sprintf("%d%%", int(math.Round(e.Percentage)))
}

// View holds the latest leg→progress mapping, replaced wholesale per frame.
// Owned by the dispatcher; callers serialize access.
type View struct {
	held map[string]Entry
}

func New() *View {
	return &View{held: map[string]Entry{}}
}

func (v *View) Apply(progress map[string]Entry) {
	if progress == nil {
		progress = map[string]Entry{}
	}
	v.held = progress
}

// View returns an entry per requested leg id, synthesizing {0, Pending} for
// legs the held map has no progress for.
func (v *View) View(legIDs []string) map[string]Entry {
	out := make(map[string]Entry, len(legIDs))
	for _, id := range legIDs {
		if e, ok := v.held[id]; ok {
			out[id] = e
			continue
		}
		out[id] = Entry{Percentage: 0, Status: StatusPending}
	}
	return out
}
