package models

import (
	"slices"
	"time"
)

type Reminder struct {
	ID                 string    `json:"id" validate:"required"`
	Text               string    `json:"text" validate:"required"`
	Due                time.Time `json:"datetime" validate:"required"`
	Completed          bool      `json:"completed"`
	TriggeredIntervals []string  `json:"triggeredIntervals"`
}

func (r Reminder) Key() string { return r.ID }

// HasTriggered reports whether the threshold id has already fired.
func (r Reminder) HasTriggered(thresholdID string) bool {
	return slices.Contains(r.TriggeredIntervals, thresholdID)
}

// Threshold is a fixed time-before-due boundary.
type Threshold struct {
	ID        string
	Label     string
	BeforeDue time.Duration
}

// Thresholds is ordered from the largest BeforeDue to the smallest. Scans
// walk it in this order.
var Thresholds = []Threshold{
	{ID: "1w", Label: "1 Week Warning", BeforeDue: 7 * 24 * time.Hour},
	{ID: "3d", Label: "3 Days Warning", BeforeDue: 3 * 24 * time.Hour},
	{ID: "1d", Label: "1 Day Warning", BeforeDue: 24 * time.Hour},
	{ID: "8h", Label: "8 Hours Warning", BeforeDue: 8 * time.Hour},
	{ID: "4h", Label: "4 Hours Warning", BeforeDue: 4 * time.Hour},
	{ID: "2h", Label: "2 Hours Warning", BeforeDue: 2 * time.Hour},
	{ID: "1h", Label: "1 Hour Warning", BeforeDue: time.Hour},
}
