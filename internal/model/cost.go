package model

import "time"

// CostEvent is one append-only ledger row for a billable provider call.
// Failed calls are still recorded (with whatever the provider charged,
// usually zero) so the ledger reconstructs actual spend.
type CostEvent struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`
	Endpoint     string    `json:"endpoint"`
	Cost         float64   `json:"cost"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// WindowKind is the rolling period a budget limit applies to.
type WindowKind string

const (
	WindowDay   WindowKind = "day"
	WindowWeek  WindowKind = "week"
	WindowMonth WindowKind = "month"
)

// WindowKinds lists all tracked kinds in checking order.
var WindowKinds = []WindowKind{WindowDay, WindowWeek, WindowMonth}

// StartOf returns the wall-clock-aligned start of the window containing t.
// Weeks start on Monday.
func (k WindowKind) StartOf(t time.Time) time.Time {
	t = t.UTC()
	switch k {
	case WindowDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case WindowWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case WindowMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// BudgetWindow tracks cumulative usage for one provider within one window.
// Counters mirror the CostEvent ledger: Cost always equals the sum of event
// costs recorded since Start.
type BudgetWindow struct {
	Kind     WindowKind `json:"kind"`
	Start    time.Time  `json:"start"`
	Requests int        `json:"requests"`
	Cost     float64    `json:"cost"`
}

// WindowSummary is the exported view of a window against its limits.
type WindowSummary struct {
	Provider      string     `json:"provider"`
	Kind          WindowKind `json:"kind"`
	Start         time.Time  `json:"start"`
	Requests      int        `json:"requests"`
	Cost          float64    `json:"cost"`
	RequestLimit  int        `json:"request_limit"`
	CostLimit     float64    `json:"cost_limit"`
	CostRemaining float64    `json:"cost_remaining"`
}

// ProviderRollup aggregates ledger rows per provider for cost reporting.
type ProviderRollup struct {
	Provider  string  `json:"provider"`
	CallCount int     `json:"call_count"`
	TotalCost float64 `json:"total_cost"`
	AvgCost   float64 `json:"avg_cost"`
}
