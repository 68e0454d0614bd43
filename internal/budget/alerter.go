package budget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// Alert describes one threshold breach.
type Alert struct {
	Provider    string           `json:"provider"`
	Kind        model.WindowKind `json:"kind"`
	WindowStart time.Time        `json:"window_start"`
	Utilization float64          `json:"utilization"`
	Message     string           `json:"message"`
}

// Alerter warns when window utilization crosses a threshold. Each
// provider/window/period triple fires at most once; a rollover re-arms it.
type Alerter struct {
	mu        sync.Mutex
	threshold float64
	fired     map[string]time.Time
	notify    func(Alert)
}

// NewAlerter creates an Alerter that logs breaches through the global
// zap logger. threshold is a fraction of the limit, e.g. 0.8.
func NewAlerter(threshold float64) *Alerter {
	return &Alerter{
		threshold: threshold,
		fired:     make(map[string]time.Time),
	}
}

// OnAlert replaces the default log notification, for tests.
func (a *Alerter) OnAlert(fn func(Alert)) {
	a.notify = fn
}

// Observe evaluates window summaries and fires alerts for any limited
// dimension at or above the threshold.
func (a *Alerter) Observe(summaries []model.WindowSummary) {
	if a == nil || a.threshold <= 0 {
		return
	}
	for _, s := range summaries {
		util := utilization(s)
		if util < a.threshold {
			continue
		}
		key := s.Provider + "/" + string(s.Kind)

		a.mu.Lock()
		if start, ok := a.fired[key]; ok && start.Equal(s.Start) {
			a.mu.Unlock()
			continue
		}
		a.fired[key] = s.Start
		a.mu.Unlock()

		a.emit(Alert{
			Provider:    s.Provider,
			Kind:        s.Kind,
			WindowStart: s.Start,
			Utilization: util,
			Message: fmt.Sprintf("%s %s budget at %.0f%% ($%.4f of $%.4f, %d of %d requests)",
				s.Provider, s.Kind, util*100, s.Cost, s.CostLimit, s.Requests, s.RequestLimit),
		})
	}
}

func (a *Alerter) emit(alert Alert) {
	if a.notify != nil {
		a.notify(alert)
		return
	}
	zap.L().Warn("budget threshold crossed",
		zap.String("provider", alert.Provider),
		zap.String("window", string(alert.Kind)),
		zap.Time("window_start", alert.WindowStart),
		zap.Float64("utilization", alert.Utilization),
		zap.String("message", alert.Message),
	)
}

// utilization is the worst of the cost and request fractions for the
// window, ignoring unlimited dimensions.
func utilization(s model.WindowSummary) float64 {
	var u float64
	if s.CostLimit > 0 {
		u = s.Cost / s.CostLimit
	}
	if s.RequestLimit > 0 {
		if r := float64(s.Requests) / float64(s.RequestLimit); r > u {
			u = r
		}
	}
	return u
}
