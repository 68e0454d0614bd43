package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/leadgen-cli/internal/config"
	"github.com/leadgrid/leadgen-cli/internal/model"
)

func TestAlerterFiresOncePerWindow(t *testing.T) {
	a := NewAlerter(0.8)
	var alerts []Alert
	a.OnAlert(func(al Alert) { alerts = append(alerts, al) })

	start := model.WindowDay.StartOf(tuesdayNoon)
	summary := model.WindowSummary{
		Provider: "hunter", Kind: model.WindowDay, Start: start,
		Requests: 8, RequestLimit: 10,
	}

	a.Observe([]model.WindowSummary{summary})
	require.Len(t, alerts, 1)
	assert.Equal(t, "hunter", alerts[0].Provider)
	assert.InDelta(t, 0.8, alerts[0].Utilization, 1e-9)

	// same window: no duplicate even as usage climbs
	summary.Requests = 9
	a.Observe([]model.WindowSummary{summary})
	assert.Len(t, alerts, 1)

	// rollover re-arms
	summary.Start = start.AddDate(0, 0, 1)
	a.Observe([]model.WindowSummary{summary})
	assert.Len(t, alerts, 2)
}

func TestAlerterBelowThresholdSilent(t *testing.T) {
	a := NewAlerter(0.8)
	var alerts []Alert
	a.OnAlert(func(al Alert) { alerts = append(alerts, al) })

	a.Observe([]model.WindowSummary{{
		Provider: "hunter", Kind: model.WindowDay,
		Cost: 0.5, CostLimit: 1.0,
	}})
	assert.Empty(t, alerts)
}

func TestAlerterUnlimitedWindowSilent(t *testing.T) {
	a := NewAlerter(0.8)
	var alerts []Alert
	a.OnAlert(func(al Alert) { alerts = append(alerts, al) })

	a.Observe([]model.WindowSummary{{
		Provider: "hunter", Kind: model.WindowDay, Requests: 100000,
	}})
	assert.Empty(t, alerts)
}

func TestGovernorRecordTriggersAlert(t *testing.T) {
	cfg := config.BudgetConfig{
		Default: config.ProviderBudget{Day: config.WindowLimits{MaxRequests: 4}},
	}
	a := NewAlerter(0.75)
	var alerts []Alert
	a.OnAlert(func(al Alert) { alerts = append(alerts, al) })

	g := NewGovernor(newBudgetStore(t), cfg,
		WithNow(func() time.Time { return tuesdayNoon }),
		WithAlerter(a),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record(ctx, &model.CostEvent{Provider: "hunter", Endpoint: "/domain-search", Cost: 0.049, Success: true}))
	}

	require.Len(t, alerts, 1)
	assert.Equal(t, model.WindowDay, alerts[0].Kind)
}
