package services

import (
	"context"
	"testing"
	"time"
)

func TestPrefetchWarmsUpcomingMisses(t *testing.T) {
	provider := &fakeProvider{forecasts: weekOfForecasts()}
	m := forecastManager(t, provider, forecastProject())

	job, err := NewForecastPrefetchJob(m, "0 6 * * *", 2)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	defer job.Stop()
	job.now = func() time.Time { return date(2025, 12, 12, 8) }

	// Days 12 and 13 are inside the horizon; 14 is not
	if n := job.Run(context.Background()); n != 2 {
		t.Errorf("Expected 2 days fetched, got %d", n)
	}
	if _, ok := m.Forecasts().Lookup(date(2025, 12, 14, 12)); ok {
		t.Error("Expected day outside the horizon to stay uncached")
	}

	calls := provider.Calls()
	if n := job.Run(context.Background()); n != 0 {
		t.Errorf("Expected cached days to be skipped, got %d fetched", n)
	}
	if provider.Calls() != calls {
		t.Errorf("Expected no new provider calls, got %d", provider.Calls()-calls)
	}
}

func TestPrefetchSkipsPastDays(t *testing.T) {
	provider := &fakeProvider{forecasts: weekOfForecasts()}
	m := forecastManager(t, provider, forecastProject())

	job, err := NewForecastPrefetchJob(m, "0 6 * * *", 7)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	defer job.Stop()
	job.now = func() time.Time { return date(2025, 12, 20, 8) }

	if n := job.Run(context.Background()); n != 0 {
		t.Errorf("Expected nothing fetched for past days, got %d", n)
	}
	if provider.Calls() != 0 {
		t.Errorf("Expected no provider calls, got %d", provider.Calls())
	}
}

func TestPrefetchStartRejectsBadCron(t *testing.T) {
	m := forecastManager(t, &fakeProvider{}, forecastProject())

	job, err := NewForecastPrefetchJob(m, "not a cron", 7)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	defer job.Stop()

	if err := job.Start(); err == nil {
		t.Error("Expected invalid cron expression to fail")
	}
}

func TestNextPrefetchRun(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		from     time.Time
		expected time.Time
		wantErr  bool
	}{
		{"later today", "0 5 * * *", date(2025, 12, 12, 3), date(2025, 12, 12, 5), false},
		{"tomorrow", "0 5 * * *", date(2025, 12, 12, 8), date(2025, 12, 13, 5), false},
		{"seconds field rejected", "0 0 5 * * *", date(2025, 12, 12, 8), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextPrefetchRun(tt.expr, tt.from)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !next.Equal(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, next)
			}
		})
	}
}
