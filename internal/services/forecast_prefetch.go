package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// ForecastPrefetchJob periodically warms the forecast cache for upcoming shooting days.
// Days already cached are skipped, so a run costs at most one provider call per miss.
type ForecastPrefetchJob struct {
	scheduler gocron.Scheduler
	manager   *ProjectionManager
	cronExpr  string
	horizon   int
	now       func() time.Time
}

// NewForecastPrefetchJob creates a job that runs on cronExpr and looks horizon days ahead
func NewForecastPrefetchJob(manager *ProjectionManager, cronExpr string, horizon int) (*ForecastPrefetchJob, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(manager.Calendar().Location),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if horizon <= 0 {
		horizon = 7
	}
	return &ForecastPrefetchJob{
		scheduler: scheduler,
		manager:   manager,
		cronExpr:  cronExpr,
		horizon:   horizon,
		now:       time.Now,
	}, nil
}

// Start registers the job and starts the scheduler
func (j *ForecastPrefetchJob) Start() error {
	next, err := NextPrefetchRun(j.cronExpr, j.now().In(j.manager.Calendar().Location))
	if err != nil {
		return err
	}

	_, err = j.scheduler.NewJob(
		gocron.CronJob(j.cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			j.Run(ctx)
		}),
		gocron.WithName("forecast-prefetch"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register prefetch job: %w", err)
	}

	j.scheduler.Start()
	log.Printf("⏰ [PREFETCH] Forecast prefetch scheduled (%s, %d days ahead, next run %s)",
		j.cronExpr, j.horizon, next.Format(time.RFC3339))
	return nil
}

// NextPrefetchRun returns the first time after from that cronExpr fires.
// Only the five standard fields are accepted.
func NextPrefetchRun(cronExpr string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid prefetch cron %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop stops the scheduler
func (j *ForecastPrefetchJob) Stop() error {
	return j.scheduler.Shutdown()
}

// Run fetches forecasts for every active-project day in [today, today+horizon) that
// isn't cached yet. It returns how many days were fetched.
func (j *ForecastPrefetchJob) Run(ctx context.Context) int {
	cal := j.manager.Calendar()
	cache := j.manager.Forecasts()

	today := cal.Anchor(j.now())
	until := today.AddDate(0, 0, j.horizon)

	fetched := 0
	seen := make(map[string]bool)
	for _, day := range j.manager.Days() {
		date := cal.Anchor(day.Date)
		if date.Before(today) || !date.Before(until) {
			continue
		}
		key := cal.Key(date).String()
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, ok := cache.Lookup(date); ok {
			continue
		}
		if _, err := cache.Forecast(ctx, date); err != nil {
			log.Printf("⚠️  [PREFETCH] %s: %v", key, err)
			continue
		}
		fetched++
	}

	if fetched > 0 {
		log.Printf("✅ [PREFETCH] Warmed %d forecast(s)", fetched)
	}
	return fetched
}
