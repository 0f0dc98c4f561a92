package preflight

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"time"

	"callsheet/internal/config"
	"callsheet/internal/database"
	"callsheet/internal/services"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	cfg      *config.Config
	backends map[string]database.Pinger
	timeout  time.Duration
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config, backends map[string]database.Pinger) *Checker {
	return &Checker{
		cfg:      cfg,
		backends: backends,
		timeout:  5 * time.Second,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkStore(),
		c.checkTimezone(),
		c.checkJWTSecret(),
		c.checkForecastProvider(),
		c.checkPrefetchSchedule(),
	}
	results = append(results, c.checkBackends()...)

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkStore() CheckResult {
	if c.cfg.MongoURI != "" {
		return CheckResult{Name: "Project Store", Status: "pass", Message: "MongoDB configured"}
	}
	if c.cfg.IsProduction() {
		return CheckResult{
			Name:    "Project Store",
			Status:  "fail",
			Message: "MONGODB_URI is required in production",
		}
	}
	return CheckResult{
		Name:    "Project Store",
		Status:  "warning",
		Message: "Using the in-memory store, data is lost on restart",
	}
}

func (c *Checker) checkTimezone() CheckResult {
	loc, err := c.cfg.Location()
	if err != nil {
		return CheckResult{Name: "Timezone", Status: "fail", Message: "Cannot load time zone", Error: err}
	}
	return CheckResult{
		Name:    "Timezone",
		Status:  "pass",
		Message: fmt.Sprintf("Days resolve in %s, anchored at %02d:00", loc, c.cfg.DayAnchorHour),
	}
}

func (c *Checker) checkJWTSecret() CheckResult {
	switch {
	case c.cfg.JWTSecret == "" && c.cfg.IsProduction():
		return CheckResult{Name: "JWT Secret", Status: "fail", Message: "JWT_SECRET is required in production"}
	case c.cfg.JWTSecret == "":
		return CheckResult{Name: "JWT Secret", Status: "warning", Message: "JWT_SECRET not set, a development secret will be used"}
	case len(c.cfg.JWTSecret) < 32:
		return CheckResult{Name: "JWT Secret", Status: "warning", Message: "JWT_SECRET is shorter than 32 characters"}
	}
	return CheckResult{Name: "JWT Secret", Status: "pass", Message: "Configured"}
}

func (c *Checker) checkForecastProvider() CheckResult {
	u, err := url.Parse(c.cfg.ForecastBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return CheckResult{
			Name:    "Forecast Provider",
			Status:  "fail",
			Message: fmt.Sprintf("Invalid FORECAST_BASE_URL %q", c.cfg.ForecastBaseURL),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Forecast Provider",
		Status:  "pass",
		Message: fmt.Sprintf("%s (%d days, %.2f req/s)", u.Host, c.cfg.ForecastDays, c.cfg.ForecastRatePerSecond),
	}
}

func (c *Checker) checkPrefetchSchedule() CheckResult {
	if c.cfg.PrefetchCron == "" {
		return CheckResult{Name: "Forecast Prefetch", Status: "pass", Message: "Disabled"}
	}

	loc, err := c.cfg.Location()
	if err != nil {
		loc = time.Local
	}
	next, err := services.NextPrefetchRun(c.cfg.PrefetchCron, time.Now().In(loc))
	if err != nil {
		return CheckResult{Name: "Forecast Prefetch", Status: "fail", Message: "Invalid PREFETCH_CRON", Error: err}
	}
	return CheckResult{
		Name:    "Forecast Prefetch",
		Status:  "pass",
		Message: fmt.Sprintf("Next run %s", next.Format(time.RFC3339)),
	}
}

// checkBackends pings every backing service, in name order
func (c *Checker) checkBackends() []CheckResult {
	names := make([]string, 0, len(c.backends))
	for name := range c.backends {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.backends[name].Ping(ctx)
		cancel()

		if err != nil {
			results = append(results, CheckResult{
				Name:    "Connection: " + name,
				Status:  "fail",
				Message: "Cannot reach " + name,
				Error:   err,
			})
			continue
		}
		results = append(results, CheckResult{
			Name:    "Connection: " + name,
			Status:  "pass",
			Message: "Connection successful",
		})
	}
	return results
}
