package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"callsheet/internal/models"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ForecastProvider returns a forward-looking list of daily forecasts for a coordinate
type ForecastProvider interface {
	DailyForecast(ctx context.Context, at models.Coordinate) ([]models.DayForecast, error)
}

// ProjectSource exposes the project forecasts are derived from
type ProjectSource interface {
	ActiveProject() *models.Project
}

// ForecastCache memoizes daily forecasts by calendar day for the lifetime of its manager.
// Entries never expire; failures and missing days are never cached.
type ForecastCache struct {
	provider ForecastProvider
	source   ProjectSource
	calendar models.Calendar
	timeout  time.Duration
	entries  *cache.Cache
	flights  singleflight.Group
}

// NewForecastCache creates an empty cache
func NewForecastCache(provider ForecastProvider, source ProjectSource, calendar models.Calendar, timeout time.Duration) *ForecastCache {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ForecastCache{
		provider: provider,
		source:   source,
		calendar: calendar,
		timeout:  timeout,
		entries:  cache.New(cache.NoExpiration, 0),
	}
}

// Lookup returns the cached forecast for day's calendar day without fetching
func (c *ForecastCache) Lookup(day time.Time) (*models.DayForecast, bool) {
	v, ok := c.entries.Get(c.calendar.Key(day).String())
	if !ok {
		return nil, false
	}
	f := v.(models.DayForecast)
	return &f, true
}

// Len returns the number of cached days
func (c *ForecastCache) Len() int {
	return c.entries.ItemCount()
}

// GetForecast delivers the forecast for day to callback, or nil when none is available.
// A cache hit or a project without scenes invokes callback synchronously; otherwise it
// runs after the fetch on another goroutine.
func (c *ForecastCache) GetForecast(day time.Time, callback func(*models.DayForecast)) {
	if f, ok := c.Lookup(day); ok {
		forecastRequests.WithLabelValues("hit").Inc()
		callback(f)
		return
	}

	at, err := c.coordinateFor(day)
	if err != nil {
		forecastRequests.WithLabelValues("no_location").Inc()
		log.Printf("⚠️  [FORECAST] No forecast for %s: %v", c.calendar.Key(day), err)
		callback(nil)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		f, err := c.forecastAt(ctx, day, at)
		if err != nil {
			log.Printf("⚠️  [FORECAST] No forecast for %s: %v", c.calendar.Key(day), err)
			callback(nil)
			return
		}
		callback(f)
	}()
}

// Forecast returns the forecast for day, fetching it on a miss.
// Concurrent misses for the same calendar day share one provider call.
func (c *ForecastCache) Forecast(ctx context.Context, day time.Time) (*models.DayForecast, error) {
	if f, ok := c.Lookup(day); ok {
		forecastRequests.WithLabelValues("hit").Inc()
		return f, nil
	}

	at, err := c.coordinateFor(day)
	if err != nil {
		forecastRequests.WithLabelValues("no_location").Inc()
		return nil, err
	}
	return c.forecastAt(ctx, day, at)
}

// forecastAt fetches day's forecast for a resolved coordinate unless another caller
// already cached it
func (c *ForecastCache) forecastAt(ctx context.Context, day time.Time, at models.Coordinate) (*models.DayForecast, error) {
	key := c.calendar.Key(day).String()
	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		return c.fetch(ctx, key, day, at)
	})
	if err != nil {
		return nil, err
	}
	f := v.(models.DayForecast)
	return &f, nil
}

func (c *ForecastCache) fetch(ctx context.Context, key string, day time.Time, at models.Coordinate) (models.DayForecast, error) {
	if c.provider == nil {
		forecastRequests.WithLabelValues("error").Inc()
		return models.DayForecast{}, fmt.Errorf("%w: no provider configured", ErrForecastUnavailable)
	}

	start := time.Now()
	list, err := c.provider.DailyForecast(ctx, at)
	forecastFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		forecastRequests.WithLabelValues("error").Inc()
		return models.DayForecast{}, fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}

	for _, f := range list {
		if c.calendar.SameDay(f.Date, day) {
			c.entries.Set(key, f, cache.NoExpiration)
			forecastRequests.WithLabelValues("fetched").Inc()
			return f, nil
		}
	}
	forecastRequests.WithLabelValues("no_match").Inc()
	return models.DayForecast{}, fmt.Errorf("%w: provider returned no entry for %s", ErrForecastUnavailable, key)
}

// coordinateFor picks the location of the first scene of day's day, falling back to
// the first scene of the project in day order
func (c *ForecastCache) coordinateFor(day time.Time) (models.Coordinate, error) {
	if c.source == nil {
		return models.Coordinate{}, ErrNoLocation
	}
	p := c.source.ActiveProject()
	if p == nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrNoLocation, ErrNoActiveProject)
	}

	if i := p.DayIndex(c.calendar, day); i >= 0 && len(p.Days[i].Scenes) > 0 {
		return coordinateOf(p.Days[i].Scenes[0]), nil
	}
	for _, d := range p.Days {
		if len(d.Scenes) > 0 {
			return coordinateOf(d.Scenes[0]), nil
		}
	}
	return models.Coordinate{}, ErrNoLocation
}

func coordinateOf(s models.Scene) models.Coordinate {
	return models.Coordinate{Latitude: s.Location.Latitude, Longitude: s.Location.Longitude}
}

// IsForecastMiss reports whether err means "no forecast" rather than a bad request
func IsForecastMiss(err error) bool {
	return errors.Is(err, ErrForecastUnavailable) || errors.Is(err, ErrNoLocation)
}
