package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
)

var testCalendar = models.NewCalendar(time.UTC, 12)

func date(y, m, d, hour int) time.Time {
	return time.Date(y, time.Month(m), d, hour, 0, 0, 0, time.UTC)
}

func testProject(owner, code string, members ...string) models.Project {
	return models.Project{
		Code:    code,
		Title:   "Film " + code,
		OwnerID: owner,
		Members: append([]string{owner}, members...),
		Days:    []models.Day{},
		Files:   []models.FileRecord{},
	}
}

func testScene(number int, lat, lng float64) models.Scene {
	return models.Scene{
		ID:          "scene-" + string(rune('a'+number)),
		Number:      number,
		Shots:       []int{},
		Characters:  []models.Character{},
		Description: "scene",
		Location:    models.Location{Latitude: lat, Longitude: lng},
	}
}

func testDay(id string, when time.Time, scenes ...models.Scene) models.Day {
	if scenes == nil {
		scenes = []models.Scene{}
	}
	return models.Day{
		ID:      id,
		Name:    id,
		Date:    when,
		Markers: []models.ScheduleMarker{},
		Color:   models.DayColorBlue,
		Scenes:  scenes,
	}
}

func seed(t *testing.T, store *database.MemoryStore, id string, p models.Project) {
	t.Helper()
	if err := store.Insert(id, p); err != nil {
		t.Fatalf("Failed to seed project %s: %v", id, err)
	}
}

func newTestManager(t *testing.T, store database.DocumentStore, provider ForecastProvider) *ProjectionManager {
	t.Helper()
	m := NewProjectionManager(store, provider, ManagerConfig{Calendar: testCalendar})
	t.Cleanup(m.Close)
	return m
}

func attachedManager(t *testing.T, store database.DocumentStore, userID string) *ProjectionManager {
	t.Helper()
	m := newTestManager(t, store, nil)
	if err := m.Attach(context.Background(), userID); err != nil {
		t.Fatalf("Failed to attach: %v", err)
	}
	return m
}

// fakeProvider counts calls and returns canned forecasts
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	coords    []models.Coordinate
	forecasts []models.DayForecast
	err       error
	release   chan struct{}
}

func (p *fakeProvider) DailyForecast(ctx context.Context, at models.Coordinate) ([]models.DayForecast, error) {
	p.mu.Lock()
	p.calls++
	p.coords = append(p.coords, at)
	release, forecasts, err := p.release, p.forecasts, p.err
	p.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return forecasts, err
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) LastCoordinate() models.Coordinate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.coords) == 0 {
		return models.Coordinate{}
	}
	return p.coords[len(p.coords)-1]
}

// recordingStore remembers every update it forwards
type recordingStore struct {
	*database.MemoryStore
	mu      sync.Mutex
	updates []database.Update
}

func (s *recordingStore) Update(ctx context.Context, id string, u database.Update) error {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
	return s.MemoryStore.Update(ctx, id, u)
}

func (s *recordingStore) Updates() []database.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.Update(nil), s.updates...)
}

type staticIdentity string

func (s staticIdentity) CurrentUserID() string { return string(s) }
