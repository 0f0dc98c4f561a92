package services

import (
	"sort"
	"time"

	"callsheet/internal/models"
)

// DayHasActivities reports whether the active project has a day on date's calendar
// day with at least one scene. Without an active project it reports false.
func (m *ProjectionManager) DayHasActivities(date time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.activeLocked()
	if active == nil {
		return false
	}
	for i := range active.Days {
		if m.calendar.SameDay(active.Days[i].Date, date) && len(active.Days[i].Scenes) > 0 {
			return true
		}
	}
	return false
}

// ActivitiesForDay returns the scenes of every active-project day on date's calendar
// day, ordered by scene number. Ties keep their stored order.
func (m *ProjectionManager) ActivitiesForDay(date time.Time) []models.Scene {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scenes := []models.Scene{}
	active := m.activeLocked()
	if active == nil {
		return scenes
	}
	for i := range active.Days {
		if !m.calendar.SameDay(active.Days[i].Date, date) {
			continue
		}
		for _, s := range active.Days[i].Scenes {
			scenes = append(scenes, s.Clone())
		}
	}
	models.SortScenes(scenes)
	return scenes
}

// DayFor returns a copy of the first active-project day on date's calendar day
func (m *ProjectionManager) DayFor(date time.Time) (*models.Day, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.activeLocked()
	if active == nil {
		return nil, false
	}
	i := active.DayIndex(m.calendar, date)
	if i < 0 {
		return nil, false
	}
	day := models.CloneDays(active.Days[i : i+1])[0]
	return &day, true
}

// Days returns the active project's days sorted by date
func (m *ProjectionManager) Days() []models.Day {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		return []models.Day{}
	}
	days := models.CloneDays(active.Days)
	m.mu.RUnlock()
	if days == nil {
		return []models.Day{}
	}

	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days
}
