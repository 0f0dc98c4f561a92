package models

import (
	"sort"
	"time"
)

// DayColor is the color tag of a call sheet
type DayColor string

const (
	DayColorBlue   DayColor = "blue"
	DayColorGreen  DayColor = "green"
	DayColorOrange DayColor = "orange"
	DayColorPurple DayColor = "purple"
	DayColorRed    DayColor = "red"
	DayColorYellow DayColor = "yellow"
)

// DayColorPalette is the round-robin palette used for new days
var DayColorPalette = []DayColor{DayColorBlue, DayColorGreen, DayColorOrange, DayColorPurple}

// IsValid reports whether c is one of the known colors
func (c DayColor) IsValid() bool {
	switch c {
	case DayColorBlue, DayColorGreen, DayColorOrange, DayColorPurple, DayColorRed, DayColorYellow:
		return true
	}
	return false
}

// PaletteColor picks the palette color for the day at position n
func PaletteColor(n int) DayColor {
	if n < 0 {
		n = 0
	}
	return DayColorPalette[n%len(DayColorPalette)]
}

// MarkerActivity is a named milestone within a shooting day
type MarkerActivity string

const (
	MarkerStart         MarkerActivity = "start"
	MarkerCameraRolling MarkerActivity = "camera_rolling"
	MarkerLunch         MarkerActivity = "lunch"
	MarkerWrap          MarkerActivity = "wrap"
	MarkerEndOfHire     MarkerActivity = "end_of_hire"
)

// IsValid reports whether a is one of the known activities
func (a MarkerActivity) IsValid() bool {
	switch a {
	case MarkerStart, MarkerCameraRolling, MarkerLunch, MarkerWrap, MarkerEndOfHire:
		return true
	}
	return false
}

// ScheduleMarker pairs an activity with a time of day
type ScheduleMarker struct {
	Activity MarkerActivity `bson:"activity" json:"activity"`
	Time     time.Time      `bson:"time" json:"time"`
}

// Day is one shooting day ("call sheet") of a project
type Day struct {
	ID      string           `bson:"id" json:"id"`
	Name    string           `bson:"name" json:"name"`
	Date    time.Time        `bson:"date" json:"date"` // Only the calendar day is meaningful
	Markers []ScheduleMarker `bson:"markers" json:"markers"`
	Color   DayColor         `bson:"color" json:"color"`
	Scenes  []Scene          `bson:"scenes" json:"scenes"`
}

// StartTime is the time of the first marker in list order.
// Markers are not sorted; appending out of order yields a misleading range.
func (d *Day) StartTime() (time.Time, bool) {
	if len(d.Markers) == 0 {
		return time.Time{}, false
	}
	return d.Markers[0].Time, true
}

// EndTime is the time of the last marker in list order
func (d *Day) EndTime() (time.Time, bool) {
	if len(d.Markers) == 0 {
		return time.Time{}, false
	}
	return d.Markers[len(d.Markers)-1].Time, true
}

// SceneIndex returns the index of the scene with the given ID, or -1
func (d *Day) SceneIndex(sceneID string) int {
	for i := range d.Scenes {
		if d.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

// SortScenes orders scenes by ascending number, keeping insertion order for ties
func SortScenes(scenes []Scene) {
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].Number < scenes[j].Number
	})
}

// CloneDays deep-copies a day list
func CloneDays(days []Day) []Day {
	if days == nil {
		return nil
	}
	out := make([]Day, len(days))
	for i, d := range days {
		out[i] = d
		out[i].Markers = append([]ScheduleMarker(nil), d.Markers...)
		out[i].Scenes = make([]Scene, len(d.Scenes))
		for j, s := range d.Scenes {
			out[i].Scenes[j] = s.Clone()
		}
	}
	return out
}
