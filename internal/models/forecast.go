package models

import "time"

// DayForecast is the weather outlook for one calendar day at a shooting location
type DayForecast struct {
	Date                time.Time `json:"date"`
	Condition           string    `json:"condition"`            // Human readable, e.g. "Partly cloudy"
	Symbol              string    `json:"symbol"`               // Icon reference
	PrecipitationChance float64   `json:"precipitation_chance"` // 0..1
	CloudCover          float64   `json:"cloud_cover"`          // Average over daylight hours, 0..1
	Sunrise             time.Time `json:"sunrise"`
	Sunset              time.Time `json:"sunset"`
}

// Coordinate is a geographic point
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
