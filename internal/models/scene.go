package models

import "time"

// Environment describes where and when a scene plays. Values are free-form.
type Environment struct {
	LocationType string `bson:"locationType" json:"location_type"` // e.g. "INT", "EXT"
	Cycle        string `bson:"cycle" json:"cycle"`                // e.g. "DAY", "NIGHT"
	Weather      string `bson:"weather" json:"weather"`
}

// Location is a named shooting place
type Location struct {
	Name      string  `bson:"name" json:"name"`
	Address   string  `bson:"address" json:"address"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// Character assigns a performer to a role
type Character struct {
	Name      string `bson:"name" json:"name"`
	Performer string `bson:"performer" json:"performer"`
}

// Scene is one line of a day's scene table.
// Numbers are not unique, neither per project nor per day.
type Scene struct {
	ID          string      `bson:"id" json:"id"`
	Number      int         `bson:"number" json:"number"`
	Shots       []int       `bson:"shots" json:"shots"`
	Environment Environment `bson:"environment" json:"environment"`
	Location    Location    `bson:"location" json:"location"`
	Description string      `bson:"description" json:"description"`
	Characters  []Character `bson:"characters" json:"characters"`
	Title       string      `bson:"title,omitempty" json:"title,omitempty"`
	CallTime    *time.Time  `bson:"callTime,omitempty" json:"call_time,omitempty"`
	Responsible string      `bson:"responsible,omitempty" json:"responsible,omitempty"`
}

// Clone deep-copies the scene
func (s Scene) Clone() Scene {
	c := s
	c.Shots = append([]int(nil), s.Shots...)
	c.Characters = append([]Character(nil), s.Characters...)
	if s.CallTime != nil {
		t := *s.CallTime
		c.CallTime = &t
	}
	return c
}
