package models

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func mustMarshal(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return bson.Raw(data)
}

func TestDecodeProject(t *testing.T) {
	valid := Project{
		Code:    "AB12",
		Title:   "Curta",
		OwnerID: "owner",
		Members: []string{"owner"},
		Days: []Day{{
			ID:     "d1",
			Date:   time.Date(2025, 12, 12, 12, 0, 0, 0, time.UTC),
			Color:  DayColorBlue,
			Scenes: []Scene{{ID: "s1", Number: 1, Description: "d"}},
		}},
	}

	tests := []struct {
		name    string
		id      string
		raw     bson.Raw
		wantErr bool
	}{
		{name: "Valid project", id: "p1", raw: mustMarshal(t, valid)},
		{name: "Missing id", id: "", raw: mustMarshal(t, valid), wantErr: true},
		{name: "Missing code", id: "p1", raw: mustMarshal(t, bson.M{"title": "x", "ownerId": "o"}), wantErr: true},
		{name: "Missing owner", id: "p1", raw: mustMarshal(t, bson.M{"code": "AAAA"}), wantErr: true},
		{name: "Days is not an array", id: "p1", raw: mustMarshal(t, bson.M{"code": "AAAA", "ownerId": "o", "days": "monday"}), wantErr: true},
		{name: "Scene number is a string", id: "p1", raw: mustMarshal(t, bson.M{
			"code": "AAAA", "ownerId": "o",
			"days": bson.A{bson.M{"id": "d", "scenes": bson.A{bson.M{"number": "one"}}}},
		}), wantErr: true},
		{name: "Corrupt bytes", id: "p1", raw: bson.Raw{0x05, 0x00, 0x00}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeProject(tt.id, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected decode error")
				}
				if !errors.Is(err, ErrMalformedProject) {
					t.Errorf("Expected ErrMalformedProject, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.ID != tt.id {
				t.Errorf("Expected ID %s, got %s", tt.id, p.ID)
			}
			if len(p.Days) != 1 || len(p.Days[0].Scenes) != 1 {
				t.Errorf("Expected one day with one scene, got %+v", p.Days)
			}
		})
	}
}
