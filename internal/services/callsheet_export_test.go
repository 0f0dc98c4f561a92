package services

import (
	"bytes"
	"testing"

	"callsheet/internal/models"

	"github.com/xuri/excelize/v2"
)

func TestCallSheetExport(t *testing.T) {
	p := testProject("alice", "AAAA")
	p.Director = "Ana"
	call := date(2025, 12, 12, 8)
	day := testDay("d1", date(2025, 12, 12, 12),
		models.Scene{Number: 2, Title: "Chase", Description: "Run", Location: models.Location{Name: "Park", Address: "Rua X"}},
		models.Scene{Number: 1, Title: "Intro", CallTime: &call, Characters: []models.Character{{Name: "Lia", Performer: "Bea"}}},
	)
	day.Markers = []models.ScheduleMarker{
		{Activity: models.MarkerStart, Time: date(2025, 12, 12, 7)},
		{Activity: models.MarkerWrap, Time: date(2025, 12, 12, 18)},
	}
	forecast := &models.DayForecast{Condition: "Clear sky", PrecipitationChance: 0.1}

	var buf bytes.Buffer
	exporter := NewCallSheetExporter(testCalendar)
	if err := exporter.WriteTo(&buf, &p, &day, forecast); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Failed to read workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(callSheetName)
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}

	found := map[string]string{}
	tableAt := -1
	for i, row := range rows {
		if len(row) >= 2 {
			found[row[0]] = row[1]
		}
		if len(row) > 0 && row[0] == "#" {
			tableAt = i
		}
	}
	if found["Project"] != p.Title || found["Director"] != "Ana" {
		t.Errorf("Expected project header, got %v", found)
	}
	if found["Date"] != "2025-12-12" || found["Hours"] != "07:00 - 18:00" {
		t.Errorf("Expected date and hours, got %q / %q", found["Date"], found["Hours"])
	}
	if found["Weather"] != "Clear sky" {
		t.Errorf("Expected weather row, got %q", found["Weather"])
	}

	if tableAt < 0 || len(rows) < tableAt+3 {
		t.Fatalf("Expected scene table with 2 rows, got %d rows", len(rows))
	}
	first, second := rows[tableAt+1], rows[tableAt+2]
	if first[0] != "1" || first[1] != "Intro" || first[7] != "Lia (Bea)" || first[8] != "08:00" {
		t.Errorf("Unexpected first scene row %v", first)
	}
	if second[0] != "2" || second[5] != "Rua X" {
		t.Errorf("Unexpected second scene row %v", second)
	}
}

func TestCallSheetExportRequiresDay(t *testing.T) {
	p := testProject("alice", "AAAA")
	if _, err := NewCallSheetExporter(testCalendar).Export(&p, nil, nil); err == nil {
		t.Error("Expected error without a day")
	}
}
