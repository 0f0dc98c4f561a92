package services

import (
	"fmt"
	"io"
	"strings"

	"callsheet/internal/models"

	"github.com/xuri/excelize/v2"
)

const callSheetName = "Call Sheet"

var sceneColumns = []string{"#", "Title", "Int/Ext", "Cycle", "Location", "Address", "Description", "Characters", "Call", "Responsible"}

// CallSheetExporter renders one shooting day as an .xlsx call sheet
type CallSheetExporter struct {
	calendar models.Calendar
}

// NewCallSheetExporter creates an exporter formatting times in calendar's location
func NewCallSheetExporter(calendar models.Calendar) *CallSheetExporter {
	if calendar.Location == nil {
		calendar = models.NewCalendar(nil, calendar.AnchorHour)
	}
	return &CallSheetExporter{calendar: calendar}
}

// Export builds the workbook. forecast may be nil.
func (e *CallSheetExporter) Export(project *models.Project, day *models.Day, forecast *models.DayForecast) (*excelize.File, error) {
	if project == nil || day == nil {
		return nil, fmt.Errorf("project and day are required")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), callSheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	loc := e.calendar.Location
	header := [][]interface{}{
		{"Project", project.Title},
		{"Director", project.Director},
		{"Day", day.Name},
		{"Date", e.calendar.Key(day.Date).String()},
		{"Color", string(day.Color)},
	}
	if start, ok := day.StartTime(); ok {
		end, _ := day.EndTime()
		header = append(header, []interface{}{"Hours", fmt.Sprintf("%s - %s", start.In(loc).Format("15:04"), end.In(loc).Format("15:04"))})
	}
	for _, mk := range day.Markers {
		header = append(header, []interface{}{markerLabel(mk.Activity), mk.Time.In(loc).Format("15:04")})
	}
	if forecast != nil {
		header = append(header,
			[]interface{}{"Weather", forecast.Condition},
			[]interface{}{"Precipitation", fmt.Sprintf("%.0f%%", forecast.PrecipitationChance*100)},
			[]interface{}{"Sunrise", forecast.Sunrise.In(loc).Format("15:04")},
			[]interface{}{"Sunset", forecast.Sunset.In(loc).Format("15:04")},
		)
	}

	row := 1
	for _, values := range header {
		if err := e.setRow(f, row, values); err != nil {
			f.Close()
			return nil, err
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		f.SetCellStyle(callSheetName, cell, cell, bold)
		row++
	}
	row++

	columns := make([]interface{}, len(sceneColumns))
	for i, c := range sceneColumns {
		columns[i] = c
	}
	if err := e.setRow(f, row, columns); err != nil {
		f.Close()
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(sceneColumns), row)
	f.SetCellStyle(callSheetName, first, last, bold)
	row++

	scenes := make([]models.Scene, len(day.Scenes))
	copy(scenes, day.Scenes)
	models.SortScenes(scenes)
	for _, s := range scenes {
		if err := e.setRow(f, row, e.sceneRow(s)); err != nil {
			f.Close()
			return nil, err
		}
		row++
	}

	f.SetColWidth(callSheetName, "A", "A", 14)
	f.SetColWidth(callSheetName, "B", "J", 20)
	return f, nil
}

// WriteTo exports the day and writes the workbook to w
func (e *CallSheetExporter) WriteTo(w io.Writer, project *models.Project, day *models.Day, forecast *models.DayForecast) error {
	f, err := e.Export(project, day, forecast)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *CallSheetExporter) setRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(callSheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func (e *CallSheetExporter) sceneRow(s models.Scene) []interface{} {
	chars := make([]string, 0, len(s.Characters))
	for _, c := range s.Characters {
		if c.Performer != "" {
			chars = append(chars, fmt.Sprintf("%s (%s)", c.Name, c.Performer))
		} else {
			chars = append(chars, c.Name)
		}
	}
	call := ""
	if s.CallTime != nil {
		call = s.CallTime.In(e.calendar.Location).Format("15:04")
	}
	return []interface{}{
		s.Number,
		s.Title,
		s.Environment.LocationType,
		s.Environment.Cycle,
		s.Location.Name,
		s.Location.Address,
		s.Description,
		strings.Join(chars, ", "),
		call,
		s.Responsible,
	}
}

func markerLabel(a models.MarkerActivity) string {
	switch a {
	case models.MarkerStart:
		return "Start"
	case models.MarkerCameraRolling:
		return "Camera rolling"
	case models.MarkerLunch:
		return "Lunch"
	case models.MarkerWrap:
		return "Wrap"
	case models.MarkerEndOfHire:
		return "End of hire"
	}
	return string(a)
}
