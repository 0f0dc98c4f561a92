package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
)

func scheduledProject() models.Project {
	p := testProject("alice", "AAAA")
	p.Days = []models.Day{
		testDay("d1", date(2025, 12, 12, 12), testScene(3, 0, 0), testScene(1, 0, 0)),
		testDay("d2", date(2025, 12, 13, 12)),
		testDay("d3", date(2025, 12, 12, 18), testScene(2, 0, 0)),
	}
	return p
}

func TestActivitiesForDayIgnoresTimeOfDay(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	morning := m.ActivitiesForDay(date(2025, 12, 12, 0))
	evening := m.ActivitiesForDay(time.Date(2025, 12, 12, 23, 59, 59, 0, time.UTC))

	if len(morning) != 3 || len(evening) != 3 {
		t.Fatalf("Expected 3 scenes at any time of day, got %d and %d", len(morning), len(evening))
	}
	for i := range morning {
		if morning[i].ID != evening[i].ID {
			t.Errorf("Scene %d differs: %s vs %s", i, morning[i].ID, evening[i].ID)
		}
	}
}

func TestActivitiesForDaySortedByNumber(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	scenes := m.ActivitiesForDay(date(2025, 12, 12, 9))
	for i, want := range []int{1, 2, 3} {
		if scenes[i].Number != want {
			t.Errorf("Expected scene %d at position %d, got %d", want, i, scenes[i].Number)
		}
	}
}

func TestDayHasActivitiesMatchesActivitiesForDay(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	tests := []struct {
		name string
		when time.Time
		want bool
	}{
		{"day with scenes", date(2025, 12, 12, 7), true},
		{"day without scenes", date(2025, 12, 13, 7), false},
		{"no day", date(2025, 12, 14, 7), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			has := m.DayHasActivities(tt.when)
			if has != tt.want {
				t.Errorf("Expected DayHasActivities=%v, got %v", tt.want, has)
			}
			if nonEmpty := len(m.ActivitiesForDay(tt.when)) > 0; nonEmpty != has {
				t.Errorf("DayHasActivities=%v but ActivitiesForDay non-empty=%v", has, nonEmpty)
			}
		})
	}
}

func TestQueriesWithoutActiveProject(t *testing.T) {
	m := newTestManager(t, database.NewMemoryStore(), nil)

	if m.DayHasActivities(date(2025, 12, 12, 12)) {
		t.Error("Expected false without an active project")
	}
	if scenes := m.ActivitiesForDay(date(2025, 12, 12, 12)); scenes == nil || len(scenes) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", scenes)
	}
	if days := m.Days(); days == nil || len(days) != 0 {
		t.Errorf("Expected empty non-nil days, got %v", days)
	}
}

func TestDaysSortedByDate(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	days := m.Days()
	if len(days) != 3 {
		t.Fatalf("Expected 3 days, got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if days[i].Date.Before(days[i-1].Date) {
			t.Errorf("Days out of order at %d", i)
		}
	}
}

func TestAddActivityToEmptyProject(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	m := attachedManager(t, store, "alice")

	m.AddActivityToDay(date(2025, 12, 12, 0), "Cena 1", "d", "Rua X", date(2025, 12, 12, 8), "")
	m.Wait()

	active := m.ActiveProject()
	if len(active.Days) != 1 {
		t.Fatalf("Expected 1 day, got %d", len(active.Days))
	}
	day := active.Days[0]
	if !testCalendar.SameDay(day.Date, date(2025, 12, 12, 0)) {
		t.Errorf("Expected day on 2025-12-12, got %v", day.Date)
	}
	if day.Color != models.DayColorPalette[0] {
		t.Errorf("Expected first palette color, got %s", day.Color)
	}
	if len(day.Scenes) != 1 {
		t.Fatalf("Expected 1 scene, got %d", len(day.Scenes))
	}
	scene := day.Scenes[0]
	if scene.Number != 1 || scene.Description != "d" || scene.Location.Address != "Rua X" {
		t.Errorf("Unexpected scene: %+v", scene)
	}
	if scene.Title != "Cena 1" || scene.CallTime == nil || !scene.CallTime.Equal(date(2025, 12, 12, 8)) {
		t.Errorf("Expected title and call time to be kept, got %+v", scene)
	}
	if start, ok := day.StartTime(); !ok || !start.Equal(date(2025, 12, 12, 8)) {
		t.Errorf("Expected start marker at 08:00, got %v", start)
	}
}

func TestAddActivityNewDayNumbersAcrossProject(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	m.AddActivityToDay(date(2025, 12, 20, 0), "New", "", "", date(2025, 12, 20, 7), "")
	m.Wait()

	active := m.ActiveProject()
	if len(active.Days) != 4 {
		t.Fatalf("Expected exactly one new day, got %d days", len(active.Days))
	}
	added := active.Days[3]
	if len(added.Scenes) != 1 || added.Scenes[0].Number != 4 {
		t.Errorf("Expected one scene numbered 4, got %+v", added.Scenes)
	}
	if added.Color != models.PaletteColor(3) {
		t.Errorf("Expected palette color %s, got %s", models.PaletteColor(3), added.Color)
	}
}

func TestAddActivityToExistingDay(t *testing.T) {
	store := &recordingStore{MemoryStore: database.NewMemoryStore()}
	p := testProject("alice", "AAAA")
	p.Days = []models.Day{
		testDay("d1", date(2025, 12, 12, 12), testScene(1, 0, 0), testScene(2, 0, 0)),
		testDay("d2", date(2025, 12, 13, 12), testScene(3, 0, 0)),
	}
	seed(t, store.MemoryStore, "p1", p)
	m := attachedManager(t, store, "alice")

	m.AddActivityToDay(date(2025, 12, 13, 22), "Extra", "desc", "Rua Y", date(2025, 12, 13, 9), "Ana")
	m.Wait()

	active := m.ActiveProject()
	if len(active.Days) != 2 {
		t.Fatalf("Expected no new day, got %d days", len(active.Days))
	}
	scenes := active.Days[1].Scenes
	if len(scenes) != 2 {
		t.Fatalf("Expected 2 scenes on d2, got %d", len(scenes))
	}
	if scenes[1].Number != 4 || scenes[1].Responsible != "Ana" {
		t.Errorf("Expected scene 4 for Ana, got %+v", scenes[1])
	}

	updates := store.Updates()
	if len(updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(updates))
	}
	f := updates[0].Fields[0]
	if f.Op != database.OpSet || f.Field != models.FieldDays {
		t.Errorf("Expected full days rewrite, got %s on %s", f.Op, f.Field)
	}
	if updates[0].IfVersion != nil {
		t.Error("Expected unconditional write by default")
	}
}

func TestAddActivityWithoutActiveProjectIsSkipped(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	seed(t, store, "p2", testProject("alice", "BBBB"))
	m := attachedManager(t, store, "alice")

	m.AddActivityToDay(date(2025, 12, 12, 0), "x", "", "", date(2025, 12, 12, 8), "")
	m.Wait()

	if _, updates, _, _ := store.Stats(); updates != 0 {
		t.Errorf("Expected no writes, got %d", updates)
	}
}

func TestConditionalWritesCarryVersion(t *testing.T) {
	store := &recordingStore{MemoryStore: database.NewMemoryStore()}
	p := scheduledProject()
	p.Version = 7
	seed(t, store.MemoryStore, "p1", p)

	m := NewProjectionManager(store, nil, ManagerConfig{Calendar: testCalendar, ConditionalWrites: true})
	t.Cleanup(m.Close)
	if err := m.Attach(context.Background(), "alice"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	m.SetDayColor(date(2025, 12, 13, 0), models.DayColorRed)
	m.Wait()

	updates := store.Updates()
	if len(updates) != 1 || updates[0].IfVersion == nil || *updates[0].IfVersion != 7 {
		t.Fatalf("Expected update guarded by version 7, got %+v", updates)
	}
	active := m.ActiveProject()
	if active.Version != 8 {
		t.Errorf("Expected version 8 after write, got %d", active.Version)
	}
	if active.Days[1].Color != models.DayColorRed {
		t.Errorf("Expected d2 to be red, got %s", active.Days[1].Color)
	}
}

func TestSetConditionalWritesAtRuntime(t *testing.T) {
	store := &recordingStore{MemoryStore: database.NewMemoryStore()}
	seed(t, store.MemoryStore, "p1", scheduledProject())

	m := newTestManager(t, store, nil)
	if err := m.Attach(context.Background(), "alice"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	m.SetConditionalWrites(true)
	m.SetDayColor(date(2025, 12, 13, 0), models.DayColorRed)
	m.Wait()

	m.SetConditionalWrites(false)
	m.SetDayColor(date(2025, 12, 13, 0), models.DayColorGreen)
	m.Wait()

	updates := store.Updates()
	if len(updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(updates))
	}
	if updates[0].IfVersion == nil {
		t.Error("Expected the first write to be guarded")
	}
	if updates[1].IfVersion != nil {
		t.Error("Expected the second write to be unconditional")
	}
}

func TestConditionalWriteConflictLeavesStoreUntouched(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())

	m := NewProjectionManager(store, nil, ManagerConfig{Calendar: testCalendar, ConditionalWrites: true})
	t.Cleanup(m.Close)
	if err := m.Attach(context.Background(), "alice"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// Simulate a lost race: the projection is behind the stored version
	m.mu.Lock()
	m.projects[0].Version = 41
	m.mu.Unlock()

	m.RemoveDay(date(2025, 12, 13, 0))
	m.Wait()

	stored, err := store.Project("p1")
	if err != nil {
		t.Fatalf("Failed to read project: %v", err)
	}
	if len(stored.Days) != 3 {
		t.Errorf("Expected conflicting write to be rejected, got %d days", len(stored.Days))
	}
}

func TestWriteFailureIsNotSurfaced(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	m := attachedManager(t, store, "alice")

	store.SetWriteError(errors.New("permission denied"))
	m.AddActivityToDay(date(2025, 12, 12, 0), "x", "", "", date(2025, 12, 12, 8), "")
	m.Wait()

	if len(m.ActiveProject().Days) != 0 {
		t.Error("Expected projection unchanged after failed write")
	}
}

func TestDayEdits(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	markers := []models.ScheduleMarker{
		{Activity: models.MarkerStart, Time: date(2025, 12, 13, 7)},
		{Activity: models.MarkerWrap, Time: date(2025, 12, 13, 19)},
	}
	m.UpdateDayMarkers(date(2025, 12, 13, 0), markers)
	m.Wait()
	m.RemoveScene(date(2025, 12, 12, 0), "scene-d")
	m.Wait()

	active := m.ActiveProject()
	if len(active.Days[1].Markers) != 2 {
		t.Errorf("Expected 2 markers on d2, got %d", len(active.Days[1].Markers))
	}
	if end, _ := active.Days[1].EndTime(); !end.Equal(date(2025, 12, 13, 19)) {
		t.Errorf("Expected end at 19:00, got %v", end)
	}
	if len(active.Days[0].Scenes) != 1 || active.Days[0].Scenes[0].ID != "scene-b" {
		t.Errorf("Expected only scene-b left on d1, got %+v", active.Days[0].Scenes)
	}

	m.RemoveDay(date(2025, 12, 12, 0))
	m.Wait()
	if days := m.ActiveProject().Days; len(days) != 1 || days[0].ID != "d2" {
		t.Errorf("Expected both 2025-12-12 days removed, got %+v", days)
	}
}

func TestInvalidDayEditsAreSkipped(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", scheduledProject())
	m := attachedManager(t, store, "alice")

	m.SetDayColor(date(2025, 12, 12, 0), models.DayColor("teal"))
	m.UpdateDayMarkers(date(2025, 12, 12, 0), []models.ScheduleMarker{{Activity: "nap"}})
	m.RemoveScene(date(2025, 12, 12, 0), "missing")
	m.RemoveDay(date(2026, 1, 1, 0))
	m.Wait()

	if _, updates, _, _ := store.Stats(); updates != 0 {
		t.Errorf("Expected no writes, got %d", updates)
	}
}

func TestFileMutations(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	m := attachedManager(t, store, "alice")

	m.AddFileToProject(models.FileRecord{ID: "f1", Name: "script.pdf", URL: "https://files/1"})
	m.Wait()
	m.AddFileToProject(models.FileRecord{ID: "f2", Name: "moodboard.png", URL: "https://files/2"})
	m.Wait()

	files := m.ActiveProject().Files
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	if files[0].UploadedAt.IsZero() {
		t.Error("Expected upload time to be set")
	}

	renamed := files[0]
	renamed.Name = "script-v2.pdf"
	m.UpdateFileInProject(renamed)
	m.Wait()
	if got := m.ActiveProject().Files[0].Name; got != "script-v2.pdf" {
		t.Errorf("Expected renamed file, got %s", got)
	}

	m.RemoveFileFromProject("f1")
	m.Wait()
	files = m.ActiveProject().Files
	if len(files) != 1 || files[0].ID != "f2" {
		t.Errorf("Expected only f2 left, got %+v", files)
	}

	m.RemoveFileFromProject("missing")
	m.UpdateFileInProject(models.FileRecord{ID: "missing"})
	m.Wait()
	if len(m.ActiveProject().Files) != 1 {
		t.Error("Expected unknown file edits to be skipped")
	}
}

func TestAddProject(t *testing.T) {
	store := database.NewMemoryStore()
	m := attachedManager(t, store, "alice")

	m.AddProject(&models.Project{Title: "Short Film", Director: "Ana"})
	m.Wait()

	projects := m.Projects()
	if len(projects) != 1 {
		t.Fatalf("Expected 1 project, got %d", len(projects))
	}
	p := projects[0]
	if p.ID == "" || p.OwnerID != "alice" || !p.HasMember("alice") {
		t.Errorf("Expected alice-owned project with an id, got %+v", p)
	}
	if len(p.Code) != models.ProjectCodeLength {
		t.Errorf("Expected %d-char code, got %q", models.ProjectCodeLength, p.Code)
	}
	if m.ActiveProject() == nil {
		t.Error("Expected the only project to become active")
	}
}

func TestAddProjectWhileDetachedIsSkipped(t *testing.T) {
	store := database.NewMemoryStore()
	m := newTestManager(t, store, nil)

	m.AddProject(&models.Project{Title: "Orphan"})
	m.Wait()

	if adds, _, _, _ := store.Stats(); adds != 0 {
		t.Errorf("Expected no insert, got %d", adds)
	}
}

func TestUpdateProjectDetails(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	m := attachedManager(t, store, "alice")

	deadline := date(2026, 3, 1, 12)
	m.UpdateProjectDetails("New Title", "New Director", &deadline)
	m.Wait()

	p := m.ActiveProject()
	if p.Title != "New Title" || p.Director != "New Director" {
		t.Errorf("Expected updated details, got %s/%s", p.Title, p.Director)
	}
	if p.Deadline == nil || !p.Deadline.Equal(deadline) {
		t.Errorf("Expected deadline %v, got %v", deadline, p.Deadline)
	}
}

func TestLeaveAndDeleteProject(t *testing.T) {
	store := database.NewMemoryStore()
	seed(t, store, "p1", testProject("alice", "AAAA"))
	seed(t, store, "p2", testProject("bob", "BBBB", "alice"))
	m := attachedManager(t, store, "alice")

	m.LeaveProject("p1")  // owner can't leave
	m.DeleteProject("p2") // not the owner
	m.Wait()
	if len(m.Projects()) != 2 {
		t.Fatalf("Expected both projects kept, got %d", len(m.Projects()))
	}

	m.LeaveProject("p2")
	m.Wait()
	if len(m.Projects()) != 1 {
		t.Fatalf("Expected p2 to disappear after leaving, got %d projects", len(m.Projects()))
	}
	stored, _ := store.Project("p2")
	if stored.HasMember("alice") {
		t.Error("Expected alice removed from p2 members")
	}

	m.DeleteProject("p1")
	m.Wait()
	if len(m.Projects()) != 0 {
		t.Errorf("Expected p1 deleted, got %d projects", len(m.Projects()))
	}
}
