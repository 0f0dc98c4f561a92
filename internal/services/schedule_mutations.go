package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
)

// Mutation names used for logging and metrics
const (
	opAddProject           = "addProject"
	opUpdateProjectDetails = "updateProjectDetails"
	opDeleteProject        = "deleteProject"
	opLeaveProject         = "leaveProject"
	opAddActivity          = "addActivityToDay"
	opRemoveScene          = "removeScene"
	opRemoveDay            = "removeDay"
	opUpdateDayMarkers     = "updateDayMarkers"
	opSetDayColor          = "setDayColor"
	opAddFile              = "addFileToProject"
	opUpdateFile           = "updateFileInProject"
	opRemoveFile           = "removeFileFromProject"
)

// Every mutation below issues exactly one store write and returns immediately.
// A mutation whose preconditions don't hold is logged and skipped. Write failures are
// logged only; the caller observes the outcome through the next snapshot.

// AddProject inserts a new project document. The store assigns the identifier.
// An empty owner defaults to the attached user, who is always made a member.
func (m *ProjectionManager) AddProject(project *models.Project) {
	if project == nil {
		return
	}
	doc := project.Clone()

	m.mu.RLock()
	userID := m.userID
	logger := m.logger
	m.mu.RUnlock()

	if doc.OwnerID == "" {
		doc.OwnerID = userID
	}
	if doc.OwnerID == "" {
		log.Printf("⚠️  [REPLICA] %s skipped: %v", opAddProject, ErrNotSignedIn)
		return
	}
	if doc.Code == "" {
		code, err := models.NewProjectCode()
		if err != nil {
			logger.Error("failed to generate project code", "error", err)
			return
		}
		doc.Code = code
	}
	if !doc.HasMember(doc.OwnerID) {
		doc.Members = append([]string{doc.OwnerID}, doc.Members...)
	}
	if doc.Days == nil {
		doc.Days = []models.Day{}
	}
	if doc.Files == nil {
		doc.Files = []models.FileRecord{}
	}
	now := m.now()
	doc.ID = ""
	doc.Version = 0
	doc.CreatedAt = now
	doc.UpdatedAt = now

	m.dispatch(opAddProject, "", func(ctx context.Context) error {
		id, err := m.store.Add(ctx, doc)
		if err != nil {
			return err
		}
		log.Printf("✅ [REPLICA] Created project %s (code %s)", id, doc.Code)
		return nil
	})
}

// UpdateProjectDetails replaces the active project's title, director and deadline
func (m *ProjectionManager) UpdateProjectDetails(title, director string, deadline *time.Time) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(opUpdateProjectDetails, ErrNoActiveProject)
		return
	}
	id := active.ID
	m.mu.RUnlock()

	fields := []database.FieldUpdate{
		database.Set(models.FieldTitle, title),
		database.Set(models.FieldDirector, director),
	}
	if deadline != nil {
		fields = append(fields, database.Set(models.FieldDeadline, *deadline))
	}
	m.dispatch(opUpdateProjectDetails, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, database.Update{Fields: fields})
	})
}

// DeleteProject removes a project document. Only its owner may delete it.
func (m *ProjectionManager) DeleteProject(projectID string) {
	m.mu.RLock()
	p := m.projectLocked(projectID)
	userID := m.userID
	m.mu.RUnlock()

	if p == nil {
		m.skip(opDeleteProject, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID))
		return
	}
	if p.OwnerID != userID {
		m.skip(opDeleteProject, fmt.Errorf("user %s does not own project %s", userID, projectID))
		return
	}
	m.dispatch(opDeleteProject, projectID, func(ctx context.Context) error {
		return m.store.Delete(ctx, projectID)
	})
}

// LeaveProject removes the attached user from a project's members.
// The owner can't leave.
func (m *ProjectionManager) LeaveProject(projectID string) {
	m.mu.RLock()
	p := m.projectLocked(projectID)
	userID := m.userID
	m.mu.RUnlock()

	if p == nil {
		m.skip(opLeaveProject, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID))
		return
	}
	if p.OwnerID == userID {
		m.skip(opLeaveProject, fmt.Errorf("owner can't leave project %s", projectID))
		return
	}
	m.dispatch(opLeaveProject, projectID, func(ctx context.Context) error {
		return m.store.Update(ctx, projectID, database.Update{
			Fields: []database.FieldUpdate{database.ArrayRemove(models.FieldMembers, userID)},
		})
	})
}

// AddActivityToDay appends a scene to the active project's day on date's calendar day.
// An existing day gets the scene and the whole days array is rewritten; otherwise a new
// day holding the scene is appended with an array-union. The scene number is the
// project-wide scene count plus one.
func (m *ProjectionManager) AddActivityToDay(date time.Time, title, description, address string, at time.Time, responsible string) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(opAddActivity, ErrNoActiveProject)
		return
	}

	callTime := at
	scene := models.Scene{
		ID:          m.newID(),
		Number:      active.SceneCount() + 1,
		Shots:       []int{},
		Title:       title,
		Description: description,
		Location:    models.Location{Address: address},
		Characters:  []models.Character{},
		CallTime:    &callTime,
		Responsible: responsible,
	}

	id := active.ID
	if i := active.DayIndex(m.calendar, date); i >= 0 {
		days := models.CloneDays(active.Days)
		days[i].Scenes = append(days[i].Scenes, scene)
		update := database.Update{
			Fields:    []database.FieldUpdate{database.Set(models.FieldDays, days)},
			IfVersion: m.versionGuard(active),
		}
		m.mu.RUnlock()

		m.dispatch(opAddActivity, id, func(ctx context.Context) error {
			return m.store.Update(ctx, id, update)
		})
		return
	}

	existing := len(active.Days)
	m.mu.RUnlock()

	day := models.Day{
		ID:      m.newID(),
		Name:    fmt.Sprintf("Day %d", existing+1),
		Date:    m.calendar.Anchor(date),
		Markers: []models.ScheduleMarker{{Activity: models.MarkerStart, Time: at}},
		Color:   models.PaletteColor(existing),
		Scenes:  []models.Scene{scene},
	}
	m.dispatch(opAddActivity, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, database.Update{
			Fields: []database.FieldUpdate{database.ArrayUnion(models.FieldDays, day)},
		})
	})
}

// RemoveScene drops a scene from the day on date's calendar day
func (m *ProjectionManager) RemoveScene(date time.Time, sceneID string) {
	m.rewriteDay(opRemoveScene, date, func(day *models.Day) error {
		i := day.SceneIndex(sceneID)
		if i < 0 {
			return fmt.Errorf("scene %s not found", sceneID)
		}
		day.Scenes = append(day.Scenes[:i], day.Scenes[i+1:]...)
		return nil
	})
}

// UpdateDayMarkers replaces the markers of the day on date's calendar day.
// The given order is kept; start and end times follow it.
func (m *ProjectionManager) UpdateDayMarkers(date time.Time, markers []models.ScheduleMarker) {
	m.rewriteDay(opUpdateDayMarkers, date, func(day *models.Day) error {
		for _, mk := range markers {
			if !mk.Activity.IsValid() {
				return fmt.Errorf("unknown marker activity %q", mk.Activity)
			}
		}
		day.Markers = append([]models.ScheduleMarker{}, markers...)
		return nil
	})
}

// SetDayColor changes the color tag of the day on date's calendar day
func (m *ProjectionManager) SetDayColor(date time.Time, color models.DayColor) {
	m.rewriteDay(opSetDayColor, date, func(day *models.Day) error {
		if !color.IsValid() {
			return fmt.Errorf("unknown day color %q", color)
		}
		day.Color = color
		return nil
	})
}

// RemoveDay drops every day on date's calendar day
func (m *ProjectionManager) RemoveDay(date time.Time) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(opRemoveDay, ErrNoActiveProject)
		return
	}
	days := make([]models.Day, 0, len(active.Days))
	for _, d := range models.CloneDays(active.Days) {
		if !m.calendar.SameDay(d.Date, date) {
			days = append(days, d)
		}
	}
	if len(days) == len(active.Days) {
		m.mu.RUnlock()
		m.skip(opRemoveDay, fmt.Errorf("no day on %s", m.calendar.Key(date)))
		return
	}
	id := active.ID
	update := database.Update{
		Fields:    []database.FieldUpdate{database.Set(models.FieldDays, days)},
		IfVersion: m.versionGuard(active),
	}
	m.mu.RUnlock()

	m.dispatch(opRemoveDay, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, update)
	})
}

// rewriteDay edits a copy of the day on date's calendar day and rewrites the days array
func (m *ProjectionManager) rewriteDay(op string, date time.Time, edit func(day *models.Day) error) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(op, ErrNoActiveProject)
		return
	}
	i := active.DayIndex(m.calendar, date)
	if i < 0 {
		m.mu.RUnlock()
		m.skip(op, fmt.Errorf("no day on %s", m.calendar.Key(date)))
		return
	}
	days := models.CloneDays(active.Days)
	if err := edit(&days[i]); err != nil {
		m.mu.RUnlock()
		m.skip(op, err)
		return
	}
	id := active.ID
	update := database.Update{
		Fields:    []database.FieldUpdate{database.Set(models.FieldDays, days)},
		IfVersion: m.versionGuard(active),
	}
	m.mu.RUnlock()

	m.dispatch(op, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, update)
	})
}

// AddFileToProject appends a file record to the active project with an array-union
func (m *ProjectionManager) AddFileToProject(file models.FileRecord) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(opAddFile, ErrNoActiveProject)
		return
	}
	id := active.ID
	m.mu.RUnlock()

	if file.ID == "" {
		file.ID = m.newID()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = m.now()
	}
	m.dispatch(opAddFile, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, database.Update{
			Fields: []database.FieldUpdate{database.ArrayUnion(models.FieldFiles, file)},
		})
	})
}

// UpdateFileInProject replaces the file record with the same ID and rewrites the files array
func (m *ProjectionManager) UpdateFileInProject(file models.FileRecord) {
	m.rewriteFiles(opUpdateFile, func(files []models.FileRecord) ([]models.FileRecord, error) {
		for i := range files {
			if files[i].ID == file.ID {
				files[i] = file
				return files, nil
			}
		}
		return nil, fmt.Errorf("file %s not found", file.ID)
	})
}

// RemoveFileFromProject drops the file record with fileID and rewrites the files array
func (m *ProjectionManager) RemoveFileFromProject(fileID string) {
	m.rewriteFiles(opRemoveFile, func(files []models.FileRecord) ([]models.FileRecord, error) {
		out := make([]models.FileRecord, 0, len(files))
		for _, f := range files {
			if f.ID != fileID {
				out = append(out, f)
			}
		}
		if len(out) == len(files) {
			return nil, fmt.Errorf("file %s not found", fileID)
		}
		return out, nil
	})
}

func (m *ProjectionManager) rewriteFiles(op string, edit func([]models.FileRecord) ([]models.FileRecord, error)) {
	m.mu.RLock()
	active := m.activeLocked()
	if active == nil {
		m.mu.RUnlock()
		m.skip(op, ErrNoActiveProject)
		return
	}
	files, err := edit(append([]models.FileRecord{}, active.Files...))
	if err != nil {
		m.mu.RUnlock()
		m.skip(op, err)
		return
	}
	id := active.ID
	update := database.Update{
		Fields:    []database.FieldUpdate{database.Set(models.FieldFiles, files)},
		IfVersion: m.versionGuard(active),
	}
	m.mu.RUnlock()

	m.dispatch(op, id, func(ctx context.Context) error {
		return m.store.Update(ctx, id, update)
	})
}

func (m *ProjectionManager) skip(op string, reason error) {
	log.Printf("⚠️  [REPLICA] %s skipped: %v", op, reason)
}
