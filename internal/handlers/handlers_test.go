package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
	"callsheet/internal/services"
	"callsheet/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

type testServer struct {
	app     *fiber.App
	store   *database.MemoryStore
	manager *services.ProjectionManager
	jwt     *auth.LocalJWTAuth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cal := models.NewCalendar(time.UTC, 12)
	store := database.NewMemoryStore()
	manager := services.NewProjectionManager(store, nil, services.ManagerConfig{Calendar: cal})
	t.Cleanup(manager.Close)

	jwtAuth, err := auth.NewLocalJWTAuth("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create auth: %v", err)
	}
	profiles := services.NewProfileService(database.NewMemoryProfileStore())
	session := auth.NewSession(jwtAuth, profiles)
	cancel := session.Subscribe(manager.HandleIdentityChange)
	t.Cleanup(cancel)

	connManager := services.NewConnectionManager()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, Handlers{
		Schedule: NewScheduleHandler(manager, services.NewCallSheetExporter(cal)),
		Session:  NewSessionHandler(session, services.NewMembershipService(store, manager), profiles, manager),
		Health:   NewHealthHandler(manager, connManager, nil),
	})

	return &testServer{app: app, store: store, manager: manager, jwt: jwtAuth}
}

func (s *testServer) seed(t *testing.T, id string, p models.Project) {
	t.Helper()
	if err := s.store.Insert(id, p); err != nil {
		t.Fatalf("Failed to seed %s: %v", id, err)
	}
}

func (s *testServer) signIn(t *testing.T, userID string) {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Sign-in request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected sign-in 200, got %d", resp.StatusCode)
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)

	// Mutations dispatch in the background; settle before the next assertion
	s.manager.Wait()
	return resp.StatusCode, out
}

func project(owner, code string, members ...string) models.Project {
	return models.Project{
		Code:    code,
		Title:   "Film " + code,
		OwnerID: owner,
		Members: append([]string{owner}, members...),
		Days:    []models.Day{},
		Files:   []models.FileRecord{},
	}
}

type projectionBody struct {
	State    string           `json:"state"`
	UserID   string           `json:"user_id"`
	Projects []models.Project `json:"projects"`
	Active   *models.Project  `json:"active"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/health", nil)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if out["replica"] != "detached" {
		t.Errorf("Expected replica detached, got %v", out["replica"])
	}
}

func TestSignInAttachesReplica(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "alice")

	status, body := s.do(t, "GET", "/api/projects", nil)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var out projectionBody
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if out.State != "attached" || out.UserID != "alice" {
		t.Errorf("Expected attached to alice, got %s/%s", out.State, out.UserID)
	}
	if len(out.Projects) != 1 || out.Active == nil || out.Active.ID != "p1" {
		t.Errorf("Expected p1 active, got %+v", out)
	}

	status, _ = s.do(t, "DELETE", "/api/session", nil)
	if status != fiber.StatusNoContent {
		t.Errorf("Expected 204, got %d", status)
	}
	if s.manager.State() != services.StateDetached {
		t.Error("Expected replica detached after sign-out")
	}
}

func TestSignInRejectsBadToken(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/session", map[string]string{"token": "garbage"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", status)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil || out["error"] == "" {
		t.Errorf("Expected JSON error body, got %s", body)
	}
}

func TestActivityEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "alice")

	status, _ := s.do(t, "POST", "/api/days/2025-12-12/activities", AddActivityRequest{
		Title:       "Cena 1",
		Description: "Abertura",
		Address:     "Rua A, 10",
		Time:        "08:30",
		Responsible: "Ana",
	})
	if status != fiber.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}

	_, body := s.do(t, "GET", "/api/days/2025-12-12/has-activities", nil)
	var has map[string]bool
	if err := json.Unmarshal(body, &has); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !has["has_activities"] {
		t.Error("Expected the day to have activities")
	}

	_, body = s.do(t, "GET", "/api/days/2025-12-12/activities", nil)
	var list struct {
		Date       string         `json:"date"`
		Activities []models.Scene `json:"activities"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if list.Date != "2025-12-12" || len(list.Activities) != 1 {
		t.Fatalf("Expected 1 activity on 2025-12-12, got %+v", list)
	}
	scene := list.Activities[0]
	if scene.Title != "Cena 1" || scene.Number != 1 {
		t.Errorf("Expected scene 1 Cena 1, got %d %s", scene.Number, scene.Title)
	}
	if scene.CallTime == nil || scene.CallTime.Hour() != 8 || scene.CallTime.Minute() != 30 {
		t.Errorf("Expected call time 08:30, got %v", scene.CallTime)
	}

	_, body = s.do(t, "GET", "/api/days/2025-12-13/has-activities", nil)
	has = nil
	if err := json.Unmarshal(body, &has); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if has["has_activities"] {
		t.Error("Expected the next day to be empty")
	}
}

func TestMutationPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		signIn   bool
		projects int
		path     string
		expected int
	}{
		{"not signed in", false, 1, "/api/days/2025-12-12/activities", fiber.StatusUnauthorized},
		{"no active project", true, 2, "/api/days/2025-12-12/activities", fiber.StatusConflict},
		{"bad date", true, 1, "/api/days/12-12-2025/activities", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.seed(t, "p1", project("alice", "AAAA"))
			if tt.projects > 1 {
				s.seed(t, "p2", project("alice", "BBBB"))
			}
			if tt.signIn {
				s.signIn(t, "alice")
			}

			status, _ := s.do(t, "POST", tt.path, AddActivityRequest{Title: "x"})
			if status != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, status)
			}
		})
	}
}

func TestSelectProject(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.seed(t, "p2", project("alice", "BBBB"))
	s.signIn(t, "alice")

	status, body := s.do(t, "PUT", "/api/projects/active", SelectProjectRequest{ProjectID: "p2"})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var active models.Project
	if err := json.Unmarshal(body, &active); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if active.ID != "p2" {
		t.Errorf("Expected p2, got %s", active.ID)
	}

	status, _ = s.do(t, "PUT", "/api/projects/active", SelectProjectRequest{ProjectID: "p9"})
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
}

func TestCreateProject(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t, "alice")

	status, _ := s.do(t, "POST", "/api/projects", CreateProjectRequest{Title: "Noite", Director: "Bia"})
	if status != fiber.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}

	projects := s.manager.Projects()
	if len(projects) != 1 {
		t.Fatalf("Expected 1 project, got %d", len(projects))
	}
	if projects[0].Title != "Noite" || projects[0].OwnerID != "alice" || len(projects[0].Code) == 0 {
		t.Errorf("Unexpected project: %+v", projects[0])
	}
}

func TestJoinEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "bob")

	status, body := s.do(t, "POST", "/api/join", JoinRequest{Code: "AAAA"})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}
	var joined models.Project
	if err := json.Unmarshal(body, &joined); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !joined.HasMember("bob") {
		t.Errorf("Expected bob in members, got %v", joined.Members)
	}
	if len(s.manager.Projects()) != 1 {
		t.Error("Expected the joined project to appear in the projection")
	}

	status, _ = s.do(t, "POST", "/api/join", JoinRequest{Code: "ZZZZ"})
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for unknown code, got %d", status)
	}
}

func TestJoinEndpointTrimsCode(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "bob")

	status, body := s.do(t, "POST", "/api/join", JoinRequest{Code: "  AAAA\n"})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	status, _ = s.do(t, "POST", "/api/join", JoinRequest{Code: "   "})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for a blank code, got %d", status)
	}
}

func TestMembersEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA", "ghost"))
	s.signIn(t, "alice")

	status, body := s.do(t, "GET", "/api/projects/active/members", nil)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var out struct {
		Members []models.Member `json:"members"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(out.Members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(out.Members))
	}
	for _, m := range out.Members {
		if m.Found {
			t.Errorf("Expected no profiles for %s", m.ID)
		}
	}
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t)
	p := project("alice", "AAAA")
	p.Days = []models.Day{{
		ID:      "d1",
		Name:    "Day 1",
		Date:    time.Date(2025, 12, 12, 12, 0, 0, 0, time.UTC),
		Markers: []models.ScheduleMarker{},
		Color:   models.DayColorBlue,
		Scenes:  []models.Scene{{ID: "s1", Number: 1, Title: "Cena 1", Shots: []int{}, Characters: []models.Character{}}},
	}}
	s.seed(t, "p1", p)
	s.signIn(t, "alice")

	req := httptest.NewRequest("GET", "/api/days/2025-12-12/export", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Unexpected content type %s", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("Expected a zip container")
	}

	status, _ := s.do(t, "GET", "/api/days/2025-12-13/export", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for a day without a call sheet, got %d", status)
	}
}

func TestForecastWithoutLocation(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "alice")

	status, _ := s.do(t, "GET", "/api/days/2025-12-12/forecast", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
}

func TestDayEditsValidateInput(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "p1", project("alice", "AAAA"))
	s.signIn(t, "alice")

	status, _ := s.do(t, "PUT", "/api/days/2025-12-12/color", SetColorRequest{Color: "teal"})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for unknown color, got %d", status)
	}

	status, _ = s.do(t, "PUT", "/api/days/2025-12-12/markers", UpdateMarkersRequest{
		Markers: []models.ScheduleMarker{{Activity: "nap"}},
	})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for unknown marker, got %d", status)
	}
}
