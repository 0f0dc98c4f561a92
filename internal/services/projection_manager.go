package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/logging"
	"callsheet/internal/models"
	"callsheet/pkg/auth"

	"github.com/google/uuid"
)

// ReplicaState is the lifecycle state of a projection replica
type ReplicaState int

const (
	// StateDetached means no user is signed in and no subscription is live
	StateDetached ReplicaState = iota
	// StateAttached means the replica follows the projects of one user
	StateAttached
)

func (s ReplicaState) String() string {
	if s == StateAttached {
		return "attached"
	}
	return "detached"
}

// MarshalText renders the state by name in JSON
func (s ReplicaState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Projection is a point-in-time copy of the replica handed to listeners
type Projection struct {
	State    ReplicaState     `json:"state"`
	UserID   string           `json:"user_id,omitempty"`
	Projects []models.Project `json:"projects"`
	Active   *models.Project  `json:"active,omitempty"`
	Revision uint64           `json:"revision"`
}

// ManagerConfig holds the projection manager settings
type ManagerConfig struct {
	Calendar          models.Calendar
	ConditionalWrites bool          // Guard full-array rewrites with the projected version
	WriteTimeout      time.Duration // Per dispatched write, default 30s
	ForecastTimeout   time.Duration // Per forecast fetch, default 15s
}

// ProjectionManager keeps a live, read-mostly copy of every project the signed-in
// user belongs to and turns edits into remote writes.
//
// Snapshots replace the projection wholesale. Mutations compute their write from the
// current projection and return immediately; the store call runs in the background
// and the next snapshot reflects its outcome.
type ProjectionManager struct {
	store        database.DocumentStore
	calendar     models.Calendar
	conditional  atomic.Bool
	writeTimeout time.Duration
	forecasts    *ForecastCache
	replicaID    string
	newID        func() string
	now          func() time.Time

	mu         sync.RWMutex
	state      ReplicaState
	userID     string
	sub        database.Subscription
	generation uint64
	projects   []models.Project
	activeID   string
	revision   uint64
	logger     *slog.Logger

	listenerMu   sync.Mutex
	listeners    map[int]func(Projection)
	nextListener int

	pending sync.WaitGroup
}

// NewProjectionManager creates a detached manager.
// provider may be nil, in which case every forecast lookup reports ErrForecastUnavailable.
func NewProjectionManager(store database.DocumentStore, provider ForecastProvider, cfg ManagerConfig) *ProjectionManager {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.Calendar.Location == nil {
		cfg.Calendar = models.NewCalendar(nil, cfg.Calendar.AnchorHour)
	}

	replicaID := uuid.New().String()
	m := &ProjectionManager{
		store:        store,
		calendar:     cfg.Calendar,
		writeTimeout: cfg.WriteTimeout,
		replicaID:    replicaID,
		newID:        func() string { return uuid.New().String() },
		now:          time.Now,
		listeners:    make(map[int]func(Projection)),
		logger:       logging.WithReplica(replicaID, ""),
	}
	m.conditional.Store(cfg.ConditionalWrites)
	m.forecasts = NewForecastCache(provider, m, cfg.Calendar, cfg.ForecastTimeout)
	return m
}

// SetConditionalWrites switches version guards on full-array rewrites.
// Writes already dispatched keep the guard they were built with.
func (m *ProjectionManager) SetConditionalWrites(enabled bool) {
	if m.conditional.Swap(enabled) != enabled {
		log.Printf("🔄 [REPLICA] Conditional writes set to %v", enabled)
	}
}

// HandleIdentityChange drives the lifecycle from sign-in and sign-out events
func (m *ProjectionManager) HandleIdentityChange(change auth.IdentityChange) {
	if change.Current == nil {
		m.Detach()
		return
	}
	if err := m.Attach(context.Background(), change.Current.ID); err != nil {
		log.Printf("⚠️  [REPLICA] Failed to attach to user %s: %v", change.Current.ID, err)
	}
}

// Attach tears down any previous subscription and starts following userID's projects.
// The subscription outlives ctx; it ends on Detach or the next Attach.
func (m *ProjectionManager) Attach(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNotSignedIn
	}

	m.mu.Lock()
	m.detachLocked()
	m.state = StateAttached
	m.userID = userID
	m.logger = logging.WithReplica(m.replicaID, userID)
	gen := m.generation
	m.mu.Unlock()
	replicaAttached.Set(1)

	// The store may deliver the first snapshot synchronously, so the lock is released here
	sub, err := m.store.Subscribe(context.WithoutCancel(ctx), database.MembersContain(userID), func(snap database.Snapshot) {
		m.applySnapshot(gen, snap)
	})
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.detachLocked()
		}
		m.mu.Unlock()
		m.notify()
		return fmt.Errorf("failed to subscribe to projects: %w", err)
	}

	m.mu.Lock()
	if m.generation != gen {
		// Detached or re-attached while subscribing
		m.mu.Unlock()
		sub.Cancel()
		return nil
	}
	m.sub = sub
	m.mu.Unlock()

	log.Printf("✅ [REPLICA] Attached to user %s", userID)
	return nil
}

// Detach cancels the subscription and clears the projection. It is idempotent.
// Writes already dispatched are not cancelled.
func (m *ProjectionManager) Detach() {
	m.mu.Lock()
	wasAttached := m.state == StateAttached
	m.detachLocked()
	m.mu.Unlock()

	if wasAttached {
		log.Printf("🔌 [REPLICA] Detached")
	}
	m.notify()
}

func (m *ProjectionManager) detachLocked() {
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	m.generation++
	m.state = StateDetached
	m.userID = ""
	m.projects = nil
	m.activeID = ""
	m.revision++
	m.logger = logging.WithReplica(m.replicaID, "")

	replicaAttached.Set(0)
	projectsVisible.Set(0)
}

// applySnapshot replaces the projection with a decoded snapshot.
// Deliveries for a replaced subscription are ignored.
func (m *ProjectionManager) applySnapshot(gen uint64, snap database.Snapshot) {
	results := database.DecodeSnapshot(snap)
	projects := make([]models.Project, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			documentsDropped.Inc()
			log.Printf("⚠️  [REPLICA] Dropping project document %s: %v", r.ID, r.Err)
			continue
		}
		projects = append(projects, r.Project)
	}

	m.mu.Lock()
	if gen != m.generation || m.state != StateAttached {
		m.mu.Unlock()
		snapshotsIgnored.Inc()
		return
	}

	m.projects = projects
	switch {
	case m.activeID != "":
		// Re-resolve by identity; a remote deletion clears the selection
		if indexOfProject(projects, m.activeID) < 0 {
			m.logger.Info("active project no longer visible", "project_id", m.activeID)
			m.activeID = ""
		}
	case len(projects) == 1:
		m.activeID = projects[0].ID
	}
	m.revision++
	m.mu.Unlock()

	snapshotsApplied.Inc()
	projectsVisible.Set(float64(len(projects)))
	m.notify()
}

// OnChange registers fn to receive the projection after every applied snapshot and detach.
// fn runs on the delivering goroutine and must not block on manager writes.
func (m *ProjectionManager) OnChange(fn func(Projection)) (cancel func()) {
	m.listenerMu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

func (m *ProjectionManager) notify() {
	m.listenerMu.Lock()
	fns := make([]func(Projection), 0, len(m.listeners))
	for id := 1; id <= m.nextListener; id++ {
		if fn, ok := m.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.listenerMu.Unlock()

	if len(fns) == 0 {
		return
	}
	view := m.Snapshot()
	for _, fn := range fns {
		fn(view)
	}
}

// Snapshot returns a copy of the whole projection
func (m *ProjectionManager) Snapshot() Projection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := Projection{
		State:    m.state,
		UserID:   m.userID,
		Projects: m.projectsCopyLocked(),
		Revision: m.revision,
	}
	if active := m.activeLocked(); active != nil {
		view.Active = active.Clone()
	}
	return view
}

// State returns the lifecycle state
func (m *ProjectionManager) State() ReplicaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// UserID returns the attached user, or "" when detached
func (m *ProjectionManager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// CurrentUserID implements IdentityProvider
func (m *ProjectionManager) CurrentUserID() string {
	return m.UserID()
}

// Projects returns a copy of every visible project, in store order
func (m *ProjectionManager) Projects() []models.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectsCopyLocked()
}

// ActiveProject returns a copy of the selected project, or nil
func (m *ProjectionManager) ActiveProject() *models.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked().Clone()
}

// SelectProject makes projectID the active project
func (m *ProjectionManager) SelectProject(projectID string) error {
	m.mu.Lock()
	if m.state != StateAttached {
		m.mu.Unlock()
		return ErrNotSignedIn
	}
	if indexOfProject(m.projects, projectID) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	m.activeID = projectID
	m.revision++
	m.mu.Unlock()

	m.notify()
	return nil
}

// Calendar returns the calendar used for day matching
func (m *ProjectionManager) Calendar() models.Calendar {
	return m.calendar
}

// Forecasts returns the manager's forecast cache
func (m *ProjectionManager) Forecasts() *ForecastCache {
	return m.forecasts
}

// GetForecast looks up the forecast for day through the manager's cache
func (m *ProjectionManager) GetForecast(day time.Time, callback func(*models.DayForecast)) {
	m.forecasts.GetForecast(day, callback)
}

// Wait blocks until every dispatched write has completed
func (m *ProjectionManager) Wait() {
	m.pending.Wait()
}

// Close detaches and waits for pending writes
func (m *ProjectionManager) Close() {
	m.Detach()
	m.Wait()
}

func (m *ProjectionManager) activeLocked() *models.Project {
	if m.activeID == "" {
		return nil
	}
	if i := indexOfProject(m.projects, m.activeID); i >= 0 {
		return &m.projects[i]
	}
	return nil
}

func (m *ProjectionManager) projectsCopyLocked() []models.Project {
	out := make([]models.Project, len(m.projects))
	for i := range m.projects {
		out[i] = *m.projects[i].Clone()
	}
	return out
}

func (m *ProjectionManager) projectLocked(projectID string) *models.Project {
	if i := indexOfProject(m.projects, projectID); i >= 0 {
		return &m.projects[i]
	}
	return nil
}

// versionGuard returns the precondition for a full-array rewrite of p
func (m *ProjectionManager) versionGuard(p *models.Project) *int64 {
	if !m.conditional.Load() {
		return nil
	}
	v := p.Version
	return &v
}

// dispatch runs one store write in the background. Callers must not hold m.mu.
// Failures are logged and counted; nothing is retried and no caller is told.
func (m *ProjectionManager) dispatch(op, projectID string, write func(ctx context.Context) error) {
	m.mu.RLock()
	base := m.logger
	m.mu.RUnlock()
	logger := logging.WithOperation(logging.WithProject(base, projectID), op)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
		defer cancel()

		start := time.Now()
		err := write(ctx)
		observeWrite(op, err, time.Since(start))
		if err != nil {
			logger.Error("write failed", "error", err)
			return
		}
		logger.Debug("write applied", "duration", time.Since(start))
	}()
}

func indexOfProject(projects []models.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}
