// Package orchestrator implements the Mass Orchestrator: it runs Discovery
// across a subnet, then per device runs the Profile Matcher and either a
// shallow or full capability scan, producing a priority-bucketed report,
// per spec.md §4.6. Its Manager gives a mass run the same
// start/pause/resume/cancel/observe lifecycle as a single host sweep.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/discovery"
	"github.com/upnp-cli/upnptoolkit/internal/matcher"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// DefaultConcurrency is the global cap on devices assessed in flight, per
// spec.md §4.3's mass-variant note.
const DefaultConcurrency = 16

// RunStatus is the lifecycle state of a mass run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCancelled RunStatus = "cancelled"
	StatusCompleted RunStatus = "completed"
)

// Config describes one mass-run's parameters.
type Config struct {
	CIDR          string
	Timeout       time.Duration
	Aggressive    bool
	FullProfiling bool
	SecurityScan  bool
	Concurrency   int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Progress summarizes a mass run's current position.
type Progress struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Active    int       `json:"active"`
	Status    RunStatus `json:"status"`
}

// Report is the final bucketed output of a completed mass run.
type Report struct {
	RunID       string                        `json:"runId"`
	Assessments []upnpmodel.TargetAssessment  `json:"assessments"`
	High        int                           `json:"high"`
	Medium      int                           `json:"medium"`
	Low         int                           `json:"low"`
	Unknown     int                           `json:"unknown"`
}

// Snapshot is a point-in-time view of a mass run.
type Snapshot struct {
	RunID       string                        `json:"runId"`
	Config      Config                        `json:"config"`
	Progress    Progress                      `json:"progress"`
	Assessments []upnpmodel.TargetAssessment  `json:"assessments"`
	Updated     time.Time                     `json:"updated"`
}

// Update is one incremental assessment result.
type Update struct {
	Assessment upnpmodel.TargetAssessment `json:"assessment"`
	Progress   Progress                   `json:"progress"`
}

var (
	// ErrRunInProgress indicates a mass run is already active.
	ErrRunInProgress = errors.New("mass run already in progress")
	// ErrNoActiveRun indicates there is no running or paused run to control.
	ErrNoActiveRun = errors.New("no active mass run")
)

// Manager orchestrates mass runs and tracks their progress.
type Manager struct {
	mu       sync.Mutex
	runID    string
	config   Config
	status   RunStatus
	results  map[string]upnpmodel.TargetAssessment
	order    []string
	total    int
	completed int
	active    int

	runCtx    context.Context
	runCancel context.CancelFunc

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	store  matcher.Store
	logger *zap.Logger

	updateHandler func(Update)
	statusHandler func(Progress)
}

// NewManager creates a Manager backed by store for profile matching.
func NewManager(store matcher.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		status:  StatusIdle,
		results: make(map[string]upnpmodel.TargetAssessment),
		store:   store,
		logger:  logger,
	}
	m.pauseCond = sync.NewCond(&m.pauseMu)
	return m
}

// Start begins a mass run: Discovery, then per-device assessment bounded by
// cfg.Concurrency.
func (m *Manager) Start(ctx context.Context, cfg Config, update func(Update), status func(Progress)) (Snapshot, error) {
	cfg = cfg.withDefaults()

	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusPaused {
		snapshot := m.snapshotLocked()
		m.mu.Unlock()
		return snapshot, ErrRunInProgress
	}
	if m.runCancel != nil {
		m.runCancel()
	}
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.runID = uuid.NewString()
	m.config = cfg
	m.results = make(map[string]upnpmodel.TargetAssessment)
	m.order = nil
	m.total = 0
	m.completed = 0
	m.active = 0
	m.paused = false
	m.updateHandler = update
	m.statusHandler = status
	m.status = StatusRunning
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.emitStatus(snapshot.Progress)

	go m.run(m.runCtx, cfg)

	return snapshot, nil
}

// Pause temporarily halts an active run before its next device is assessed.
func (m *Manager) Pause() (Progress, error) {
	m.mu.Lock()
	if m.status != StatusRunning {
		progress := m.snapshotLocked().Progress
		m.mu.Unlock()
		return progress, ErrNoActiveRun
	}
	m.pauseMu.Lock()
	m.paused = true
	m.pauseMu.Unlock()
	m.status = StatusPaused
	progress := m.snapshotLocked().Progress
	m.mu.Unlock()

	m.emitStatus(progress)
	return progress, nil
}

// Resume continues a paused run.
func (m *Manager) Resume() (Progress, error) {
	m.mu.Lock()
	if m.status != StatusPaused {
		progress := m.snapshotLocked().Progress
		m.mu.Unlock()
		return progress, ErrNoActiveRun
	}
	m.pauseMu.Lock()
	m.paused = false
	m.pauseCond.Broadcast()
	m.pauseMu.Unlock()
	m.status = StatusRunning
	progress := m.snapshotLocked().Progress
	m.mu.Unlock()

	m.emitStatus(progress)
	return progress, nil
}

// Cancel stops the active run entirely.
func (m *Manager) Cancel() (Progress, error) {
	m.mu.Lock()
	if m.status != StatusRunning && m.status != StatusPaused {
		progress := m.snapshotLocked().Progress
		m.mu.Unlock()
		return progress, ErrNoActiveRun
	}
	if m.runCancel != nil {
		m.runCancel()
	}
	m.pauseMu.Lock()
	m.paused = false
	m.pauseCond.Broadcast()
	m.pauseMu.Unlock()
	m.status = StatusCancelled
	progress := m.snapshotLocked().Progress
	m.mu.Unlock()

	m.emitStatus(progress)
	return progress, nil
}

// GetSnapshot returns the latest snapshot of the run's state.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Report builds the priority-bucketed report from the current assessments,
// per spec.md §4.6, usable mid-run or after completion. Assessments are
// sorted by PriorityScore descending, ties broken by IP, per spec.md §5's
// ordering guarantee.
func (m *Manager) Report() Report {
	snapshot := m.GetSnapshot()
	assessments := append([]upnpmodel.TargetAssessment(nil), snapshot.Assessments...)
	sort.SliceStable(assessments, func(i, j int) bool {
		if assessments[i].PriorityScore != assessments[j].PriorityScore {
			return assessments[i].PriorityScore > assessments[j].PriorityScore
		}
		ipI, ipJ := net.ParseIP(assessments[i].Device.IP).To4(), net.ParseIP(assessments[j].Device.IP).To4()
		if ipI != nil && ipJ != nil {
			return bytes.Compare(ipI, ipJ) < 0
		}
		return assessments[i].Device.IP < assessments[j].Device.IP
	})

	report := Report{RunID: snapshot.RunID, Assessments: assessments}
	for _, a := range assessments {
		switch upnpmodel.Bucket(a.PriorityScore) {
		case upnpmodel.BucketHigh:
			report.High++
		case upnpmodel.BucketMedium:
			report.Medium++
		case upnpmodel.BucketLow:
			report.Low++
		default:
			report.Unknown++
		}
	}
	return report
}

// Export serializes the current snapshot to JSON.
func (m *Manager) Export() ([]byte, error) {
	return json.MarshalIndent(m.GetSnapshot(), "", "  ")
}

func (m *Manager) run(ctx context.Context, cfg Config) {
	result, err := discovery.Run(ctx, discovery.Config{
		CIDR:       cfg.CIDR,
		Timeout:    cfg.Timeout,
		Aggressive: cfg.Aggressive,
		Logger:     m.logger,
	})
	if err != nil {
		m.logger.Warn("orchestrator: discovery failed", zap.Error(err))
	}

	m.mu.Lock()
	m.total = len(result.Devices)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.emitStatus(snapshot.Progress)

	limit := cfg.Concurrency
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

Devices:
	for _, device := range result.Devices {
		select {
		case <-ctx.Done():
			break Devices
		default:
		}

		sem <- struct{}{}
		m.adjustActive(1)
		wg.Add(1)
		go func(d upnpmodel.Device) {
			defer wg.Done()
			defer func() {
				<-sem
				m.adjustActive(-1)
			}()
			m.assessOne(ctx, d, cfg)
		}(device)
	}

	wg.Wait()

	m.mu.Lock()
	if ctx.Err() == nil && m.status != StatusCancelled {
		m.status = StatusCompleted
	}
	snapshot = m.snapshotLocked()
	m.mu.Unlock()
	m.emitStatus(snapshot.Progress)
}

func (m *Manager) assessOne(ctx context.Context, device upnpmodel.Device, cfg Config) {
	if err := m.waitWhilePaused(ctx); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	assessment := Assess(ctx, device, m.store, AssessConfig{FullProfile: cfg.FullProfiling, SecurityScan: cfg.SecurityScan, Timeout: cfg.Timeout, Logger: m.logger})
	key := identityKey(device)

	m.mu.Lock()
	if _, exists := m.results[key]; !exists {
		m.order = append(m.order, key)
	}
	m.results[key] = assessment
	m.completed++
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.emitUpdate(assessment, snapshot.Progress)
}

func (m *Manager) waitWhilePaused(ctx context.Context) error {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	for m.paused {
		m.pauseCond.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (m *Manager) adjustActive(delta int) {
	m.mu.Lock()
	m.active += delta
	snapshot := m.snapshotLocked()
	m.mu.Unlock()
	m.emitStatus(snapshot.Progress)
}

func (m *Manager) emitUpdate(assessment upnpmodel.TargetAssessment, progress Progress) {
	if h := m.updateHandler; h != nil {
		h(Update{Assessment: assessment, Progress: progress})
	}
}

func (m *Manager) emitStatus(progress Progress) {
	if h := m.statusHandler; h != nil {
		h(progress)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	assessments := make([]upnpmodel.TargetAssessment, 0, len(m.order))
	for _, key := range m.order {
		if a, ok := m.results[key]; ok {
			assessments = append(assessments, a)
		}
	}
	return Snapshot{
		RunID:       m.runID,
		Config:      m.config,
		Progress:    Progress{Total: m.total, Completed: m.completed, Active: m.active, Status: m.status},
		Assessments: assessments,
		Updated:     time.Now().UTC(),
	}
}

func identityKey(device upnpmodel.Device) string {
	id := upnpmodel.IdentityOf(device)
	if id.UDN != "" {
		return "udn:" + id.UDN
	}
	if id.IP != "" {
		return "ipport:" + id.IP + ":" + strconv.Itoa(id.Port)
	}
	return "name:" + id.Manufacturer + ":" + id.ModelName + ":" + id.FriendlyName
}
