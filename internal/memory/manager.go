package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/genc-murat/crystalsignal/internal/config"
	"github.com/genc-murat/crystalsignal/internal/core/models"
	"github.com/genc-murat/crystalsignal/internal/metrics"
)

// DefaultGroup receives registrations made without an explicit group.
const DefaultGroup = "default"

// Manager owns a registry of resource groups and the last MemoryStats
// computed from it. Stats are recomputed eagerly after every mutation, so
// reads never pay for aggregation. A *Manager may be shared; the registry is
// guarded by a RWMutex and the snapshot is replaced in one assignment.
type Manager struct {
	groups map[string]*models.ResourceGroup
	stats  models.MemoryStats
	mu     sync.RWMutex

	maxMemoryBytes     int
	memoryLimit        int
	adaptiveManagement bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records the duration of every mutating call.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(opts ...Option) *Manager {
	return NewManagerWithLimits(models.DefaultMaxMemoryBytes, models.DefaultMaxMemoryBytes, opts...)
}

func NewManagerWithMemoryLimit(maxMemoryBytes int, opts ...Option) *Manager {
	return NewManagerWithLimits(maxMemoryBytes, maxMemoryBytes, opts...)
}

// NewManagerWithLimits sets a hard budget and a separate adaptive-policy limit.
func NewManagerWithLimits(maxMemoryBytes, memoryLimit int, opts ...Option) *Manager {
	m := &Manager{
		groups:         make(map[string]*models.ResourceGroup),
		maxMemoryBytes: maxMemoryBytes,
		memoryLimit:    memoryLimit,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func NewManagerFromConfig(cfg config.MemoryConfig, opts ...Option) (*Manager, error) {
	maxBytes, err := cfg.MaxMemoryBytes()
	if err != nil {
		return nil, fmt.Errorf("max_memory: %w", err)
	}
	limit, err := cfg.MemoryLimitBytes()
	if err != nil {
		return nil, fmt.Errorf("memory_limit: %w", err)
	}

	m := NewManagerWithLimits(maxBytes, limit, opts...)
	m.adaptiveManagement = cfg.AdaptiveManagement
	return m, nil
}

// CreateGroup inserts an empty group, silently replacing any group with the
// same name.
func (m *Manager) CreateGroup(name string) (string, error) {
	defer m.observe("create_group", m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[name] = models.NewResourceGroup(name, m.now())
	m.updateStats()
	return name, nil
}

// AddCell registers one reactive cell in group and hands the handle back
// unchanged.
//
// An unknown group is a silent no-op that still succeeds.
func AddCell[T any](m *Manager, group string, handle T) (T, error) {
	m.register(group, (*models.ResourceGroup).AddCell, "add_cell")
	return handle, nil
}

// AddComputation registers one derived computation in group and hands the
// handle back unchanged. Unknown groups behave as in AddCell.
func AddComputation[T any](m *Manager, group string, handle T) (T, error) {
	m.register(group, (*models.ResourceGroup).AddComputation, "add_computation")
	return handle, nil
}

func AddCellToDefault[T any](m *Manager, handle T) (T, error) {
	return AddCell(m, DefaultGroup, handle)
}

func AddComputationToDefault[T any](m *Manager, handle T) (T, error) {
	return AddComputation(m, DefaultGroup, handle)
}

func (m *Manager) register(group string, add func(*models.ResourceGroup), op string) {
	defer m.observe(op, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.groups[group]; ok {
		add(g)
	} else {
		m.logger.Debug("registration to unknown group ignored", "group", group, "operation", op)
	}
	m.updateStats()
}

func (m *Manager) RemoveCell(group string) error {
	return m.unregister(group, (*models.ResourceGroup).RemoveCell, "cell")
}

func (m *Manager) RemoveComputation(group string) error {
	return m.unregister(group, (*models.ResourceGroup).RemoveComputation, "computation")
}

func (m *Manager) unregister(group string, remove func(*models.ResourceGroup) bool, kind string) error {
	defer m.observe("remove_"+kind, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[group]
	if !ok {
		return models.NewMemoryManagementFailed("group not found: " + group)
	}
	if !remove(g) {
		return models.NewUpdateFailed(fmt.Sprintf("no %s registered in group %s", kind, group))
	}
	m.updateStats()
	return nil
}

// RemoveGroup deletes a group and its counts. Unknown names are ignored.
func (m *Manager) RemoveGroup(name string) error {
	defer m.observe("remove_group", m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.groups, name)
	m.updateStats()
	return nil
}

func (m *Manager) CleanupGroup(name string) error {
	return m.RemoveGroup(name)
}

// CleanupEmptyGroups removes every group holding no handles and returns how
// many were removed.
func (m *Manager) CleanupEmptyGroups() (int, error) {
	defer m.observe("cleanup_empty_groups", m.now())

	removed := m.removeWhere(func(g *models.ResourceGroup) bool {
		return g.IsEmpty()
	})
	if removed > 0 {
		m.logger.Debug("removed empty groups", "count", removed)
	}
	return removed, nil
}

// CleanupLowPriorityGroups is the adaptive policy's cleanup step. Low
// priority currently means empty.
func (m *Manager) CleanupLowPriorityGroups() (int, error) {
	return m.CleanupEmptyGroups()
}

func (m *Manager) ForceCleanupAll() error {
	defer m.observe("force_cleanup_all", m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.groups)
	m.groups = make(map[string]*models.ResourceGroup)
	m.updateStats()
	m.logger.Debug("forced cleanup of all groups", "count", n)
	return nil
}

func (m *Manager) CleanupAll() error {
	return m.ForceCleanupAll()
}

// AdaptiveCleanup compares the two configured thresholds, not live usage:
// it only cleans when the hard budget exceeds the adaptive limit.
func (m *Manager) AdaptiveCleanup() error {
	if m.maxMemoryBytes > m.memoryLimit {
		_, err := m.CleanupLowPriorityGroups()
		return err
	}
	return nil
}

func (m *Manager) UpdateMemoryStats() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateStats()
	return nil
}

// removeWhere deletes matching groups and recomputes stats once.
func (m *Manager) removeWhere(match func(*models.ResourceGroup) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for name, g := range m.groups {
		if match(g) {
			delete(m.groups, name)
			removed++
		}
	}
	m.updateStats()
	return removed
}

// updateStats must be called with m.mu held for writing.
func (m *Manager) updateStats() {
	var cells, computations int
	for _, g := range m.groups {
		cells += g.CellCount
		computations += g.ComputationCount
	}
	m.stats = models.NewMemoryStats(cells, computations, len(m.groups))
}

func (m *Manager) observe(op string, start time.Time) {
	if m.metrics != nil {
		m.metrics.AddOperation(op, m.now().Sub(start))
	}
}

func (m *Manager) GetStats() models.MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) GetMemoryStats() models.MemoryStats {
	return m.GetStats()
}

func (m *Manager) IsMemoryWithinLimits() bool {
	return m.GetStats().EstimatedMemoryBytes <= m.maxMemoryBytes
}

func (m *Manager) MemoryUsagePercentage() float64 {
	return float64(m.GetStats().EstimatedMemoryBytes) / float64(m.maxMemoryBytes) * 100
}

func (m *Manager) GroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// Group returns a copy of the named group.
func (m *Manager) Group(name string) (models.ResourceGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[name]
	if !ok {
		return models.ResourceGroup{}, false
	}
	return *g, true
}

// Groups returns copies of every group ordered by name.
func (m *Manager) Groups() []models.ResourceGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]models.ResourceGroup, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Name < groups[j].Name
	})
	return groups
}

func (m *Manager) TotalCells() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, g := range m.groups {
		total += g.CellCount
	}
	return total
}

func (m *Manager) TotalComputations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, g := range m.groups {
		total += g.ComputationCount
	}
	return total
}

func (m *Manager) MaxMemoryBytes() int {
	return m.maxMemoryBytes
}

func (m *Manager) MemoryLimit() int {
	return m.memoryLimit
}

func (m *Manager) EnableAdaptiveManagement() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adaptiveManagement = true
	return true
}

func (m *Manager) AdaptiveManagementEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adaptiveManagement
}
