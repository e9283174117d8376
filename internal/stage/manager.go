package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pablasso/stagehand/internal/logging"
)

// DefaultFlowDir is the per-project directory holding all stages.
const DefaultFlowDir = "flow"

const stagePrefix = "stage-"

// Summary is one row of a stage listing.
type Summary struct {
	Num      int
	Workflow string
	Query    string
	Status   string
}

// Manager creates, loads and enumerates stages under a project's flow dir.
type Manager struct {
	ProjectDir string
	FlowDir    string
	log        *logging.Logger
}

// NewManager creates a Manager for projectDir. flowDir defaults to "flow"
// when empty. logger may be nil.
func NewManager(projectDir, flowDir string, logger *logging.Logger) (*Manager, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	if flowDir == "" {
		flowDir = DefaultFlowDir
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		ProjectDir: abs,
		FlowDir:    filepath.Join(abs, flowDir),
		log:        logger,
	}, nil
}

func (m *Manager) stageDir(num int) string {
	return filepath.Join(m.FlowDir, fmt.Sprintf("%s%d", stagePrefix, num))
}

// LatestNum returns the highest existing stage number, 0 when none exist.
// Gaps and foreign directory names are ignored.
func (m *Manager) LatestNum() int {
	entries, err := os.ReadDir(m.FlowDir)
	if err != nil {
		return 0
	}
	latest := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), stagePrefix) {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), stagePrefix))
		if err != nil {
			continue
		}
		if num > latest {
			latest = num
		}
	}
	return latest
}

// Create allocates the next stage directory with a running meta and an
// empty artifacts dir.
func (m *Manager) Create(workflow, query string) (*Stage, error) {
	num := m.LatestNum() + 1
	dir := m.stageDir(num)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stage dir: %w", err)
	}

	s := &Stage{
		Dir: dir,
		Meta: Meta{
			Stage:     num,
			Workflow:  workflow,
			Query:     query,
			Status:    StatusRunning,
			StartedAt: nowISO(),
		},
	}
	if err := s.saveMeta(); err != nil {
		return nil, err
	}
	m.log.Info("created stage", "stage", num, "workflow", workflow)
	return s, nil
}

// Load reads a stage by number. Returns nil (no error) when the stage does
// not exist.
func (m *Manager) Load(num int) (*Stage, error) {
	dir := m.stageDir(num)
	metaPath := filepath.Join(dir, "meta.yaml")

	var meta Meta
	if err := readYAML(metaPath, &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Stage{Dir: dir, Meta: meta}, nil
}

// LoadLatest loads the highest-numbered stage, nil when none exist.
func (m *Manager) LoadLatest() (*Stage, error) {
	num := m.LatestNum()
	if num == 0 {
		return nil, nil
	}
	return m.Load(num)
}

// FindResumable returns the most recent non-terminal stage, nil when every
// stage has finished.
func (m *Manager) FindResumable() (*Stage, error) {
	for num := m.LatestNum(); num > 0; num-- {
		s, err := m.Load(num)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		switch s.Status() {
		case StatusRunning, StatusPartial, StatusPaused:
			return s, nil
		}
	}
	return nil, nil
}

// List returns summaries for all stages in ascending order.
func (m *Manager) List() ([]Summary, error) {
	var result []Summary
	for num := 1; num <= m.LatestNum(); num++ {
		s, err := m.Load(num)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		query := s.Meta.Query
		if len(query) > 100 {
			query = query[:100]
		}
		result = append(result, Summary{
			Num:      num,
			Workflow: s.Meta.Workflow,
			Query:    query,
			Status:   s.Meta.Status,
		})
	}
	return result, nil
}
