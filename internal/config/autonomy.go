package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Mode is the operator-set autonomy policy.
type Mode string

const (
	ModeYOLO     Mode = "yolo"
	ModeApproval Mode = "approval"
	ModePlan     Mode = "plan"
)

// RiskLevel mirrors incident.RiskLevel without importing pkg/incident, to
// keep the config package free of a dependency on the domain model.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AutonomyConfig is the process-wide, hot-reloadable policy consulted by the
// Autonomy Gate and the Command Planner on every decision (spec.md §3).
type AutonomyConfig struct {
	Mode                       Mode                 `yaml:"mode"`
	ConfidenceThreshold        float64              `yaml:"confidence_threshold"`
	RiskMatrix                map[RiskLevel][]string `yaml:"risk_matrix"`
	ApprovalRequiredFor        []RiskLevel          `yaml:"approval_required_for"`
	DestructiveOperationsEnabled bool               `yaml:"destructive_operations_enabled"`
	DryRunMode                 bool                 `yaml:"dry_run_mode"`
	EmergencyStop              bool                 `yaml:"emergency_stop"`
	// TrustAllYOLO relaxes the per-risk confidence thresholds in yolo mode to
	// "any action exists" per spec.md §4.5 / §9's Open Question resolution.
	// Off by default: the per-risk threshold policy is the default reading.
	TrustAllYOLO bool `yaml:"trust_all_yolo"`
}

// ApprovalRequiredForRisk reports whether risk requires an ApprovalRequest
// under the current policy.
func (a AutonomyConfig) ApprovalRequiredForRisk(risk RiskLevel) bool {
	for _, r := range a.ApprovalRequiredFor {
		if r == risk {
			return true
		}
	}
	return false
}

// DefaultAutonomyConfig is the conservative starting policy: plan mode,
// nothing auto-executes, and approval is required for medium/high risk once
// an operator switches to approval mode.
func DefaultAutonomyConfig() AutonomyConfig {
	return AutonomyConfig{
		Mode:                ModePlan,
		ConfidenceThreshold: 0.7,
		RiskMatrix: map[RiskLevel][]string{
			RiskLow:    {"get", "describe", "logs", "top"},
			RiskMedium: {"scale_deployment", "restart_pod", "rollback_deployment", "patch_memory_limit", "patch_cpu_limit", "set_image"},
			RiskHigh:   {"apply_manifest"},
		},
		ApprovalRequiredFor:          []RiskLevel{RiskMedium, RiskHigh},
		DestructiveOperationsEnabled: false,
		DryRunMode:                   false,
		EmergencyStop:                false,
		TrustAllYOLO:                 false,
	}
}

// AutonomyStore holds the current AutonomyConfig behind an atomic pointer so
// readers (Autonomy Gate, Planner) never block on a lock, per Design Note
// "read-copy-update snapshot: readers pay no lock, writers replace the
// pointer atomically".
type AutonomyStore struct {
	current atomic.Pointer[AutonomyConfig]
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewAutonomyStore loads the initial policy from path (falling back to
// DefaultAutonomyConfig if the file does not yet exist) and starts watching
// it for changes.
func NewAutonomyStore(path string, logger *zap.Logger) (*AutonomyStore, error) {
	s := &AutonomyStore{path: path, logger: logger}

	initial, err := readAutonomyFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fallback := DefaultAutonomyConfig()
			initial = &fallback
		} else {
			return nil, fmt.Errorf("failed to load autonomy config: %w", err)
		}
	}

	if err := applyAutonomyEnvOverrides(initial); err != nil {
		return nil, fmt.Errorf("failed to apply autonomy environment overrides: %w", err)
	}
	s.current.Store(initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	s.watcher = watcher

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("autonomy config directory not watchable, hot-reload disabled", zap.Error(err), zap.String("dir", dir))
		return s, nil
	}

	go s.watchLoop()
	return s, nil
}

func (s *AutonomyStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := readAutonomyFile(s.path)
			if err != nil {
				s.logger.Error("failed to reload autonomy config, keeping previous snapshot", zap.Error(err))
				continue
			}
			s.current.Store(cfg)
			s.logger.Info("autonomy config reloaded", zap.String("mode", string(cfg.Mode)))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("autonomy config watcher error", zap.Error(err))
		}
	}
}

// Get returns a consistent snapshot of the current policy. The returned
// value is immutable; callers never see a torn read.
func (s *AutonomyStore) Get() AutonomyConfig {
	return *s.current.Load()
}

// Set replaces the current policy, e.g. from an operator API call, and
// persists it to disk so it survives a restart and is picked up by peers
// watching the same file.
func (s *AutonomyStore) Set(cfg AutonomyConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal autonomy config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist autonomy config: %w", err)
	}
	s.current.Store(&cfg)
	return nil
}

// Close stops the file watcher.
func (s *AutonomyStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func readAutonomyFile(path string) (*AutonomyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultAutonomyConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse autonomy config: %w", err)
	}
	return &cfg, nil
}

// applyAutonomyEnvOverrides overlays AUTONOMY_MODE, CONFIDENCE_THRESHOLD,
// DESTRUCTIVE_OPERATIONS_ENABLED, and DRY_RUN_MODE (spec.md §6) on top of the
// file-loaded policy, mirroring Config's loadFromEnv overlay discipline.
// These apply only at startup: once running, the file (and hot-reload) is
// the sole source of truth, consistent with Set() always winning on disk.
func applyAutonomyEnvOverrides(cfg *AutonomyConfig) error {
	if v, ok := os.LookupEnv("AUTONOMY_MODE"); ok {
		cfg.Mode = Mode(v)
	}
	if v, ok := os.LookupEnv("CONFIDENCE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONFIDENCE_THRESHOLD: %w", err)
		}
		cfg.ConfidenceThreshold = f
	}
	if v, ok := os.LookupEnv("DESTRUCTIVE_OPERATIONS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DESTRUCTIVE_OPERATIONS_ENABLED: %w", err)
		}
		cfg.DestructiveOperationsEnabled = b
	}
	if v, ok := os.LookupEnv("DRY_RUN_MODE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DRY_RUN_MODE: %w", err)
		}
		cfg.DryRunMode = b
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
