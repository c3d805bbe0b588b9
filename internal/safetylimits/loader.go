// Package safetylimits loads the per-channel AMMAD configuration and
// physical safety-limit table from a YAML file and keeps it hot-reloaded,
// adapted from the teacher's RuntimeConfigManager/HotReloadSystem. The
// rollback/versioning and A/B-testing machinery those types carry has no
// role here (see DESIGN.md's C13 entry) — only the watch-validate-swap
// core survives.
package safetylimits

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/99souls/wellflow/internal/analysis"
	"github.com/99souls/wellflow/internal/detect"
)

// ChannelEntry is one channel's YAML row: AMMAD weighting/threshold
// configuration plus an optional physical safety limit.
type ChannelEntry struct {
	BaseWeights       [3]float64 `yaml:"base_weights"`
	Threshold         float64    `yaml:"threshold"`
	MaxChangeRate     float64    `yaml:"max_change_rate"`
	RequiresConsensus bool       `yaml:"requires_consensus"`
	InertiaClass      string     `yaml:"inertia_class"`
	SafetyLimit       *struct {
		Min      float64 `yaml:"min"`
		Max      float64 `yaml:"max"`
		Critical float64 `yaml:"critical"`
	} `yaml:"safety_limit"`
}

// Table is the on-disk document shape.
type Table struct {
	Version          string                  `yaml:"version"`
	DefaultMethod    string                  `yaml:"default_method"`
	DefaultWindow    int                     `yaml:"default_window_size"`
	DefaultThreshold float64                 `yaml:"default_threshold"`
	Channels         map[string]ChannelEntry `yaml:"channels"`
}

type snapshot struct {
	table    Table
	checksum string
	loadedAt time.Time
}

// Loader is a hot-reloadable detect.ChannelConfigProvider backed by a YAML
// file on disk. The zero value is not usable; construct with NewLoader.
type Loader struct {
	path string

	mu      sync.RWMutex
	current *snapshot

	watcher   *fsnotify.Watcher
	watchOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// NewLoader reads path once synchronously (a missing file yields an empty,
// all-default table rather than an error, matching the teacher's
// missing-config tolerance) and returns a ready Loader.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path, stopCh: make(chan struct{})}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch starts an fsnotify watch on the config file's directory and
// reloads on write events whose checksum differs from the currently
// loaded table, applying the swap atomically. It returns once the watch is
// established; reload errors are non-fatal and simply leave the previous
// snapshot in place.
func (l *Loader) Watch(ctx context.Context) error {
	var err error
	l.watchOnce.Do(func() {
		var w *fsnotify.Watcher
		w, err = fsnotify.NewWatcher()
		if err != nil {
			return
		}
		l.watcher = w
		dir := filepath.Dir(l.path)
		if werr := w.Add(dir); werr != nil {
			err = fmt.Errorf("safetylimits: watch %s: %w", dir, werr)
			return
		}
		go l.watchLoop(ctx)
	})
	return err
}

func (l *Loader) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Name != l.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = l.reload()
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		}
	}
}

// Stop closes the underlying watcher, if one was started.
func (l *Loader) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.swap(&snapshot{table: Table{}, checksum: "", loadedAt: time.Now()})
			return nil
		}
		return fmt.Errorf("safetylimits: read %s: %w", l.path, err)
	}

	sum := checksum(data)
	l.mu.RLock()
	unchanged := l.current != nil && l.current.checksum == sum
	l.mu.RUnlock()
	if unchanged {
		return nil
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("safetylimits: parse %s: %w", l.path, err)
	}
	if err := validate(table); err != nil {
		return fmt.Errorf("safetylimits: validate %s: %w", l.path, err)
	}

	l.swap(&snapshot{table: table, checksum: sum, loadedAt: time.Now()})
	return nil
}

func (l *Loader) swap(s *snapshot) {
	l.mu.Lock()
	l.current = s
	l.mu.Unlock()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validate(t Table) error {
	for name, ch := range t.Channels {
		if ch.SafetyLimit != nil && ch.SafetyLimit.Min > ch.SafetyLimit.Max {
			return fmt.Errorf("channel %q: safety limit min %.4g exceeds max %.4g", name, ch.SafetyLimit.Min, ch.SafetyLimit.Max)
		}
		if ch.Threshold < 0 {
			return fmt.Errorf("channel %q: negative threshold", name)
		}
	}
	return nil
}

// Config implements detect.ChannelConfigProvider.
func (l *Loader) Config(channel string) detect.ChannelConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.current.table.Channels[channel]
	if !ok {
		return detect.DefaultChannelConfig
	}
	cfg := detect.ChannelConfig{
		BaseWeights:       entry.BaseWeights,
		Threshold:         entry.Threshold,
		MaxChangeRate:     entry.MaxChangeRate,
		RequiresConsensus: entry.RequiresConsensus,
		InertiaClass:      entry.InertiaClass,
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = detect.DefaultAMMADThreshold
	}
	if cfg.BaseWeights == ([3]float64{}) {
		cfg.BaseWeights = detect.DefaultChannelConfig.BaseWeights
	}
	return cfg
}

// SafetyLimit implements detect.ChannelConfigProvider.
func (l *Loader) SafetyLimit(channel string) (detect.SafetyLimit, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.current.table.Channels[channel]
	if !ok || entry.SafetyLimit == nil {
		return detect.SafetyLimit{}, false
	}
	return detect.SafetyLimit{
		Min:      entry.SafetyLimit.Min,
		Max:      entry.SafetyLimit.Max,
		Critical: entry.SafetyLimit.Critical,
	}, true
}

// DefaultAnalysisConfig returns the analysis.Config the table's top-level
// default_method/default_window_size/default_threshold fields describe,
// falling back to analysis.New's own defaults for any field left zero.
func (l *Loader) DefaultAnalysisConfig() analysis.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg := analysis.Config{
		Method:     l.current.table.DefaultMethod,
		WindowSize: l.current.table.DefaultWindow,
		Threshold:  l.current.table.DefaultThreshold,
	}
	if cfg.Method == "" {
		cfg.Method = "fft"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 64
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	return cfg
}

// LastLoaded reports when the table last successfully loaded, for
// internal/telemetry/health's ConfigStalenessProbe.
func (l *Loader) LastLoaded() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.loadedAt
}

// Version reports the table's declared version string, for diagnostics.
func (l *Loader) Version() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.table.Version
}
