// Package watcher auto-compiles graph documents from a watched directory.
// On startup it sweeps the directory, then recompiles on every debounced
// file change; successful compiles are stored and, when configured,
// activated immediately.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/graph/parser"
	"praetor-hq/tribune/pkg/registry"
)

// Config configures the graph directory watcher.
type Config struct {
	// Dir is the directory of graph documents.
	Dir string

	// Debounce coalesces bursts of events per file. Default: 500ms.
	Debounce time.Duration

	// Activate controls whether a successful compile is activated.
	Activate bool

	// Extensions filters which files are compiled. Default: .yaml, .yml.
	Extensions []string
}

// Watcher compiles graph documents as they change on disk.
type Watcher struct {
	config   *Config
	parser   *parser.Parser
	compiler *compiler.Compiler
	registry *registry.Registry
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher. Close it when done.
func New(config *Config, comp *compiler.Compiler, reg *registry.Registry) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("watcher dir is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".yaml", ".yml"}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:   config,
		parser:   parser.NewParser(),
		compiler: comp,
		registry: reg,
		logger:   slog.Default().With("component", "watcher"),
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run sweeps the directory, then blocks processing events until the
// context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(w.config.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Dir, err)
	}

	w.logger.Info("watching graph directory",
		"dir", w.config.Dir,
		"debounce", w.config.Debounce.String(),
		"activate", w.config.Activate,
	)

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher and cancels pending
// debounce timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fsw.Close()
}

// sweep compiles every matching file already present.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		w.logger.Warn("sweep failed", "dir", w.config.Dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Dir, entry.Name())
		if w.matches(path) {
			w.processFile(ctx, path)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range w.config.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	// Editors fire bursts of writes; restart the per-file timer on each.
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[event.Name]; ok {
		t.Stop()
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.processFile(ctx, path)
	})
}

// processFile parses, compiles, stores, and optionally activates one graph
// document. Failures are logged, never fatal to the watcher.
func (w *Watcher) processFile(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Renamed or removed before the debounce fired.
		return
	}

	g, err := w.parser.ParseFile(path)
	if err != nil {
		w.logger.Warn("graph parse failed", "path", path, "error", err)
		return
	}

	result, err := w.compiler.Compile(g)
	if err != nil {
		w.logger.Warn("graph compile failed", "path", path, "error", err)
		return
	}
	for _, warning := range result.Warnings {
		w.logger.Warn("compile warning", "path", path, "warning", warning.Error())
	}

	bp := result.Blueprint
	if err := w.registry.Save(ctx, bp); err != nil {
		w.logger.Error("store blueprint failed", "path", path, "error", err)
		return
	}

	if w.config.Activate {
		if err := w.registry.Activate(ctx, bp.Ref); err != nil {
			w.logger.Error("activate failed", "path", path, "ref", bp.Ref.String(), "error", err)
			return
		}
	}

	w.logger.Info("graph compiled",
		"path", path,
		"ref", bp.Ref.String(),
		"tenant", bp.Tenant,
		"decision_type", bp.DecisionType,
		"activated", w.config.Activate,
	)
}
