package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/registry"
)

func feeWaiverDoc(revision int) string {
	return fmt.Sprintf(`
graph_id: fee-waiver
tenant: acme
decision_type: fees
revision: %d
nodes:
  - {id: entry, kind: decision}
  - id: waive
    kind: action
    guard:
      has: loyal
    params: {waive: true}
edges:
  - {from: entry, to: waive, kind: flows_to}
`, revision)
}

func waitForActive(t *testing.T, reg *registry.Registry, revision int) *blueprint.Blueprint {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bp, ok := reg.Active("acme", "fees"); ok && bp.Ref.Revision == revision {
			return bp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("revision %d never became active", revision)
	return nil
}

func startWatcher(t *testing.T, dir string, reg *registry.Registry) {
	t.Helper()
	w, err := New(&Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Activate: true,
	}, compiler.New(), reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
}

func TestWatcherSweepAndRecompile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fee-waiver.yaml")
	if err := os.WriteFile(path, []byte(feeWaiverDoc(1)), 0o600); err != nil {
		t.Fatal(err)
	}

	reg := registry.New(registry.NewMemoryStore())
	defer reg.Close()
	startWatcher(t, dir, reg)

	// Initial sweep compiles and activates revision 1.
	waitForActive(t, reg, 1)

	// An edit is picked up after the debounce.
	if err := os.WriteFile(path, []byte(feeWaiverDoc(2)), 0o600); err != nil {
		t.Fatal(err)
	}
	waitForActive(t, reg, 2)
}

func TestWatcherIgnoresBrokenDocuments(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(feeWaiverDoc(1)), 0o600); err != nil {
		t.Fatal(err)
	}

	reg := registry.New(registry.NewMemoryStore())
	defer reg.Close()
	startWatcher(t, dir, reg)

	waitForActive(t, reg, 1)

	// A broken document must not disturb the active blueprint.
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("nodes: [{id: x, kind: wat}]"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if bp, ok := reg.Active("acme", "fees"); !ok || bp.Ref.Revision != 1 {
		t.Fatal("broken document disturbed the active blueprint")
	}
}

func TestWatcherRequiresDir(t *testing.T) {
	if _, err := New(&Config{}, compiler.New(), registry.New(registry.NewMemoryStore())); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
