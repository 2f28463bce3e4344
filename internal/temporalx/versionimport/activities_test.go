package versionimport

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// The loop must keep beating while an activity is blocked acquiring an
// exclusive lock: a contender waiting hours behind another run is healthy,
// and only the beats tell the server so.
func TestHeartbeatLoopBeatsWhileBlocked(t *testing.T) {
	var beats atomic.Int64
	stop := heartbeatLoop(context.Background(), 2*time.Millisecond, func() { beats.Add(1) })

	// Simulated lock wait.
	time.Sleep(40 * time.Millisecond)
	if beats.Load() == 0 {
		t.Fatalf("no beats recorded during the wait")
	}

	stop()
	time.Sleep(10 * time.Millisecond)
	after := beats.Load()
	time.Sleep(20 * time.Millisecond)
	if got := beats.Load(); got != after {
		t.Fatalf("beats continued after stop: %d -> %d", after, got)
	}
}

func TestHeartbeatLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var beats atomic.Int64
	stop := heartbeatLoop(ctx, 2*time.Millisecond, func() { beats.Add(1) })
	defer stop()

	cancel()
	time.Sleep(10 * time.Millisecond)
	after := beats.Load()
	time.Sleep(20 * time.Millisecond)
	if got := beats.Load(); got != after {
		t.Fatalf("beats continued after cancel: %d -> %d", after, got)
	}
}

func TestMoveDirToleratesCompletedMove(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "v1.0.1")
	newPath := filepath.Join(root, "v2.0.0")
	if err := os.MkdirAll(oldPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(oldPath, "data.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := moveDir(oldPath, newPath); err != nil {
		t.Fatalf("moveDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(newPath, "data.parquet")); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}

	// A retry after a crash between the rename and the row update sees the
	// move already done.
	if err := moveDir(oldPath, newPath); err != nil {
		t.Fatalf("repeat moveDir: %v", err)
	}

	// Both paths missing is a real failure.
	if err := moveDir(filepath.Join(root, "gone"), filepath.Join(root, "also-gone")); err == nil {
		t.Fatalf("expected error when neither path exists")
	}
}
