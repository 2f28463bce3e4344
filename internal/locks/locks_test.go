package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openstats/datasetsvc/internal/data/repos/testutil"
)

func TestKey64IsStable(t *testing.T) {
	a := Key64("version_import_import_data")
	b := Key64("version_import_import_data")
	if a != b {
		t.Fatalf("same name hashed to %d and %d", a, b)
	}
	if Key64("version_import_import_data") == Key64("version_import_finalize") {
		t.Fatalf("distinct names collided")
	}
}

func TestWithLockSerializesHolders(t *testing.T) {
	gdb := testutil.DB(t)
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	svc := New(sqlDB, testutil.Logger(t))
	ctx := context.Background()

	const workers = 4
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.WithLock(ctx, "test_lock_serialize", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(25 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("critical sections overlapped: max concurrent holders = %d", maxInside)
	}
}

func TestWithLockReleasesAfterError(t *testing.T) {
	gdb := testutil.DB(t)
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	svc := New(sqlDB, testutil.Logger(t))
	ctx := context.Background()

	boom := errors.New("stage failed")
	if err := svc.WithLock(ctx, "test_lock_release", func(ctx context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected stage error back, got %v", err)
	}

	// The lock must be free again: a second holder acquires promptly.
	done := make(chan error, 1)
	go func() {
		done <- svc.WithLock(ctx, "test_lock_release", func(ctx context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second WithLock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("lock was not released after error")
	}
}
