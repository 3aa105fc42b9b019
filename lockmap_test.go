package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockMapperSerializesSameKey(t *testing.T) {
	m := NewLockMapper()

	// Count how many goroutines are inside the critical section at once
	var inside, overlaps, runs int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do("wallet", func() error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlaps, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				atomic.AddInt32(&runs, 1)
				return nil
			})
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&overlaps) != 0 {
		t.Fatal("Expected same-key sections never to overlap")
	}
	if atomic.LoadInt32(&runs) != 8 {
		t.Fatalf("Expected all 8 sections to run, got: %d", atomic.LoadInt32(&runs))
	}
}

func TestLockMapperDistinctKeysIndependent(t *testing.T) {
	m := NewLockMapper()

	holding := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Do("a", func() error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	// A different key must proceed while "a" is held
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Do("b", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected a distinct key to proceed while another is held")
	}
	close(release)
	wg.Wait()
}

func TestLockMapperCreatesLocksLazily(t *testing.T) {
	m := NewLockMapper()
	if len(m.locks) != 0 {
		t.Fatalf("Expected no locks up front, got: %d", len(m.locks))
	}

	m.Do("a", func() error { return nil })
	m.Do("a", func() error { return nil })
	m.Do("b", func() error { return nil })

	// One lock per key, reused across calls and kept afterwards
	if len(m.locks) != 2 {
		t.Fatalf("Expected 2 locks, got: %d", len(m.locks))
	}
}

func TestLockMapperReleasesOnError(t *testing.T) {
	m := NewLockMapper()
	boom := errors.New("boom")

	// Do passes the function's error through unwrapped
	if err := m.Do("key", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected the function error, got: %v", err)
	}

	// The lock must be free again
	done := make(chan struct{})
	go func() {
		m.Do("key", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the lock to be released after a failure")
	}
}

func TestLockMapperReleasesOnPanic(t *testing.T) {
	m := NewLockMapper()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("Expected the panic to propagate")
			}
		}()
		m.Do("key", func() error { panic("boom") })
	}()

	// The lock must be free again after the unwind
	done := make(chan struct{})
	go func() {
		m.Do("key", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the lock to be released after a panic")
	}
}

func TestLocked(t *testing.T) {
	m := NewLockMapper()

	double := Locked(m, "numbers", func(v int) (int, error) {
		return v * 2, nil
	})

	out, err := double(21)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != 42 {
		t.Fatalf("Expected 42, got: %d", out)
	}
}

func TestLockedActionError(t *testing.T) {
	m := NewLockMapper()
	boom := errors.New("boom")

	failing := Locked(m, "numbers", func(v int) (string, error) {
		return "partial", boom
	})

	out, err := failing(1)
	if !errors.Is(err, ErrLockActionFailed) {
		t.Fatalf("Expected ErrLockActionFailed, got: %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the action error to be wrapped, got: %v", err)
	}
	if out != "" {
		t.Fatalf("Expected the zero value, got: %q", out)
	}

	// The failure must not leave the key locked
	ok := Locked(m, "numbers", func(v int) (int, error) { return v, nil })
	done := make(chan struct{})
	go func() {
		ok(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the key to be usable after a failed action")
	}
}

func TestLockedSerializesSameKey(t *testing.T) {
	m := NewLockMapper()

	var inside, overlaps int32
	action := Locked(m, "wallet", func(v int) (int, error) {
		if atomic.AddInt32(&inside, 1) > 1 {
			atomic.StoreInt32(&overlaps, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inside, -1)
		return v, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action(i)
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&overlaps) != 0 {
		t.Fatal("Expected same-key actions never to overlap")
	}
}
