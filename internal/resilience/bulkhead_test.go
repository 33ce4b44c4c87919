package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBulkhead_AdmitsUpToSize(t *testing.T) {
	b := NewBulkhead(2, 0)

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func() error {
				<-release
				return nil
			})
		}()
	}

	// Wait until both slots are held.
	deadline := time.Now().Add(time.Second)
	for b.InFlight() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("in-flight = %d, want 2", b.InFlight())
		}
		time.Sleep(time.Millisecond)
	}

	// Third request fails fast with a zero acquire timeout.
	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("err = %v, want ErrBulkheadFull", err)
	}

	close(release)
	wg.Wait()

	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("freed bulkhead rejected a call: %v", err)
	}
}

func TestBulkhead_WaitsForSlotWithinTimeout(t *testing.T) {
	b := NewBulkhead(1, 500*time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	// The slot frees within the acquire window, so this call succeeds.
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("waiting call failed: %v", err)
	}
}

func TestBulkhead_ReleasesSlotOnPanic(t *testing.T) {
	b := NewBulkhead(1, 0)

	func() {
		defer func() { _ = recover() }()
		_ = b.Execute(context.Background(), func() error { panic("boom") })
	}()

	if b.InFlight() != 0 {
		t.Fatalf("in-flight = %d after panic, want 0", b.InFlight())
	}
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("bulkhead stayed full after a panicking caller: %v", err)
	}
}

func TestBulkhead_ContextCancelledWhileWaiting(t *testing.T) {
	b := NewBulkhead(1, time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Execute(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
