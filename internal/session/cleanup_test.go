package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCleanupService_StartStop(t *testing.T) {
	manager, store, _ := newTestManager(time.Hour)
	defer store.Close()

	service := NewCleanupService(manager, CleanupConfig{CleanupInterval: time.Second}, zerolog.Nop())

	if service.IsRunning() {
		t.Error("Service should not be running initially")
	}

	service.Start(context.Background())
	service.Start(context.Background())
	if !service.IsRunning() {
		t.Error("Service should be running after start")
	}

	service.Stop()
	service.Stop()
	if service.IsRunning() {
		t.Error("Service should not be running after stop")
	}

	service.Start(context.Background())
	if !service.IsRunning() {
		t.Error("Service should restart after stop")
	}
	service.Stop()
}

func TestCleanupService_RunOnce(t *testing.T) {
	manager, store, clock := newTestManager(time.Minute)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = manager.Create(ctx, "", ClientInfo{Transport: "stdio"})
	}
	clock.Advance(time.Hour)

	service := NewCleanupService(manager, CleanupConfig{CleanupInterval: time.Hour}, zerolog.Nop())
	deleted, err := service.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted sessions, got %d", deleted)
	}
}

func TestCleanupService_PeriodicSweep(t *testing.T) {
	manager, store, clock := newTestManager(time.Minute)
	defer store.Close()

	ctx := context.Background()
	_, _ = manager.Create(ctx, "", ClientInfo{Transport: "http"})
	clock.Advance(time.Hour)

	service := NewCleanupService(manager, CleanupConfig{CleanupInterval: 10 * time.Millisecond}, zerolog.Nop())
	service.Start(ctx)
	defer service.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count, _ := manager.Count(ctx); count == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expired session was not swept")
}

func TestCleanupService_StopsWithContext(t *testing.T) {
	manager, store, _ := newTestManager(time.Hour)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	service := NewCleanupService(manager, CleanupConfig{CleanupInterval: time.Millisecond}, zerolog.Nop())
	service.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		service.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop should return after context cancellation")
	}
}
