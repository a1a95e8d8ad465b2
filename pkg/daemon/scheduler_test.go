package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSlotScheduleParse(t *testing.T) {
	schedule, err := newCronParser().Parse("1 */2 * * * *")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 3, 30, 0, time.UTC)
	next1 := schedule.Next(base)
	if want := time.Date(2024, 3, 1, 12, 4, 1, 0, time.UTC); !next1.Equal(want) {
		t.Fatalf("expected first slot %v, got %v", want, next1)
	}
	next2 := schedule.Next(next1)
	if next2.Sub(next1) != 2*time.Minute {
		t.Fatalf("expected slots 2 minutes apart, got next1=%v next2=%v", next1, next2)
	}
}

func TestSchedulerScheduleStatus(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	if err := s.Schedule("1 */2 * * * *"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	next, running := s.Status()
	if running {
		t.Fatalf("scheduler should not be running")
	}
	if next.IsZero() {
		t.Fatalf("next run should be set after scheduling")
	}
	if next.Second() != 1 || next.Minute()%2 != 0 {
		t.Fatalf("next run %v is not a WSPR slot", next)
	}

	if err := s.Schedule("not a cron"); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestSchedulerSkip(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	if err := s.Skip(); err == nil {
		t.Fatalf("expected error when skipping without schedule")
	}

	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	orig, _ := s.Status()
	if orig.IsZero() {
		t.Fatalf("expected next run after scheduling")
	}

	s.Start()
	defer s.Stop()

	if err := s.Skip(); err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	skipped, _ := s.Status()
	if !skipped.After(orig) {
		t.Fatalf("expected skip to move schedule forward, got %v <= %v", skipped, orig)
	}
}

func TestSchedulerRunCycle(t *testing.T) {
	notifyCh := make(chan struct{}, 1)
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	var preChecks int32

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		atomic.AddInt32(&preChecks, 1)
		return nil
	}

	beforeRun := func(data any) {
		notifyCh <- struct{}{}
	}

	onError := func(data any) {
		if err, ok := data.(error); ok {
			errCh <- err
		}
	}

	s := NewScheduler(task, preCheck, beforeRun, onError)
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(50 * time.Millisecond)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-notifyCh:
	case <-time.After(time.Second):
		t.Fatalf("did not receive upcoming notification in time")
	}

	select {
	case <-taskCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not execute in time")
	}

	if atomic.LoadInt32(&preChecks) == 0 {
		t.Fatalf("precheck should have been executed")
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected error callback: %v", err)
	default:
	}

	next, _ := s.Status()
	if !next.After(time.Now()) {
		t.Fatalf("next run should be in the future, got %v", next)
	}
}

func TestSchedulerPreCheckFailureSkipsSlot(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 2)

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		return errors.New("boom")
	}

	onError := func(data any) {
		if err, ok := data.(error); ok {
			errCh <- err
		}
	}

	s := NewScheduler(task, preCheck, nil, onError)
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(50 * time.Millisecond)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected error callback from failed precheck")
	}

	select {
	case <-taskCh:
		t.Fatalf("task should not execute when precheck fails")
	default:
	}
}

func TestSchedulerMissedSlotIsNotRun(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	s := NewScheduler(func() error {
		taskCh <- struct{}{}
		return nil
	}, nil, nil, func(data any) {
		if err, ok := data.(error); ok {
			errCh <- err
		}
	})
	if err := s.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected missed slot error")
	}

	select {
	case <-taskCh:
		t.Fatalf("a missed slot must not start late")
	default:
	}
}
