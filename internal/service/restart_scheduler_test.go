package service

import (
	"sync"
	"testing"
	"time"

	"github.com/prismarine/craftd/internal/models"
)

type fakePolicySource struct {
	servers []models.ManagedServer
}

func (f *fakePolicySource) FindAutoRestartEnabled() ([]models.ManagedServer, error) {
	return f.servers, nil
}

type fakeStatusReader struct {
	statuses map[string]models.ServerStatus
}

func (f *fakeStatusReader) Status(id string) (models.ServerStatus, string) {
	status, ok := f.statuses[id]
	if !ok {
		return models.StatusStopped, ""
	}
	return status, ""
}

type fakeRestarter struct {
	mu        sync.Mutex
	restarted []string

	// started is signalled as each restart begins; release, when set,
	// blocks restarts until closed.
	started chan string
	release chan struct{}
}

func (f *fakeRestarter) Restart(id, reason string) error {
	if f.started != nil {
		f.started <- id
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.restarted = append(f.restarted, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeRestarter) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.restarted...)
}

func schedulerAt(t *testing.T, now time.Time, servers []models.ManagedServer, statuses map[string]models.ServerStatus) (*RestartScheduler, *fakeRestarter) {
	t.Helper()
	restarter := &fakeRestarter{}
	sched := NewRestartScheduler(
		&fakePolicySource{servers: servers},
		&fakeStatusReader{statuses: statuses},
		restarter,
		15*time.Second,
	)
	sched.now = func() time.Time { return now }
	return sched, restarter
}

func intervalServer(id string, intervalSeconds int, started time.Time) models.ManagedServer {
	return models.ManagedServer{
		ID:                     id,
		Name:                   id,
		AutoRestartEnabled:     true,
		RestartMode:            models.RestartModeInterval,
		RestartIntervalSeconds: intervalSeconds,
		LastStartedAt:          &started,
	}
}

func TestIntervalRestartFiresAfterElapsed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := intervalServer("s1", 3600, now.Add(-2*time.Hour))

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 1 || got[0] != "s1" {
		t.Errorf("restarted = %v, want [s1]", got)
	}
}

func TestIntervalRestartWaitsForElapsed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := intervalServer("s1", 3600, now.Add(-30*time.Minute))

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 0 {
		t.Errorf("restarted = %v, want none before interval elapses", got)
	}
}

func TestIntervalFloorIsSixtySeconds(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// A 5-second policy must not restart a server started 30s ago.
	srv := intervalServer("s1", 5, now.Add(-30*time.Second))

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 0 {
		t.Errorf("restarted = %v, want none under the 60s floor", got)
	}
}

func TestIntervalSkipsServersNotRunning(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := intervalServer("s1", 3600, now.Add(-2*time.Hour))

	for _, status := range []models.ServerStatus{
		models.StatusStopped,
		models.StatusDownloading,
		models.StatusStarting,
		models.StatusStopping,
		models.StatusCrashed,
	} {
		sched, restarter := schedulerAt(t, now,
			[]models.ManagedServer{srv},
			map[string]models.ServerStatus{"s1": status})

		sched.evaluate()
		sched.wg.Wait()

		if got := restarter.list(); len(got) != 0 {
			t.Errorf("status %s: restarted = %v, want none", status, got)
		}
	}
}

func TestIntervalSkipsServerNeverStarted(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := models.ManagedServer{
		ID:                     "s1",
		AutoRestartEnabled:     true,
		RestartMode:            models.RestartModeInterval,
		RestartIntervalSeconds: 3600,
	}

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 0 {
		t.Errorf("restarted = %v, want none without a start timestamp", got)
	}
}

func scheduleServer(id, at, tz string) models.ManagedServer {
	return models.ManagedServer{
		ID:                 id,
		Name:               id,
		AutoRestartEnabled: true,
		RestartMode:        models.RestartModeSchedule,
		RestartAt:          at,
		RestartTimezone:    tz,
	}
}

func TestScheduleFiresAtLocalTime(t *testing.T) {
	// 04:00 UTC is 06:00 in Berlin during summer.
	now := time.Date(2024, 6, 1, 4, 0, 0, 0, time.UTC)
	srv := scheduleServer("s1", "06:00", "Europe/Berlin")

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 1 {
		t.Errorf("restarted = %v, want [s1]", got)
	}
}

func TestScheduleFiresOncePerDay(t *testing.T) {
	now := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	srv := scheduleServer("s1", "06:00", "UTC")

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	// Several ticks land inside the same minute.
	sched.evaluate()
	sched.now = func() time.Time { return now.Add(20 * time.Second) }
	sched.evaluate()
	sched.now = func() time.Time { return now.Add(40 * time.Second) }
	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 1 {
		t.Errorf("restarted %d times within one minute, want 1", len(got))
	}

	// The next day it fires again.
	sched.now = func() time.Time { return now.Add(24 * time.Hour) }
	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 2 {
		t.Errorf("restarted %d times across two days, want 2", len(got))
	}
}

func TestScheduleOutsideWindowDoesNothing(t *testing.T) {
	now := time.Date(2024, 6, 1, 5, 59, 0, 0, time.UTC)
	srv := scheduleServer("s1", "06:00", "UTC")

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 0 {
		t.Errorf("restarted = %v, want none outside the window", got)
	}
}

func TestScheduleInvalidTimezoneSkipped(t *testing.T) {
	now := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	srv := scheduleServer("s1", "06:00", "Mars/Olympus_Mons")

	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})

	sched.evaluate()
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 0 {
		t.Errorf("restarted = %v, want none with a bad timezone", got)
	}
}

func TestEvaluateDoesNotBlockOnSlowRestarts(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	servers := []models.ManagedServer{
		intervalServer("s1", 3600, now.Add(-2*time.Hour)),
		intervalServer("s2", 3600, now.Add(-2*time.Hour)),
	}
	sched, restarter := schedulerAt(t, now, servers, map[string]models.ServerStatus{
		"s1": models.StatusRunning,
		"s2": models.StatusRunning,
	})
	restarter.started = make(chan string, 2)
	restarter.release = make(chan struct{})

	// With restarts still blocked, evaluate must return and both
	// restarts must already be underway concurrently.
	sched.evaluate()

	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-restarter.started:
		case <-timeout:
			t.Fatal("restarts did not start concurrently; a blocked restart stalled the tick")
		}
	}

	close(restarter.release)
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 2 {
		t.Errorf("restarted = %v, want both servers", got)
	}
}

func TestRestartNotRetriggeredWhileInFlight(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := intervalServer("s1", 3600, now.Add(-2*time.Hour))
	sched, restarter := schedulerAt(t, now,
		[]models.ManagedServer{srv},
		map[string]models.ServerStatus{"s1": models.StatusRunning})
	restarter.started = make(chan string, 2)
	restarter.release = make(chan struct{})

	sched.evaluate()
	select {
	case <-restarter.started:
	case <-time.After(2 * time.Second):
		t.Fatal("restart never started")
	}

	// A second tick while the restart is still pending must not queue
	// another one.
	sched.evaluate()
	select {
	case id := <-restarter.started:
		t.Fatalf("second restart of %s dispatched while one was in flight", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(restarter.release)
	sched.wg.Wait()

	if got := restarter.list(); len(got) != 1 {
		t.Errorf("restarted %d times, want 1", len(got))
	}
}
