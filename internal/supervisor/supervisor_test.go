package supervisor

import (
	"math/rand"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/models"
)

type transitionLog struct {
	mu      sync.Mutex
	entries []models.ServerStatus
}

func (l *transitionLog) record(_ string, status models.ServerStatus, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, status)
}

func (l *transitionLog) snapshot() []models.ServerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ServerStatus(nil), l.entries...)
}

func (l *transitionLog) has(status models.ServerStatus) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.entries {
		if s == status {
			return true
		}
	}
	return false
}

func shellSupervisor(t *testing.T, script string, log *transitionLog) *Supervisor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-backed process tests need a POSIX shell")
	}
	opts := Options{
		ReadyTimeout:    5 * time.Second,
		StopGracePeriod: 2 * time.Second,
		BufferLines:     100,
		Command: func(srv *models.ManagedServer) *exec.Cmd {
			return exec.Command("/bin/sh", "-c", script)
		},
	}
	if log != nil {
		opts.OnTransition = log.record
	}
	return New(opts)
}

func testServer(id string) *models.ManagedServer {
	return &models.ManagedServer{
		ID:       id,
		Name:     "test-" + id,
		Kind:     models.KindVanilla,
		Version:  "1.21",
		Port:     25565,
		MemoryMB: 1024,
	}
}

// A fake server that prints the ready marker and then blocks on stdin
// until the shutdown command arrives.
const wellBehavedScript = `
echo "[12:00:00 INFO]: Done (2.5s)! For help, type \"help\""
while read line; do
  if [ "$line" = "stop" ]; then
    echo "Stopping server"
    exit 0
  fi
  echo "got $line"
done
`

func TestStartReachesRunning(t *testing.T) {
	log := &transitionLog{}
	sup := shellSupervisor(t, wellBehavedScript, log)
	srv := testServer("s1")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	if status, _ := sup.Status(srv.ID); status != models.StatusRunning {
		t.Errorf("status = %s, want running", status)
	}
	if !log.has(models.StatusStarting) {
		t.Error("never saw starting transition")
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)
	srv := testServer("s2")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	err := sup.Start(srv, nil)
	if !apperr.Is(err, apperr.KindAlreadyActive) {
		t.Errorf("second Start error = %v, want AlreadyActive", err)
	}
}

func TestStopIsNoOpWhenStopped(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)

	if err := sup.Stop("never-started"); err != nil {
		t.Errorf("Stop on unknown server = %v, want nil", err)
	}
}

func TestGracefulStopViaConsole(t *testing.T) {
	log := &transitionLog{}
	sup := shellSupervisor(t, wellBehavedScript, log)
	srv := testServer("s3")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sup.Stop(srv.ID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if status, _ := sup.Status(srv.ID); status != models.StatusStopped {
		t.Errorf("status = %s, want stopped", status)
	}
	if !log.has(models.StatusStopping) {
		t.Error("never saw stopping transition")
	}

	// The graceful path exits on the stop command, not the kill.
	for _, line := range sup.Logs(srv.ID, 100) {
		if strings.Contains(line, "Stopping server") {
			return
		}
	}
	t.Error("shutdown command never reached the process")
}

func TestUnexpectedExitBecomesCrashed(t *testing.T) {
	script := `
echo "Done (1.0s)!"
sleep 0.3
exit 7
`
	log := &transitionLog{}
	sup := shellSupervisor(t, script, log)
	srv := testServer("s4")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status, _ := sup.Status(srv.ID); status == models.StatusCrashed {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	status, detail := sup.Status(srv.ID)
	t.Errorf("status = %s (%s), want crashed", status, detail)
}

func TestExitDuringStartupFailsStart(t *testing.T) {
	sup := shellSupervisor(t, `exit 1`, nil)
	srv := testServer("s5")

	if err := sup.Start(srv, nil); err == nil {
		t.Fatal("Start succeeded, want startup failure")
	}
	if status, _ := sup.Status(srv.ID); status != models.StatusCrashed {
		t.Errorf("status = %s, want crashed", status)
	}
}

func TestCrashedServerCanStartAgain(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)
	srv := testServer("s6")

	// Force a crashed state first.
	inst := sup.instanceFor(srv)
	sup.transition(inst, models.StatusCrashed, "boom")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start after crash failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	if status, _ := sup.Status(srv.ID); status != models.StatusRunning {
		t.Errorf("status = %s, want running", status)
	}
}

func TestReadyThenImmediateExitEndsCrashed(t *testing.T) {
	script := `
echo "Done (0.1s)!"
exit 0
`
	sup := shellSupervisor(t, script, nil)
	srv := testServer("s11")

	// Start may win the race with the exit handler and return nil, or
	// lose it and report the startup failure. Either way the dead
	// process must settle as crashed, never stay running.
	_ = sup.Start(srv, nil)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status, _ := sup.Status(srv.ID); status == models.StatusCrashed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	status, detail := sup.Status(srv.ID)
	t.Errorf("status = %s (%s), want crashed", status, detail)
}

func TestStartWithoutPrepareSkipsDownloading(t *testing.T) {
	log := &transitionLog{}
	sup := shellSupervisor(t, wellBehavedScript, log)
	srv := testServer("s12")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	if log.has(models.StatusDownloading) {
		t.Error("start entered downloading without a prepare step")
	}
}

func TestRandomCommandWalkKeepsTransitionsLegal(t *testing.T) {
	legal := map[models.ServerStatus]map[models.ServerStatus]bool{
		models.StatusStopped:     {models.StatusDownloading: true, models.StatusStarting: true},
		models.StatusDownloading: {models.StatusDownloading: true, models.StatusStarting: true, models.StatusStopped: true},
		models.StatusStarting:    {models.StatusRunning: true, models.StatusCrashed: true, models.StatusStopped: true},
		models.StatusRunning:     {models.StatusStopping: true, models.StatusCrashed: true},
		models.StatusStopping:    {models.StatusStopped: true},
		models.StatusCrashed:     {models.StatusDownloading: true, models.StatusStarting: true},
	}

	log := &transitionLog{}
	sup := shellSupervisor(t, wellBehavedScript, log)
	srv := testServer("walk")

	rng := rand.New(rand.NewSource(42))
	prepares := []PrepareFunc{
		nil,
		func(progress func(string)) error {
			progress("fetching jar")
			return nil
		},
		func(progress func(string)) error {
			progress("fetching jar")
			return apperr.New(apperr.KindInternal, "mirror unavailable")
		},
	}

	for i := 0; i < 40; i++ {
		switch rng.Intn(4) {
		case 0:
			_ = sup.Start(srv, prepares[rng.Intn(len(prepares))])
		case 1:
			_ = sup.Stop(srv.ID)
		case 2:
			_ = sup.Restart(srv, prepares[rng.Intn(len(prepares))])
		case 3:
			_ = sup.SendCommand(srv.ID, "list")
		}
	}
	_ = sup.Stop(srv.ID)

	prev := models.StatusStopped
	for i, status := range log.snapshot() {
		if !legal[prev][status] {
			t.Fatalf("transition %d: %s -> %s is not in the lifecycle table", i, prev, status)
		}
		prev = status
	}
}

func TestSendCommandRequiresRunning(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)

	err := sup.SendCommand("nope", "list")
	if !apperr.Is(err, apperr.KindNotRunning) {
		t.Errorf("SendCommand error = %v, want NotRunning", err)
	}
}

func TestSendCommandReachesProcess(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)
	srv := testServer("s7")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	if err := sup.SendCommand(srv.ID, "list"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, line := range sup.Logs(srv.ID, 100) {
			if line == "got list" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("command never echoed back through the console")
}

func TestSubscribeReceivesLiveLines(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)
	srv := testServer("s8")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	ch, cancel, err := sup.Subscribe(srv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := sup.SendCommand(srv.ID, "ping"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case line := <-ch:
			if line == "got ping" {
				return
			}
		case <-timeout:
			t.Fatal("subscriber never saw the echoed line")
		}
	}
}

func TestPrepareFailureLeavesStopped(t *testing.T) {
	log := &transitionLog{}
	sup := shellSupervisor(t, wellBehavedScript, log)
	srv := testServer("s9")

	err := sup.Start(srv, func(progress func(string)) error {
		progress("downloading jar")
		return apperr.New(apperr.KindInternal, "download failed")
	})
	if err == nil {
		t.Fatal("Start succeeded despite prepare failure")
	}

	if status, _ := sup.Status(srv.ID); status != models.StatusStopped {
		t.Errorf("status = %s, want stopped", status)
	}
	if !log.has(models.StatusDownloading) {
		t.Error("never saw downloading transition")
	}
}

func TestRestartKeepsServing(t *testing.T) {
	sup := shellSupervisor(t, wellBehavedScript, nil)
	srv := testServer("s10")

	if err := sup.Start(srv, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sup.Restart(srv, nil); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer sup.Stop(srv.ID)

	if status, _ := sup.Status(srv.ID); status != models.StatusRunning {
		t.Errorf("status after restart = %s, want running", status)
	}
}

func TestLaunchArgs(t *testing.T) {
	game := testServer("g")
	args := LaunchArgs(game)
	if args[len(args)-1] != "nogui" {
		t.Errorf("game server args end with %q, want nogui", args[len(args)-1])
	}

	proxy := testServer("p")
	proxy.Kind = models.KindVelocity
	args = LaunchArgs(proxy)
	for _, a := range args {
		if a == "nogui" {
			t.Error("proxy args must not include nogui")
		}
		if strings.HasPrefix(a, "-XX:") {
			t.Errorf("proxy args include GC tuning flag %s", a)
		}
	}
}

func TestReadyMarkerByKind(t *testing.T) {
	cases := []struct {
		kind models.ServerKind
		line string
		want bool
	}{
		{models.KindVanilla, `[Server] Done (3.1s)! For help`, true},
		{models.KindPaper, `still starting`, false},
		{models.KindBungeeCord, `[INFO] Listening on /0.0.0.0:25577`, true},
		{models.KindWaterfall, `Done (1s)`, false},
		{models.KindVelocity, `Done (0.9s)`, true},
	}
	for _, tc := range cases {
		if got := matchesReady(tc.line, tc.kind); got != tc.want {
			t.Errorf("matchesReady(%q, %s) = %v, want %v", tc.line, tc.kind, got, tc.want)
		}
	}
}
