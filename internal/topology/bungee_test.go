package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBungeeSetServerCreatesFile(t *testing.T) {
	w := NewBungeeWriter(filepath.Join(t.TempDir(), "config.yml"))

	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatalf("SetServer failed: %v", err)
	}

	servers, prio, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"survival-abc123": "127.0.0.1:25565"}
	if diff := cmp.Diff(want, servers); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"survival-abc123"}, prio); diff != "" {
		t.Errorf("priorities mismatch (-want +got):\n%s", diff)
	}
}

func TestBungeeIndirectEntrySkipsPriorities(t *testing.T) {
	w := NewBungeeWriter(filepath.Join(t.TempDir(), "config.yml"))

	if err := w.SetServer("creative-def456", "127.0.0.1:25566", false); err != nil {
		t.Fatal(err)
	}

	_, prio, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(prio) != 0 {
		t.Errorf("priorities = %v, want empty for indirect entry", prio)
	}
}

func TestBungeePreservesUnrelatedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	seed := "player_limit: 100\n" +
		"online_mode: true\n" +
		"servers:\n" +
		"  lobby:\n" +
		"    address: 127.0.0.1:25560\n" +
		"    motd: lobby\n" +
		"    restricted: false\n" +
		"listeners:\n" +
		"- host: 0.0.0.0:25577\n" +
		"  priorities:\n" +
		"  - lobby\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewBungeeWriter(path)
	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "player_limit: 100") {
		t.Error("player_limit lost")
	}
	if !strings.Contains(content, "0.0.0.0:25577") {
		t.Error("listener host lost")
	}

	servers, prio, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if servers["lobby"] != "127.0.0.1:25560" {
		t.Errorf("pre-existing server lost: %v", servers)
	}
	if diff := cmp.Diff([]string{"lobby", "survival-abc123"}, prio); diff != "" {
		t.Errorf("priorities mismatch (-want +got):\n%s", diff)
	}
}

func TestBungeeRemoveServer(t *testing.T) {
	w := NewBungeeWriter(filepath.Join(t.TempDir(), "config.yml"))

	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveServer("survival-abc123"); err != nil {
		t.Fatalf("RemoveServer failed: %v", err)
	}

	servers, prio, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 0 || len(prio) != 0 {
		t.Errorf("servers=%v priorities=%v after remove, want empty", servers, prio)
	}
}
