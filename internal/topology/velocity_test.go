package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVelocitySetServerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "velocity.toml")
	w := NewVelocityWriter(path)

	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatalf("SetServer failed: %v", err)
	}

	servers, try, err := w.Servers()
	if err != nil {
		t.Fatalf("Servers failed: %v", err)
	}
	want := map[string]string{"survival-abc123": "127.0.0.1:25565"}
	if diff := cmp.Diff(want, servers); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"survival-abc123"}, try); diff != "" {
		t.Errorf("try order mismatch (-want +got):\n%s", diff)
	}
}

func TestVelocityIndirectEntrySkipsTryOrder(t *testing.T) {
	w := NewVelocityWriter(filepath.Join(t.TempDir(), "velocity.toml"))

	if err := w.SetServer("creative-def456", "127.0.0.1:25566", false); err != nil {
		t.Fatalf("SetServer failed: %v", err)
	}

	_, try, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(try) != 0 {
		t.Errorf("try = %v, want empty for indirect entry", try)
	}
}

func TestVelocitySetServerIdempotent(t *testing.T) {
	w := NewVelocityWriter(filepath.Join(t.TempDir(), "velocity.toml"))

	for i := 0; i < 3; i++ {
		if err := w.SetServer("lobby-aaa111", "127.0.0.1:25565", true); err != nil {
			t.Fatal(err)
		}
	}

	servers, try, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 || len(try) != 1 {
		t.Errorf("servers=%v try=%v, want single entry each", servers, try)
	}
}

func TestVelocityPreservesUnrelatedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "velocity.toml")
	seed := "config-version = \"2.7\"\n" +
		"bind = \"0.0.0.0:25577\"\n" +
		"motd = \"my network\"\n\n" +
		"[servers]\n" +
		"try = []\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewVelocityWriter(path)
	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "0.0.0.0:25577") {
		t.Error("bind setting lost")
	}
	if !strings.Contains(content, "my network") {
		t.Error("motd setting lost")
	}
}

func TestVelocityRemoveServer(t *testing.T) {
	w := NewVelocityWriter(filepath.Join(t.TempDir(), "velocity.toml"))

	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveServer("survival-abc123"); err != nil {
		t.Fatalf("RemoveServer failed: %v", err)
	}

	servers, try, err := w.Servers()
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 0 || len(try) != 0 {
		t.Errorf("servers=%v try=%v after remove, want empty", servers, try)
	}

	// Removing again is a no-op.
	if err := w.RemoveServer("survival-abc123"); err != nil {
		t.Errorf("second RemoveServer = %v, want nil", err)
	}
}

func TestVelocityAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewVelocityWriter(filepath.Join(dir, "velocity.toml"))

	if err := w.SetServer("survival-abc123", "127.0.0.1:25565", true); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "velocity.toml" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir contents = %v, want only velocity.toml", names)
	}
}
