package supervisor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/prismarine/craftd/internal/models"
)

// ServerJarName is the canonical jar filename inside a server folder.
// Downloads always land under this name regardless of kind.
const ServerJarName = "server.jar"

// aikarFlags are the G1GC tuning flags applied to game-server kinds.
var aikarFlags = []string{
	"-XX:+UseG1GC",
	"-XX:+ParallelRefProcEnabled",
	"-XX:MaxGCPauseMillis=200",
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+DisableExplicitGC",
	"-XX:+AlwaysPreTouch",
	"-XX:G1NewSizePercent=30",
	"-XX:G1MaxNewSizePercent=40",
	"-XX:G1HeapRegionSize=8M",
	"-XX:G1ReservePercent=20",
	"-XX:G1HeapWastePercent=5",
	"-XX:G1MixedGCCountTarget=4",
	"-XX:InitiatingHeapOccupancyPercent=15",
	"-XX:G1MixedGCLiveThresholdPercent=90",
	"-XX:G1RSetUpdatingPauseTimePercent=5",
	"-XX:SurvivorRatio=32",
	"-XX:+PerfDisableSharedMem",
	"-XX:MaxTenuringThreshold=1",
}

// LaunchArgs builds the java argument list for a server. Proxies get a
// plain heap setup; game kinds get the full G1GC tuning plus nogui.
func LaunchArgs(srv *models.ManagedServer) []string {
	args := []string{
		"-Xms512M",
		fmt.Sprintf("-Xmx%dM", srv.MemoryMB),
	}
	if !srv.Kind.IsProxy() {
		args = append(args, aikarFlags...)
	}
	args = append(args, "-jar", ServerJarName)
	if !srv.Kind.IsProxy() {
		args = append(args, "nogui")
	}
	return args
}

// ReadyMarker is the log substring that signals the kind has finished
// initialization.
func ReadyMarker(kind models.ServerKind) string {
	switch kind {
	case models.KindBungeeCord, models.KindWaterfall:
		return "Listening on "
	default:
		return "Done ("
	}
}

// javaCommand is the default command factory: a java child process with
// the server's folder as working directory.
func javaCommand(javaBin, basePath string, srv *models.ManagedServer) *exec.Cmd {
	cmd := exec.Command(javaBin, LaunchArgs(srv)...)
	cmd.Dir = filepath.Join(basePath, srv.ID)
	return cmd
}

// matchesReady reports whether line contains the kind's ready marker.
func matchesReady(line string, kind models.ServerKind) bool {
	return strings.Contains(line, ReadyMarker(kind))
}
