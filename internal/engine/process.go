package engine

import (
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// listProcesses is swappable in tests.
var listProcesses = func() (string, error) {
	out, err := exec.Command("tasklist").Output()
	return string(out), err
}

// processRunning reports whether the named process appears in the system
// process list. Only meaningful on Windows, where the XVI application
// lives; elsewhere it always reports false.
func processRunning(name string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	out, err := listProcesses()
	if err != nil {
		slog.Warn("could not list processes", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(out), strings.ToLower(name))
}
