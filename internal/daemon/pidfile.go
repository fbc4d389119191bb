// Package daemon manages proxycached's PID file so operators can tell
// whether an instance is already running without an explicit supervisor.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFilename = "proxycached.pid"

// WritePID writes the current process ID to dir/proxycached.pid.
func WritePID(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory for PID file: %w", err)
	}
	path := pidPath(dir)
	data := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing PID file %s: %w", path, err)
	}
	return nil
}

// ReadPID reads the PID from dir/proxycached.pid.
func ReadPID(dir string) (int, error) {
	path := pidPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID from %s: %w", path, err)
	}
	return pid, nil
}

// RemovePID removes the PID file from dir, if present.
func RemovePID(dir string) error {
	path := pidPath(dir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file %s: %w", path, err)
	}
	return nil
}

// IsRunning reports whether dir's PID file names a live process.
func IsRunning(dir string) bool {
	pid, err := ReadPID(dir)
	if err != nil {
		return false
	}
	return isProcessAlive(pid)
}

// isProcessAlive sends signal 0, which on Unix checks existence without
// affecting the target process.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func pidPath(dir string) string {
	return filepath.Join(dir, pidFilename)
}
