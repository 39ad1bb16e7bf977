//go:build !windows

// service_other.go provides stubs for service functions on non-Windows
// platforms, where the process runs in the foreground under an init system.
package main

import (
	"imageforge/logging"
)

// RunAsService is a no-op on non-Windows platforms.
// Returns false to indicate the application should run normally.
func RunAsService(logger *logging.Logger) (bool, error) {
	return false, nil
}

// HandleServiceCommand is a no-op on non-Windows platforms.
// Returns false to indicate no service command was handled.
func HandleServiceCommand(args []string) bool {
	return false
}

// isServiceMode is always false on non-Windows platforms.
func isServiceMode() bool {
	return false
}
