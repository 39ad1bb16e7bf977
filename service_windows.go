//go:build windows

// service_windows.go implements Windows service support using
// github.com/kardianos/service, so the server can run as a background
// service with proper Start/Stop handling.
package main

import (
	"fmt"
	"os"
	"time"

	"imageforge/core"
	"imageforge/logging"

	"github.com/kardianos/service"
)

// program implements service.Interface, wrapping the normal run path.
type program struct {
	logger *logging.Logger
	exit   chan struct{}
}

// Start begins the application in a goroutine; the service control manager
// requires Start to return promptly.
func (p *program) Start(s service.Service) error {
	p.exit = make(chan struct{})
	go func() {
		defer close(p.exit)
		run(p.logger, false)
	}()
	return nil
}

// Stop triggers graceful shutdown and waits for run to finish.
func (p *program) Stop(s service.Service) error {
	// run exits via the shutdown manager once the process signal arrives;
	// under the SCM no signal is delivered, so trigger exit directly.
	proc, err := os.FindProcess(os.Getpid())
	if err == nil {
		_ = proc.Signal(os.Interrupt)
	}

	select {
	case <-p.exit:
		return nil
	case <-time.After(60 * time.Second):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// serviceConfig describes the installed Windows service.
func serviceConfig() *service.Config {
	return &service.Config{
		Name:        "ImageForge",
		DisplayName: "ImageForge Generation Service",
		Description: "HTTP service for AI image generation requests",
	}
}

// RunAsService runs under the Windows service control manager when the
// process was launched by it. Returns true if the service path handled
// execution.
func RunAsService(logger *logging.Logger) (bool, error) {
	if !service.Interactive() {
		svc, err := service.New(&program{logger: logger}, serviceConfig())
		if err != nil {
			return true, err
		}
		return true, svc.Run()
	}
	return false, nil
}

// HandleServiceCommand handles install/uninstall/start/stop/restart
// subcommands. Returns true when a command was handled.
func HandleServiceCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "install", "uninstall", "start", "stop", "restart":
	default:
		return false
	}

	svc, err := service.New(&program{}, serviceConfig())
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	if err := service.Control(svc, args[0]); err != nil {
		fmt.Printf("Service command %q failed: %v\n", args[0], err)
		os.Exit(core.ExitCodeError)
	}
	fmt.Printf("Service command %q succeeded\n", args[0])
	return true
}

// isServiceMode reports whether the process runs non-interactively.
func isServiceMode() bool {
	return !service.Interactive()
}
