package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
)

// CheckStatus is the outcome of one startup check.
type CheckStatus int

const (
	CheckPassed CheckStatus = iota
	CheckFailed
	CheckWarning
)

// CheckResult is one startup check outcome.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
}

// StartupChecker validates the environment before the service starts,
// printing a colored pass/fail line per check.
//
// Failures here are configuration problems an operator can fix, reported
// before any component initializes.
type StartupChecker struct {
	output       io.Writer
	showProgress bool
}

// NewStartupChecker creates a checker writing progress to stdout.
func NewStartupChecker() *StartupChecker {
	return &StartupChecker{
		output:       os.Stdout,
		showProgress: true,
	}
}

// WithOutput sets the progress writer.
func (c *StartupChecker) WithOutput(w io.Writer) *StartupChecker {
	c.output = w
	return c
}

// WithShowProgress enables or disables progress output.
func (c *StartupChecker) WithShowProgress(show bool) *StartupChecker {
	c.showProgress = show
	return c
}

// Run executes all startup checks against the given config.
// Returns the individual results and whether every required check passed.
func (c *StartupChecker) Run(cfg *Config) ([]CheckResult, bool) {
	start := time.Now()
	checks := []func(*Config) CheckResult{
		checkProviderKeys,
		checkProvidersConfig,
		checkImagesDir,
		checkDatabaseDir,
		checkAdminKeyHash,
	}

	var results []CheckResult
	success := true
	for _, check := range checks {
		result := check(cfg)
		results = append(results, result)
		c.print(result)
		if result.Status == CheckFailed {
			success = false
		}
	}

	if c.showProgress {
		if success {
			color.New(color.FgGreen).Fprintf(c.output, "\nStartup checks passed (%s)\n", time.Since(start).Round(time.Millisecond))
		} else {
			color.New(color.FgRed).Fprintf(c.output, "\nStartup checks failed (%s)\n", time.Since(start).Round(time.Millisecond))
		}
	}
	return results, success
}

func (c *StartupChecker) print(result CheckResult) {
	if !c.showProgress {
		return
	}
	switch result.Status {
	case CheckPassed:
		color.New(color.FgGreen).Fprint(c.output, "  ✓ ")
	case CheckWarning:
		color.New(color.FgYellow).Fprint(c.output, "  ! ")
	case CheckFailed:
		color.New(color.FgRed).Fprint(c.output, "  ✗ ")
	}
	fmt.Fprintf(c.output, "%s: %s\n", result.Name, result.Message)
}

// checkProviderKeys verifies at least one provider backend is usable.
func checkProviderKeys(cfg *Config) CheckResult {
	if cfg.OpenAIAPIKey == "" && cfg.DezgoAPIKey == "" {
		return CheckResult{
			Name:    "provider keys",
			Status:  CheckFailed,
			Message: "no provider API key configured; set OPENAI_API_KEY or DEZGO_API_KEY",
		}
	}

	configured := []string{}
	if cfg.OpenAIAPIKey != "" {
		configured = append(configured, "openai")
	}
	if cfg.DezgoAPIKey != "" {
		configured = append(configured, "dezgo")
	}
	return CheckResult{
		Name:    "provider keys",
		Status:  CheckPassed,
		Message: fmt.Sprintf("%d backend(s) configured: %v", len(configured), configured),
	}
}

// checkProvidersConfig verifies the registry config file exists.
func checkProvidersConfig(cfg *Config) CheckResult {
	if _, err := os.Stat(cfg.ProvidersConfigPath); err != nil {
		return CheckResult{
			Name:    "providers config",
			Status:  CheckFailed,
			Message: fmt.Sprintf("cannot read %s: %v", cfg.ProvidersConfigPath, err),
		}
	}
	return CheckResult{
		Name:    "providers config",
		Status:  CheckPassed,
		Message: cfg.ProvidersConfigPath,
	}
}

// checkImagesDir verifies the blob directory exists or can be created.
func checkImagesDir(cfg *Config) CheckResult {
	if err := os.MkdirAll(cfg.ImagesDir, 0755); err != nil {
		return CheckResult{
			Name:    "images directory",
			Status:  CheckFailed,
			Message: fmt.Sprintf("cannot create %s: %v", cfg.ImagesDir, err),
		}
	}
	return CheckResult{
		Name:    "images directory",
		Status:  CheckPassed,
		Message: cfg.ImagesDir,
	}
}

// checkDatabaseDir verifies the database parent directory is usable.
func checkDatabaseDir(cfg *Config) CheckResult {
	dir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return CheckResult{
			Name:    "database directory",
			Status:  CheckFailed,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	return CheckResult{
		Name:    "database directory",
		Status:  CheckPassed,
		Message: cfg.DatabasePath,
	}
}

// checkAdminKeyHash warns when the admin bypass is disabled.
func checkAdminKeyHash(cfg *Config) CheckResult {
	if cfg.AdminKeyHash == "" {
		return CheckResult{
			Name:    "admin bypass",
			Status:  CheckWarning,
			Message: "ADMIN_KEY_HASH not set; admin rate limit bypass disabled",
		}
	}
	return CheckResult{
		Name:    "admin bypass",
		Status:  CheckPassed,
		Message: "bypass key configured",
	}
}
