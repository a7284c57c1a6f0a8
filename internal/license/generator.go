package license

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// ErrGeneratorFailed wraps any external invocation failure: non-zero
// exit, spawn error, or timeout. Fatal for the check-in that caused it.
var ErrGeneratorFailed = errors.New("license generator failed")

// KeyGenerator produces a license key for a record, or nil when no
// generator matches the record's family. The decision logic never calls
// the external process directly; it goes through this interface.
type KeyGenerator interface {
	IssueKey(ctx context.Context, rec *models.LicenseRecord) (*string, error)
}

// CommandRunner executes an external program and returns its captured
// standard output.
type CommandRunner interface {
	Run(ctx context.Context, path string, args []string) (string, error)
}

// ExecRunner runs generator binaries via os/exec with a bounded timeout.
// A hanging generator is killed when the timeout elapses instead of
// blocking the check-in forever.
type ExecRunner struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecRunner creates an ExecRunner. A non-positive timeout falls back
// to 30 seconds.
func NewExecRunner(timeout time.Duration, logger zerolog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecRunner{
		timeout: timeout,
		logger:  logger.With().Str("component", "generator_exec").Logger(),
	}
}

// Run executes the binary and returns trimmed stdout. Stderr is folded
// into the error on failure.
func (r *ExecRunner) Run(ctx context.Context, path string, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("command", path).
		Strs("args", args).
		Msg("executing license generator")

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("generator timed out after %s: %w", r.timeout, err)
		}
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
	}

	return strings.TrimRight(stdout.String(), "\n"), nil
}

// GeneratorConfig locates the family-specific generator binaries and the
// timezone used to encode expiry dates.
type GeneratorConfig struct {
	ITUPath  string `yaml:"itu_path"`
	ITMPath  string `yaml:"itm_path"`
	Timezone string `yaml:"timezone"`
	// TimeoutSeconds bounds a single generator invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DefaultGeneratorConfig returns the conventional host install locations.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		ITUPath:        "/usr/local/bin/itu-keygen",
		ITMPath:        "/usr/local/bin/itm-keygen",
		Timezone:       "Asia/Seoul",
		TimeoutSeconds: 30,
	}
}

// Generator dispatches key generation to the external binary selected by
// the record's device family. Dispatch is evaluated fresh on every
// check-in; nothing is cached between calls.
type Generator struct {
	cfg    GeneratorConfig
	runner CommandRunner
	loc    *time.Location
	logger zerolog.Logger
}

// NewGenerator creates a Generator. The timezone is resolved once; an
// unknown zone name is an error because a wrong zone silently corrupts
// every expiry token.
func NewGenerator(cfg GeneratorConfig, runner CommandRunner, logger zerolog.Logger) (*Generator, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load generator timezone %q: %w", cfg.Timezone, err)
	}
	return &Generator{
		cfg:    cfg,
		runner: runner,
		loc:    loc,
		logger: logger.With().Str("component", "generator").Logger(),
	}, nil
}

// IssueKey builds and executes the family-specific command and returns the
// captured key. Returns (nil, nil) for families with no generator; this
// is a designed no-op path, not an error.
func (g *Generator) IssueKey(ctx context.Context, rec *models.LicenseRecord) (*string, error) {
	path, args, ok := g.buildCommand(rec)
	if !ok {
		g.logger.Debug().
			Str("hardware_code", rec.HardwareCode).
			Str("family", string(rec.Family)).
			Msg("no generator for device family, leaving key unset")
		return nil, nil
	}

	out, err := g.runner.Run(ctx, path, args)
	if err != nil {
		return nil, fmt.Errorf("%w: family %s: %v", ErrGeneratorFailed, rec.Family, err)
	}

	key := strings.TrimRight(out, "\n")
	g.logger.Info().
		Str("hardware_code", rec.HardwareCode).
		Str("family", string(rec.Family)).
		Msg("license key generated")
	return &key, nil
}

// buildCommand selects the binary and argument shape for the record's
// family. ITU takes (serial, decimal mask, hex expiry). ITM/SMC-style
// serials take flag arguments with the truncated serial and a compact
// end date. Expiry falls back to one month out when no window is set,
// matching the demo issuance window stamped by the engine.
func (g *Generator) buildCommand(rec *models.LicenseRecord) (string, []string, bool) {
	end := time.Now().In(g.loc).AddDate(0, 1, 0)
	if rec.HasWindow() {
		end = rec.LimitEnd.In(g.loc)
	}

	switch {
	case rec.Family == models.FamilyITU:
		mask := ITUFeatureMask(rec.Features)
		args := []string{
			rec.HardwareCode,
			strconv.Itoa(mask),
			HexExpiry(end, g.loc),
		}
		return g.cfg.ITUPath, args, true

	case HasSegmentedSerial(rec.HardwareCode):
		args := []string{
			"-k", rec.InitCode,
			"-s", TruncateSerial(rec.HardwareCode),
			"-m", ModuleLetters(rec.Features),
			"-e", CompactDate(end),
		}
		return g.cfg.ITMPath, args, true

	default:
		return "", nil, false
	}
}
