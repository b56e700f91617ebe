package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/metrics"
)

// PathPlaceholder is replaced by the target image path in command arguments.
const PathPlaceholder = "{path}"

// FileTimeLayout names capture files vehicle_<YYYYMMDD-HHMMSS>.<ext>.
const FileTimeLayout = "20060102-150405"

var (
	// ErrCaptureFailed wraps every capture failure.
	ErrCaptureFailed = errors.New("capture: failed")
	// ErrCaptureTimeout is additionally wrapped when the command exceeded its timeout.
	ErrCaptureTimeout = errors.New("capture: timed out")
)

// Runner performs the external capture into path.
type Runner interface {
	Run(ctx context.Context, path string) error
}

// RunnerFunc adapts a func to Runner.
type RunnerFunc func(ctx context.Context, path string) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, path string) error { return f(ctx, path) }

// CommandRunner execs an external program such as libcamera-still.
type CommandRunner struct {
	command string
	args    []string
}

// NewCommandRunner builds a runner. Every PathPlaceholder in args is substituted per call.
func NewCommandRunner(command string, args []string) *CommandRunner {
	return &CommandRunner{command: command, args: append([]string(nil), args...)}
}

// Run implements Runner. The process is killed when ctx ends.
func (r *CommandRunner) Run(ctx context.Context, path string) error {
	args := make([]string, len(r.args))
	for i, a := range r.args {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s: %w", r.command, err)
		}
		return fmt.Errorf("%s: %w: %s", r.command, err, msg)
	}
	return nil
}

// Config holds Capturer settings.
type Config struct {
	Dir       string
	Extension string
	Timeout   time.Duration
}

// Capturer produces one image per vehicle detection.
type Capturer struct {
	cfg     Config
	runner  Runner
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCapturer builds Capturer. now and m may be nil.
func NewCapturer(cfg Config, runner Runner, now func() time.Time, m *metrics.Metrics, logger *zap.Logger) *Capturer {
	if cfg.Extension == "" {
		cfg.Extension = "jpg"
	}
	cfg.Extension = strings.TrimPrefix(cfg.Extension, ".")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Capturer{cfg: cfg, runner: runner, now: now, metrics: m, logger: logger}
}

// PathFor returns the target image path for a capture taken at t.
func (c *Capturer) PathFor(t time.Time) string {
	name := fmt.Sprintf("vehicle_%s.%s", t.Format(FileTimeLayout), c.cfg.Extension)
	return filepath.Join(c.cfg.Dir, name)
}

// Capture creates the target directory and runs the external action with the configured
// timeout. The returned path is set even on failure.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	path := c.PathFor(c.now())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.metrics.CaptureObserved(metrics.CaptureFailed, 0)
		return path, fmt.Errorf("%w: create dir: %w", ErrCaptureFailed, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := c.runner.Run(runCtx, path)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		c.metrics.CaptureObserved(metrics.CaptureOK, elapsed)
		c.logger.Info("vehicle image captured", zap.String("path", path), zap.Duration("took", elapsed))
		return path, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		c.metrics.CaptureObserved(metrics.CaptureTimeout, elapsed)
		return path, fmt.Errorf("%w: %w after %s", ErrCaptureFailed, ErrCaptureTimeout, c.cfg.Timeout)
	default:
		c.metrics.CaptureObserved(metrics.CaptureFailed, elapsed)
		return path, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
}
