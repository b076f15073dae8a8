package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"smelt/internal/domain"
	"smelt/internal/port"
)

// graceTimeout is how long a signalled codec process gets to exit before it
// is killed.
const graceTimeout = 5 * time.Second

// stderrTailBytes bounds how much codec diagnostics are kept for error detail.
const stderrTailBytes = 4096

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains invalid characters")
)

// Transcoder invokes ffmpeg/ffprobe as external processes.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
}

func New(ffmpegPath, ffprobePath string) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// CheckBinaries verifies both codec binaries resolve to executables. Called
// at startup so a misconfigured deployment fails before binding the port.
func (t *Transcoder) CheckBinaries() error {
	for _, bin := range []string{t.ffmpegPath, t.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("codec binary %q not found: %w", bin, err)
		}
	}
	return nil
}

func (t *Transcoder) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	cmd := newCommand(ctx, t.ffprobePath, args)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, classifyProbeError(ctx, err, stderr.String())
	}

	var result domain.ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, domain.NewFailure(domain.FailureDecoderProcessFailure,
			"unparseable ffprobe output: %v", err)
	}
	if len(result.Streams) == 0 {
		return nil, domain.NewFailure(domain.FailureCorruptInput, "no decodable streams found")
	}
	return &result, nil
}

func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, profile domain.Profile, targetWidth, targetHeight int) error {
	if err := validatePath(inputPath); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if err := validatePath(outputPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	args, err := buildArgs(inputPath, outputPath, profile, targetWidth, targetHeight)
	if err != nil {
		return err
	}

	cmd := newCommand(ctx, t.ffmpegPath, args)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Partial output is scratch, never an artifact.
		_ = os.Remove(outputPath)
		return classifyRunError(ctx, err, stderr.String())
	}
	return nil
}

// newCommand builds an exec.Cmd that terminates gracefully on context
// cancellation: SIGTERM first, SIGKILL after the grace period.
func newCommand(ctx context.Context, bin string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = graceTimeout
	return cmd
}

func classifyProbeError(ctx context.Context, err error, stderr string) error {
	if ctxErr := contextFailure(ctx); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ffprobe exits non-zero when it cannot read the input at all.
		return domain.NewFailure(domain.FailureCorruptInput,
			"input not decodable: %s", stderrTail(stderr))
	}
	return domain.NewFailure(domain.FailureDecoderProcessFailure, "ffprobe: %v", err)
}

func classifyRunError(ctx context.Context, err error, stderr string) error {
	if ctxErr := contextFailure(ctx); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if looksCorrupt(stderr) {
			return domain.NewFailure(domain.FailureCorruptInput,
				"input not decodable: %s", stderrTail(stderr))
		}
		return domain.NewFailure(domain.FailureEncodingError,
			"ffmpeg exited with %d: %s", exitErr.ExitCode(), stderrTail(stderr))
	}
	// Start failures and signal-kills without an exit status are process
	// level problems, eligible for one retry upstream.
	return domain.NewFailure(domain.FailureDecoderProcessFailure, "ffmpeg: %v", err)
}

func contextFailure(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewFailure(domain.FailureDecoderProcessFailure,
			"codec process timed out")
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.NewFailure(domain.FailureCancelled, "cancelled during transcode")
	default:
		return nil
	}
}

var corruptMarkers = []string{
	"Invalid data found when processing input",
	"moov atom not found",
	"could not find codec parameters",
	"Header missing",
	"EBML header parsing failed",
}

func looksCorrupt(stderr string) bool {
	for _, marker := range corruptMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	if s == "" {
		return "(no diagnostics)"
	}
	return s
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, '\x00') {
		return ErrInvalidPath
	}
	return nil
}

var _ port.Transcoder = (*Transcoder)(nil)
