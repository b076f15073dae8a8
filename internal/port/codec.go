package port

import (
	"context"

	"smelt/internal/domain"
)

// Transcoder is the out-of-process codec capability (ffmpeg/ffprobe).
// Implementations must honor context cancellation, terminating the external
// process after a grace period, and must clean up any scratch files on every
// exit path.
type Transcoder interface {
	// Probe inspects the input container and streams. A probe failure on
	// declared audio/video input classifies it as corrupt.
	Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error)

	// Transcode converts inputPath into outputPath per the profile.
	// targetWidth/targetHeight of 0 keep the source dimensions. Errors
	// carry a domain.Failure in their chain.
	Transcode(ctx context.Context, inputPath, outputPath string, profile domain.Profile, targetWidth, targetHeight int) error
}

// ImageProcessor is the in-process still-image capability.
type ImageProcessor interface {
	// Process decodes, resizes and re-encodes a still image, returning the
	// output dimensions.
	Process(ctx context.Context, inputPath, outputPath string, profile domain.Profile) (width, height int, err error)
}
