package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"

	"smelt/internal/domain"
	"smelt/internal/infrastructure/logger"
	"smelt/internal/port"
)

// Limits are the pipeline's resource caps. Zero values disable a cap except
// MaxInputBytes, which is always enforced.
type Limits struct {
	MaxInputBytes    int64
	MaxOutputBytes   int64
	MaxSourceSeconds float64
}

// Pipeline converts a job's input into its output artifact. Still images run
// through the in-process image path; audio/video through the external codec
// process, with one retry for transient process failures.
type Pipeline struct {
	transcoder  port.Transcoder
	images      port.ImageProcessor
	limits      Limits
	artifactDir string
}

func NewPipeline(transcoder port.Transcoder, images port.ImageProcessor, limits Limits, dataDir string) *Pipeline {
	return &Pipeline{
		transcoder:  transcoder,
		images:      images,
		limits:      limits,
		artifactDir: filepath.Join(dataDir, "artifacts"),
	}
}

func (p *Pipeline) Run(ctx context.Context, job *domain.Job) (*domain.Artifact, error) {
	if p.limits.MaxInputBytes > 0 && job.InputSize > p.limits.MaxInputBytes {
		// The HTTP layer rejects oversized payloads before a job exists;
		// this guards jobs submitted through other paths.
		return nil, domain.NewFailure(domain.FailurePayloadTooLarge,
			"input is %s, cap is %s",
			humanize.IBytes(uint64(job.InputSize)), humanize.IBytes(uint64(p.limits.MaxInputBytes)))
	}

	if err := os.MkdirAll(p.artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	outputPath := filepath.Join(p.artifactDir, job.ID+job.Profile.Codec.Ext())

	var artifact *domain.Artifact
	var err error
	if job.Profile.Codec.ImageCodec() {
		artifact, err = p.runImage(ctx, job, outputPath)
	} else {
		artifact, err = p.runTranscode(ctx, job, outputPath)
	}
	if err != nil {
		_ = os.Remove(outputPath)
		return nil, err
	}

	if p.limits.MaxOutputBytes > 0 && artifact.Size > p.limits.MaxOutputBytes {
		_ = os.Remove(outputPath)
		return nil, domain.NewFailure(domain.FailureResourceExceeded,
			"output is %s, cap is %s",
			humanize.IBytes(uint64(artifact.Size)), humanize.IBytes(uint64(p.limits.MaxOutputBytes)))
	}
	return artifact, nil
}

func (p *Pipeline) runImage(ctx context.Context, job *domain.Job, outputPath string) (*domain.Artifact, error) {
	width, height, err := p.images.Process(ctx, job.InputPath, outputPath, job.Profile)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &domain.Artifact{
		Path:        outputPath,
		ContentType: job.Profile.Codec.ContentType(),
		Size:        info.Size(),
		Width:       width,
		Height:      height,
	}, nil
}

func (p *Pipeline) runTranscode(ctx context.Context, job *domain.Job, outputPath string) (*domain.Artifact, error) {
	probe, err := p.transcoder.Probe(ctx, job.InputPath)
	if err != nil {
		return nil, err
	}

	duration := probe.DurationSeconds()
	if p.limits.MaxSourceSeconds > 0 && duration > p.limits.MaxSourceSeconds {
		return nil, domain.NewFailure(domain.FailureResourceExceeded,
			"source duration %.1fs exceeds cap of %.0fs", duration, p.limits.MaxSourceSeconds)
	}

	var targetWidth, targetHeight int
	if job.Profile.Codec == domain.CodecH264 {
		srcWidth, srcHeight := probe.Dimensions()
		if srcWidth == 0 || srcHeight == 0 {
			return nil, domain.NewFailure(domain.FailureCorruptInput, "no video stream dimensions")
		}
		w, h := job.Profile.TargetDimensions(srcWidth, srcHeight)
		if w != srcWidth || h != srcHeight {
			targetWidth, targetHeight = w, h
		}
	}

	// One retry for transient codec process failures; timeouts and
	// cancellations are not retried because the job context is done.
	backoff := retry.WithMaxRetries(1, retry.NewConstant(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		runErr := p.transcoder.Transcode(ctx, job.InputPath, outputPath, job.Profile, targetWidth, targetHeight)
		if runErr == nil {
			return nil
		}
		if domain.AsFailure(runErr).Kind == domain.FailureDecoderProcessFailure && ctx.Err() == nil {
			logger.Warn.Printf("job %s: retrying after codec process failure: %v", job.ID, runErr)
			return retry.RetryableError(runErr)
		}
		return runErr
	})
	if err != nil {
		return nil, err
	}

	artifact := &domain.Artifact{
		Path:        outputPath,
		ContentType: job.Profile.Codec.ContentType(),
	}

	// Reproducibility contract: dimensions/duration/codec of the artifact
	// come from the output itself, not from the request.
	outProbe, err := p.transcoder.Probe(ctx, outputPath)
	if err != nil {
		logger.Warn.Printf("job %s: output probe failed: %v", job.ID, err)
	} else {
		artifact.Width, artifact.Height = outProbe.Dimensions()
		artifact.Duration = outProbe.DurationSeconds()
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	artifact.Size = info.Size()
	return artifact, nil
}
