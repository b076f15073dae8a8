package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smelt/internal/domain"
)

func TestBuildArgs_H264(t *testing.T) {
	profile := domain.Profile{
		Codec:        domain.CodecH264,
		Preset:       domain.PresetMedium,
		AudioBitrate: "128k",
	}

	args, err := buildArgs("/in/clip.mov", "/out/clip.mp4", profile, 1280, 720)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-i", "/in/clip.mov",
		"-vf", "scale=1280:720",
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "fast",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", "/out/clip.mp4",
	}, args)
}

func TestBuildArgs_H264NoScaleWithoutDimensions(t *testing.T) {
	profile := domain.Profile{
		Codec:        domain.CodecH264,
		Preset:       domain.PresetLow,
		AudioBitrate: "96k",
	}

	args, err := buildArgs("in.mp4", "out.mp4", profile, 0, 0)
	require.NoError(t, err)

	assert.NotContains(t, args, "-vf")
	assert.Contains(t, args, "veryfast")
	assert.Contains(t, args, "28")
}

func TestBuildArgs_PresetLadder(t *testing.T) {
	tests := []struct {
		preset domain.Preset
		crf    string
		speed  string
	}{
		{domain.PresetLow, "28", "veryfast"},
		{domain.PresetMedium, "23", "fast"},
		{domain.PresetHigh, "18", "medium"},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			args, err := buildArgs("in.mp4", "out.mp4", domain.Profile{
				Codec:        domain.CodecH264,
				Preset:       tt.preset,
				AudioBitrate: "128k",
			}, 0, 0)
			require.NoError(t, err)
			assert.Contains(t, args, tt.crf)
			assert.Contains(t, args, tt.speed)
		})
	}
}

func TestBuildArgs_Opus(t *testing.T) {
	profile := domain.Profile{
		Codec:        domain.CodecOpus,
		AudioBitrate: "96k",
	}

	args, err := buildArgs("/in/song.flac", "/out/song.ogg", profile, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-i", "/in/song.flac",
		"-vn",
		"-c:a", "libopus",
		"-b:a", "96k",
		"-y", "/out/song.ogg",
	}, args)
}

func TestBuildArgs_ImageCodecRejected(t *testing.T) {
	_, err := buildArgs("in.jpg", "out.jpg", domain.Profile{Codec: domain.CodecJPEG}, 0, 0)
	require.Error(t, err)

	f := domain.AsFailure(err)
	assert.Equal(t, domain.FailureUnsupportedFormat, f.Kind)
}

func TestBuildArgs_Deterministic(t *testing.T) {
	profile := domain.Profile{
		Codec:        domain.CodecH264,
		Preset:       domain.PresetHigh,
		AudioBitrate: "128k",
	}

	first, err := buildArgs("in.mp4", "out.mp4", profile, 640, 360)
	require.NoError(t, err)
	second, err := buildArgs("in.mp4", "out.mp4", profile, 640, 360)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
