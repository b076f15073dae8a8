package ffmpeg

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smelt/internal/domain"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid absolute", "/data/uploads/abc.mp4", nil},
		{"valid relative", "clip.mp4", nil},
		{"empty", "", ErrEmptyPath},
		{"null byte", "clip\x00.mp4", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestProbe_RejectsInvalidPath(t *testing.T) {
	tr := New("ffmpeg", "ffprobe")

	_, err := tr.Probe(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPath)

	err = tr.Transcode(context.Background(), "in.mp4", "out\x00.mp4", domain.Profile{Codec: domain.CodecH264}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLooksCorrupt(t *testing.T) {
	assert.True(t, looksCorrupt("x.mp4: Invalid data found when processing input"))
	assert.True(t, looksCorrupt("[mov,mp4] moov atom not found"))
	assert.True(t, looksCorrupt("could not find codec parameters for stream 0"))
	assert.False(t, looksCorrupt("Conversion failed!"))
	assert.False(t, looksCorrupt(""))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "(no diagnostics)", stderrTail(""))
	assert.Equal(t, "(no diagnostics)", stderrTail("  \n"))
	assert.Equal(t, "short message", stderrTail("short message\n"))

	long := strings.Repeat("a", stderrTailBytes) + "tail"
	got := stderrTail(long)
	assert.Len(t, got, stderrTailBytes)
	assert.True(t, strings.HasSuffix(got, "tail"))
}

func TestContextFailure(t *testing.T) {
	assert.NoError(t, contextFailure(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := contextFailure(cancelled)
	require.Error(t, err)
	assert.Equal(t, domain.FailureCancelled, domain.AsFailure(err).Kind)

	expired, expire := context.WithTimeout(context.Background(), time.Nanosecond)
	defer expire()
	<-expired.Done()
	err = contextFailure(expired)
	require.Error(t, err)
	f := domain.AsFailure(err)
	assert.Equal(t, domain.FailureDecoderProcessFailure, f.Kind)
	assert.Contains(t, f.Detail, "timed out")
}

func TestClassifyRunError_NonExitError(t *testing.T) {
	err := classifyRunError(context.Background(), assert.AnError, "")
	f := domain.AsFailure(err)
	assert.Equal(t, domain.FailureDecoderProcessFailure, f.Kind)
}
