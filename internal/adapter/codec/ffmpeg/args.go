package ffmpeg

import (
	"fmt"

	"smelt/internal/domain"
)

// presetParams maps the quality ladder onto x264 crf/preset pairs.
// "low" favors size and speed, "high" favors quality.
var presetParams = map[domain.Preset]struct {
	crf    string
	preset string
}{
	domain.PresetLow:    {crf: "28", preset: "veryfast"},
	domain.PresetMedium: {crf: "23", preset: "fast"},
	domain.PresetHigh:   {crf: "18", preset: "medium"},
}

// buildArgs maps a profile onto an ffmpeg argument list. The mapping is
// deterministic: the same profile and target dimensions always produce the
// same invocation.
func buildArgs(inputPath, outputPath string, profile domain.Profile, targetWidth, targetHeight int) ([]string, error) {
	args := []string{"-i", inputPath}

	switch profile.Codec {
	case domain.CodecH264:
		p := presetParams[profile.Preset]
		if targetWidth > 0 && targetHeight > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", targetWidth, targetHeight))
		}
		args = append(args,
			"-c:v", "libx264",
			"-crf", p.crf,
			"-preset", p.preset,
			"-c:a", "aac",
			"-b:a", profile.AudioBitrate,
			"-movflags", "+faststart",
		)
	case domain.CodecOpus:
		args = append(args,
			"-vn",
			"-c:a", "libopus",
			"-b:a", profile.AudioBitrate,
		)
	default:
		return nil, domain.NewFailure(domain.FailureUnsupportedFormat,
			"codec %q is not produced by the external codec path", string(profile.Codec))
	}

	args = append(args, "-y", outputPath)
	return args, nil
}
