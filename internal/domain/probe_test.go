package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
	"format": {
		"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
		"duration": "12.480000",
		"size": "1048576",
		"bit_rate": "672000",
		"nb_streams": 2
	},
	"streams": [
		{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "duration": "12.480000"},
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "duration": "12.416000", "sample_rate": "44100", "channels": 2}
	]
}`

func TestProbeResult_Unmarshal(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeJSON), &result))

	assert.Equal(t, 2, result.Format.NbStreams)
	require.Len(t, result.Streams, 2)

	vs := result.VideoStream()
	require.NotNil(t, vs)
	assert.Equal(t, "h264", vs.CodecName)

	as := result.AudioStream()
	require.NotNil(t, as)
	assert.Equal(t, 2, as.Channels)

	w, h := result.Dimensions()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	assert.InDelta(t, 12.48, result.DurationSeconds(), 0.001)
}

func TestProbeResult_DurationFallsBackToStreams(t *testing.T) {
	result := ProbeResult{
		Format: ProbeFormat{Duration: "N/A"},
		Streams: []ProbeStream{
			{CodecType: "audio", Duration: "3.5"},
		},
	}
	assert.InDelta(t, 3.5, result.DurationSeconds(), 0.001)

	empty := ProbeResult{}
	assert.Zero(t, empty.DurationSeconds())
	w, h := empty.Dimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.Nil(t, empty.VideoStream())
}
