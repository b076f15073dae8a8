package domain

// Codec identifies a target output encoding.
type Codec string

const (
	CodecJPEG Codec = "jpeg"
	CodecPNG  Codec = "png"
	CodecH264 Codec = "h264"
	CodecOpus Codec = "opus"
)

// Preset is the video quality ladder: smaller files and faster encodes at
// "low", better quality at "high".
type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
)

// Profile describes the requested output of a job. The mapping from Profile
// to codec invocation arguments is deterministic: identical profiles always
// produce identical invocations.
type Profile struct {
	Codec        Codec  `json:"codec" yaml:"codec"`
	Quality      int    `json:"quality,omitempty" yaml:"quality"`           // JPEG quality 1-100
	Preset       Preset `json:"preset,omitempty" yaml:"preset"`             // video ladder
	ScalePercent int    `json:"scale,omitempty" yaml:"scale"`               // 1-100, both dimensions
	MaxWidth     int    `json:"max_width,omitempty" yaml:"max_width"`       // 0 = unbounded
	MaxHeight    int    `json:"max_height,omitempty" yaml:"max_height"`     // 0 = unbounded
	AudioBitrate string `json:"audio_bitrate,omitempty" yaml:"audio_bitrate"`
}

var codecContentType = map[Codec]string{
	CodecJPEG: "image/jpeg",
	CodecPNG:  "image/png",
	CodecH264: "video/mp4",
	CodecOpus: "audio/ogg",
}

var codecExt = map[Codec]string{
	CodecJPEG: ".jpg",
	CodecPNG:  ".png",
	CodecH264: ".mp4",
	CodecOpus: ".ogg",
}

func (c Codec) ContentType() string { return codecContentType[c] }
func (c Codec) Ext() string         { return codecExt[c] }

func (c Codec) Known() bool {
	_, ok := codecContentType[c]
	return ok
}

// ImageCodec reports whether the codec is produced by the in-process image
// path rather than an external codec process.
func (c Codec) ImageCodec() bool {
	return c == CodecJPEG || c == CodecPNG
}

// Normalize fills defaults and validates the profile. An unknown codec or an
// out-of-range parameter is an UnsupportedFormat failure, rejected at submit
// time before any job is created.
func (p *Profile) Normalize() error {
	if !p.Codec.Known() {
		return NewFailure(FailureUnsupportedFormat, "unknown codec %q", string(p.Codec))
	}
	if p.Quality == 0 {
		p.Quality = 75
	}
	if p.Quality < 1 || p.Quality > 100 {
		return NewFailure(FailureUnsupportedFormat, "quality %d out of range 1-100", p.Quality)
	}
	if p.Preset == "" {
		p.Preset = PresetMedium
	}
	switch p.Preset {
	case PresetLow, PresetMedium, PresetHigh:
	default:
		return NewFailure(FailureUnsupportedFormat, "unknown preset %q", string(p.Preset))
	}
	if p.ScalePercent < 0 || p.ScalePercent > 100 {
		return NewFailure(FailureUnsupportedFormat, "scale %d out of range 1-100", p.ScalePercent)
	}
	if p.MaxWidth < 0 || p.MaxHeight < 0 {
		return NewFailure(FailureUnsupportedFormat, "negative dimension bound")
	}
	if p.AudioBitrate == "" {
		p.AudioBitrate = "128k"
	}
	return nil
}

// CompatibleWith reports whether the profile's codec can be produced from the
// given input kind.
func (p Profile) CompatibleWith(kind MediaKind) bool {
	switch p.Codec {
	case CodecJPEG, CodecPNG:
		return kind == MediaKindImage
	case CodecH264:
		return kind == MediaKindVideo
	case CodecOpus:
		return kind == MediaKindVideo || kind == MediaKindAudio
	default:
		return false
	}
}

// TargetDimensions resolves the output size for a source of w x h, applying
// the scale percentage first and then the max bounds, preserving aspect
// ratio. Dimensions are kept even for codec friendliness.
func (p Profile) TargetDimensions(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	tw, th := w, h
	if p.ScalePercent > 0 && p.ScalePercent < 100 {
		tw = w * p.ScalePercent / 100
		th = h * p.ScalePercent / 100
	}
	if p.MaxWidth > 0 && tw > p.MaxWidth {
		th = th * p.MaxWidth / tw
		tw = p.MaxWidth
	}
	if p.MaxHeight > 0 && th > p.MaxHeight {
		tw = tw * p.MaxHeight / th
		th = p.MaxHeight
	}
	tw -= tw % 2
	th -= th % 2
	if tw < 2 {
		tw = 2
	}
	if th < 2 {
		th = 2
	}
	return tw, th
}
