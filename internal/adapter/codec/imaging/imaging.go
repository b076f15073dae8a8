package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"smelt/internal/domain"
	"smelt/internal/port"

	// Decodable still-image formats beyond the output codecs.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Processor is the in-process still-image decode/resize/encode path.
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

func (p *Processor) Process(ctx context.Context, inputPath, outputPath string, profile domain.Profile) (int, int, error) {
	src, err := decode(inputPath)
	if err != nil {
		return 0, 0, err
	}

	// Cancellation checkpoint between decode and encode, the only seam in
	// an otherwise CPU-bound operation.
	if err := ctx.Err(); err != nil {
		return 0, 0, domain.NewFailure(domain.FailureCancelled, "cancelled during image processing")
	}

	bounds := src.Bounds()
	width, height := profile.TargetDimensions(bounds.Dx(), bounds.Dy())
	if width != bounds.Dx() || height != bounds.Dy() {
		src = resize(src, width, height)
	}

	if profile.Codec == domain.CodecJPEG {
		src = flatten(src)
	}

	if err := encode(src, outputPath, profile); err != nil {
		_ = os.Remove(outputPath)
		return 0, 0, err
	}
	return width, height, nil
}

func decode(inputPath string) (image.Image, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close() //nolint:errcheck

	img, _, err := image.Decode(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, domain.NewFailure(domain.FailureUnsupportedFormat,
				"unrecognized image format")
		}
		return nil, domain.NewFailure(domain.FailureCorruptInput,
			"image decode failed: %v", err)
	}
	return img, nil
}

func resize(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// flatten composites transparency onto a white background, since JPEG has no
// alpha channel.
func flatten(src image.Image) image.Image {
	if opaque, ok := src.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return src
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)
	return dst
}

func encode(img image.Image, outputPath string, profile domain.Profile) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close() //nolint:errcheck

	switch profile.Codec {
	case domain.CodecJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: profile.Quality})
	case domain.CodecPNG:
		err = png.Encode(out, img)
	default:
		return domain.NewFailure(domain.FailureUnsupportedFormat,
			"codec %q is not an image codec", string(profile.Codec))
	}
	if err != nil {
		return domain.NewFailure(domain.FailureEncodingError, "image encode failed: %v", err)
	}
	return out.Close()
}

var _ port.ImageProcessor = (*Processor)(nil)
