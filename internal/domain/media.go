package domain

import (
	"net/http"
	"path/filepath"
	"strings"
)

// MediaKind is the coarse input classification that selects the decode path:
// images go through the in-process library, video and audio through the
// external codec process.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true,
}

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true,
	".aac": true, ".m4a": true, ".opus": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mov": true,
	".avi": true, ".mkv": true, ".mpg": true, ".mpeg": true, ".ts": true,
}

// DetectMediaKind classifies an upload by its declared filename and, when the
// extension is unknown, by sniffing the leading bytes. It returns false when
// the input matches no supported kind.
func DetectMediaKind(filename string, head []byte) (MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return MediaKindImage, true
	case audioExts[ext]:
		return MediaKindAudio, true
	case videoExts[ext]:
		return MediaKindVideo, true
	}

	if len(head) > 0 {
		ct := http.DetectContentType(head)
		switch {
		case strings.HasPrefix(ct, "image/"):
			return MediaKindImage, true
		case strings.HasPrefix(ct, "audio/"):
			return MediaKindAudio, true
		case strings.HasPrefix(ct, "video/"):
			return MediaKindVideo, true
		}
	}
	return "", false
}
