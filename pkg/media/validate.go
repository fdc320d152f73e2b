// Package media classifies downloaded bytes as plausible image or audio
// content by inspecting file signatures, not extensions. A presigned URL that
// has expired typically yields a small HTML or JSON error body; detecting that
// here gives a much better diagnostic than a decoder failure later.
package media

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// Anything below this is too small to be real media and almost always an
	// upstream error body saved to disk.
	minFileSize = 100

	// Audio containers are not exhaustively enumerated; a file this large with
	// an unknown header is accepted as assumed-valid. Best-effort by intent.
	audioAssumeValidSize = 10000

	headerProbeSize = 100
)

// ValidateImage reports whether the file at path is a plausible image.
// The reason string is human-readable and carries the detected format and
// byte size on success, or a diagnostic on failure.
func ValidateImage(path string) (bool, string) {
	header, size, ok, reason := readHeader(path)
	if !ok {
		return false, reason
	}

	if format := detectImageFormat(header); format != "" {
		return true, fmt.Sprintf("Valid %s image (%d bytes)", format, size)
	}

	if looksLikeMarkup(header) {
		return false, "File contains HTML/XML (likely an error page)"
	}
	if looksLikeJSONError(header) {
		return false, "File contains JSON error response"
	}
	return false, "File is not a valid image format"
}

// ValidateAudio reports whether the file at path is a plausible audio file.
func ValidateAudio(path string) (bool, string) {
	header, size, ok, reason := readHeader(path)
	if !ok {
		return false, reason
	}

	if looksLikeMarkup(header) {
		return false, "File contains HTML (likely an error page)"
	}

	if format := detectAudioFormat(header); format != "" {
		return true, fmt.Sprintf("Valid %s audio (%d bytes)", format, size)
	}

	// Not every valid container is enumerated above; large files get the
	// benefit of the doubt.
	if size > audioAssumeValidSize {
		return true, fmt.Sprintf("Assumed valid audio (%d bytes)", size)
	}

	probe := header
	if len(probe) > 8 {
		probe = probe[:8]
	}
	return false, fmt.Sprintf("Unknown audio format (header: %s)", hex.EncodeToString(probe))
}

func readHeader(path string) (header []byte, size int64, ok bool, reason string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, false, "File does not exist"
	}

	size = info.Size()
	if size < minFileSize {
		return nil, 0, false, fmt.Sprintf("File too small (%d bytes), likely an error response", size)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, false, fmt.Sprintf("Cannot read file: %v", err)
	}
	defer f.Close()

	buf := make([]byte, headerProbeSize)
	n, _ := f.Read(buf)
	return buf[:n], size, true, ""
}

func detectImageFormat(header []byte) string {
	switch {
	case bytes.HasPrefix(header, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case bytes.HasPrefix(header, []byte("\xff\xd8\xff")):
		return "jpeg"
	case bytes.HasPrefix(header, []byte("GIF87a")) || bytes.HasPrefix(header, []byte("GIF89a")):
		return "gif"
	case bytes.HasPrefix(header, []byte("BM")):
		return "bmp"
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "webp"
	case bytes.HasPrefix(header, []byte("II*\x00")) || bytes.HasPrefix(header, []byte("MM\x00*")):
		return "tiff"
	}
	return ""
}

func detectAudioFormat(header []byte) string {
	switch {
	case bytes.HasPrefix(header, []byte("ID3")),
		bytes.HasPrefix(header, []byte("\xff\xfb")),
		bytes.HasPrefix(header, []byte("\xff\xfa")):
		return "mp3"
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(header, []byte("OggS")):
		return "ogg"
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		return "m4a/aac"
	}
	return ""
}

func looksLikeMarkup(header []byte) bool {
	s := string(header)
	return strings.Contains(s, "<!DOCTYPE") || strings.Contains(s, "<html") || strings.Contains(s, "<?xml")
}

func looksLikeJSONError(header []byte) bool {
	s := string(header)
	return strings.Contains(s, `"error"`) || strings.Contains(s, `"message"`)
}
