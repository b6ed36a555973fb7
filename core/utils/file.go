package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/opus",
}

// SourceName strips directories and the last extension from a file name.
// "Night Drive.final.mp3" becomes "Night Drive.final".
func SourceName(filename string) string {
	base := filepath.Base(filename)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// IsAudioFile reports whether the file extension is a supported audio format.
func IsAudioFile(filename string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// IsImageType reports whether a content type names an image.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// MIMETypeOf guesses the content type from the extension, audio formats first.
func MIMETypeOf(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := audioExtensions[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// HashString is a polynomial rolling hash (h*31 + c) with 32-bit wraparound.
func HashString(s string) int32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return h
}

// HashIndex maps s onto [0, n) via |HashString(s)| mod n.
func HashIndex(s string, n int) int {
	if n <= 0 {
		return 0
	}
	h := int64(HashString(s))
	if h < 0 {
		h = -h
	}
	return int(h % int64(n))
}
