package model

import (
	"encoding/base64"
	"io"
)

// MediaRef is an opaque handle to a decodable audio source.
type MediaRef interface {
	// Name is the original file name, extension included.
	Name() string
	// Open returns a fresh reader positioned at the start of the source.
	Open() (io.ReadSeekCloser, error)
	// Release frees whatever the handle owns. Safe to call more than once.
	Release() error
}

// Cover is a track's cover image, either embedded artwork or a generated placeholder.
type Cover struct {
	Data      []byte `json:"-"`
	MIMEType  string `json:"mimeType"`
	Generated bool   `json:"generated"`
	Hue       int    `json:"hue,omitempty"`      // placeholder only
	Initials  string `json:"initials,omitempty"` // placeholder only
}

// DataURL renders the cover as an embeddable data URL.
func (c *Cover) DataURL() string {
	if c == nil || len(c.Data) == 0 {
		return ""
	}
	return "data:" + c.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// Track represents one loaded audio item in the playlist.
type Track struct {
	ID          string   `json:"id"`
	Order       int64    `json:"order"`       // insertion counter, never changes
	SourceName  string   `json:"sourceName"`  // file name without extension
	DisplayName string   `json:"displayName"` // defaults to SourceName
	Duration    float64  `json:"duration"`    // seconds, 0 when probing failed
	MIMEType    string   `json:"mimeType"`
	Cover       *Cover   `json:"cover,omitempty"`
	Media       MediaRef `json:"-"`
}

// Features holds the crude audio descriptors used for naming.
type Features struct {
	Energy   float64 `json:"energy"`   // RMS amplitude
	Centroid float64 `json:"centroid"` // spectral centroid in Hz
	Tempo    int     `json:"tempo"`    // zero-crossing proxy, not a real BPM
}
