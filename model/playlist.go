package model

// SortMode selects how the playlist is ordered.
type SortMode string

const (
	SortOriginal SortMode = "original-order"
	SortName     SortMode = "name"
	SortDuration SortMode = "duration"
)

// Valid reports whether m is a known sort mode.
func (m SortMode) Valid() bool {
	switch m {
	case SortOriginal, SortName, SortDuration:
		return true
	}
	return false
}

// Direction is the way Advance moves through the playlist.
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

// NoTrack is the CurrentIndex value when nothing is selected.
const NoTrack = -1

// TrackView is the presentation copy of a Track.
type TrackView struct {
	ID           string  `json:"id"`
	Order        int64   `json:"order"`
	SourceName   string  `json:"sourceName"`
	DisplayName  string  `json:"displayName"`
	Duration     float64 `json:"duration"`
	DurationText string  `json:"durationText"`
	MIMEType     string  `json:"mimeType"`
	CoverURL     string  `json:"coverUrl,omitempty"`
	HasArtwork   bool    `json:"hasArtwork"`
}

// Snapshot is a read-only copy of the playlist state.
type Snapshot struct {
	Tracks       []TrackView `json:"tracks"`
	CurrentIndex int         `json:"currentIndex"`
	Shuffle      bool        `json:"shuffle"`
	SortMode     SortMode    `json:"sortMode"`
	Playing      bool        `json:"playing"`
	Renaming     bool        `json:"renaming"`
}

// Current returns the selected track view, if any.
func (s Snapshot) Current() (TrackView, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tracks) {
		return TrackView{}, false
	}
	return s.Tracks[s.CurrentIndex], true
}
