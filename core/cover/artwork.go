package cover

import (
	"errors"
	"fmt"

	"github.com/dhowden/tag"

	"Bt1Deck/model"
)

// ErrArtworkUnavailable means the source has no readable tags or no picture.
var ErrArtworkUnavailable = errors.New("artwork unavailable")

// ArtworkReader extracts embedded cover art from a media source.
type ArtworkReader interface {
	ReadArtwork(src model.MediaRef) (*model.Cover, error)
}

// EmbeddedReader reads pictures from ID3, MP4, FLAC and Ogg tags.
type EmbeddedReader struct{}

func NewEmbeddedReader() EmbeddedReader { return EmbeddedReader{} }

func (EmbeddedReader) ReadArtwork(src model.MediaRef) (*model.Cover, error) {
	f, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrArtworkUnavailable, src.Name(), err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtworkUnavailable, src.Name(), err)
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, fmt.Errorf("%w: %s: no picture", ErrArtworkUnavailable, src.Name())
	}

	mime := pic.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &model.Cover{Data: pic.Data, MIMEType: mime}, nil
}
