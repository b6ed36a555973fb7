package playlist

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/collate"

	"Bt1Deck/core/audio"
	"Bt1Deck/core/cover"
	"Bt1Deck/core/utils"
	"Bt1Deck/logger"
	"Bt1Deck/model"
)

// Player is the playback facility the store drives.
type Player interface {
	Load(src model.MediaRef) error
	Play()
	Pause()
	Stop()
}

// Store is the playlist state: ordered tracks, selection, shuffle, sort mode
// and the playing flag. Mutations are serialized and each one that changes
// something publishes exactly one snapshot to subscribers, in order.
//
// Subscribers run while the publish lock is held and must not call mutating
// methods synchronously.
type Store struct {
	prober audio.Prober
	player Player

	artwork     cover.ArtworkReader
	covers      *cover.Generator
	collator    *collate.Collator
	rand        *rand.Rand
	remapOnSort bool

	mu        sync.Mutex
	tracks    []model.Track
	current   int
	shuffle   bool
	sortMode  model.SortMode
	playing   bool
	renaming  bool
	nextOrder int64
	closed    bool

	subs    map[int]func(model.Snapshot)
	nextSub int

	notifyMu sync.Mutex
	artWG    sync.WaitGroup
}

// NewStore creates an empty playlist. prober and player may be nil.
func NewStore(prober audio.Prober, player Player, opts ...Option) *Store {
	s := &Store{
		prober:   prober,
		player:   player,
		artwork:  cover.NewEmbeddedReader(),
		covers:   cover.NewGenerator(cover.DefaultSize, false),
		collator: newCollator("en"),
		rand:     defaultRand(),
		current:  model.NoTrack,
		sortMode: model.SortOriginal,
		subs:     make(map[int]func(model.Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs fn under the store lock and publishes a snapshot when fn
// reports a change. The publish lock is taken before the store lock is
// released so snapshots reach subscribers in mutation order.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	subs := make([]func(model.Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	s.notifyMu.Unlock()
	return true
}

// Subscribe registers fn for every published snapshot.
func (s *Store) Subscribe(fn func(model.Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// AddTrack appends src as a new track. A failed duration probe leaves the
// duration at zero. A closed store releases src and returns a zero Track. Embedded artwork is read in the background and replaces
// the placeholder cover when it arrives.
func (s *Store) AddTrack(ctx context.Context, src model.MediaRef) model.Track {
	name := src.Name()
	sourceName := utils.SourceName(name)

	var duration float64
	if s.prober != nil {
		d, err := s.prober.Probe(ctx, src)
		if err != nil {
			logger.Warn("duration probe failed",
				logger.String("file", name),
				logger.ErrorField(err))
		} else {
			duration = d.Seconds()
		}
	}

	track := model.Track{
		ID:          uuid.New().String(),
		SourceName:  sourceName,
		DisplayName: sourceName,
		Duration:    duration,
		MIMEType:    utils.MIMETypeOf(name),
		Cover:       s.covers.Generate(sourceName),
		Media:       src,
	}

	added := s.mutate(func() bool {
		if s.closed {
			return false
		}
		track.Order = s.nextOrder
		s.nextOrder++
		s.tracks = append(s.tracks, track)
		return true
	})
	if !added {
		_ = src.Release()
		return model.Track{}
	}

	logger.Info("track added",
		logger.String("id", track.ID),
		logger.String("name", sourceName),
		logger.Float64("duration", duration))

	if s.artwork != nil {
		s.artWG.Add(1)
		go func() {
			defer s.artWG.Done()
			c, err := s.artwork.ReadArtwork(src)
			if err != nil {
				logger.Debug("no embedded artwork", logger.String("id", track.ID), logger.ErrorField(err))
				return
			}
			if !s.ApplyArtwork(track.ID, c) {
				logger.Debug("artwork dropped, track removed", logger.String("id", track.ID))
			}
		}()
	}
	return track
}

// WaitArtwork blocks until every pending artwork read has finished.
func (s *Store) WaitArtwork() {
	s.artWG.Wait()
}

// RemoveTrack drops the track at index and releases its media. Removing the
// current track stops playback and clears the selection.
func (s *Store) RemoveTrack(index int) bool {
	return s.mutate(func() bool {
		if index < 0 || index >= len(s.tracks) {
			return false
		}
		t := s.tracks[index]
		s.tracks = append(s.tracks[:index], s.tracks[index+1:]...)
		if err := t.Media.Release(); err != nil {
			logger.Warn("release media failed", logger.String("id", t.ID), logger.ErrorField(err))
		}

		switch {
		case index == s.current:
			if s.player != nil {
				s.player.Stop()
			}
			s.playing = false
			s.current = model.NoTrack
		case index < s.current:
			s.current--
		}
		logger.Info("track removed", logger.String("id", t.ID), logger.Int("index", index))
		return true
	})
}

// SetCover replaces the cover of the track at index.
func (s *Store) SetCover(index int, c *model.Cover) bool {
	if c == nil {
		return false
	}
	return s.mutate(func() bool {
		if index < 0 || index >= len(s.tracks) {
			return false
		}
		s.tracks[index].Cover = c
		return true
	})
}

// SetCoverOfLast applies c to the most recently appended track.
func (s *Store) SetCoverOfLast(c *model.Cover) bool {
	if c == nil {
		return false
	}
	return s.mutate(func() bool {
		if len(s.tracks) == 0 {
			return false
		}
		s.tracks[len(s.tracks)-1].Cover = c
		return true
	})
}

// ApplyArtwork sets the cover of the track with the given ID, if it still exists.
func (s *Store) ApplyArtwork(id string, c *model.Cover) bool {
	if c == nil {
		return false
	}
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.tracks[i].Cover = c
		return true
	})
}

// Sort reorders the playlist. Unknown modes are ignored.
func (s *Store) Sort(mode model.SortMode) bool {
	if !mode.Valid() {
		return false
	}
	return s.mutate(func() bool {
		var currentID string
		if s.current >= 0 && s.current < len(s.tracks) {
			currentID = s.tracks[s.current].ID
		}

		switch mode {
		case model.SortName:
			sort.SliceStable(s.tracks, func(i, j int) bool {
				return s.collator.CompareString(s.tracks[i].DisplayName, s.tracks[j].DisplayName) < 0
			})
		case model.SortDuration:
			sort.SliceStable(s.tracks, func(i, j int) bool {
				return s.tracks[i].Duration < s.tracks[j].Duration
			})
		default:
			sort.SliceStable(s.tracks, func(i, j int) bool {
				return s.tracks[i].Order < s.tracks[j].Order
			})
		}
		s.sortMode = mode

		if s.remapOnSort && currentID != "" {
			s.current = s.indexLocked(currentID)
		}
		return true
	})
}

// SelectAndPlay makes index current and starts playing it.
func (s *Store) SelectAndPlay(index int) bool {
	return s.mutate(func() bool {
		if index < 0 || index >= len(s.tracks) {
			return false
		}
		s.current = index
		s.playLocked()
		return true
	})
}

// Advance moves to the next or previous track and plays it. With shuffle on,
// next picks a uniformly random track, possibly the current one.
func (s *Store) Advance(dir model.Direction) bool {
	return s.mutate(func() bool {
		n := len(s.tracks)
		if n == 0 {
			return false
		}
		switch dir {
		case model.Next:
			switch {
			case s.shuffle:
				s.current = s.rand.Intn(n)
			case s.current < 0:
				s.current = 0
			default:
				s.current = (s.current + 1) % n
			}
		case model.Previous:
			if s.current < 0 {
				s.current = n - 1
			} else {
				s.current = (s.current - 1 + n) % n
			}
		default:
			return false
		}
		s.playLocked()
		return true
	})
}

// TogglePlay starts the first track when nothing is selected, otherwise
// flips between playing and paused.
func (s *Store) TogglePlay() bool {
	return s.mutate(func() bool {
		if s.current < 0 || s.current >= len(s.tracks) {
			if len(s.tracks) == 0 {
				return false
			}
			s.current = 0
			s.playLocked()
			return true
		}
		if s.playing {
			s.pauseLocked()
			return true
		}
		if s.player != nil {
			s.player.Play()
		}
		s.playing = true
		return true
	})
}

// Pause stops playback, keeping the position.
func (s *Store) Pause() bool {
	return s.mutate(func() bool {
		if !s.playing {
			return false
		}
		s.pauseLocked()
		return true
	})
}

// Rename sets the display name of the track at index. An empty name restores
// the source name.
func (s *Store) Rename(index int, name string) bool {
	return s.mutate(func() bool {
		if index < 0 || index >= len(s.tracks) {
			return false
		}
		if name == "" {
			name = s.tracks[index].SourceName
		}
		s.tracks[index].DisplayName = name
		return true
	})
}

// ResetName restores the source name of the track at index.
func (s *Store) ResetName(index int) bool {
	return s.mutate(func() bool {
		if index < 0 || index >= len(s.tracks) {
			return false
		}
		s.tracks[index].DisplayName = s.tracks[index].SourceName
		return true
	})
}

// ResetAllNames restores every track's source name.
func (s *Store) ResetAllNames() bool {
	return s.mutate(func() bool {
		if len(s.tracks) == 0 {
			return false
		}
		for i := range s.tracks {
			s.tracks[i].DisplayName = s.tracks[i].SourceName
		}
		return true
	})
}

// RenameByID sets the display name of the track with the given ID.
func (s *Store) RenameByID(id, name string) bool {
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.tracks[i].DisplayName = name
		return true
	})
}

// ResetNameByID restores the source name of the track with the given ID.
func (s *Store) ResetNameByID(id string) bool {
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.tracks[i].DisplayName = s.tracks[i].SourceName
		return true
	})
}

func (s *Store) SetShuffle(on bool) bool {
	return s.mutate(func() bool {
		if s.shuffle == on {
			return false
		}
		s.shuffle = on
		return true
	})
}

// ToggleShuffle flips shuffle and returns the new value.
func (s *Store) ToggleShuffle() bool {
	var on bool
	s.mutate(func() bool {
		s.shuffle = !s.shuffle
		on = s.shuffle
		return true
	})
	return on
}

// SetRenaming marks a rename batch as running. It returns false when the
// flag already has that value, so only one batch starts at a time.
func (s *Store) SetRenaming(on bool) bool {
	return s.mutate(func() bool {
		if s.renaming == on {
			return false
		}
		s.renaming = on
		return true
	})
}

// Tracks returns a copy of the playlist in display order.
func (s *Store) Tracks() []model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Track(nil), s.tracks...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Current returns the selected track.
func (s *Store) Current() (model.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.tracks) {
		return model.Track{}, false
	}
	return s.tracks[s.current], true
}

// TrackByID looks a track up by ID.
func (s *Store) TrackByID(id string) (model.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Track{}, false
	}
	return s.tracks[i], true
}

func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close stops playback and releases every track. The store accepts no new
// tracks afterwards.
func (s *Store) Close() {
	s.mutate(func() bool {
		if s.closed {
			return false
		}
		s.closed = true
		if s.player != nil {
			s.player.Stop()
		}
		for _, t := range s.tracks {
			if err := t.Media.Release(); err != nil {
				logger.Warn("release media failed", logger.String("id", t.ID), logger.ErrorField(err))
			}
		}
		s.tracks = nil
		s.current = model.NoTrack
		s.playing = false
		return true
	})
	s.artWG.Wait()
}

func (s *Store) playLocked() {
	t := s.tracks[s.current]
	if s.player == nil {
		s.playing = true
		return
	}
	if err := s.player.Load(t.Media); err != nil {
		logger.Warn("load track failed",
			logger.String("id", t.ID),
			logger.String("name", t.SourceName),
			logger.ErrorField(err))
		s.player.Stop()
		s.playing = false
		return
	}
	s.player.Play()
	s.playing = true
}

func (s *Store) pauseLocked() {
	if s.player != nil {
		s.player.Pause()
	}
	s.playing = false
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tracks {
		if s.tracks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() model.Snapshot {
	views := make([]model.TrackView, len(s.tracks))
	for i, t := range s.tracks {
		v := model.TrackView{
			ID:           t.ID,
			Order:        t.Order,
			SourceName:   t.SourceName,
			DisplayName:  t.DisplayName,
			Duration:     t.Duration,
			DurationText: audio.FormatTime(t.Duration),
			MIMEType:     t.MIMEType,
		}
		if t.Cover != nil && len(t.Cover.Data) > 0 {
			v.CoverURL = "/api/tracks/" + t.ID + "/cover"
			v.HasArtwork = !t.Cover.Generated
		}
		views[i] = v
	}
	return model.Snapshot{
		Tracks:       views,
		CurrentIndex: s.current,
		Shuffle:      s.shuffle,
		SortMode:     s.sortMode,
		Playing:      s.playing,
		Renaming:     s.renaming,
	}
}
