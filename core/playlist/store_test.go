package playlist

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"Bt1Deck/core/audio"
	"Bt1Deck/model"
)

type fakeProber map[string]time.Duration

func (p fakeProber) Probe(_ context.Context, src model.MediaRef) (time.Duration, error) {
	d, ok := p[src.Name()]
	if !ok {
		return 0, errors.New("unknown format")
	}
	return d, nil
}

type fakePlayer struct {
	mu      sync.Mutex
	loaded  []string
	calls   []string
	failFor string
}

func (p *fakePlayer) Load(src model.MediaRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src.Name() == p.failFor {
		return audio.ErrUnsupportedFormat
	}
	p.loaded = append(p.loaded, src.Name())
	p.calls = append(p.calls, "load")
	return nil
}

func (p *fakePlayer) record(c string) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePlayer) Play()  { p.record("play") }
func (p *fakePlayer) Pause() { p.record("pause") }
func (p *fakePlayer) Stop()  { p.record("stop") }

func (p *fakePlayer) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return ""
	}
	return p.calls[len(p.calls)-1]
}

func (p *fakePlayer) lastLoaded() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loaded) == 0 {
		return ""
	}
	return p.loaded[len(p.loaded)-1]
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	prober := fakeProber{
		"A.mp3": 200 * time.Second,
		"B.mp3": 100 * time.Second,
		"C.mp3": 300 * time.Second,
	}
	opts = append([]Option{WithArtworkReader(nil), WithSeed(42)}, opts...)
	s := NewStore(prober, player, opts...)
	t.Cleanup(s.Close)
	return s, player
}

func add(s *Store, names ...string) {
	for _, n := range names {
		s.AddTrack(context.Background(), audio.NewMemorySource(n, []byte("data")))
	}
}

func displayNames(s *Store) []string {
	var out []string
	for _, t := range s.Tracks() {
		out = append(out, t.DisplayName)
	}
	return out
}

func TestAddTrack(t *testing.T) {
	s, _ := newTestStore(t)
	tr := s.AddTrack(context.Background(), audio.NewMemorySource("A.mp3", []byte("x")))

	if tr.SourceName != "A" || tr.DisplayName != "A" {
		t.Errorf("names = %q/%q, want A/A", tr.SourceName, tr.DisplayName)
	}
	if tr.Duration != 200 {
		t.Errorf("Duration = %v, want 200", tr.Duration)
	}
	if tr.Cover == nil || !tr.Cover.Generated || tr.Cover.Initials != "A" {
		t.Errorf("cover = %+v, want generated placeholder", tr.Cover)
	}
	if tr.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q", tr.MIMEType)
	}

	unknown := s.AddTrack(context.Background(), audio.NewMemorySource("weird.xyz", []byte("x")))
	if unknown.Duration != 0 {
		t.Errorf("failed probe duration = %v, want 0", unknown.Duration)
	}
	if unknown.Order != tr.Order+1 {
		t.Errorf("Order = %d, want %d", unknown.Order, tr.Order+1)
	}

	snap := s.Snapshot()
	if len(snap.Tracks) != 2 || snap.CurrentIndex != model.NoTrack {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Tracks[0].DurationText != "3:20" {
		t.Errorf("DurationText = %q, want 3:20", snap.Tracks[0].DurationText)
	}
}

func TestSortDurationScenario(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3", "C.mp3")

	s.Sort(model.SortDuration)
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"B", "A", "C"}) {
		t.Errorf("duration sort = %v, want [B A C]", got)
	}
	if s.Snapshot().SortMode != model.SortDuration {
		t.Error("sort mode not recorded")
	}

	s.Sort(model.SortOriginal)
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("original order = %v, want [A B C]", got)
	}
}

func TestSortIdempotent(t *testing.T) {
	for _, mode := range []model.SortMode{model.SortName, model.SortDuration, model.SortOriginal} {
		s, _ := newTestStore(t)
		add(s, "charlie.mp3", "C.mp3", "Alpha.mp3", "beta.mp3", "A.mp3", "B.mp3")
		s.Sort(model.SortName)
		s.Sort(mode)
		once := displayNames(s)
		s.Sort(mode)
		if twice := displayNames(s); !reflect.DeepEqual(once, twice) {
			t.Errorf("%s: %v then %v", mode, once, twice)
		}
	}
}

func TestSortNameIgnoresCase(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "charlie.mp3", "beta.mp3", "Alpha.mp3")
	s.Sort(model.SortName)
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"Alpha", "beta", "charlie"}) {
		t.Errorf("name sort = %v", got)
	}
}

func TestSortUnknownModeIgnored(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "B.mp3", "A.mp3")
	if s.Sort("random") {
		t.Error("unknown mode reported a change")
	}
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("order = %v", got)
	}
}

func TestSortCurrentIndex(t *testing.T) {
	// default keeps the raw position
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3", "C.mp3")
	s.SelectAndPlay(0)
	s.Sort(model.SortDuration)
	if snap := s.Snapshot(); snap.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", snap.CurrentIndex)
	}
	if cur, _ := s.Current(); cur.SourceName != "B" {
		t.Errorf("current = %q, want B (raw position kept)", cur.SourceName)
	}

	remap, _ := newTestStore(t, WithRemapOnSort(true))
	add(remap, "A.mp3", "B.mp3", "C.mp3")
	remap.SelectAndPlay(0)
	remap.Sort(model.SortDuration)
	if cur, _ := remap.Current(); cur.SourceName != "A" {
		t.Errorf("remapped current = %q, want A", cur.SourceName)
	}
	if remap.Snapshot().CurrentIndex != 1 {
		t.Errorf("remapped CurrentIndex = %d, want 1", remap.Snapshot().CurrentIndex)
	}
}

func TestResetAfterRenames(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3")
	s.Rename(0, "first")
	s.Rename(0, "second")
	s.Rename(1, "other")

	s.ResetName(0)
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"A", "other"}) {
		t.Errorf("after ResetName = %v", got)
	}
	s.ResetAllNames()
	if got := displayNames(s); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("after ResetAllNames = %v", got)
	}
	s.Rename(1, "")
	if got := displayNames(s); got[1] != "B" {
		t.Errorf("empty rename = %q, want source name", got[1])
	}
}

func TestOutOfRangeIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3")
	before := s.Snapshot()
	for name, fn := range map[string]func() bool{
		"remove":    func() bool { return s.RemoveTrack(5) },
		"removeNeg": func() bool { return s.RemoveTrack(-1) },
		"select":    func() bool { return s.SelectAndPlay(1) },
		"rename":    func() bool { return s.Rename(3, "x") },
		"reset":     func() bool { return s.ResetName(-2) },
		"cover":     func() bool { return s.SetCover(9, &model.Cover{}) },
	} {
		if fn() {
			t.Errorf("%s out of range reported a change", name)
		}
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Error("snapshot changed by out-of-range calls")
	}
}

func TestAdvanceWraps(t *testing.T) {
	s, player := newTestStore(t)
	if s.Advance(model.Next) {
		t.Error("advance on empty playlist reported a change")
	}

	add(s, "A.mp3")
	s.Advance(model.Next)
	s.Advance(model.Next)
	if snap := s.Snapshot(); snap.CurrentIndex != 0 || !snap.Playing {
		t.Errorf("single track next = %d playing=%v", snap.CurrentIndex, snap.Playing)
	}
	if player.lastLoaded() != "A.mp3" || player.last() != "play" {
		t.Errorf("player = %q %q", player.lastLoaded(), player.last())
	}

	add(s, "B.mp3", "C.mp3")
	s.SelectAndPlay(2)
	s.Advance(model.Next)
	if got := s.Snapshot().CurrentIndex; got != 0 {
		t.Errorf("next from last = %d, want 0", got)
	}
	s.Advance(model.Previous)
	if got := s.Snapshot().CurrentIndex; got != 2 {
		t.Errorf("previous from first = %d, want 2", got)
	}
}

func TestAdvanceFromNothing(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3", "C.mp3")
	s.Advance(model.Previous)
	if got := s.Snapshot().CurrentIndex; got != 2 {
		t.Errorf("previous from none = %d, want 2", got)
	}

	s2, _ := newTestStore(t)
	add(s2, "A.mp3", "B.mp3", "C.mp3")
	s2.Advance(model.Next)
	if got := s2.Snapshot().CurrentIndex; got != 0 {
		t.Errorf("next from none = %d, want 0", got)
	}
}

func TestShuffleStaysInRange(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3", "C.mp3", "D.mp3")
	if !s.ToggleShuffle() {
		t.Fatal("ToggleShuffle did not enable shuffle")
	}
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		s.Advance(model.Next)
		idx := s.Snapshot().CurrentIndex
		if idx < 0 || idx >= 4 {
			t.Fatalf("shuffle index %d out of range", idx)
		}
		seen[idx] = true
	}
	if len(seen) != 4 {
		t.Errorf("shuffle visited %d of 4 tracks", len(seen))
	}

	// previous ignores shuffle
	s.SelectAndPlay(1)
	s.Advance(model.Previous)
	if got := s.Snapshot().CurrentIndex; got != 0 {
		t.Errorf("previous with shuffle = %d, want 0", got)
	}
}

func TestShuffleRepeatsWithSameRand(t *testing.T) {
	run := func() []int {
		s, _ := newTestStore(t, WithRand(rand.New(rand.NewSource(7))))
		add(s, "A.mp3", "B.mp3", "C.mp3", "D.mp3")
		s.SetShuffle(true)
		var seq []int
		for i := 0; i < 10; i++ {
			s.Advance(model.Next)
			seq = append(seq, s.Snapshot().CurrentIndex)
		}
		return seq
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Errorf("same rand gave %v and %v", a, b)
	}
}

func TestRemoveCurrentStops(t *testing.T) {
	s, player := newTestStore(t)
	add(s, "A.mp3", "B.mp3")
	s.SelectAndPlay(1)
	media := s.Tracks()[1].Media

	s.RemoveTrack(1)
	snap := s.Snapshot()
	if snap.CurrentIndex != model.NoTrack || snap.Playing {
		t.Errorf("after removing current: index %d playing %v", snap.CurrentIndex, snap.Playing)
	}
	if player.last() != "stop" {
		t.Errorf("player last call = %q, want stop", player.last())
	}
	if _, err := media.Open(); err == nil {
		t.Error("removed track media still open-able")
	}
}

func TestRemoveEarlierTrackKeepsSelection(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3", "C.mp3")
	s.SelectAndPlay(2)
	s.RemoveTrack(0)
	cur, ok := s.Current()
	if !ok || cur.SourceName != "C" {
		t.Errorf("current = %q %v, want C", cur.SourceName, ok)
	}
	if !s.Snapshot().Playing {
		t.Error("removing another track stopped playback")
	}
}

func TestTogglePlay(t *testing.T) {
	s, player := newTestStore(t)
	if s.TogglePlay() {
		t.Error("toggle on empty playlist reported a change")
	}
	add(s, "A.mp3", "B.mp3")

	s.TogglePlay()
	if snap := s.Snapshot(); snap.CurrentIndex != 0 || !snap.Playing {
		t.Fatalf("first toggle = %+v", snap)
	}
	s.TogglePlay()
	if s.Snapshot().Playing || player.last() != "pause" {
		t.Error("second toggle did not pause")
	}
	s.TogglePlay()
	if !s.Snapshot().Playing || player.last() != "play" {
		t.Error("third toggle did not resume")
	}
	if s.Pause(); s.Snapshot().Playing {
		t.Error("Pause left playing set")
	}
	if s.Pause() {
		t.Error("Pause while paused reported a change")
	}
}

func TestLoadFailureLeavesStopped(t *testing.T) {
	s, player := newTestStore(t)
	player.failFor = "B.mp3"
	add(s, "A.mp3", "B.mp3")
	s.SelectAndPlay(1)
	snap := s.Snapshot()
	if snap.CurrentIndex != 1 || snap.Playing {
		t.Errorf("after failed load: index %d playing %v", snap.CurrentIndex, snap.Playing)
	}
}

func TestCovers(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3", "B.mp3")
	art := &model.Cover{Data: []byte{1, 2, 3}, MIMEType: "image/png"}

	s.SetCoverOfLast(art)
	tracks := s.Tracks()
	if tracks[1].Cover != art || tracks[0].Cover == art {
		t.Error("SetCoverOfLast did not target the last track")
	}
	if !s.Snapshot().Tracks[1].HasArtwork || s.Snapshot().Tracks[0].HasArtwork {
		t.Error("HasArtwork flags wrong")
	}

	s.SetCover(0, art)
	if s.Tracks()[0].Cover != art {
		t.Error("SetCover did not apply")
	}
}

type gatedArtwork struct {
	release chan struct{}
	cover   *model.Cover
}

func (g gatedArtwork) ReadArtwork(model.MediaRef) (*model.Cover, error) {
	<-g.release
	return g.cover, nil
}

func TestArtworkAppliedAsynchronously(t *testing.T) {
	gate := gatedArtwork{release: make(chan struct{}), cover: &model.Cover{Data: []byte{9}, MIMEType: "image/jpeg"}}
	s, _ := newTestStore(t, WithArtworkReader(gate))
	add(s, "A.mp3")

	if s.Snapshot().Tracks[0].HasArtwork {
		t.Fatal("artwork applied before read finished")
	}
	close(gate.release)
	s.WaitArtwork()
	if !s.Snapshot().Tracks[0].HasArtwork {
		t.Error("artwork not applied")
	}
}

func TestArtworkForRemovedTrackDropped(t *testing.T) {
	gate := gatedArtwork{release: make(chan struct{}), cover: &model.Cover{Data: []byte{9}, MIMEType: "image/jpeg"}}
	s, _ := newTestStore(t, WithArtworkReader(gate))
	add(s, "A.mp3", "B.mp3")
	removed := s.Tracks()[0].ID
	s.RemoveTrack(0)

	var snaps int
	cancel := s.Subscribe(func(model.Snapshot) { snaps++ })
	defer cancel()

	close(gate.release)
	s.WaitArtwork()

	if _, ok := s.TrackByID(removed); ok {
		t.Fatal("removed track came back")
	}
	if s.Len() != 1 || !s.Snapshot().Tracks[0].HasArtwork {
		t.Errorf("remaining track = %+v", s.Snapshot().Tracks)
	}
	// only the surviving track's artwork publishes
	if snaps != 1 {
		t.Errorf("published %d snapshots, want 1", snaps)
	}
}

func TestSubscribeOnePerMutation(t *testing.T) {
	s, _ := newTestStore(t)
	var got []model.Snapshot
	cancel := s.Subscribe(func(snap model.Snapshot) { got = append(got, snap) })

	add(s, "A.mp3", "B.mp3")
	s.Rename(0, "x")
	s.RemoveTrack(7)
	s.SetShuffle(true)
	s.SetShuffle(true)

	if len(got) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(got))
	}
	if len(got[0].Tracks) != 1 || len(got[1].Tracks) != 2 {
		t.Error("snapshots out of order")
	}
	if got[2].Tracks[0].DisplayName != "x" || !got[3].Shuffle {
		t.Error("snapshot contents wrong")
	}

	cancel()
	s.Rename(0, "y")
	if len(got) != 4 {
		t.Error("cancelled subscriber still called")
	}
}

func TestRenameByIDAfterRemoval(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3")
	id := s.Tracks()[0].ID
	if !s.RenameByID(id, "label") {
		t.Fatal("RenameByID failed on live track")
	}
	s.RemoveTrack(0)
	if s.RenameByID(id, "late") || s.ResetNameByID(id) || s.ApplyArtwork(id, &model.Cover{}) {
		t.Error("write to removed track reported a change")
	}
}

func TestSetRenamingGuards(t *testing.T) {
	s, _ := newTestStore(t)
	if !s.SetRenaming(true) {
		t.Fatal("first SetRenaming(true) refused")
	}
	if s.SetRenaming(true) {
		t.Error("overlapping batch allowed")
	}
	if !s.Snapshot().Renaming {
		t.Error("Renaming flag not in snapshot")
	}
	s.SetRenaming(false)
}

func TestCloseReleasesMedia(t *testing.T) {
	s, _ := newTestStore(t)
	add(s, "A.mp3")
	media := s.Tracks()[0].Media
	s.Close()
	if _, err := media.Open(); err == nil {
		t.Error("media still open-able after Close")
	}
	if s.Len() != 0 {
		t.Error("tracks kept after Close")
	}
	late := audio.NewMemorySource("B.mp3", []byte("x"))
	if got := s.AddTrack(context.Background(), late); got.ID != "" || got.SourceName != "" || got.Cover != nil {
		t.Errorf("AddTrack on closed store = %+v, want zero Track", got)
	}
	if s.Len() != 0 {
		t.Error("closed store accepted a track")
	}
	if _, err := late.Open(); err == nil {
		t.Error("rejected source not released")
	}
}
