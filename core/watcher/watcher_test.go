package watcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"Bt1Deck/model"
)

type recordingAdder struct {
	mu    sync.Mutex
	names []string
}

func (a *recordingAdder) AddTrack(_ context.Context, src model.MediaRef) model.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, src.Name())
	return model.Track{ID: src.Name()}
}

func (a *recordingAdder) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.names...)
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanSortedAudioOnly(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.mp3", "notes.txt", "a.flac", "cover.jpg", "c.WAV"} {
		writeFile(t, dir, n)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.mp3"), 0o755); err != nil {
		t.Fatal(err)
	}

	adder := &recordingAdder{}
	n, err := New(dir, adder).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"a.flac", "b.mp3", "c.WAV"}
	if n != 3 || !reflect.DeepEqual(adder.snapshot(), want) {
		t.Errorf("Scan added %d %v, want %v", n, adder.snapshot(), want)
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), &recordingAdder{}).Scan(context.Background()); err == nil {
		t.Error("Scan of missing dir returned nil error")
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "first.mp3")

	adder := &recordingAdder{}
	w := New(dir, adder)
	w.settle = 40 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return len(adder.snapshot()) == 1 })
	writeFile(t, dir, "readme.md")
	writeFile(t, dir, "second.ogg")
	waitFor(t, func() bool { return len(adder.snapshot()) == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if got := adder.snapshot(); !reflect.DeepEqual(got, []string{"first.mp3", "second.ogg"}) {
		t.Errorf("added = %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
