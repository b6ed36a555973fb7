package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"Bt1Deck/core/audio"
	"Bt1Deck/core/utils"
	"Bt1Deck/logger"
	"Bt1Deck/model"
)

// Adder receives the audio files the watcher finds.
type Adder interface {
	AddTrack(ctx context.Context, src model.MediaRef) model.Track
}

// Watcher loads a library folder into the playlist and keeps adding new
// audio files that appear in it.
type Watcher struct {
	dir    string
	adder  Adder
	settle time.Duration

	seen map[string]bool
}

// New creates a watcher for dir. Files are added once they stop changing
// for the settle period.
func New(dir string, adder Adder) *Watcher {
	return &Watcher{
		dir:    dir,
		adder:  adder,
		settle: 200 * time.Millisecond,
		seen:   make(map[string]bool),
	}
}

// Scan adds every audio file already in the folder, sorted by name.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	added := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() {
			continue
		}
		if w.add(ctx, filepath.Join(w.dir, e.Name())) {
			added++
		}
	}
	logger.Info("音乐目录扫描完成", logger.String("dir", w.dir), logger.Int("added", added))
	return added, nil
}

// Run scans the folder and then watches it until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if _, err := w.Scan(ctx); err != nil {
		return err
	}

	// 等文件写完再加入播放列表
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !utils.IsAudioFile(event.Name) || w.seen[event.Name] {
				continue
			}
			pending[event.Name] = time.Now()

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.add(ctx, path)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) add(ctx context.Context, path string) bool {
	if w.seen[path] || !utils.IsAudioFile(path) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	w.seen[path] = true
	t := w.adder.AddTrack(ctx, audio.NewFileSource(path))
	logger.Debug("library file added", logger.String("path", path), logger.String("id", t.ID))
	return true
}
