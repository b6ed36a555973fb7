package cmd

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Bt1Deck/core/analysis"
	"Bt1Deck/core/audio"
	"Bt1Deck/internal/testaudio"
)

func TestAnalyzeFiles(t *testing.T) {
	dir := t.TempDir()
	tone := filepath.Join(dir, "Night Drive.wav")
	if err := os.WriteFile(tone, testaudio.WAV(testaudio.Sine(1000, 0.5, 8000, 8000), 8000), 0o644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	analyzeFiles(context.Background(), &out, analysis.NewAnalyzer(audio.NewBeepDecoder()), []string{tone, broken})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output:\n%s", out.String())
	}
	if !strings.Contains(lines[1], "energetic-deep-") || !strings.Contains(lines[1], analysis.Noun("Night Drive")) {
		t.Errorf("tone row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "broken.wav") || !strings.Contains(lines[2], " broken ") {
		t.Errorf("broken row = %q, want source name fallback", lines[2])
	}
}

func TestCoverCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nd.png")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"cover", "Night Drive", "-o", out, "--size", "64"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("cover: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("bounds = %v", b)
	}
	if !strings.Contains(stdout.String(), `initials "ND"`) {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestCoverCommandDataURL(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"cover", "Night Drive", "-o", "-", "--size", "32"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("cover: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "data:image/png;base64,") {
		t.Errorf("stdout = %q", stdout.String())
	}
}
