package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dr-meter/internal/report"
	"dr-meter/internal/testaudio"
	"dr-meter/internal/types"
)

func nativeConfig() *types.AnalyzerConfig {
	return &types.AnalyzerConfig{
		Concurrency:  4,
		BlockSeconds: 3,
		Decoder:      "native",
		Quiet:        true,
	}
}

func TestRunWritesLog(t *testing.T) {
	dir := t.TempDir()
	testaudio.WriteWAV(t, filepath.Join(dir, "01.wav"), 44100, testaudio.Sine(2, 10*44100, 44100, 441, 0.9))
	testaudio.WriteWAV(t, filepath.Join(dir, "02.wav"), 44100, testaudio.Sine(2, 7*44100, 44100, 441, 0.5))

	if err := Run(context.Background(), nativeConfig(), dir); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, report.LogFileName))
	if err != nil {
		t.Fatalf("log not written: %v", err)
	}
	text := string(raw)
	for _, want := range []string{"01-01.wav", "02-02.wav", "Number of tracks:  2", "Official DR value: DR0", "Samplerate:        44100 Hz"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q:\n%s", want, text)
		}
	}
}

func TestRunFailsWhenLogExists(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, report.LogFileName), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.mp3"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// 如果预检之前启动了外部进程，这里会得到探测错误
	config := nativeConfig()
	config.Decoder = "ffmpeg"
	config.FFprobeBin = filepath.Join(dir, "no-such-ffprobe")

	err := Run(context.Background(), config, dir)
	if !errors.Is(err, types.ErrLogTargetExists) {
		t.Fatalf("Run = %v, want ErrLogTargetExists", err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, report.LogFileName))
	if string(raw) != "old" {
		t.Error("existing log was modified")
	}
}

func TestRunKeepPrecisionSkipsLog(t *testing.T) {
	dir := t.TempDir()
	testaudio.WriteWAV(t, filepath.Join(dir, "a.wav"), 8000, testaudio.Sine(1, 8*8000, 8000, 100, 0.5))

	config := nativeConfig()
	config.KeepPrecision = true
	for i := 0; i < 2; i++ {
		if err := Run(context.Background(), config, dir); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, report.LogFileName)); !os.IsNotExist(err) {
		t.Errorf("log written in keep-precision mode: %v", err)
	}
}

func TestRunCueWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	signal := testaudio.Concat(
		testaudio.Sine(2, 5*8000, 8000, 100, 0.8),
		testaudio.Sine(2, 5*8000, 8000, 100, 0.4),
		testaudio.Sine(2, 5*8000, 8000, 100, 0.2),
	)
	testaudio.WriteWAV(t, filepath.Join(dir, "image.wav"), 8000, signal)
	sheet := "FILE \"image.wav\" WAVE\n" +
		"  TRACK 01 AUDIO\n    INDEX 01 00:00:00\n" +
		"  TRACK 02 AUDIO\n    INDEX 00 00:04:00\n    INDEX 01 00:05:00\n" +
		"  TRACK 03 AUDIO\n    INDEX 01 00:10:00\n"
	cuePath := filepath.Join(dir, "image.cue")
	if err := os.WriteFile(cuePath, []byte(sheet), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Run(context.Background(), nativeConfig(), cuePath); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, report.LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	for _, want := range []string{"Analyzed:  — \n", "01-Track 01", "02-Track 02", "03-Track 03", "Number of tracks:  3"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q:\n%s", want, text)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	err := Run(context.Background(), nativeConfig(), t.TempDir())
	if !errors.Is(err, types.ErrEmptyInput) {
		t.Errorf("Run = %v, want ErrEmptyInput", err)
	}
}

func TestNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out.String(), "dr-meter [input]") {
		t.Errorf("usage not printed:\n%s", out.String())
	}
}
