package decoder

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"dr-meter/internal/types"
)

// fakeFFmpeg 在临时目录中写一个代替 ffmpeg 的 shell 脚本
func fakeFFmpeg(t *testing.T, body string) *FFmpegDecoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("需要 /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return NewFFmpegDecoder(path, "")
}

// readAll 读到出错为止，返回全部采样与结束时的错误
func readAll(r SampleReader) ([]float32, error) {
	var out []float32
	buf := make([]float32, 16)
	for {
		n, err := r.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out, err
		}
	}
}

// 1.0 与 0.5 的 f32le 编码
const twoSamples = `printf '\000\000\200\077\000\000\000\077'`

func TestFFmpegStream(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		samples []float32
		wantErr error
		stderr  string
	}{
		{"clean exit", twoSamples, []float32{1, 0.5}, io.EOF, ""},
		{"non-zero exit", twoSamples + "\necho 'bad input' >&2\nexit 3", []float32{1, 0.5}, types.ErrDecoderFailure, "bad input"},
		{"truncated sample", `printf '\000\000\200\077\000\000'`, nil, types.ErrDecoderFailure, ""},
		{"no output", "exit 1", nil, types.ErrDecoderFailure, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fakeFFmpeg(t, tt.script)
			r, err := d.Open(context.Background(), "x", StreamInfo{Channels: 2, SampleRate: 44100})
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer r.Close()

			got, err := readAll(r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.stderr != "" && !strings.Contains(err.Error(), tt.stderr) {
				t.Errorf("error %q should carry stderr %q", err, tt.stderr)
			}
			if tt.samples != nil {
				if len(got) != len(tt.samples) {
					t.Fatalf("samples = %v, want %v", got, tt.samples)
				}
				for i := range got {
					if got[i] != tt.samples[i] {
						t.Errorf("sample %d = %v, want %v", i, got[i], tt.samples[i])
					}
				}
			}

			// 结束后重复读取返回同一个错误
			if _, again := r.ReadSamples(make([]float32, 4)); !errors.Is(again, tt.wantErr) {
				t.Errorf("second read error = %v", again)
			}
		})
	}
}

func TestFFmpegStreamCloseUndrained(t *testing.T) {
	d := fakeFFmpeg(t, "exec yes")
	r, err := d.Open(context.Background(), "x", StreamInfo{Channels: 1, SampleRate: 8000})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := r.ReadSamples(make([]float32, 8)); err != nil {
		t.Fatalf("ReadSamples failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not reap the process")
	}

	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestFFmpegStreamCancel(t *testing.T) {
	d := fakeFFmpeg(t, "exec yes")
	ctx, cancel := context.WithCancel(context.Background())
	r, err := d.Open(ctx, "x", StreamInfo{Channels: 1, SampleRate: 8000})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := readAll(r)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestFFmpegOpenMissingBinary(t *testing.T) {
	d := NewFFmpegDecoder(filepath.Join(t.TempDir(), "missing-ffmpeg"), "")
	_, err := d.Open(context.Background(), "x", StreamInfo{Channels: 1, SampleRate: 8000})
	if !errors.Is(err, types.ErrDecoderFailure) {
		t.Errorf("error = %v, want ErrDecoderFailure", err)
	}
}
