package analyzer

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dr-meter/internal/decoder"
	"dr-meter/internal/dr"
	"dr-meter/internal/segment"
	"dr-meter/internal/testaudio"
	"dr-meter/internal/types"
)

const rate = 8000

// memOpener 从内存提供采样，按路径区分音源
type memOpener struct {
	mu      sync.Mutex
	signals map[string][][]float64
	fail    map[string]error
	opened  []string
	closed  int

	// 读到指定采样数后返回 midErr
	failAfter map[string]int
	midErr    error
}

func (o *memOpener) Open(ctx context.Context, path string, info decoder.StreamInfo) (decoder.SampleReader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	if err := o.fail[path]; err != nil {
		return nil, err
	}
	r := &memReader{data: testaudio.Interleave(o.signals[path]), opener: o}
	if at, ok := o.failAfter[path]; ok {
		r.data = r.data[:at]
		r.err = o.midErr
	}
	return r, nil
}

type memReader struct {
	data   []float32
	err    error
	opener *memOpener
}

func (r *memReader) ReadSamples(dst []float32) (int, error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(dst, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *memReader) Close() error {
	r.opener.mu.Lock()
	r.opener.closed++
	r.opener.mu.Unlock()
	return nil
}

func TestNewPlan(t *testing.T) {
	tests := []struct {
		p, n         int
		outer, inner int
	}{
		{8, 1, 1, 8},
		{8, 3, 3, 2},
		{8, 20, 8, 1},
		{1, 5, 1, 1},
		{4, 0, 1, 4},
		{6, 4, 4, 1},
	}
	for _, tt := range tests {
		got := NewPlan(tt.p, tt.n)
		if got.Outer != tt.outer || got.Inner != tt.inner {
			t.Errorf("NewPlan(%d, %d) = %+v, want {%d %d}", tt.p, tt.n, got, tt.outer, tt.inner)
		}
	}
}

func TestAnalyzeSourcesOrdering(t *testing.T) {
	// 两个音源，第一个由 CUE 切成 4 条音轨
	album := testaudio.Concat(
		testaudio.Sine(2, rate/2, rate, 100, 0),    // 跳过的前导
		testaudio.Sine(2, 7*rate, rate, 100, 0.9),  // 音轨 1
		testaudio.Sine(2, 4*rate, rate, 100, 0.3),  // 音轨 2
		testaudio.Sine(2, 10*rate, rate, 200, 0.5), // 音轨 3
		testaudio.Sine(2, 5*rate, rate, 100, 0.1),  // 音轨 4
	)
	single := testaudio.Sine(1, 9*rate, rate, 100, 0.6)

	opener := &memOpener{signals: map[string][][]float64{"album.wav": album, "single.wav": single}}
	sources := []types.AudioSourceInfo{
		{
			Path: "album.wav", ChannelCount: 2, SampleRate: rate, Index: 0,
			Tracks: []types.TrackInfo{
				{Name: "a", OffsetSamples: rate / 2, GlobalIndex: 1},
				{Name: "b", OffsetSamples: rate/2 + 7*rate, GlobalIndex: 2},
				{Name: "c", OffsetSamples: rate/2 + 11*rate, GlobalIndex: 3},
				{Name: "d", OffsetSamples: rate/2 + 21*rate, GlobalIndex: 4},
			},
		},
		{
			Path: "single.wav", ChannelCount: 1, SampleRate: rate, Index: 1,
			Tracks: []types.TrackInfo{{Name: "s", GlobalIndex: 5}},
		},
	}

	for _, parallelism := range []int{1, 2, 8} {
		config := &types.AnalyzerConfig{Concurrency: parallelism, BlockSeconds: 3, KeepPrecision: true}
		a := NewAnalyzer(config, opener)

		var got []types.TrackResult
		err := a.AnalyzeSources(context.Background(), sources, func(r types.TrackResult) {
			got = append(got, r)
		})
		if err != nil {
			t.Fatalf("P=%d: AnalyzeSources failed: %v", parallelism, err)
		}
		if len(got) != 5 {
			t.Fatalf("P=%d: got %d results, want 5", parallelism, len(got))
		}

		// 同一音源内按音轨顺序
		last := map[string]int{}
		var albumFrames int64
		for _, r := range got {
			if prev, ok := last[r.Source.Path]; ok && r.Track.GlobalIndex <= prev {
				t.Errorf("P=%d: %s out of order: %d after %d", parallelism, r.Source.Path, r.Track.GlobalIndex, prev)
			}
			last[r.Source.Path] = r.Track.GlobalIndex
			if r.Source.Path == "album.wav" {
				albumFrames += r.Metrics.SampleCount
			}
		}
		if want := int64(len(album[0])) - rate/2; albumFrames != want {
			t.Errorf("P=%d: album frames = %d, want %d", parallelism, albumFrames, want)
		}

		// 与直接计算的结果一致
		for _, r := range got {
			if r.Track.Name != "c" {
				continue
			}
			start := rate/2 + 11*rate
			part := [][]float64{album[0][start : start+10*rate], album[1][start : start+10*rate]}
			want := computeDirect(part, 3*rate)
			if r.Metrics != want {
				t.Errorf("P=%d: track c = %+v, want %+v", parallelism, r.Metrics, want)
			}
		}
	}

	if opener.closed != len(opener.opened) {
		t.Errorf("opened %d readers, closed %d", len(opener.opened), opener.closed)
	}
}

func computeDirect(signal [][]float64, size int) types.DRMetrics {
	reader := &memReader{data: testaudio.Interleave(signal), opener: &memOpener{}}
	c := segment.NewCursor(reader, len(signal))
	m := dr.NewMeter(len(signal), size)
	_ = segment.Blocks(c, size, func(b segment.Block) error {
		m.Add(b)
		return nil
	})
	return m.Result(true)
}

func TestAnalyzeSourcesFailure(t *testing.T) {
	boom := errors.New("boom")
	opener := &memOpener{
		signals: map[string][][]float64{"ok.wav": testaudio.Sine(1, 4*rate, rate, 100, 0.5)},
		fail:    map[string]error{"bad.wav": boom},
	}
	sources := []types.AudioSourceInfo{
		{Path: "ok.wav", ChannelCount: 1, SampleRate: rate, Tracks: []types.TrackInfo{{Name: "ok", GlobalIndex: 1}}},
		{Path: "bad.wav", ChannelCount: 1, SampleRate: rate, Index: 1, Tracks: []types.TrackInfo{{Name: "bad", GlobalIndex: 2}}},
	}

	a := NewAnalyzer(&types.AnalyzerConfig{Concurrency: 2}, opener)
	err := a.AnalyzeSources(context.Background(), sources, func(types.TrackResult) {})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestAnalyzeSourcesMidStreamFailure(t *testing.T) {
	boom := errors.New("midstream boom")
	const trackSeconds = 2

	var tracks []types.TrackInfo
	for i := range 6 {
		tracks = append(tracks, types.TrackInfo{
			Name:          "t",
			OffsetSamples: int64(i * trackSeconds * rate),
			GlobalIndex:   i + 1,
		})
	}

	for _, p := range []int{1, 2, 8} {
		opener := &memOpener{
			signals:   map[string][][]float64{"bad.wav": testaudio.Sine(1, 6*trackSeconds*rate, rate, 100, 0.5)},
			failAfter: map[string]int{"bad.wav": 5 * rate},
			midErr:    boom,
		}
		sources := []types.AudioSourceInfo{{Path: "bad.wav", ChannelCount: 1, SampleRate: rate, Tracks: tracks}}

		var got []int
		done := make(chan error, 1)
		go func() {
			a := NewAnalyzer(&types.AnalyzerConfig{Concurrency: p}, opener)
			done <- a.AnalyzeSources(context.Background(), sources, func(r types.TrackResult) {
				got = append(got, r.Track.GlobalIndex)
			})
		}()

		select {
		case err := <-done:
			if !errors.Is(err, boom) {
				t.Errorf("P=%d: error = %v, want %v", p, err, boom)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("P=%d: AnalyzeSources did not return", p)
		}

		// 失败点在第 3 条音轨内，之后的音轨不会被回调，已回调的保持顺序
		for i, idx := range got {
			if idx != i+1 || idx > 3 {
				t.Errorf("P=%d: callbacks = %v", p, got)
				break
			}
		}
		if opener.closed != len(opener.opened) {
			t.Errorf("P=%d: opened %d, closed %d", p, len(opener.opened), opener.closed)
		}
	}
}

func TestAnalyzeWAVFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	testaudio.WriteWAV(t, path, 44100, testaudio.Sine(2, 12*44100, 44100, 441, 1.0))

	registry := decoder.NewRegistryWith(nil, &decoder.WAVDecoder{})
	sources := []types.AudioSourceInfo{{
		Path: path, ChannelCount: 2, SampleRate: 44100,
		Tracks: []types.TrackInfo{{Name: "tone.wav", GlobalIndex: 1}},
	}}

	var results []types.TrackResult
	a := NewAnalyzer(&types.AnalyzerConfig{Concurrency: 4}, registry)
	if err := a.AnalyzeSources(context.Background(), sources, func(r types.TrackResult) {
		results = append(results, r)
	}); err != nil {
		t.Fatalf("AnalyzeSources failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	m := results[0].Metrics
	t.Logf("dr=%v peak=%.3f rms=%.3f", m.DR, m.PeakDB, m.RMSDB)
	if v, ok := m.DR.Get(); !ok || v != 0 {
		t.Errorf("DR = %v, want 0", m.DR)
	}
	if m.SampleCount != 12*44100 {
		t.Errorf("SampleCount = %d", m.SampleCount)
	}
}
