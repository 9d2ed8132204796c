// Package testaudio 为测试生成合成信号和 WAV 文件
package testaudio

import (
	"math"
	"os"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine 生成正弦波，channels × frames
func Sine(channels, frames, sampleRate int, freq, amplitude float64) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
		for i := range out[ch] {
			out[ch][i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// Square 生成方波
func Square(channels, frames, period int, amplitude float64) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
		for i := range out[ch] {
			if (i/(period/2))%2 == 0 {
				out[ch][i] = amplitude
			} else {
				out[ch][i] = -amplitude
			}
		}
	}
	return out
}

// Concat 按声道拼接信号
func Concat(parts ...[][]float64) [][]float64 {
	out := make([][]float64, len(parts[0]))
	for _, p := range parts {
		for ch := range out {
			out[ch] = append(out[ch], p[ch]...)
		}
	}
	return out
}

// Interleave 交错为 float32
func Interleave(signal [][]float64) []float32 {
	if len(signal) == 0 {
		return nil
	}
	frames := len(signal[0])
	out := make([]float32, 0, frames*len(signal))
	for i := 0; i < frames; i++ {
		for ch := range signal {
			out = append(out, float32(signal[ch][i]))
		}
	}
	return out
}

// WriteWAV 写入 16 位整数 PCM 的 WAV 文件
func WriteWAV(t testing.TB, path string, sampleRate int, signal [][]float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	channels := len(signal)
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	for _, v := range Interleave(signal) {
		s := int(math.Round(float64(v) * 32767))
		buf.Data = append(buf.Data, s)
	}

	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder %s: %v", path, err)
	}
}
