package decoder

import (
	"context"
	"fmt"
	"io"
	"os"

	"dr-meter/internal/types"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM 整数 PCM 的格式码
const wavFormatPCM = 1

// WAVDecoder WAV格式解码器，只处理整数 PCM，其余交给 Fallback
type WAVDecoder struct {
	Fallback AudioDecoder
}

// SupportedFormats 返回支持的格式
func (d *WAVDecoder) SupportedFormats() []string {
	return []string{"wav"}
}

// Probe 读取 WAV 头
func (d *WAVDecoder) Probe(ctx context.Context, filePath string) (StreamInfo, error) {
	file, dec, err := openWAV(filePath)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: %v", types.ErrProbeFailure, err)
	}
	defer file.Close()

	if dec.WavAudioFormat != wavFormatPCM {
		if d.Fallback != nil {
			return d.Fallback.Probe(ctx, filePath)
		}
		return StreamInfo{}, fmt.Errorf("%w: 不支持的 WAV 编码 (format=%d): %s", types.ErrProbeFailure, dec.WavAudioFormat, filePath)
	}

	return StreamInfo{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// Open 打开 WAV 采样流
func (d *WAVDecoder) Open(ctx context.Context, filePath string, info StreamInfo) (SampleReader, error) {
	file, dec, err := openWAV(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecoderFailure, err)
	}

	if dec.WavAudioFormat != wavFormatPCM {
		file.Close()
		if d.Fallback != nil {
			return d.Fallback.Open(ctx, filePath, info)
		}
		return nil, fmt.Errorf("%w: 不支持的 WAV 编码 (format=%d): %s", types.ErrDecoderFailure, dec.WavAudioFormat, filePath)
	}

	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: 定位 WAV 数据块失败: %v", types.ErrDecoderFailure, err)
	}

	return &WAVFile{
		file:     file,
		decoder:  dec,
		bitDepth: int(dec.BitDepth),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: int(dec.NumChans),
				SampleRate:  int(dec.SampleRate),
			},
		},
	}, nil
}

func openWAV(filePath string) (*os.File, *wav.Decoder, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("打开WAV文件失败: %w", err)
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, nil, fmt.Errorf("无效的WAV文件: %s", filePath)
	}
	return file, dec, nil
}

// WAVFile WAV 采样流
type WAVFile struct {
	file     *os.File
	decoder  *wav.Decoder
	bitDepth int
	buf      *audio.IntBuffer
}

// ReadSamples 读取交错采样并归一化到 [-1, 1)
func (w *WAVFile) ReadSamples(dst []float32) (int, error) {
	if cap(w.buf.Data) < len(dst) {
		w.buf.Data = make([]int, len(dst))
	}
	w.buf.Data = w.buf.Data[:len(dst)]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: 读取WAV数据失败: %v", types.ErrDecoderFailure, err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	// 8 位 WAV 为无符号采样
	if w.bitDepth == 8 {
		for i := 0; i < n; i++ {
			dst[i] = float32(w.buf.Data[i]-128) / 128
		}
		return n, nil
	}

	maxVal := float64(int64(1) << uint(w.bitDepth-1))
	for i := 0; i < n; i++ {
		dst[i] = float32(float64(w.buf.Data[i]) / maxVal)
	}
	return n, nil
}

// Close 关闭文件
func (w *WAVFile) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
