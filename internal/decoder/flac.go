package decoder

import (
	"context"
	"fmt"
	"io"

	"dr-meter/internal/types"

	"github.com/mewkiz/flac"
)

// FLACDecoder FLAC格式解码器
type FLACDecoder struct{}

// SupportedFormats 返回支持的格式
func (d *FLACDecoder) SupportedFormats() []string {
	return []string{"flac"}
}

// Probe 读取 STREAMINFO
func (d *FLACDecoder) Probe(ctx context.Context, filePath string) (StreamInfo, error) {
	stream, err := flac.Open(filePath)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: 解析FLAC文件失败: %v", types.ErrProbeFailure, err)
	}
	defer stream.Close()

	if stream.Info == nil {
		return StreamInfo{}, fmt.Errorf("%w: 无法读取FLAC信息: %s", types.ErrProbeFailure, filePath)
	}
	return StreamInfo{
		Channels:   int(stream.Info.NChannels),
		SampleRate: int(stream.Info.SampleRate),
	}, nil
}

// Open 打开 FLAC 采样流
func (d *FLACDecoder) Open(ctx context.Context, filePath string, info StreamInfo) (SampleReader, error) {
	stream, err := flac.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: 解析FLAC文件失败: %v", types.ErrDecoderFailure, err)
	}
	if stream.Info == nil {
		stream.Close()
		return nil, fmt.Errorf("%w: 无法读取FLAC信息: %s", types.ErrDecoderFailure, filePath)
	}

	return &FLACFile{
		stream:   stream,
		channels: int(stream.Info.NChannels),
		maxVal:   float64(int64(1) << uint(stream.Info.BitsPerSample-1)),
	}, nil
}

// FLACFile FLAC 采样流，按帧解码，未读完的帧保留在 pending 中
type FLACFile struct {
	stream   *flac.Stream
	channels int
	maxVal   float64
	pending  []float32
}

// ReadSamples 读取交错采样
func (f *FLACFile) ReadSamples(dst []float32) (int, error) {
	for len(f.pending) == 0 {
		frame, err := f.stream.ParseNext()
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("%w: 解码FLAC帧失败: %v", types.ErrDecoderFailure, err)
		}

		n := len(frame.Subframes[0].Samples)
		f.pending = f.pending[:0]
		for i := 0; i < n; i++ {
			for ch := 0; ch < f.channels; ch++ {
				f.pending = append(f.pending, float32(float64(frame.Subframes[ch].Samples[i])/f.maxVal))
			}
		}
	}

	n := copy(dst, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// Close 关闭文件
func (f *FLACFile) Close() error {
	return f.stream.Close()
}
