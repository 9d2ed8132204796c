package decoder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"dr-meter/internal/types"
)

// StreamInfo 探测得到的音频参数
type StreamInfo struct {
	Channels   int
	SampleRate int
}

// Validate 检查声道数与采样率
func (i StreamInfo) Validate(path string) error {
	if i.Channels < 1 || i.SampleRate < types.MinSampleRate {
		return fmt.Errorf("%w: channels=%d, sample_rate=%d: %s",
			types.ErrInvalidAudioFormat, i.Channels, i.SampleRate, path)
	}
	return nil
}

// SampleReader 交错排列的 float32 采样流，结束时返回 io.EOF
type SampleReader interface {
	ReadSamples(dst []float32) (int, error)
	Close() error
}

// AudioDecoder 音频解码器接口
type AudioDecoder interface {
	Probe(ctx context.Context, filePath string) (StreamInfo, error)
	Open(ctx context.Context, filePath string, info StreamInfo) (SampleReader, error)
	SupportedFormats() []string
}

// 解码模式
const (
	ModeAuto   = "auto"
	ModeFFmpeg = "ffmpeg"
	ModeNative = "native"
)

// DecoderRegistry 解码器注册表
type DecoderRegistry struct {
	decoders map[string]AudioDecoder
	fallback AudioDecoder
}

// NewDecoderRegistry 按配置创建解码器注册表
func NewDecoderRegistry(config *types.AnalyzerConfig) (*DecoderRegistry, error) {
	registry := &DecoderRegistry{
		decoders: make(map[string]AudioDecoder),
	}

	ffmpeg := NewFFmpegDecoder(config.FFmpegBin, config.FFprobeBin)

	switch config.Decoder {
	case "", ModeAuto:
		registry.Register(&WAVDecoder{Fallback: ffmpeg})
		registry.Register(&FLACDecoder{})
		registry.fallback = ffmpeg
	case ModeFFmpeg:
		registry.fallback = ffmpeg
	case ModeNative:
		registry.Register(&WAVDecoder{})
		registry.Register(&FLACDecoder{})
	default:
		return nil, fmt.Errorf("未知的解码模式: %s", config.Decoder)
	}

	return registry, nil
}

// NewRegistryWith 使用给定的默认解码器创建注册表
func NewRegistryWith(fallback AudioDecoder, decoders ...AudioDecoder) *DecoderRegistry {
	registry := &DecoderRegistry{
		decoders: make(map[string]AudioDecoder),
		fallback: fallback,
	}
	for _, d := range decoders {
		registry.Register(d)
	}
	return registry
}

// Register 注册解码器
func (r *DecoderRegistry) Register(decoder AudioDecoder) {
	for _, format := range decoder.SupportedFormats() {
		r.decoders[strings.ToLower(format)] = decoder
	}
}

// GetDecoder 根据文件扩展名获取解码器
func (r *DecoderRegistry) GetDecoder(filePath string) (AudioDecoder, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")

	if decoder, exists := r.decoders[ext]; exists {
		return decoder, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("不支持的音频格式: %q", ext)
}

// Probe 读取声道数与采样率
func (r *DecoderRegistry) Probe(ctx context.Context, filePath string) (StreamInfo, error) {
	decoder, err := r.GetDecoder(filePath)
	if err != nil {
		return StreamInfo{}, err
	}
	return decoder.Probe(ctx, filePath)
}

// Open 打开解码流
func (r *DecoderRegistry) Open(ctx context.Context, filePath string, info StreamInfo) (SampleReader, error) {
	decoder, err := r.GetDecoder(filePath)
	if err != nil {
		return nil, err
	}
	return decoder.Open(ctx, filePath, info)
}

// Extensions 已知的音频扩展名（带点号）
func Extensions() []string {
	return []string{
		".aac", ".aif", ".aiff", ".alac", ".ape", ".dsf", ".flac", ".m4a",
		".mka", ".mp3", ".mpc", ".ogg", ".opus", ".tak", ".tta", ".wav", ".wv", ".wma",
	}
}
