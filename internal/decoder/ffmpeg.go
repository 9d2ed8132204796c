package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"dr-meter/internal/types"
)

// FFmpegDecoder 通过外部 ffmpeg / ffprobe 进程解码任意格式
type FFmpegDecoder struct {
	FFmpegBin  string
	FFprobeBin string
}

// NewFFmpegDecoder 创建 ffmpeg 解码器，空路径使用 PATH 中的默认程序
func NewFFmpegDecoder(ffmpegBin, ffprobeBin string) *FFmpegDecoder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpegDecoder{FFmpegBin: ffmpegBin, FFprobeBin: ffprobeBin}
}

// SupportedFormats ffmpeg 作为兜底解码器，不按扩展名注册
func (d *FFmpegDecoder) SupportedFormats() []string {
	return nil
}

// Probe 调用 ffprobe 读取第一条音频流的声道数与采样率
func (d *FFmpegDecoder) Probe(ctx context.Context, filePath string) (StreamInfo, error) {
	cmd := exec.CommandContext(ctx, d.FFprobeBin,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=channels,sample_rate",
		"-of", "json",
		filePath)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: ffprobe %s: %v %s",
			types.ErrProbeFailure, filePath, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (StreamInfo, error) {
	var probe struct {
		Streams []struct {
			Channels   int    `json:"channels"`
			SampleRate string `json:"sample_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return StreamInfo{}, fmt.Errorf("%w: 无法解析 ffprobe 输出: %v", types.ErrProbeFailure, err)
	}
	if len(probe.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("%w: 未找到音频流", types.ErrProbeFailure)
	}

	s := probe.Streams[0]
	rate, err := strconv.Atoi(strings.TrimSpace(s.SampleRate))
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: 采样率无效 %q", types.ErrProbeFailure, s.SampleRate)
	}
	return StreamInfo{Channels: s.Channels, SampleRate: rate}, nil
}

// Open 启动 ffmpeg，把第一条音频流解码为 f32le 原始采样
func (d *FFmpegDecoder) Open(ctx context.Context, filePath string, info StreamInfo) (SampleReader, error) {
	cmd := exec.CommandContext(ctx, d.FFmpegBin,
		"-v", "error",
		"-i", filePath,
		"-map", "0:a:0",
		"-c:a", "pcm_f32le",
		"-f", "f32le",
		"-")
	stderr := &limitedBuffer{limit: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecoderFailure, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: 启动 ffmpeg 失败: %v", types.ErrDecoderFailure, err)
	}

	return &ffmpegStream{
		ctx:    ctx,
		path:   filePath,
		cmd:    cmd,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
		stderr: stderr,
	}, nil
}

// ffmpegStream 外部进程的采样流，Close 时进程一定会被回收
type ffmpegStream struct {
	ctx    context.Context
	path   string
	cmd    *exec.Cmd
	stdout *bufio.Reader
	stderr *limitedBuffer
	raw    []byte
	done   bool
	err    error
}

// ReadSamples 读取交错的 float32 采样
func (s *ffmpegStream) ReadSamples(dst []float32) (int, error) {
	if s.done {
		return 0, s.err
	}

	size := 4 * len(dst)
	if cap(s.raw) < size {
		s.raw = make([]byte, size)
	}
	raw := s.raw[:size]

	n, err := io.ReadFull(s.stdout, raw)
	if n%4 != 0 {
		s.finish()
		if s.err == io.EOF {
			s.err = fmt.Errorf("%w: 采样流被截断: %s", types.ErrDecoderFailure, s.path)
		}
		return 0, s.err
	}

	count := n / 4
	for i := 0; i < count; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.finish()
		if count > 0 {
			return count, nil
		}
		return 0, s.err
	default:
		s.finish()
		return count, fmt.Errorf("%w: 读取 ffmpeg 输出失败: %v", types.ErrDecoderFailure, err)
	}
}

// finish 等待进程退出并记录结果，正常退出记为 io.EOF
func (s *ffmpegStream) finish() {
	if s.done {
		return
	}
	s.done = true

	err := s.cmd.Wait()
	switch {
	case s.ctx.Err() != nil:
		s.err = s.ctx.Err()
	case err != nil:
		s.err = fmt.Errorf("%w: ffmpeg %s: %v %s",
			types.ErrDecoderFailure, s.path, err, strings.TrimSpace(s.stderr.String()))
	default:
		s.err = io.EOF
	}
}

// Close 未读完时结束进程，然后回收
func (s *ffmpegStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.err = io.EOF
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// limitedBuffer 只保留 stderr 的前 limit 字节
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
