// Package segment 把解码得到的单一采样流切成定长测量块，并按音轨边界拆分
package segment

import (
	"errors"
	"fmt"
	"io"

	"dr-meter/internal/decoder"
)

// Block 一个测量块，形状为 (声道数, 帧数)
type Block [][]float32

// Channels 声道数
func (b Block) Channels() int {
	return len(b)
}

// Len 每声道的帧数
func (b Block) Len() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Cursor 单一采样流上的游标
type Cursor struct {
	reader   decoder.SampleReader
	channels int
	buf      []float32
	pos      int64
	eof      bool
}

// NewCursor 创建游标
func NewCursor(reader decoder.SampleReader, channels int) *Cursor {
	return &Cursor{reader: reader, channels: channels}
}

// Position 已消费的帧数
func (c *Cursor) Position() int64 {
	return c.pos
}

// fill 读取最多 frames 帧的交错采样，只有流结束时才会读不满
func (c *Cursor) fill(frames int) ([]float32, error) {
	want := frames * c.channels
	if cap(c.buf) < want {
		c.buf = make([]float32, want)
	}
	buf := c.buf[:want]

	got := 0
	for got < want && !c.eof {
		n, err := c.reader.ReadSamples(buf[got:])
		got += n
		if errors.Is(err, io.EOF) {
			c.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
	}

	// 丢弃末尾不完整的帧
	got -= got % c.channels
	c.pos += int64(got / c.channels)
	return buf[:got], nil
}

// Read 读取最多 frames 帧并重排为 (声道数, n)，流结束时返回 io.EOF
func (c *Cursor) Read(frames int) (Block, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("块大小必须为正数: %d", frames)
	}
	samples, err := c.fill(frames)
	if err != nil {
		return nil, err
	}
	n := len(samples) / c.channels
	if n == 0 {
		return nil, io.EOF
	}

	block := make(Block, c.channels)
	for ch := range block {
		block[ch] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		frame := samples[i*c.channels : (i+1)*c.channels]
		for ch, v := range frame {
			block[ch][i] = v
		}
	}
	return block, nil
}

// Skip 丢弃 frames 帧，返回实际丢弃的帧数
func (c *Cursor) Skip(frames int64, chunk int) (int64, error) {
	var skipped int64
	for skipped < frames {
		n := chunk
		if rest := frames - skipped; rest < int64(n) {
			n = int(rest)
		}
		samples, err := c.fill(n)
		if err != nil {
			return skipped, err
		}
		got := len(samples) / c.channels
		skipped += int64(got)
		if got < n {
			break
		}
	}
	return skipped, nil
}

// Blocks 从当前位置读到流结束，每块 size 帧，最后一块可能较短
func Blocks(c *Cursor, size int, emit func(Block) error) error {
	for {
		block, err := c.Read(size)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := emit(block); err != nil {
			return err
		}
	}
}

// Unbounded 表示最后一条音轨一直读到流结束
const Unbounded int64 = -1

// Lengths 由起始位置计算每条音轨的帧数，最后一条为 Unbounded
func Lengths(offsets []int64) ([]int64, error) {
	lengths := make([]int64, len(offsets))
	for i := range offsets {
		if i == len(offsets)-1 {
			lengths[i] = Unbounded
			break
		}
		if offsets[i+1] < offsets[i] {
			return nil, fmt.Errorf("音轨起点必须非递减: %d 之后是 %d", offsets[i], offsets[i+1])
		}
		lengths[i] = offsets[i+1] - offsets[i]
	}
	return lengths, nil
}

// Split 先丢弃 offsets[0] 帧，再依次为每条音轨输出总帧数等于其长度的块序列。
// 音轨边界落在块中间时输出较短的块，有界音轨不会越过自身边界读取。
// 返回每条音轨实际输出的帧数。
func Split(c *Cursor, offsets []int64, size int, emit func(track int, block Block) error) ([]int64, error) {
	counts := make([]int64, len(offsets))
	if len(offsets) == 0 {
		return counts, nil
	}
	lengths, err := Lengths(offsets)
	if err != nil {
		return counts, err
	}

	if _, err := c.Skip(offsets[0], size); err != nil {
		return counts, err
	}

	for track, length := range lengths {
		for length == Unbounded || counts[track] < length {
			n := size
			if length != Unbounded {
				if rest := length - counts[track]; rest < int64(n) {
					n = int(rest)
				}
			}

			block, err := c.Read(n)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return counts, err
			}
			counts[track] += int64(block.Len())
			if err := emit(track, block); err != nil {
				return counts, err
			}
		}
	}
	return counts, nil
}
