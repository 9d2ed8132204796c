// Package dr 实现单条音轨的动态范围 (DR) 测量。
//
// 每个声道独立计算：逐块求 RMS（乘以 √2，使满幅正弦波为 0 dB）并记录
// 最大的两个绝对采样值；结束后取 RMS 最大的 20% 块的平均值作为响度，
// DR = 20·log10(次高峰值 / 响度)。音轨 DR 为各声道 DR 的平均值。
package dr

import (
	"math"
	"sort"

	"dr-meter/internal/segment"
	"dr-meter/internal/types"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// topFraction 参与响度平均的块比例的倒数 (20%)
const topFraction = 5

// Meter 累积一条音轨的测量块
type Meter struct {
	blockSize  int
	channels   []channelStats
	frames     int64
	fullBlocks int
}

type channelStats struct {
	blockRMS []float64
	peak     float64 // 最大绝对采样值
	second   float64 // 次大绝对采样值
	samples  int64
}

// NewMeter 创建测量器，blockSize 为完整块的帧数
func NewMeter(channels, blockSize int) *Meter {
	return &Meter{
		blockSize: blockSize,
		channels:  make([]channelStats, channels),
	}
}

// Add 处理一个块
func (m *Meter) Add(block segment.Block) {
	n := block.Len()
	if n == 0 {
		return
	}
	m.frames += int64(n)
	if n >= m.blockSize {
		m.fullBlocks++
	}

	for ch := range m.channels {
		st := &m.channels[ch]
		var sum float64
		for _, v := range block[ch] {
			x := float64(v)
			sum += x * x
			a := math.Abs(x)
			if a > st.peak {
				st.second = st.peak
				st.peak = a
			} else if a > st.second {
				st.second = a
			}
		}
		st.samples += int64(n)
		st.blockRMS = append(st.blockRMS, math.Sqrt(2*sum/float64(n)))
	}
}

// Frames 已处理的帧数
func (m *Meter) Frames() int64 {
	return m.frames
}

// Result 计算测量结果，keepPrecision 为 false 时 DR 取整（银行家舍入）
func (m *Meter) Result(keepPrecision bool) types.DRMetrics {
	var (
		drs   []float64
		peaks = make([]float64, 0, len(m.channels))
		rms   = make([]float64, 0, len(m.channels))
	)

	for ch := range m.channels {
		st := &m.channels[ch]
		if len(st.blockRMS) == 0 {
			continue
		}

		top := topRMS(st.blockRMS)
		peak := st.second
		if st.samples < 2 {
			peak = st.peak
		}
		peaks = append(peaks, st.peak)
		rms = append(rms, top)

		if top > 0 && peak > 0 {
			drs = append(drs, 20*math.Log10(peak/top))
		}
	}

	metrics := types.DRMetrics{
		DR:          types.NoDR,
		PeakDB:      math.Inf(-1),
		RMSDB:       math.Inf(-1),
		SampleCount: m.frames,
	}
	if len(peaks) > 0 {
		metrics.PeakDB = toDB(floats.Max(peaks))
		metrics.RMSDB = toDB(stat.Mean(rms, nil))
	}

	if m.fullBlocks == 0 || len(drs) == 0 {
		return metrics
	}
	value := stat.Mean(drs, nil)
	if !keepPrecision {
		value = math.RoundToEven(value)
	}
	metrics.DR = types.SomeDR(value)
	return metrics
}

// topRMS 最大的 ceil(20%) 个块 RMS 的平均值，至少取一个
func topRMS(blockRMS []float64) float64 {
	sorted := make([]float64, len(blockRMS))
	copy(sorted, blockRMS)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	n := (len(sorted) + topFraction - 1) / topFraction
	if n < 1 {
		n = 1
	}
	return stat.Mean(sorted[:n], nil)
}

// toDB 线性幅度转分贝，静音得到 -Inf
func toDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// Compute 对一组块计算测量结果
func Compute(blocks []segment.Block, channels, blockSize int, keepPrecision bool) types.DRMetrics {
	m := NewMeter(channels, blockSize)
	for _, b := range blocks {
		m.Add(b)
	}
	return m.Result(keepPrecision)
}
