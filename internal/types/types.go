package types

import (
	"fmt"
	"math"
	"strconv"
)

// AnalyzerConfig 分析器配置
type AnalyzerConfig struct {
	NoLog         bool    // 不写 dr.txt
	KeepPrecision bool    // 不做取整，同时禁用日志
	Concurrency   int     // 可用并行度 P
	BlockSeconds  float64 // 每个测量块的时长（秒）
	Decoder       string  // 解码后端: auto, ffmpeg, native
	FFmpegBin     string
	FFprobeBin    string
	Quiet         bool // 静默模式
}

// ShouldWriteLog 是否需要写日志文件
func (c *AnalyzerConfig) ShouldWriteLog() bool {
	return !c.NoLog && !c.KeepPrecision
}

// SamplesPerBlock 按采样率换算每块的采样数
func (c *AnalyzerConfig) SamplesPerBlock(sampleRate int) int {
	seconds := c.BlockSeconds
	if seconds <= 0 {
		seconds = DefaultBlockSeconds
	}
	n := int(math.Round(seconds * float64(sampleRate)))
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultBlockSeconds 默认块长度
const DefaultBlockSeconds = 3

// MinSampleRate 允许的最低采样率
const MinSampleRate = 8000

// TrackInfo 音源中的一条逻辑音轨
type TrackInfo struct {
	Name          string
	OffsetSamples int64 // 音轨在解码流中的起始采样位置
	GlobalIndex   int   // 全局编号，从 1 开始
}

// Label 日志中使用的音轨标签
func (t TrackInfo) Label() string {
	return fmt.Sprintf("%02d-%s", t.GlobalIndex, t.Name)
}

// AudioSourceInfo 一个物理音频文件及其音轨列表
type AudioSourceInfo struct {
	Path         string
	DisplayName  string   // 专辑名（CUE 的 TITLE）
	Performers   []string // 按首次出现顺序去重
	ChannelCount int
	SampleRate   int
	Tracks       []TrackInfo
	Index        int // 在本次运行中的发现顺序
}

// Offsets 各音轨的起始采样位置
func (s AudioSourceInfo) Offsets() []int64 {
	offsets := make([]int64, len(s.Tracks))
	for i, t := range s.Tracks {
		offsets[i] = t.OffsetSamples
	}
	return offsets
}

// DR 可缺省的 DR 值
type DR struct {
	value float64
	ok    bool
}

// SomeDR 构造一个存在的 DR 值
func SomeDR(v float64) DR {
	// 避免输出 "-0"
	if v == 0 {
		v = 0
	}
	return DR{value: v, ok: true}
}

// NoDR 缺省的 DR 值
var NoDR = DR{}

// Get 返回值以及是否存在
func (d DR) Get() (float64, bool) {
	return d.value, d.ok
}

// Present 是否存在
func (d DR) Present() bool {
	return d.ok
}

func (d DR) String() string {
	if !d.ok {
		return "N/A"
	}
	return strconv.FormatFloat(d.value, 'f', -1, 64)
}

// DRMetrics 单条音轨的测量结果
type DRMetrics struct {
	DR          DR
	PeakDB      float64
	RMSDB       float64
	SampleCount int64
}

// TrackResult 单条音轨的分析结果
type TrackResult struct {
	Source  *AudioSourceInfo
	Track   TrackInfo
	Metrics DRMetrics
}

// TrackRow 日志表格中的一行
type TrackRow struct {
	DR              DR
	PeakDB          float64
	RMSDB           float64
	DurationSeconds int64
	Label           string
}

// LogGroup 按 (声道数, 采样率) 分组的日志段
type LogGroup struct {
	Performers   []string
	Albums       []string
	ChannelCount int
	SampleRate   int
	Tracks       []TrackRow
}
