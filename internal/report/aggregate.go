// Package report 汇总分析结果：按格式分组、计算整体 DR，并写出 dr.txt
package report

import (
	"math"
	"sort"

	"dr-meter/internal/types"

	"gonum.org/v1/gonum/stat"
)

// sourceResult 一个音源及其按顺序排列的音轨结果
type sourceResult struct {
	source *types.AudioSourceInfo
	tracks []types.TrackResult
}

// Aggregator 结果汇总器，只由单一消费者调用
type Aggregator struct {
	sources map[int]*sourceResult
	drs     []float64
}

// NewAggregator 创建汇总器
func NewAggregator() *Aggregator {
	return &Aggregator{sources: make(map[int]*sourceResult)}
}

// Add 追加一条音轨结果
func (a *Aggregator) Add(result types.TrackResult) {
	sr, ok := a.sources[result.Source.Index]
	if !ok {
		sr = &sourceResult{source: result.Source}
		a.sources[result.Source.Index] = sr
	}
	sr.tracks = append(sr.tracks, result)

	if v, ok := result.Metrics.DR.Get(); ok {
		a.drs = append(a.drs, v)
	}
}

// Count 已汇总的音轨数
func (a *Aggregator) Count() int {
	n := 0
	for _, sr := range a.sources {
		n += len(sr.tracks)
	}
	return n
}

type groupKey struct {
	channels   int
	sampleRate int
}

// Groups 按发现顺序排列音源，再按 (声道数, 采样率) 分组，组的顺序为首次出现顺序
func (a *Aggregator) Groups() []types.LogGroup {
	indexes := make([]int, 0, len(a.sources))
	for i := range a.sources {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var groups []*types.LogGroup
	byKey := make(map[groupKey]*types.LogGroup)
	for _, i := range indexes {
		sr := a.sources[i]
		src := sr.source
		key := groupKey{src.ChannelCount, src.SampleRate}

		g, ok := byKey[key]
		if !ok {
			g = &types.LogGroup{ChannelCount: src.ChannelCount, SampleRate: src.SampleRate}
			byKey[key] = g
			groups = append(groups, g)
		}
		for _, p := range src.Performers {
			g.Performers = appendUnique(g.Performers, p)
		}
		g.Albums = appendUnique(g.Albums, src.DisplayName)

		for _, r := range sr.tracks {
			g.Tracks = append(g.Tracks, types.TrackRow{
				DR:              r.Metrics.DR,
				PeakDB:          r.Metrics.PeakDB,
				RMSDB:           r.Metrics.RMSDB,
				DurationSeconds: durationSeconds(r.Metrics.SampleCount, src.SampleRate),
				Label:           r.Track.Label(),
			})
		}
	}

	out := make([]types.LogGroup, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func durationSeconds(samples int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(math.Round(float64(samples) / float64(sampleRate)))
}

// Summary 整体统计
type Summary struct {
	Official types.DR // 官方 DR：所有存在的 DR 的平均值
	Median   types.DR // 中位数，不取整
	Tracks   int
}

// Summary 计算整体统计，与结果到达顺序无关
func (a *Aggregator) Summary(keepPrecision bool) Summary {
	s := Summary{Official: types.NoDR, Median: types.NoDR, Tracks: a.Count()}
	if len(a.drs) == 0 {
		return s
	}

	sorted := make([]float64, len(a.drs))
	copy(sorted, a.drs)
	sort.Float64s(sorted)

	mean := stat.Mean(sorted, nil)
	if !keepPrecision {
		mean = math.RoundToEven(mean)
	}
	s.Official = types.SomeDR(mean)
	s.Median = types.SomeDR(median(sorted))
	return s
}

// median 已排序数据的中位数，偶数个时取中间两个的平均
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
