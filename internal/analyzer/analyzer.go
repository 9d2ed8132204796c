package analyzer

import (
	"context"
	"fmt"
	"runtime"

	"dr-meter/internal/decoder"
	"dr-meter/internal/dr"
	"dr-meter/internal/segment"
	"dr-meter/internal/types"

	"golang.org/x/sync/errgroup"
)

// blockBacklog 每条音轨允许积压的块数
const blockBacklog = 2

// Opener 打开音源的解码流
type Opener interface {
	Open(ctx context.Context, filePath string, info decoder.StreamInfo) (decoder.SampleReader, error)
}

// Plan 两级工作池的规模
type Plan struct {
	Outer int // 同时处理的音源数
	Inner int // 单个音源内同时分析的音轨数
}

// NewPlan 按并行度 P 与音源数 N 计算：outer = max(1, min(N, P))，inner = max(1, P / outer)
func NewPlan(parallelism, sources int) Plan {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	outer := min(sources, parallelism)
	if outer < 1 {
		outer = 1
	}
	inner := parallelism / outer
	if inner < 1 {
		inner = 1
	}
	return Plan{Outer: outer, Inner: inner}
}

// Analyzer 音频分析器
type Analyzer struct {
	config *types.AnalyzerConfig
	opener Opener
}

// NewAnalyzer 创建新的分析器
func NewAnalyzer(config *types.AnalyzerConfig, opener Opener) *Analyzer {
	return &Analyzer{
		config: config,
		opener: opener,
	}
}

// AnalyzeSources 并发分析所有音源。
// onTrack 只在调用方的 goroutine 中执行；同一音源的音轨按原顺序回调，
// 不同音源之间按完成顺序。遇到第一个错误即取消其余工作并返回该错误。
func (a *Analyzer) AnalyzeSources(ctx context.Context, sources []types.AudioSourceInfo, onTrack func(types.TrackResult)) error {
	plan := NewPlan(a.config.Concurrency, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(plan.Outer)

	results := make(chan types.TrackResult)
	var runErr error

	go func() {
		defer close(results)
		for i := range sources {
			if ctx.Err() != nil {
				break
			}
			src := &sources[i]
			g.Go(func() error {
				return a.analyzeSource(ctx, src, plan.Inner, results)
			})
		}
		runErr = g.Wait()
	}()

	// 单一消费者
	for result := range results {
		onTrack(result)
	}
	return runErr
}

// analyzeSource 一个读取协程按音轨边界切分采样流，
// 每条音轨由内层工作池中的一个测量器消费，结果按音轨顺序发出
func (a *Analyzer) analyzeSource(ctx context.Context, src *types.AudioSourceInfo, inner int, out chan<- types.TrackResult) error {
	reader, err := a.opener.Open(ctx, src.Path, decoder.StreamInfo{
		Channels:   src.ChannelCount,
		SampleRate: src.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", src.Path, err)
	}
	defer reader.Close()

	blockSize := a.config.SamplesPerBlock(src.SampleRate)
	n := len(src.Tracks)

	feeds := make([]chan segment.Block, n)
	metrics := make([]chan types.DRMetrics, n)
	for i := range feeds {
		feeds[i] = make(chan segment.Block, blockBacklog)
		metrics[i] = make(chan types.DRMetrics, 1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		next := 0
		defer func() {
			for ; next < n; next++ {
				close(feeds[next])
			}
		}()

		cursor := segment.NewCursor(reader, src.ChannelCount)
		_, err := segment.Split(cursor, src.Offsets(), blockSize, func(track int, block segment.Block) error {
			for ; next < track; next++ {
				close(feeds[next])
			}
			select {
			case feeds[track] <- block:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return fmt.Errorf("%s: %w", src.Path, err)
		}
		return nil
	})

	g.Go(func() error {
		var tracks errgroup.Group
		tracks.SetLimit(inner)
		for i := 0; i < n; i++ {
			tracks.Go(func() error {
				meter := dr.NewMeter(src.ChannelCount, blockSize)
				for block := range feeds[i] {
					meter.Add(block)
				}
				metrics[i] <- meter.Result(a.config.KeepPrecision)
				return nil
			})
		}
		return tracks.Wait()
	})

	g.Go(func() error {
		for i, track := range src.Tracks {
			var m types.DRMetrics
			select {
			case m = <-metrics[i]:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case out <- types.TrackResult{Source: src, Track: track, Metrics: m}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}
