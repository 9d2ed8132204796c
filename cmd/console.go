package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"dr-meter/internal/report"
	"dr-meter/internal/types"

	"github.com/schollz/progressbar/v3"
)

// console 进度条与逐轨输出，只在单一消费者 goroutine 中使用
type console struct {
	out   io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
}

func newConsole(config *types.AnalyzerConfig, total int) *console {
	c := &console{out: os.Stdout, quiet: config.Quiet}
	if !config.Quiet {
		c.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("分析音轨"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionClearOnFinish(),
		)
	}
	return c
}

// Track 每条音轨分析完成时的回调: "NN - 名称: DRx"
func (c *console) Track(r types.TrackResult) {
	if c.quiet {
		return
	}
	if c.bar != nil {
		c.bar.Clear()
	}
	fmt.Fprintf(c.out, "%02d - %s: %s\n", r.Track.GlobalIndex, r.Track.Name, DRStyle(r.Metrics.DR).Render(FormatDR(r.Metrics.DR)))
	if c.bar != nil {
		c.bar.Add(1)
	}
}

// Finish 结束进度条
func (c *console) Finish() {
	if c.bar != nil {
		c.bar.Finish()
	}
}

// Summary 输出官方 DR 与中位数
func (c *console) Summary(s report.Summary, elapsed time.Duration) {
	fmt.Fprintf(c.out, "%s, Median DR = %s\n",
		TitleStyle.Render("Official DR = "+s.Official.String()), s.Median)
	if !c.quiet {
		fmt.Fprintf(c.out, "%s\n", MutedStyle.Render(fmt.Sprintf("分析 %d 条音轨用时 %.2f 秒", s.Tracks, elapsed.Seconds())))
	}
}

// Printf 非静默模式下输出
func (c *console) Printf(format string, a ...any) {
	if !c.quiet {
		fmt.Fprintf(c.out, format, a...)
	}
}
