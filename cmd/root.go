package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"time"

	"dr-meter/internal/analyzer"
	"dr-meter/internal/decoder"
	"dr-meter/internal/report"
	"dr-meter/internal/source"
	"dr-meter/internal/types"

	"github.com/spf13/cobra"
)

var (
	noLog         bool
	keepPrecision bool
	quiet         bool
	concurrency   int
	blockSeconds  float64
	decoderMode   string
	ffmpegBin     string
	ffprobeBin    string
	version       = "1.0.0"
)

var rootCmd = &cobra.Command{
	Use:   "dr-meter [input]",
	Short: "计算音频文件的动态范围 (DR) 值",
	Long: `dr-meter 计算单个音频文件、音频目录或 CUE 分轨的动态范围 (DR) 值，
并在输入所在目录写出 dr.txt 日志。

解码通过 ffmpeg / ffprobe 完成；WAV 与 FLAC 默认使用内置解码器。`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAnalysis,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&noLog, "no-log", false, "不写日志 (dr.txt)，默认分析结束后写入日志")
	rootCmd.Flags().BoolVar(&keepPrecision, "keep-precision", false, "不对数值取整，同时禁用日志")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "静默模式，只输出汇总结果")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "j", runtime.NumCPU(), "可用并行度")
	rootCmd.Flags().Float64Var(&blockSeconds, "block-seconds", types.DefaultBlockSeconds, "测量块时长 (秒)")
	rootCmd.Flags().StringVar(&decoderMode, "decoder", decoder.ModeAuto, "解码后端: auto, ffmpeg, native")
	rootCmd.Flags().StringVar(&ffmpegBin, "ffmpeg", "ffmpeg", "ffmpeg 可执行文件")
	rootCmd.Flags().StringVar(&ffprobeBin, "ffprobe", "ffprobe", "ffprobe 可执行文件")
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")

	rootCmd.SetVersionTemplate("dr-meter version {{.Version}}\n")
	rootCmd.Version = version
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	// 无参数时只打印用法
	if len(args) == 0 {
		return cmd.Help()
	}
	inPath := args[0]

	config := &types.AnalyzerConfig{
		NoLog:         noLog,
		KeepPrecision: keepPrecision,
		Concurrency:   concurrency,
		BlockSeconds:  blockSeconds,
		Decoder:       decoderMode,
		FFmpegBin:     ffmpegBin,
		FFprobeBin:    ffprobeBin,
		Quiet:         quiet,
	}
	return Run(cmd.Context(), config, inPath)
}

// Run 完整的分析流程：预检日志 -> 解析音源 -> 并发分析 -> 汇总 -> 写日志
func Run(ctx context.Context, config *types.AnalyzerConfig, inPath string) error {
	// 在任何解码工作之前检查日志文件
	var logPath string
	if config.ShouldWriteLog() {
		logPath = report.LogPath(inPath)
		if err := report.CheckLogTarget(logPath); err != nil {
			return err
		}
	}

	registry, err := decoder.NewDecoderRegistry(config)
	if err != nil {
		return err
	}

	sources, err := source.NewResolver(registry, decoder.Extensions()).Resolve(ctx, inPath)
	if err != nil {
		return err
	}

	total := 0
	for _, src := range sources {
		total += len(src.Tracks)
	}
	console := newConsole(config, total)
	aggregator := report.NewAggregator()

	start := time.Now()
	err = analyzer.NewAnalyzer(config, registry).AnalyzeSources(ctx, sources, func(r types.TrackResult) {
		console.Track(r)
		aggregator.Add(r)
	})
	console.Finish()
	if err != nil {
		return err
	}

	summary := aggregator.Summary(config.KeepPrecision)
	console.Summary(summary, time.Since(start))

	if config.ShouldWriteLog() {
		console.Printf("写入日志 %s\n", logPath)
		if err := report.WriteLog(logPath, aggregator.Groups(), summary.Official, time.Now()); err != nil {
			return err
		}
		console.Printf("…完成\n")
	}
	return nil
}
