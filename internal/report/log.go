package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dr-meter/internal/types"
)

// LogFileName 日志文件名
const LogFileName = "dr.txt"

const banner = "generated by dr-meter"

var (
	rule       = strings.Repeat("-", 80)
	doubleRule = strings.Repeat("=", 80)
)

// LogPath 日志写在输入目录中，输入为文件时写在其所在目录
func LogPath(input string) string {
	dir := input
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, LogFileName)
}

// CheckLogTarget 分析开始前检查日志文件是否已存在
func CheckLogTarget(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", types.ErrLogTargetExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("检查日志文件失败: %w", err)
	}
	return nil
}

// GroupTitle 组标题: "艺术家 — 专辑"
func GroupTitle(g types.LogGroup) string {
	return strings.Join(g.Performers, ", ") + " — " + strings.Join(g.Albums, ", ")
}

// FormatDuration m:ss，超过一小时为 h:mm:ss
func FormatDuration(seconds int64) string {
	m, s := seconds/60, seconds%60
	h, m := m/60, m%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// WriteLog 创建并写入日志文件，文件已存在时失败而不是覆盖
func WriteLog(path string, groups []types.LogGroup, official types.DR, now time.Time) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", types.ErrLogTargetExists, path)
		}
		return fmt.Errorf("创建日志文件失败: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := Render(w, groups, official, now); err != nil {
		f.Close()
		return fmt.Errorf("写入日志失败: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("写入日志失败: %w", err)
	}
	return f.Close()
}

// Render 输出日志文本
func Render(w io.Writer, groups []types.LogGroup, official types.DR, now time.Time) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nlog date: %s\n\n", banner, now.Format("2006-01-02 15:04:05"))
	for _, g := range groups {
		fmt.Fprintf(&b, "%s\nAnalyzed: %s\n%s\n\n", rule, GroupTitle(g), rule)
		fmt.Fprintf(&b, "DR         Peak         RMS     Duration Track\n%s\n", rule)
		for _, t := range g.Tracks {
			b.WriteString(formatDR(t.DR))
			fmt.Fprintf(&b, "%9.2f dB%9.2f dB%10s %s\n", t.PeakDB, t.RMSDB, FormatDuration(t.DurationSeconds), t.Label)
		}
		fmt.Fprintf(&b, "%s\n\nNumber of tracks:  %d\nOfficial DR value: DR%s\n\n", rule, len(g.Tracks), official)
		fmt.Fprintf(&b, "Samplerate:        %d Hz\nChannels:          %d\n%s\n\n", g.SampleRate, g.ChannelCount, doubleRule)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatDR(dr types.DR) string {
	if !dr.Present() {
		return "N/A   "
	}
	return fmt.Sprintf("DR%-4s", dr)
}
