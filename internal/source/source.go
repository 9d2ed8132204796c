// Package source 把输入路径（文件、目录或 CUE）解析为带有采样级音轨边界的音源列表
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dr-meter/internal/decoder"
	"dr-meter/internal/types"
)

// Kind 输入类型
type Kind int

const (
	KindAudioFile Kind = iota
	KindFolder
	KindCueSheet
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindCueSheet:
		return "cue"
	}
	return "file"
}

// Classify 先判断目录，再判断 .cue 扩展名，其余视为音频文件
func Classify(path string) (Kind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("路径不存在: %s", path)
	}
	if info.IsDir() {
		return KindFolder, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return KindCueSheet, nil
	}
	return KindAudioFile, nil
}

// Prober 读取音频参数
type Prober interface {
	Probe(ctx context.Context, filePath string) (decoder.StreamInfo, error)
}

// Resolver 音源解析器，负责分配全局音轨编号
type Resolver struct {
	prober     Prober
	extensions map[string]bool
	nextTrack  int
	sources    []types.AudioSourceInfo
}

// NewResolver 创建解析器，extensions 为带点号的音频扩展名
func NewResolver(prober Prober, extensions []string) *Resolver {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Resolver{prober: prober, extensions: exts}
}

// Resolve 解析输入路径
func (r *Resolver) Resolve(ctx context.Context, path string) ([]types.AudioSourceInfo, error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindFolder:
		err = r.resolveFolder(ctx, path)
	case KindCueSheet:
		err = r.resolveCue(ctx, path)
	default:
		err = r.addSingle(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	if len(r.sources) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrEmptyInput, path)
	}
	return r.sources, nil
}

// resolveFolder 非递归扫描目录，按目录列表顺序
func (r *Resolver) resolveFolder(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("读取目录失败: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !r.extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := r.addSingle(ctx, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// addSingle 单个音频文件，一条从 0 开始的音轨
func (r *Resolver) addSingle(ctx context.Context, path string) error {
	info, err := r.probe(ctx, path)
	if err != nil {
		return err
	}
	r.add(types.AudioSourceInfo{
		Path:         path,
		ChannelCount: info.Channels,
		SampleRate:   info.SampleRate,
		Tracks:       []types.TrackInfo{{Name: filepath.Base(path)}},
	})
	return nil
}

func (r *Resolver) probe(ctx context.Context, path string) (decoder.StreamInfo, error) {
	info, err := r.prober.Probe(ctx, path)
	if err != nil {
		return decoder.StreamInfo{}, err
	}
	if err := info.Validate(path); err != nil {
		return decoder.StreamInfo{}, err
	}
	return info, nil
}

// add 登记音源并分配全局编号
func (r *Resolver) add(src types.AudioSourceInfo) {
	src.Index = len(r.sources)
	for i := range src.Tracks {
		r.nextTrack++
		src.Tracks[i].GlobalIndex = r.nextTrack
	}
	r.sources = append(r.sources, src)
}
