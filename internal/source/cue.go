package source

import (
	"context"
	"fmt"
	"path/filepath"

	"dr-meter/internal/cue"
	"dr-meter/internal/types"
)

// cueState CUE 解析状态
type cueState int

const (
	stateAwaitingFile cueState = iota
	stateInFileBeforeTrack
	stateInTrack
)

type indexCandidate struct {
	number int
	time   cue.Time
}

// pendingTrack 正在收集的音轨，indexes 为候选 INDEX，最终取编号最小者
type pendingTrack struct {
	number  int
	title   string
	line    int
	indexes []indexCandidate
}

func (t *pendingTrack) start() (cue.Time, bool) {
	if len(t.indexes) == 0 {
		return 0, false
	}
	best := t.indexes[0]
	for _, c := range t.indexes[1:] {
		if c.number < best.number {
			best = c
		}
	}
	return best.time, true
}

// cueSheet 驱动 CUE 命令的状态机
type cueSheet struct {
	r          *Resolver
	dir        string
	state      cueState
	album      string
	performers []string
	file       string
	tracks     []*pendingTrack

	// 上一个 FILE 的音轨，等到确认其末尾音轨是否延续到当前 FILE 后才定稿
	prevFile   string
	prevTracks []*pendingTrack
}

func (r *Resolver) resolveCue(ctx context.Context, path string) error {
	text, err := cue.ReadFile(path)
	if err != nil {
		return err
	}

	sheet := &cueSheet{r: r, dir: filepath.Dir(path)}
	parser := cue.NewParser(text)
	for {
		cmd, err := parser.Next()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := sheet.apply(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if cmd.Kind == cue.KindEOF {
			return nil
		}
	}
}

func (s *cueSheet) apply(ctx context.Context, cmd cue.Command) error {
	switch cmd.Kind {
	case cue.KindPerformer:
		// 音轨级的 PERFORMER 不计入专辑艺术家
		if s.state != stateInTrack {
			s.addPerformer(cmd.Value)
		}

	case cue.KindTitle:
		if s.state == stateInTrack {
			s.current().title = cmd.Value
		} else {
			s.album = cmd.Value
		}

	case cue.KindFile:
		if err := s.flushPrev(ctx); err != nil {
			return err
		}
		if s.state != stateAwaitingFile {
			s.prevFile, s.prevTracks = s.file, s.tracks
		}
		s.file = cmd.Value
		s.tracks = nil
		s.state = stateInFileBeforeTrack

	case cue.KindTrack:
		if s.state == stateAwaitingFile {
			return malformed(cmd, "TRACK 出现在 FILE 之前")
		}
		if err := s.flushPrev(ctx); err != nil {
			return err
		}
		s.tracks = append(s.tracks, &pendingTrack{number: cmd.Number, line: cmd.Line})
		s.state = stateInTrack

	case cue.KindIndex:
		if s.state == stateInFileBeforeTrack && len(s.prevTracks) > 0 {
			// 间隙附加在上一轨的分轨布局: 上一个 FILE 的末尾音轨在此 FILE 中开始，
			// 它在上一个 FILE 中的 INDEX 00 属于前一轨的尾部
			last := len(s.prevTracks) - 1
			t := s.prevTracks[last]
			s.prevTracks = s.prevTracks[:last]
			t.indexes = nil
			s.tracks = append(s.tracks, t)
			s.state = stateInTrack
			if err := s.flushPrev(ctx); err != nil {
				return err
			}
		}
		if s.state != stateInTrack {
			return malformed(cmd, "INDEX 不属于任何 TRACK")
		}
		t := s.current()
		t.indexes = append(t.indexes, indexCandidate{number: cmd.Number, time: cmd.Time})

	case cue.KindEOF:
		if err := s.flushPrev(ctx); err != nil {
			return err
		}
		if s.state == stateAwaitingFile {
			return nil
		}
		s.state = stateAwaitingFile
		return s.finishFile(ctx, s.file, s.tracks)
	}
	return nil
}

func (s *cueSheet) current() *pendingTrack {
	return s.tracks[len(s.tracks)-1]
}

func (s *cueSheet) addPerformer(name string) {
	for _, p := range s.performers {
		if p == name {
			return
		}
	}
	s.performers = append(s.performers, name)
}

// flushPrev 定稿上一个 FILE
func (s *cueSheet) flushPrev(ctx context.Context) error {
	file, tracks := s.prevFile, s.prevTracks
	s.prevFile, s.prevTracks = "", nil
	return s.finishFile(ctx, file, tracks)
}

// finishFile 把一个文件的音轨列表定稿为一个音源，没有音轨的文件直接跳过
func (s *cueSheet) finishFile(ctx context.Context, file string, tracks []*pendingTrack) error {
	if len(tracks) == 0 {
		return nil
	}

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, filepath.FromSlash(file))
	}
	info, err := s.r.probe(ctx, path)
	if err != nil {
		return err
	}

	src := types.AudioSourceInfo{
		Path:         path,
		DisplayName:  s.album,
		Performers:   append([]string(nil), s.performers...),
		ChannelCount: info.Channels,
		SampleRate:   info.SampleRate,
	}

	var prev int64
	for i, t := range tracks {
		start, ok := t.start()
		if !ok {
			return fmt.Errorf("%w: 第 %d 行: TRACK %02d 缺少 INDEX", types.ErrMalformedCue, t.line, t.number)
		}
		offset := start.Samples(info.SampleRate)
		if i > 0 && offset < prev {
			return fmt.Errorf("%w: 第 %d 行: TRACK %02d 的起点早于上一条音轨", types.ErrMalformedCue, t.line, t.number)
		}
		prev = offset

		name := t.title
		if name == "" {
			name = fmt.Sprintf("Track %02d", t.number)
		}
		src.Tracks = append(src.Tracks, types.TrackInfo{Name: name, OffsetSamples: offset})
	}

	s.r.add(src)
	return nil
}

func malformed(cmd cue.Command, msg string) error {
	return fmt.Errorf("%w: 第 %d 行: %s", types.ErrMalformedCue, cmd.Line, msg)
}
