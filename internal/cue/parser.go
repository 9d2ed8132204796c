package cue

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dr-meter/internal/types"
)

// Kind 命令类型
type Kind int

const (
	KindEOF Kind = iota
	KindPerformer
	KindTitle
	KindFile
	KindTrack
	KindIndex
)

func (k Kind) String() string {
	switch k {
	case KindPerformer:
		return "PERFORMER"
	case KindTitle:
		return "TITLE"
	case KindFile:
		return "FILE"
	case KindTrack:
		return "TRACK"
	case KindIndex:
		return "INDEX"
	}
	return "EOF"
}

// Command CUE 命令
type Command struct {
	Kind   Kind
	Value  string // PERFORMER / TITLE 的名称，FILE 的相对路径
	Number int    // TRACK / INDEX 编号
	Time   Time   // INDEX 时间
	Line   int
}

var (
	reText  = regexp.MustCompile(`^(?:PERFORMER|TITLE)\s+(.+)$`)
	reFile  = regexp.MustCompile(`^FILE\s+(?:"([^"]+)"|(\S+))(?:\s+\S+)?$`)
	reTrack = regexp.MustCompile(`^TRACK\s+(\d+)(?:\s+\S+)?$`)
	reIndex = regexp.MustCompile(`^INDEX\s+(\d+)\s+(\d+:\d+:\d+)$`)
)

// Parser 逐行把 CUE 文本解析为命令序列，只能通过重新解析来重启
type Parser struct {
	scanner *bufio.Scanner
	line    int
	done    bool
}

// NewParser 创建解析器
func NewParser(text string) *Parser {
	return &Parser{scanner: bufio.NewScanner(strings.NewReader(text))}
}

// Next 返回下一个命令，结束后一直返回 EOF
func (p *Parser) Next() (Command, error) {
	for !p.done && p.scanner.Scan() {
		p.line++
		cmd, ok, err := parseLine(strings.TrimSpace(p.scanner.Text()))
		if err != nil {
			return Command{}, fmt.Errorf("%w: 第 %d 行: %v", types.ErrMalformedCue, p.line, err)
		}
		if ok {
			cmd.Line = p.line
			return cmd, nil
		}
	}
	if !p.done {
		p.done = true
		if err := p.scanner.Err(); err != nil {
			return Command{}, fmt.Errorf("%w: %v", types.ErrMalformedCue, err)
		}
	}
	return Command{Kind: KindEOF, Line: p.line}, nil
}

// Parse 解析完整文本，结果以 EOF 结尾
func Parse(text string) ([]Command, error) {
	p := NewParser(text)
	var cmds []Command
	for {
		cmd, err := p.Next()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		if cmd.Kind == KindEOF {
			return cmds, nil
		}
	}
}

func parseLine(line string) (Command, bool, error) {
	keyword, _, _ := strings.Cut(line, " ")
	keyword, _, _ = strings.Cut(keyword, "\t")

	switch keyword {
	case "PERFORMER", "TITLE":
		m := reText.FindStringSubmatch(line)
		if m == nil {
			return Command{}, false, fmt.Errorf("%s 缺少名称", keyword)
		}
		kind := KindTitle
		if keyword == "PERFORMER" {
			kind = KindPerformer
		}
		return Command{Kind: kind, Value: unquote(m[1])}, true, nil

	case "FILE":
		m := reFile.FindStringSubmatch(line)
		if m == nil {
			return Command{}, false, fmt.Errorf("无法解析 FILE: %q", line)
		}
		name := m[1]
		if name == "" {
			name = m[2]
		}
		return Command{Kind: KindFile, Value: name}, true, nil

	case "TRACK":
		m := reTrack.FindStringSubmatch(line)
		if m == nil {
			return Command{}, false, fmt.Errorf("无法解析 TRACK: %q", line)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Command{}, false, err
		}
		return Command{Kind: KindTrack, Number: n}, true, nil

	case "INDEX":
		m := reIndex.FindStringSubmatch(line)
		if m == nil {
			return Command{}, false, fmt.Errorf("无法解析 INDEX: %q", line)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Command{}, false, err
		}
		t, err := ParseTime(m[2])
		if err != nil {
			return Command{}, false, err
		}
		return Command{Kind: KindIndex, Number: n, Time: t}, true, nil
	}

	// REM, FLAGS, PREGAP, ISRC, CATALOG 等忽略
	return Command{}, false, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
