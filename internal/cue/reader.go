package cue

import (
	"fmt"
	"os"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// sniffLen 用于判断编码的前导字节数
const sniffLen = 1024

// minCJKConfidence 统计检测结果的最低可信度
const minCJKConfidence = 50

// cjkLabels chardet 字符集名到 WHATWG 编码标签
var cjkLabels = map[string]string{
	"GB-18030":  "gb18030",
	"Big5":      "big5",
	"Shift_JIS": "shift_jis",
	"EUC-JP":    "euc-jp",
	"EUC-KR":    "euc-kr",
}

// Decode 自动识别 CUE 文本编码并转换为 UTF-8
func Decode(raw []byte) (string, error) {
	sample := raw
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}
	enc, name, certain := charset.DetermineEncoding(sample, "text/plain")
	// 既无 BOM 也不是 UTF-8 时先尝试识别东亚多字节编码，否则按 windows-1252
	if !certain && name == "windows-1252" {
		if e, n, ok := detectCJK(sample); ok {
			enc, name = e, n
		}
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("按 %s 解码 CUE 文本失败: %w", name, err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

func detectCJK(sample []byte) (encoding.Encoding, string, bool) {
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result.Confidence < minCJKConfidence {
		return nil, "", false
	}
	label, ok := cjkLabels[result.Charset]
	if !ok {
		return nil, "", false
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", false
	}
	return enc, name, true
}

// ReadFile 读取并解码 CUE 文件
func ReadFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取 CUE 文件失败: %w", err)
	}
	return Decode(raw)
}
