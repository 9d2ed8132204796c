package types

import "errors"

// 致命错误分类，所有错误都会中止整个运行
var (
	ErrInvalidAudioFormat = errors.New("无效的音频格式")
	ErrMalformedCue       = errors.New("CUE 文件格式错误")
	ErrDecoderFailure     = errors.New("解码失败")
	ErrProbeFailure       = errors.New("读取音频参数失败")
	ErrLogTargetExists    = errors.New("日志文件已存在")
	ErrEmptyInput         = errors.New("未找到支持的音频文件")
)
