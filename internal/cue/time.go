package cue

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FramesPerSecond CD 帧率
const FramesPerSecond = 75

// Time CUE 时间，以 CD 帧为单位，可精确表示为有理数秒
type Time int64

// ParseTime 解析 MM:SS:FF 格式的时间
func ParseTime(s string) (Time, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("时间格式应为 MM:SS:FF: %q", s)
	}
	var v [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("时间字段无效: %q", s)
		}
		v[i] = n
	}
	if v[1] >= 60 || v[2] >= FramesPerSecond {
		return 0, fmt.Errorf("时间字段越界: %q", s)
	}
	return Time((v[0]*60+v[1])*FramesPerSecond + v[2]), nil
}

// Seconds 返回精确的秒数
func (t Time) Seconds() *big.Rat {
	return big.NewRat(int64(t), FramesPerSecond)
}

// Samples 换算为采样位置，round(sampleRate × seconds)
func (t Time) Samples(sampleRate int) int64 {
	num := int64(t) * int64(sampleRate)
	q, r := num/FramesPerSecond, num%FramesPerSecond
	// 75 为奇数，不存在恰好一半的情况
	if 2*r > FramesPerSecond {
		q++
	}
	return q
}

func (t Time) String() string {
	f := int64(t)
	return fmt.Sprintf("%02d:%02d:%02d", f/(60*FramesPerSecond), f/FramesPerSecond%60, f%FramesPerSecond)
}
