package domain

import (
	"strconv"
	"strings"
)

// ParseRecordingID 把 basename 解析为数字 id（KIT 数据形如 "00017"）。
// 非十进制整数返回 false。
func ParseRecordingID(basename string) (int, bool) {
	s := strings.TrimSpace(basename)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}
