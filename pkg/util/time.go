// Package util 提供通用工具函数
package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string, additionally accepting a day suffix and bare seconds
// ParseDuration 解析时长字符串，额外支持 d（天）后缀与纯数字（秒）
// 例如: "7d" => 168h，"30" => 30s，"5m" => 5m
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	// If it is pure numbers, default to seconds
	// 如果是纯数字，默认为秒
	if _, err := strconv.Atoi(s); err == nil {
		s += "s"
	}
	return time.ParseDuration(s)
}

// ParseDurationOr 解析失败或不为正数时返回 fallback
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if d, err := ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}
