package monitoring

import "log"

// Logf 是包级诊断日志（异常但可继续的情况，例如多余的 <Motion>、布局不一致被跳过）。
// 默认走 log.Printf（stderr），测试或 CLI 可通过 SetLogger 重定向或静音。
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger 替换包级日志函数；传入 nil 则静音。
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
