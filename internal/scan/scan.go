package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MotionSuffix 是每条录制必须存在的 MMM 文件后缀（<basename>_mmm.xml）。
const MotionSuffix = "_mmm.xml"

// Error 表示输入目录不可用（不是目录/不可读）。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("扫描目录 %q 失败：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError 判断 err 是否来自扫描阶段。
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Discover 列出 root 下（不递归）的录制 basename。
//
// 规则：
// - 只看普通文件；跳过目录与 '.' 开头的文件
// - 去扩展名后取第一个 '_' 之前的部分作为 basename，并去重
// - 结果按字典序排序，保证“最后处理的录制”在不同平台上一致
//
// 注意：只做 ReadDir/stat，不读文件内容。
func Discover(root string) ([]string, error) {
	root = filepath.Clean(root)

	fi, err := os.Stat(root)
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}
	if !fi.IsDir() {
		return nil, &Error{Path: root, Err: errors.New("不是目录")}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.Type().IsRegular() {
			// 符号链接等：按 stat 结果判断（与 os.path.isfile 语义一致）。
			if e.Type()&os.ModeSymlink == 0 {
				continue
			}
			st, err := os.Stat(filepath.Join(root, name))
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
		}

		base := Basename(name)
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		out = append(out, base)
	}

	sort.Strings(out)
	return out, nil
}

// Basename 去掉扩展名后取第一个 '_' 之前的部分。
// 例如 "00017_mmm.xml" -> "00017"，"00017_meta.json" -> "00017"。
func Basename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.IndexByte(stem, '_'); i >= 0 {
		return stem[:i]
	}
	return stem
}

// MotionPath 返回 basename 对应的 MMM 文件路径。
func MotionPath(root, basename string) string {
	return filepath.Join(root, basename+MotionSuffix)
}
