package fsx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename 失败。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望目录但实际是文件）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// EnsureDir 确保 dir 存在且是目录；不存在则创建。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileAtomic 在 dir 下原子写入 name（临时文件 + rename），目标已存在则覆盖。
//
// 输出数组与 report.json 每次 run 都会覆盖；原子写保证中途失败不会留下半个文件。
func WriteFileAtomic(dir, name string, data []byte) error {
	return WriteFileAtomicFunc(dir, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteFileAtomicFunc 与 WriteFileAtomic 相同，但内容由 fill 流式写入（避免大数组先拼成 []byte）。
func WriteFileAtomicFunc(dir, name string, fill func(w io.Writer) error) error {
	st := NewStaging(dir)
	if err := st.Add(name, fill); err != nil {
		st.Discard()
		return err
	}
	return st.Commit()
}

// Staging 把一组文件先写成同目录临时文件，全部成功后再统一 rename 到位。
//
// 任一文件写入失败时调用 Discard，目标目录不会出现任何新文件；
// Commit 只剩 rename，中途失败的窗口被压缩到 rename 本身。
type Staging struct {
	dir   string
	files []stagedFile
}

type stagedFile struct {
	tmp string
	dst string
}

func NewStaging(dir string) *Staging {
	return &Staging{dir: dir}
}

// Add 写入一个临时文件（已 fsync），等待 Commit。
func (s *Staging) Add(name string, fill func(w io.Writer) error) error {
	if err := EnsureDir(s.dir); err != nil {
		return err
	}

	dst := filepath.Join(s.dir, name)
	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	}

	// 同目录临时文件（前缀带 '.'，扫描时会被忽略）。
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	ok = true
	s.files = append(s.files, stagedFile{tmp: tmpName, dst: dst})
	return nil
}

// Commit 依次把临时文件 rename 到目标；失败时清理尚未 rename 的临时文件。
func (s *Staging) Commit() error {
	for i, f := range s.files {
		if err := renameFunc(f.tmp, f.dst); err != nil {
			s.files = s.files[i:]
			s.Discard()
			return err
		}
	}
	s.files = nil

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(s.dir)
	return nil
}

// Discard 删除所有尚未提交的临时文件。
func (s *Staging) Discard() {
	for _, f := range s.files {
		_ = os.Remove(f.tmp)
	}
	s.files = nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
