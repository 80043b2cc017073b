package app

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/mmmconv/internal/domain"
)

// LayoutMismatchError 表示某条录制的关节顺序与参考布局不同。
// 这是唯一可恢复的情况：该录制被跳过，run 继续。
type LayoutMismatchError struct {
	Basename string
	// Index 是第一个不同的位置；长度不同且前缀一致时等于较短一方的长度。
	Index int
	Want  int
	Got   int
}

func (e *LayoutMismatchError) Error() string {
	return fmt.Sprintf("%s 的关节布局与参考不一致（第 %d 项起不同；参考 %d 项，实际 %d 项）", e.Basename, e.Index, e.Want, e.Got)
}

// IsLayoutMismatch 判断 err 是否为 *LayoutMismatchError。
func IsLayoutMismatch(err error) bool {
	var e *LayoutMismatchError
	return errors.As(err, &e)
}

// ReferenceLayout 保存一次 run 的参考关节布局。
//
// 第一条通过解析的录制无条件成为参考；之后的录制必须与之逐项相等。
// 零值可直接使用。
type ReferenceLayout struct {
	joints []domain.JointDescriptor
	set    bool
}

// Check 校验 rec 的关节布局；首次调用时采用它作为参考。
func (l *ReferenceLayout) Check(rec domain.MotionRecording) error {
	if !l.set {
		l.joints = append([]domain.JointDescriptor(nil), rec.Joints...)
		l.set = true
		return nil
	}
	if domain.SameLayout(l.joints, rec.Joints) {
		return nil
	}
	return &LayoutMismatchError{
		Basename: rec.Basename,
		Index:    firstDiff(l.joints, rec.Joints),
		Want:     len(l.joints),
		Got:      len(rec.Joints),
	}
}

// Joints 返回参考布局（未设置时为 nil）。
func (l *ReferenceLayout) Joints() []domain.JointDescriptor {
	return l.joints
}

func firstDiff(a, b []domain.JointDescriptor) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
