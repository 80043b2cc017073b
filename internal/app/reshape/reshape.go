// Package reshape 把逐自由度的关节值按关节分组为 3 维向量。
package reshape

import (
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/John-Robertt/mmmconv/internal/domain"
)

// DefaultExcluded 是 KIT 布局中不参与骨架测量的标记关节
// （两个 Mro 旋转标记与两个 F 足部标记）。
var DefaultExcluded = []string{"RMro", "LMro", "RF", "LF"}

// ExcludeSet 是需要从输出中剔除的关节名集合。nil 表示不剔除任何关节。
type ExcludeSet map[string]struct{}

// NewExcludeSet 由名字列表构造集合（去空白、去空）。
func NewExcludeSet(names []string) ExcludeSet {
	s := make(ExcludeSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		s[n] = struct{}{}
	}
	return s
}

func (s ExcludeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sample 是一帧中单个自由度的取值。
type Sample struct {
	Name  string
	Axis  domain.Axis
	Value float64
}

// Vectors 把按关节顺序排列的样本分组为向量。
//
// 规则：
// - 被排除的关节名直接忽略，不影响分组
// - 关节名与上一个保留样本不同即开始新向量
// - 按轴下标写入分量；Raw 轴只参与分组，不写入
// - 最后一个向量即使未填满也会输出（未设置的分量为 0）
//
// 该分组假设同一关节的 x/y/z 在 JointOrder 中相邻。
func Vectors(samples []Sample, excluded ExcludeSet) []r3.Vec {
	var (
		out  []r3.Vec
		cur  r3.Vec
		prev string
		open bool
	)
	for _, s := range samples {
		if excluded.Has(s.Name) {
			continue
		}
		if open && s.Name != prev {
			out = append(out, cur)
			cur = r3.Vec{}
		}
		prev = s.Name
		open = true

		i, ok := s.Axis.Index()
		if !ok {
			continue
		}
		switch i {
		case 0:
			cur.X = s.Value
		case 1:
			cur.Y = s.Value
		case 2:
			cur.Z = s.Value
		}
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// Frame 把一帧的关节值与参考布局逐项配对后分组。
// values 长度必须等于 len(joints)（解析器保证）；多余的一方被忽略。
func Frame(joints []domain.JointDescriptor, values []float64, excluded ExcludeSet) []r3.Vec {
	n := len(joints)
	if len(values) < n {
		n = len(values)
	}
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Sample{Name: joints[i].Name, Axis: joints[i].Axis, Value: values[i]}
	}
	return Vectors(samples, excluded)
}

// Frames 对每一帧调用 Frame，保持帧顺序。
func Frames(joints []domain.JointDescriptor, frames [][]float64, excluded ExcludeSet) [][]r3.Vec {
	out := make([][]r3.Vec, 0, len(frames))
	for _, f := range frames {
		out = append(out, Frame(joints, f, excluded))
	}
	return out
}

// VectorCount 返回给定布局下每帧输出的向量数（与帧内容无关）。
func VectorCount(joints []domain.JointDescriptor, excluded ExcludeSet) int {
	n := 0
	prev := ""
	open := false
	for _, j := range joints {
		if excluded.Has(j.Name) {
			continue
		}
		if !open || j.Name != prev {
			n++
		}
		prev = j.Name
		open = true
	}
	return n
}
