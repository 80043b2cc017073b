package domain

import "fmt"

// AxisKind 区分三个坐标轴与无法识别的后缀。
type AxisKind uint8

const (
	AxisX AxisKind = iota
	AxisY
	AxisZ
	// AxisRaw 表示关节名后缀不是 x/y/z（例如 KIT 数据里的 "RMrot_joint"），
	// 原始字符保存在 Axis.Raw 中。
	AxisRaw
)

// Axis 是关节自由度的轴标记：X | Y | Z | Raw(char)。
//
// 不变量：只有 Kind==AxisRaw 时 Raw 才有意义；其余情况 Raw 必须为 0，
// 这样 JointDescriptor 可以直接用 == 比较。
type Axis struct {
	Kind AxisKind
	Raw  rune
}

var (
	X = Axis{Kind: AxisX}
	Y = Axis{Kind: AxisY}
	Z = Axis{Kind: AxisZ}
)

// RawAxis 构造 Raw 变体。
func RawAxis(r rune) Axis { return Axis{Kind: AxisRaw, Raw: r} }

// AxisFromRune 把 x/y/z 映射为对应轴，其余字符落入 Raw。
func AxisFromRune(r rune) Axis {
	switch r {
	case 'x':
		return X
	case 'y':
		return Y
	case 'z':
		return Z
	default:
		return RawAxis(r)
	}
}

// Index 返回轴在 3 维向量中的下标（0/1/2）；Raw 返回 false。
func (a Axis) Index() (int, bool) {
	switch a.Kind {
	case AxisX:
		return 0, true
	case AxisY:
		return 1, true
	case AxisZ:
		return 2, true
	default:
		return 0, false
	}
}

func (a Axis) String() string {
	switch a.Kind {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("raw(%q)", a.Raw)
	}
}

// JointDescriptor 是 JointOrder 中一个条目去掉轴后缀后的结果。
type JointDescriptor struct {
	Name string
	Axis Axis
}

func (j JointDescriptor) String() string {
	return j.Name + "/" + j.Axis.String()
}

// SameLayout 判断两组关节顺序是否完全一致（长度、名字、轴逐项相等）。
func SameLayout(a, b []JointDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
