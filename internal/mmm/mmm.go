// Package mmm 读取 KIT Motion-Language 数据集使用的 MMM XML 录制文件。
package mmm

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/John-Robertt/mmmconv/internal/domain"
	"github.com/John-Robertt/mmmconv/internal/monitoring"
)

// SchemaError 表示 XML 结构不满足约定：缺少必需元素/属性，或数值个数不符。
// 属于致命错误：run 不做部分恢复。
type SchemaError struct {
	Path    string
	Element string
	// Frame 是出错的 MotionFrame 下标；与帧无关时为 -1。
	Frame int
	Err   error
}

func (e *SchemaError) Error() string {
	loc := e.Element
	if e.Frame >= 0 {
		loc = fmt.Sprintf("MotionFrame[%d]/%s", e.Frame, e.Element)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s：<%s> 无效：%v", e.Path, loc, e.Err)
	}
	return fmt.Sprintf("<%s> 无效：%v", loc, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsSchemaError 判断 err 是否为 *SchemaError。
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}

var (
	errMissing    = errors.New("缺少该元素")
	errNoName     = errors.New("缺少 name 属性")
	errJointShape = errors.New("关节名必须形如 <base>_<axis> 或 <base><axis>_<tag>")
)

type document struct {
	Motions []motionXML `xml:"Motion"`
}

type motionXML struct {
	Name       string         `xml:"name,attr"`
	JointOrder *jointOrderXML `xml:"JointOrder"`
	Frames     *framesXML     `xml:"MotionFrames"`
}

type jointOrderXML struct {
	Joints []jointXML `xml:"Joint"`
}

type jointXML struct {
	Name *string `xml:"name,attr"`
}

type framesXML struct {
	Frames []frameXML `xml:"MotionFrame"`
}

type frameXML struct {
	JointPosition *textXML `xml:"JointPosition"`
	RootPosition  *textXML `xml:"RootPosition"`
	RootRotation  *textXML `xml:"RootRotation"`
}

type textXML struct {
	Text string `xml:",chardata"`
}

// ParseFile 打开并解析 path；文件句柄在返回前释放。
func ParseFile(path string) (domain.MotionRecording, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.MotionRecording{}, err
	}
	defer f.Close()

	return Parse(bufio.NewReader(f), path)
}

// Parse 从 r 解析一条录制。path 只用于错误信息与日志。
//
// 文件中存在多个 <Motion> 时只解析第一个（记录日志，不算错误）。
func Parse(r io.Reader, path string) (domain.MotionRecording, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return domain.MotionRecording{}, &SchemaError{Path: path, Element: "MMM", Frame: -1, Err: err}
	}
	if len(doc.Motions) == 0 {
		return domain.MotionRecording{}, &SchemaError{Path: path, Element: "Motion", Frame: -1, Err: errMissing}
	}
	if len(doc.Motions) > 1 {
		monitoring.Logf("mmm: %s 含 %d 个 <Motion>，只解析第一个", path, len(doc.Motions))
	}

	rec, err := parseMotion(doc.Motions[0], path)
	if err != nil {
		return domain.MotionRecording{}, err
	}
	rec.Path = path
	return rec, nil
}

func parseMotion(m motionXML, path string) (domain.MotionRecording, error) {
	if m.JointOrder == nil {
		return domain.MotionRecording{}, &SchemaError{Path: path, Element: "JointOrder", Frame: -1, Err: errMissing}
	}

	joints := make([]domain.JointDescriptor, 0, len(m.JointOrder.Joints))
	for i, j := range m.JointOrder.Joints {
		if j.Name == nil {
			return domain.MotionRecording{}, &SchemaError{Path: path, Element: fmt.Sprintf("Joint[%d]", i), Frame: -1, Err: errNoName}
		}
		jd, err := ParseJointName(*j.Name)
		if err != nil {
			return domain.MotionRecording{}, &SchemaError{Path: path, Element: fmt.Sprintf("Joint[%d]", i), Frame: -1, Err: err}
		}
		joints = append(joints, jd)
	}

	if m.Frames == nil {
		return domain.MotionRecording{}, &SchemaError{Path: path, Element: "MotionFrames", Frame: -1, Err: errMissing}
	}

	n := len(m.Frames.Frames)
	rec := domain.MotionRecording{
		Joints:      joints,
		JointFrames: make([][]float64, 0, n),
		RootPos:     make([]r3.Vec, 0, n),
		RootRot:     make([]r3.Vec, 0, n),
	}
	for i, f := range m.Frames.Frames {
		jp, pos, rot, err := parseFrame(f, len(joints))
		if err != nil {
			var se *SchemaError
			if errors.As(err, &se) {
				se.Path = path
				se.Frame = i
			}
			return domain.MotionRecording{}, err
		}
		rec.JointFrames = append(rec.JointFrames, jp)
		rec.RootPos = append(rec.RootPos, pos)
		rec.RootRot = append(rec.RootRot, rot)
	}
	return rec, nil
}

func parseFrame(f frameXML, nJoints int) ([]float64, r3.Vec, r3.Vec, error) {
	if f.JointPosition == nil {
		return nil, r3.Vec{}, r3.Vec{}, &SchemaError{Element: "JointPosition", Err: errMissing}
	}
	jp, err := parseList(f.JointPosition, nJoints)
	if err != nil {
		return nil, r3.Vec{}, r3.Vec{}, &SchemaError{Element: "JointPosition", Err: err}
	}
	pos, err := parseList(f.RootPosition, 3)
	if err != nil {
		return nil, r3.Vec{}, r3.Vec{}, &SchemaError{Element: "RootPosition", Err: err}
	}
	rot, err := parseList(f.RootRotation, 3)
	if err != nil {
		return nil, r3.Vec{}, r3.Vec{}, &SchemaError{Element: "RootRotation", Err: err}
	}
	return jp, r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}, r3.Vec{X: rot[0], Y: rot[1], Z: rot[2]}, nil
}

// parseList 解析空白分隔的浮点列表，个数必须恰好等于 want。
// 元素缺失视为 0 个值。
func parseList(t *textXML, want int) ([]float64, error) {
	var fields []string
	if t != nil {
		fields = strings.Fields(t.Text)
	}
	if len(fields) != want {
		return nil, fmt.Errorf("元素个数不符：期望 %d，实际 %d", want, len(fields))
	}
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个值不是浮点数：%q", i, s)
		}
		out[i] = v
	}
	return out, nil
}

// ParseJointName 把 JointOrder 中的 name 拆成 (关节名, 轴)。
//
// 支持三种写法：
//   - "<base>_<axis>"，axis 恰为 x/y/z：例如 "RShoulder_x" -> ("RShoulder", X)
//   - "<base>_<side><axis>"，side 为 L/R：例如 "Hip_Lx" -> ("Hip_L", X)
//   - KIT 写法 "<base><axis>_<tag>"：取第一个 '_' 之前部分的最后一个字符作为轴，
//     例如 "BLNx_joint" -> ("BLN", X)；非 x/y/z 时保留原字符，"RMrot_joint" -> ("RMro", Raw('t'))
func ParseJointName(raw string) (domain.JointDescriptor, error) {
	name := strings.TrimSpace(raw)
	i := strings.IndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return domain.JointDescriptor{}, fmt.Errorf("%w：%q", errJointShape, raw)
	}
	head, tail := name[:i], name[i+1:]

	if len(tail) == 1 {
		if a := domain.AxisFromRune(rune(tail[0])); a.Kind != domain.AxisRaw {
			return domain.JointDescriptor{Name: head, Axis: a}, nil
		}
	}
	// <base>_<L|R><axis>：侧标记留在名字里，左右两侧仍是不同的关节。
	if len(tail) == 2 && isSideMarker(tail[0]) {
		if a := domain.AxisFromRune(rune(tail[1])); a.Kind != domain.AxisRaw {
			return domain.JointDescriptor{Name: head + "_" + tail[:1], Axis: a}, nil
		}
	}

	// KIT 写法：head 至少要有 1 个字符的关节名 + 1 个字符的轴。
	rs := []rune(head)
	if len(rs) < 2 {
		return domain.JointDescriptor{}, fmt.Errorf("%w：%q", errJointShape, raw)
	}
	last := rs[len(rs)-1]
	return domain.JointDescriptor{Name: string(rs[:len(rs)-1]), Axis: domain.AxisFromRune(last)}, nil
}

func isSideMarker(c byte) bool {
	return c == 'L' || c == 'R'
}
