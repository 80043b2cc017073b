package domain

import "gonum.org/v1/gonum/spatial/r3"

// MotionRecording 是一个 <basename>_mmm.xml 的解析结果。
//
// 不变量（解析器保证）：
// - len(JointFrames[i]) == len(Joints)
// - len(JointFrames) == len(RootPos) == len(RootRot)
// - 帧顺序即文件中的顺序
type MotionRecording struct {
	Basename string
	Path     string

	Joints      []JointDescriptor
	JointFrames [][]float64
	RootPos     []r3.Vec
	RootRot     []r3.Vec
}

// FrameCount 返回帧数。
func (m MotionRecording) FrameCount() int { return len(m.JointFrames) }
