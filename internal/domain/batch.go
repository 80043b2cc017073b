package domain

import "fmt"

// Batch 是一次 run 中被保留下来的全部录制。
//
// IDs 与 Motions 按加入顺序一一对应；所有录制共享同一个 Reference 关节布局。
// lastParsed 另外记录最后一条解析成功的录制（包括因布局不一致被跳过的），
// keep_last 模式的 motion 数组取自它。
type Batch struct {
	Reference []JointDescriptor

	IDs        []int
	Motions    [][][]float64
	Recordings []MotionRecording

	lastParsed *MotionRecording
}

// Add 追加一条已通过布局校验的录制。
func (b *Batch) Add(id int, rec MotionRecording) {
	if b.Reference == nil {
		b.Reference = append([]JointDescriptor(nil), rec.Joints...)
	}
	b.IDs = append(b.IDs, id)
	b.Motions = append(b.Motions, rec.JointFrames)
	b.Recordings = append(b.Recordings, rec)
	b.Parsed(rec)
}

// Parsed 记录一条解析成功的录制，不论它最终是否被保留。
func (b *Batch) Parsed(rec MotionRecording) {
	b.lastParsed = &rec
}

// LastParsed 返回最后一条解析成功的录制；它可能不在 Recordings 中。
func (b *Batch) LastParsed() (MotionRecording, bool) {
	if b.lastParsed == nil {
		return MotionRecording{}, false
	}
	return *b.lastParsed, true
}

func (b *Batch) Len() int { return len(b.Recordings) }

// Last 返回最后加入的录制。
func (b *Batch) Last() (MotionRecording, bool) {
	if len(b.Recordings) == 0 {
		return MotionRecording{}, false
	}
	return b.Recordings[len(b.Recordings)-1], true
}

// TotalFrames 返回所有录制的帧数之和。
func (b *Batch) TotalFrames() int {
	n := 0
	for i := range b.Recordings {
		n += b.Recordings[i].FrameCount()
	}
	return n
}

// Check 校验 run 结束时的后置条件：id 数必须等于 motion 数。
func (b *Batch) Check() error {
	if len(b.IDs) != len(b.Motions) {
		return &InvariantError{What: "ids/motions", Want: len(b.IDs), Got: len(b.Motions)}
	}
	return nil
}

// InvariantError 表示后置条件被破坏；属于致命错误，run 必须中止。
type InvariantError struct {
	What string
	Want int
	Got  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("不变量被破坏（%s）：期望 %d，实际 %d", e.What, e.Want, e.Got)
}
