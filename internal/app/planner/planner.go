package planner

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/John-Robertt/mmmconv/internal/app/reshape"
	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
	"github.com/John-Robertt/mmmconv/internal/infra/npy"
)

// Output 是一个待写入的数组文件（只描述内容，不做任何写入）。
type Output struct {
	Name  string
	Array npy.Array
}

// Result 转成 report 中的条目。
func (o Output) Result(written bool) domain.OutputResult {
	return domain.OutputResult{
		Name:    o.Name,
		DType:   string(o.Array.DType),
		Shape:   append([]int(nil), o.Array.Shape...),
		Written: written,
	}
}

// Names 返回给定前缀与模式下的输出文件名（固定顺序）。
func Names(prefix, mode string) []string {
	names := []string{
		prefix + "_root_pos.npy",
		prefix + "_root_rot.npy",
		prefix + ".npy",
	}
	if mode == config.ModeAccumulate {
		names = append(names, prefix+"_frame_ids.npy")
	}
	return names
}

// PlanOutputs 根据模式把 batch 组装为输出数组。
//
//   - keep_last：root_pos/root_rot 取最后一条被保留的录制；motion 取最后一条解析成功的录制
//     （即使它因布局不一致被跳过，此时按它自己的关节布局重排）
//   - accumulate：按处理顺序拼接全部被保留的录制，并额外输出每行对应的录制 id
//
// batch 为空时返回 nil（没有可写的内容）。
func PlanOutputs(eff config.EffectiveConfig, b *domain.Batch) ([]Output, error) {
	if b == nil || b.Len() == 0 {
		return nil, nil
	}
	if err := config.ValidateMode(eff.Mode); err != nil {
		return nil, err
	}

	ex := reshape.NewExcludeSet(eff.ExcludedJoints)

	recs := b.Recordings
	motionRecs := b.Recordings
	if eff.Mode == config.ModeKeepLast {
		last, _ := b.Last()
		recs = []domain.MotionRecording{last}
		motionRecs = recs
		if parsed, ok := b.LastParsed(); ok {
			motionRecs = []domain.MotionRecording{parsed}
		}
	}

	rootFrames := 0
	for i := range recs {
		rootFrames += recs[i].FrameCount()
	}
	pos := make([]float64, 0, rootFrames*3)
	rot := make([]float64, 0, rootFrames*3)
	ids := make([]float64, 0, rootFrames)
	for i := range recs {
		rec := recs[i]
		pos = appendVecs(pos, rec.RootPos)
		rot = appendVecs(rot, rec.RootRot)

		// accumulate 时 recs 就是 b.Recordings，下标与 b.IDs 一一对应。
		if eff.Mode == config.ModeAccumulate {
			id := b.IDs[i]
			for n := 0; n < rec.FrameCount(); n++ {
				ids = append(ids, float64(id))
			}
		}
	}

	// 被保留的录制共享 Reference；被跳过的最后一条录制用它自己的布局。
	layout := b.Reference
	if eff.Mode == config.ModeKeepLast {
		layout = motionRecs[0].Joints
	}
	nvec := reshape.VectorCount(layout, ex)
	motionFrames := 0
	for i := range motionRecs {
		motionFrames += motionRecs[i].FrameCount()
	}
	motion := make([]float64, 0, motionFrames*nvec*3)
	for i := range motionRecs {
		rec := motionRecs[i]
		for fi, vs := range reshape.Frames(layout, rec.JointFrames, ex) {
			if len(vs) != nvec {
				return nil, fmt.Errorf("%s 第 %d 帧得到 %d 个向量，期望 %d", rec.Basename, fi, len(vs), nvec)
			}
			motion = appendVecs(motion, vs)
		}
	}

	names := Names(eff.OutputPrefix, eff.Mode)
	out := []Output{
		{Name: names[0], Array: npy.Array{DType: npy.Float32, Shape: []int{rootFrames, 3}, Data: pos}},
		{Name: names[1], Array: npy.Array{DType: npy.Float32, Shape: []int{rootFrames, 3}, Data: rot}},
		{Name: names[2], Array: npy.Array{DType: npy.Float64, Shape: []int{motionFrames, nvec, 3}, Data: motion}},
	}
	if eff.Mode == config.ModeAccumulate {
		out = append(out, Output{Name: names[3], Array: npy.Array{DType: npy.Int64, Shape: []int{rootFrames}, Data: ids}})
	}
	return out, nil
}

func appendVecs(dst []float64, vs []r3.Vec) []float64 {
	for _, v := range vs {
		dst = append(dst, v.X, v.Y, v.Z)
	}
	return dst
}
