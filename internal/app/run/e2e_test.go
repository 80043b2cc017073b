package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
	"github.com/John-Robertt/mmmconv/internal/infra/npy"
	"github.com/John-Robertt/mmmconv/internal/monitoring"
)

func muteLogs(t *testing.T) *[]string {
	t.Helper()
	var logs []string
	old := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logs = append(logs, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = old })
	return &logs
}

func readNPY(t *testing.T, path string) npy.Array {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	a, err := npy.Decode(f)
	require.NoError(t, err)
	return a
}

func TestExecute_Apply_KeepLast(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	writeMMM(t, root, "00002", kitJoints, [][]float64{{5, 6, 7, 9, 8}, {10, 11, 12, 9, 13}})
	// 同 basename 的其他文件不产生额外条目。
	require.NoError(t, os.WriteFile(filepath.Join(root, "00002_meta.json"), []byte("{}"), 0o644))

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	rr := res.Report

	require.Equal(t, 0, rr.Summary.Failed, "items=%+v", rr.Items)
	assert.Equal(t, 2, rr.Summary.Processed)
	assert.Equal(t, []int{1, 2}, res.Batch.IDs)
	assert.NotEmpty(t, rr.RunID)
	assert.False(t, rr.DryRun)

	out := filepath.Join(root, "out")
	motion := readNPY(t, filepath.Join(out, "01.npy"))
	assert.Equal(t, npy.Float64, motion.DType)
	assert.Equal(t, []int{2, 2, 3}, motion.Shape)
	assert.Equal(t, []float64{
		5, 6, 7, 8, 0, 0,
		10, 11, 12, 13, 0, 0,
	}, motion.Data)

	pos := readNPY(t, filepath.Join(out, "01_root_pos.npy"))
	assert.Equal(t, npy.Float32, pos.DType)
	assert.Equal(t, []int{2, 3}, pos.Shape)
	assert.Equal(t, []float64{0, 0, 0, 1, 0, 0}, pos.Data)

	rot := readNPY(t, filepath.Join(out, "01_root_rot.npy"))
	assert.Equal(t, []int{2, 3}, rot.Shape)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 1}, rot.Data)

	_, err := os.Stat(filepath.Join(out, "01_frame_ids.npy"))
	assert.True(t, os.IsNotExist(err), "keep_last 不应输出 frame_ids")

	require.Len(t, rr.Outputs, 3)
	for _, o := range rr.Outputs {
		assert.True(t, o.Written, o.Name)
	}
}

func TestExecute_Apply_Accumulate(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	writeMMM(t, root, "00002", kitJoints, [][]float64{{5, 6, 7, 9, 8}, {10, 11, 12, 9, 13}})

	res := Execute(context.Background(), testConfig(root, true, config.ModeAccumulate))
	require.Equal(t, 0, res.Report.Summary.Failed, "items=%+v", res.Report.Items)

	out := filepath.Join(root, "out")
	motion := readNPY(t, filepath.Join(out, "01.npy"))
	assert.Equal(t, []int{3, 2, 3}, motion.Shape)

	pos := readNPY(t, filepath.Join(out, "01_root_pos.npy"))
	assert.Equal(t, []int{3, 3}, pos.Shape)

	ids := readNPY(t, filepath.Join(out, "01_frame_ids.npy"))
	assert.Equal(t, npy.Int64, ids.DType)
	assert.Equal(t, []float64{1, 2, 2}, ids.Data)
}

func TestExecute_DryRun_NoWrites(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()
	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})

	res := Execute(context.Background(), testConfig(root, false, config.ModeKeepLast))

	_, err := os.Stat(filepath.Join(root, "out"))
	assert.True(t, os.IsNotExist(err), "dry-run 不应创建 out/，Stat err=%v", err)

	rr := res.Report
	assert.True(t, rr.DryRun)
	assert.Equal(t, 1, rr.Summary.Processed)
	require.Len(t, rr.Outputs, 3)
	for _, o := range rr.Outputs {
		assert.False(t, o.Written, o.Name)
	}
	assert.Equal(t, []int{1, 2, 3}, rr.Outputs[2].Shape)
}

func TestExecute_LayoutMismatch_SkippedAndLogged(t *testing.T) {
	logs := muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	writeMMM(t, root, "00002", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	other := []string{"BLNx_joint", "BLNy_joint", "BLNz_joint", "LKx_joint"}
	writeMMM(t, root, "00003", other, [][]float64{{1, 2, 3, 4}})

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	rr := res.Report

	assert.Equal(t, domain.ReportSummary{Processed: 2, Skipped: 1}, rr.Summary)
	assert.Equal(t, 2, res.Batch.Len())
	assert.Equal(t, []int{1, 2}, res.Batch.IDs)

	skipped := rr.Items[2]
	assert.Equal(t, "00003", skipped.Basename)
	assert.Equal(t, domain.StatusSkipped, skipped.Status)
	assert.Equal(t, domain.ErrCodeLayoutMismatch, skipped.ErrorCode)

	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "00003")

	// 最后被保留的录制是 00002，而不是被跳过的 00003。
	pos := readNPY(t, filepath.Join(root, "out", "01_root_pos.npy"))
	assert.Equal(t, []int{1, 3}, pos.Shape)
}

func TestExecute_KeepLast_MotionFromSkippedLastRecording(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	other := []string{"BLNx_joint", "BLNy_joint", "BLNz_joint"}
	writeMMM(t, root, "00002", other, [][]float64{{10, 11, 12}, {20, 21, 22}, {30, 31, 32}})

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	require.Equal(t, domain.ReportSummary{Processed: 1, Skipped: 1}, res.Report.Summary)

	out := filepath.Join(root, "out")
	motion := readNPY(t, filepath.Join(out, "01.npy"))
	assert.Equal(t, []int{3, 1, 3}, motion.Shape)
	assert.Equal(t, []float64{10, 11, 12, 20, 21, 22, 30, 31, 32}, motion.Data)

	// root 数组来自最后被保留的 00001。
	pos := readNPY(t, filepath.Join(out, "01_root_pos.npy"))
	assert.Equal(t, []int{1, 3}, pos.Shape)
}

func TestExecute_WriteFailure_LeavesPreviousOutputs(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()
	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})

	out := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "01.npy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "01_root_pos.npy"), []byte("old"), 0o644))

	rr := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast)).Report
	require.Equal(t, 1, rr.Summary.Failed)
	assert.Equal(t, domain.ErrCodeIOFailed, rr.Items[len(rr.Items)-1].ErrorCode)
	for _, o := range rr.Outputs {
		assert.False(t, o.Written, o.Name)
	}

	b, err := os.ReadFile(filepath.Join(out, "01_root_pos.npy"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(b), "任一输出失败时不应替换已有输出")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "残留临时文件：%s", e.Name())
	}
}

func TestExecute_MissingMotionFile_Fatal(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})
	require.NoError(t, os.WriteFile(filepath.Join(root, "00002_meta.json"), []byte("{}"), 0o644))

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	rr := res.Report

	require.Equal(t, 1, rr.Summary.Failed)
	it := rr.Items[1]
	assert.Equal(t, "00002", it.Basename)
	assert.Equal(t, domain.ErrCodeIOFailed, it.ErrorCode)
	assert.Empty(t, rr.Outputs)

	_, err := os.Stat(filepath.Join(root, "out"))
	assert.True(t, os.IsNotExist(err), "致命错误后不应写出任何文件")
}

func TestExecute_SchemaError_Fatal(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3}})
	writeMMM(t, root, "00002", kitJoints, [][]float64{{1, 2, 3, 9, 4}})

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	rr := res.Report

	require.Len(t, rr.Items, 1, "第一个致命错误后不应继续处理")
	assert.Equal(t, domain.StatusFailed, rr.Items[0].Status)
	assert.Equal(t, domain.ErrCodeSchemaInvalid, rr.Items[0].ErrorCode)
	assert.Contains(t, rr.Items[0].ErrorMsg, "JointPosition")
}

func TestExecute_InvalidID_Fatal(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()
	writeMMM(t, root, "walk", kitJoints, [][]float64{{1, 2, 3, 9, 4}})

	rr := Execute(context.Background(), testConfig(root, false, config.ModeKeepLast)).Report
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeInvalidID, rr.Items[0].ErrorCode)
}

func TestExecute_NotADirectory(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()

	rr := Execute(context.Background(), testConfig(filepath.Join(root, "missing"), false, config.ModeKeepLast)).Report
	require.Len(t, rr.Items, 1)
	assert.Equal(t, "", rr.Items[0].Basename)
	assert.Equal(t, domain.ErrCodeIOFailed, rr.Items[0].ErrorCode)
}

func TestExecute_EmptyDirectory(t *testing.T) {
	logs := muteLogs(t)
	root := t.TempDir()

	res := Execute(context.Background(), testConfig(root, true, config.ModeKeepLast))
	assert.Equal(t, domain.ReportSummary{}, res.Report.Summary)
	assert.Empty(t, res.Report.Outputs)
	assert.Len(t, *logs, 1)

	_, err := os.Stat(filepath.Join(root, "out"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_Canceled(t *testing.T) {
	muteLogs(t)
	root := t.TempDir()
	writeMMM(t, root, "00001", kitJoints, [][]float64{{1, 2, 3, 9, 4}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := Execute(ctx, testConfig(root, false, config.ModeKeepLast)).Report
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeCanceled, rr.Items[0].ErrorCode)
}
