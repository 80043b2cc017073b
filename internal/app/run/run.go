package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/mmmconv/internal/app"
	"github.com/John-Robertt/mmmconv/internal/app/planner"
	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
	"github.com/John-Robertt/mmmconv/internal/infra/fsx"
	"github.com/John-Robertt/mmmconv/internal/infra/npy"
	"github.com/John-Robertt/mmmconv/internal/mmm"
	"github.com/John-Robertt/mmmconv/internal/monitoring"
	"github.com/John-Robertt/mmmconv/internal/scan"
)

// Result 是一次 run 的完整结果：对外报告 + 内存中的 batch 与输出计划。
type Result struct {
	Report  domain.RunReport
	Batch   domain.Batch
	Outputs []planner.Output
}

// Execute 执行一次 run（dry-run/apply）。
//
// 失败语义：
//   - 布局不一致是唯一可恢复的情况：该录制记为 skipped，继续处理其余录制
//   - 其余错误（目录不可读、缺少 _mmm.xml、XML 结构错误、id 非法、不变量被破坏、写入失败）
//     立即终止：报告中追加一条 failed，且不写任何输出
func Execute(ctx context.Context, eff config.EffectiveConfig) Result {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) Result {
	if obs != nil {
		obs.OnStart(eff)
	}

	res := Result{
		Report: domain.RunReport{
			RunID:     uuid.NewString(),
			Path:      eff.Path,
			OutDir:    eff.OutDir,
			DryRun:    !eff.Apply,
			Mode:      eff.Mode,
			StartedAt: time.Now().UTC(),
			Items:     make([]domain.ItemResult, 0, 64),
		},
	}
	rr := &res.Report

	finish := func() Result {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return res
	}

	scanStarted := time.Now()
	basenames, err := scan.Discover(eff.Path)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, err.Error()))
		return finish()
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"basenames": len(basenames)}, time.Since(scanStarted))
	}

	parseStarted := time.Now()
	var layout app.ReferenceLayout
	var skipped int
	for i, base := range basenames {
		if err := ctx.Err(); err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCanceled, err.Error()))
			return finish()
		}

		oneStarted := time.Now()
		item, fatal := processOne(eff, base, &layout, &res.Batch)
		rr.Items = append(rr.Items, item)
		if item.Status == domain.StatusSkipped {
			skipped++
		}
		if obs != nil {
			obs.OnItemDone(i+1, len(basenames), item, time.Since(oneStarted))
		}
		if fatal {
			return finish()
		}
	}
	if obs != nil {
		obs.OnPhaseDone("parse", map[string]any{
			"processed": res.Batch.Len(),
			"skipped":   skipped,
			"frames":    res.Batch.TotalFrames(),
		}, time.Since(parseStarted))
	}

	if err := res.Batch.Check(); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInvariantViolation, err.Error()))
		return finish()
	}

	planStarted := time.Now()
	outs, err := planner.PlanOutputs(eff, &res.Batch)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInvariantViolation, fmt.Sprintf("组装输出失败：%v", err)))
		return finish()
	}
	if len(outs) == 0 {
		monitoring.Logf("run: %s 下没有可输出的录制，跳过写入", eff.Path)
	}
	res.Outputs = outs
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{"outputs": len(outs)}, time.Since(planStarted))
	}

	writeStarted := time.Now()
	rr.Outputs = make([]domain.OutputResult, 0, len(outs))
	for _, o := range outs {
		rr.Outputs = append(rr.Outputs, o.Result(false))
	}
	if eff.Apply && len(outs) > 0 {
		if err := writeOutputs(eff.OutDir, outs); err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, err.Error()))
			return finish()
		}
		for i := range rr.Outputs {
			rr.Outputs[i].Written = true
		}
	}
	if obs != nil {
		written := 0
		if eff.Apply {
			written = len(outs)
		}
		obs.OnPhaseDone("write", map[string]any{"files": written}, time.Since(writeStarted))
	}

	return finish()
}

// processOne 处理单条录制；fatal=true 表示整个 run 必须终止。
func processOne(eff config.EffectiveConfig, base string, layout *app.ReferenceLayout, batch *domain.Batch) (domain.ItemResult, bool) {
	path := scan.MotionPath(eff.Path, base)
	item := domain.ItemResult{
		Basename: base,
		File:     relOrAbs(eff.Path, path),
		Status:   domain.StatusProcessed,
	}

	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		msg := fmt.Sprintf("缺少录制文件 %s", item.File)
		if err != nil && !os.IsNotExist(err) {
			msg = fmt.Sprintf("读取录制文件 %s 失败：%v", item.File, err)
		}
		return failed(item, domain.ErrCodeIOFailed, msg), true
	}

	rec, err := mmm.ParseFile(path)
	if err != nil {
		if mmm.IsSchemaError(err) {
			return failed(item, domain.ErrCodeSchemaInvalid, err.Error()), true
		}
		return failed(item, domain.ErrCodeIOFailed, err.Error()), true
	}
	rec.Basename = base
	item.Frames = rec.FrameCount()
	item.Joints = len(rec.Joints)

	if err := layout.Check(rec); err != nil {
		var me *app.LayoutMismatchError
		if errors.As(err, &me) {
			batch.Parsed(rec)
			monitoring.Logf("run: 跳过 %s：%v", base, err)
			item.Status = domain.StatusSkipped
			item.ErrorCode = domain.ErrCodeLayoutMismatch
			item.ErrorMsg = err.Error()
			return item, false
		}
		return failed(item, domain.ErrCodeSchemaInvalid, err.Error()), true
	}

	id, ok := domain.ParseRecordingID(base)
	if !ok {
		return failed(item, domain.ErrCodeInvalidID, fmt.Sprintf("basename %q 不是数字 id", base)), true
	}
	item.ID = id
	batch.Add(id, rec)
	return item, false
}

// writeOutputs 先把全部数组写成临时文件，全部成功后才统一 rename，
// 避免 out_dir 里出现新旧混杂的一组输出。
func writeOutputs(dir string, outs []planner.Output) error {
	st := fsx.NewStaging(dir)
	for _, o := range outs {
		if err := st.Add(o.Name, func(w io.Writer) error {
			return npy.Encode(w, o.Array)
		}); err != nil {
			st.Discard()
			return fmt.Errorf("写入 %s 失败：%w", o.Name, err)
		}
	}
	if err := st.Commit(); err != nil {
		return fmt.Errorf("提交输出失败：%w", err)
	}
	return nil
}

func failed(item domain.ItemResult, code, msg string) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	return item
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func relOrAbs(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}
