package run

import (
	"time"

	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// 事件全部在调用 ExecuteWithObserver 的 goroutine 上同步触发。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（scan/parse/plan/write）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某条录制处理完成（processed/skipped/failed）时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
