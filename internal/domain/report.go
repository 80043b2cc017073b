package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeIOFailed           = "io_failed"
	ErrCodeSchemaInvalid      = "schema_invalid"
	ErrCodeLayoutMismatch     = "layout_mismatch"
	ErrCodeInvalidID          = "invalid_id"
	ErrCodeInvariantViolation = "invariant_violation"
	ErrCodeCanceled           = "canceled"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingPath  = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	OutDir string `json:"out_dir"`
	DryRun bool   `json:"dry_run"`
	Mode   string `json:"mode"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary  `json:"summary"`
	Items   []ItemResult   `json:"items"`
	Outputs []OutputResult `json:"outputs"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	Basename string `json:"basename"`
	ID       int    `json:"id"`
	File     string `json:"file"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Frames int `json:"frames"`
	Joints int `json:"joints"`
}

// OutputResult 描述一个（计划或已写入的）数组文件。
type OutputResult struct {
	Name    string `json:"name"`
	DType   string `json:"dtype"`
	Shape   []int  `json:"shape"`
	Written bool   `json:"written"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 basename 字典序；basename=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Basename
		b := r.Items[j].Basename
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s

	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Outputs == nil {
		r.Outputs = []OutputResult{}
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
