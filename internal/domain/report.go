package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusPlanned    = "planned" // dry-run：本应下载
	StatusFailed     = "failed"
)

const (
	ErrCodeListingFailed     = "listing_failed"
	ErrCodeContractViolation = "contract_violation"
	ErrCodeDownloadFailed    = "download_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
)

// RunReport 是对外稳定输出（stdout JSON / --report 文件）的结构。
type RunReport struct {
	Camera string `json:"camera"`
	DryRun bool   `json:"dry_run"`

	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	GapSecond int64     `json:"gap_seconds"`
	OutputDir string    `json:"output_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary  `json:"summary"`
	Items   []SampleResult `json:"items"`
}

type ReportSummary struct {
	Samples    int `json:"samples"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Planned    int `json:"planned"`
	Failed     int `json:"failed"`
}

// SampleResult 是单个采样点的处理结果。
//
// RequestedAt 为零值的条目是合成条目（例如配置错误），不对应任何采样点。
type SampleResult struct {
	RequestedAt time.Time `json:"requested_at"`
	Bucket      string    `json:"bucket"`
	Timestamp   int64     `json:"timestamp"`
	CapturedAt  time.Time `json:"captured_at"`
	Local       string    `json:"local"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 requested_at 升序；合成条目（零值时间）排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	for i := range r.Items {
		if !r.Items[i].RequestedAt.IsZero() {
			r.Items[i].RequestedAt = r.Items[i].RequestedAt.UTC()
		}
		if !r.Items[i].CapturedAt.IsZero() {
			r.Items[i].CapturedAt = r.Items[i].CapturedAt.UTC()
		}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].RequestedAt
		b := r.Items[j].RequestedAt
		if a.IsZero() {
			return false
		}
		if b.IsZero() {
			return true
		}
		return a.Before(b)
	})

	var s ReportSummary
	for _, it := range r.Items {
		if !it.RequestedAt.IsZero() {
			s.Samples++
		}
		switch it.Status {
		case StatusDownloaded:
			s.Downloaded++
		case StatusSkipped:
			s.Skipped++
		case StatusPlanned:
			s.Planned++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
