package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	pst := time.FixedZone("PST", -8*3600)
	r := RunReport{
		Camera:     "c1",
		DryRun:     false,
		StartedAt:  time.Date(2019, 2, 22, 14, 0, 0, 0, pst),
		FinishedAt: time.Date(2019, 2, 22, 14, 0, 1, 0, pst),
		Items: []SampleResult{
			{RequestedAt: time.Date(2019, 2, 22, 14, 1, 0, 0, pst), Status: StatusSkipped},
			{Status: StatusFailed, ErrorCode: ErrCodeConfigInvalid}, // 合成条目
			{RequestedAt: time.Date(2019, 2, 22, 14, 0, 0, 0, pst), Status: StatusDownloaded},
			{RequestedAt: time.Date(2019, 2, 22, 14, 2, 0, 0, pst), Status: StatusFailed},
		},
	}

	r.Finalize()

	if !r.Items[0].RequestedAt.Equal(time.Date(2019, 2, 22, 14, 0, 0, 0, pst)) ||
		!r.Items[1].RequestedAt.Equal(time.Date(2019, 2, 22, 14, 1, 0, 0, pst)) ||
		!r.Items[2].RequestedAt.Equal(time.Date(2019, 2, 22, 14, 2, 0, 0, pst)) ||
		!r.Items[3].RequestedAt.IsZero() {
		t.Fatalf("items 排序不符合契约：%+v", r.Items)
	}
	want := ReportSummary{Samples: 3, Downloaded: 1, Skipped: 1, Failed: 2}
	if r.Summary != want {
		t.Fatalf("summary 统计不正确：got=%+v want=%+v", r.Summary, want)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"started_at":"2019-02-22T22:00:00Z"`)) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte(`"requested_at":"2019-02-22T22:00:00Z"`)) {
		t.Fatalf("requested_at 不是 UTC RFC3339：%s", string(b))
	}
}
