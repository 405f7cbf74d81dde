package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/John-Robertt/hpwren/internal/domain"
)

var (
	ErrMultiDay       = errors.New("开始与结束时间必须在同一天（归档时区）")
	ErrEndBeforeStart = errors.New("结束时间早于开始时间")
	ErrNonPositiveGap = errors.New("采样间隔必须大于 0")
)

// Sample 是一个采样点：请求时刻 + 其所在的桶。
type Sample struct {
	Index  int
	At     time.Time // 归档时区下的请求时刻
	Target int64     // At 的 Unix 秒
	Bucket domain.Bucket
}

// BucketGroup 是连续落在同一个桶里的一段采样点（Samples 存 index）。
type BucketGroup struct {
	Bucket  domain.Bucket
	Samples []int
}

// PlanSamples 返回 [start, end] 内以 gap 为步长的采样时刻（含两端点，end 不一定命中）。
//
// 前置条件：start/end 在 start 的时区下是同一天，end >= start，gap > 0。
func PlanSamples(start, end time.Time, gap time.Duration) ([]time.Time, error) {
	if gap <= 0 {
		return nil, fmt.Errorf("%w：gap=%s", ErrNonPositiveGap, gap)
	}
	end = end.In(start.Location())
	if end.Before(start) {
		return nil, fmt.Errorf("%w：start=%s end=%s", ErrEndBeforeStart, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if sy != ey || sm != em || sd != ed {
		return nil, fmt.Errorf("%w：start=%s end=%s", ErrMultiDay, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	n := int(end.Sub(start)/gap) + 1
	out := make([]time.Time, 0, n)
	for t := start; !t.After(end); t = t.Add(gap) {
		out = append(out, t)
	}
	return out, nil
}

// PlanRun 生成完整的采样计划：每个采样点都带上它的桶（纯计算，不做任何 IO）。
func PlanRun(layout domain.ArchiveLayout, camera domain.CameraID, start, end time.Time, gap time.Duration) ([]Sample, error) {
	times, err := PlanSamples(start, end, gap)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(times))
	for i, t := range times {
		out = append(out, Sample{
			Index:  i,
			At:     t,
			Target: t.Unix(),
			Bucket: domain.NewBucket(layout, camera, t),
		})
	}
	return out, nil
}

// GroupByBucket 把连续同桶的采样点合并成一组，保持原顺序。
//
// 采样时刻单调递增且同一天，所以同一个桶只会出现在一段连续区间里。
func GroupByBucket(samples []Sample) []BucketGroup {
	groups := make([]BucketGroup, 0, domain.QuartersPerDay)
	for i := range samples {
		if n := len(groups); n > 0 && groups[n-1].Bucket == samples[i].Bucket {
			groups[n-1].Samples = append(groups[n-1].Samples, i)
			continue
		}
		groups = append(groups, BucketGroup{Bucket: samples[i].Bucket, Samples: []int{i}})
	}
	return groups
}
