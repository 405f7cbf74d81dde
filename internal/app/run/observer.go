package run

import (
	"time"

	"github.com/John-Robertt/hpwren/internal/config"
	"github.com/John-Robertt/hpwren/internal/domain"
)

// Observer 用于把“运行进度/桶切换/采样结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件来自同一个 goroutine，按时间顺序到达。
type Observer interface {
	// OnStart 在采样计划生成后调用。
	OnStart(eff config.EffectiveConfig, samples, buckets int)
	// OnBucket 在成功抓取一个新桶的目录后调用（复用缓存时不调用）。
	OnBucket(b domain.Bucket, images int)
	// OnSampleDone 在每个采样点处理完成（含失败）时调用。
	OnSampleDone(idx, total int, res domain.SampleResult, dur time.Duration)
}
