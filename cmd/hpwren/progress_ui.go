package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/hpwren/internal/app/run"
	"github.com/John-Robertt/hpwren/internal/config"
	"github.com/John-Robertt/hpwren/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个请求阻塞较久时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	skip  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, samples, buckets int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "download"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不下载/不写入)"
	}

	fmt.Fprintf(p.w, "[%s] hpwren fetch (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  camera: %s\n", eff.Camera)
	fmt.Fprintf(p.w, "  range: %s .. %s (%s)\n", eff.Start.Format("2006-01-02 15:04:05"), eff.End.Format("15:04:05"), eff.Location)
	fmt.Fprintf(p.w, "  gap: %s\n", eff.Gap)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  archive: %s (tier=%s)\n", truncate(eff.Layout.BaseURL, 120), eff.Layout.SizeTier)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutputDir)
	fmt.Fprintf(p.w, "计划: samples=%d buckets=%d\n\n", samples, buckets)

	p.total = samples
	if p.total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnBucket(b domain.Bucket, images int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "桶 %s Q%d: images=%d\n", b.Date, b.Quarter, images)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSampleDone(idx, total int, res domain.SampleResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	at := res.RequestedAt.Format("15:04:05")
	switch res.Status {
	case domain.StatusFailed:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, at, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s (已存在)\n", idx, total, at, baseName(res.Local))
	case domain.StatusPlanned:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s PLAN %s %s\n", idx, total, at, baseName(res.Local), formatDelta(res))
	default:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK %s %s (%s)\n",
			idx, total, at, baseName(res.Local), formatDelta(res), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成或失败终止：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && (p.done >= p.total || res.Status == domain.StatusFailed) {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// formatDelta 显示实际图片时间与请求时间的偏差，例如 "Δ+5s"。
func formatDelta(res domain.SampleResult) string {
	if res.CapturedAt.IsZero() || res.RequestedAt.IsZero() {
		return ""
	}
	d := res.CapturedAt.Sub(res.RequestedAt).Round(time.Second)
	if d >= 0 {
		return "Δ+" + d.String()
	}
	return "Δ" + d.String()
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
