package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/John-Robertt/hpwren/internal/app/planner"
	"github.com/John-Robertt/hpwren/internal/archive"
	"github.com/John-Robertt/hpwren/internal/config"
	"github.com/John-Robertt/hpwren/internal/domain"
	"github.com/John-Robertt/hpwren/internal/infra/fsx"
)

// Archive 是 driver 依赖的归档操作（*archive.Client 实现它；测试可替换）。
type Archive interface {
	ResolveBucket(ctx context.Context, b domain.Bucket) (domain.Listing, error)
	Download(ctx context.Context, outputDir string, b domain.Bucket, camera domain.CameraID, ts int64) (archive.DownloadResult, error)
	LocalPath(outputDir string, camera domain.CameraID, ts int64) string
}

// Execute 执行一次 fetch（下载或 dry-run），并返回对外稳定的 RunReport。
func Execute(ctx context.Context, eff config.EffectiveConfig, arc Archive) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, arc, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, arc Archive, obs Observer) domain.RunReport {
	d := &Driver{Archive: arc, Observer: obs}
	return d.Run(ctx, eff)
}

// Driver 按时间顺序逐个处理采样点。
//
// 状态只有“上一个桶”及其目录列表：桶变化时整体替换，桶不变时直接复用。
// 一个 Driver 同一时刻只服务一次 Run，不做并发。
type Driver struct {
	Archive  Archive
	Observer Observer
	Logger   *slog.Logger

	hasBucket     bool
	lastBucket    domain.Bucket
	cachedListing domain.Listing
}

func (d *Driver) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Run 执行 [Start, End] 内的全部采样。
//
// 目录解析失败、下载失败都会立刻终止：失败的采样点记为 failed，之后的采样点不再处理。
// dry-run 只解析目录与最近匹配，不下载、不创建目录、不写任何文件。
func (d *Driver) Run(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	rr := domain.RunReport{
		Camera:    string(eff.Camera),
		DryRun:    eff.DryRun,
		Start:     eff.Start,
		End:       eff.End,
		GapSecond: int64(eff.Gap / time.Second),
		OutputDir: eff.OutputDir,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.SampleResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	samples, err := planner.PlanRun(eff.Layout, eff.Camera, eff.Start, eff.End, eff.Gap)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeBadRequest, err.Error()))
		return finish()
	}
	groups := planner.GroupByBucket(samples)

	// dry-run 只检查输出目录，不创建。
	prepare, what := ensureDir, "创建输出目录失败"
	if eff.DryRun {
		prepare, what = checkDir, "输出目录不可用"
	}
	if err := prepare(eff.OutputDir); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(classifyFSError(err), fmt.Sprintf("%s：%v", what, err)))
		return finish()
	}

	// 输出目录就绪后才发 OnStart。
	if d.Observer != nil {
		d.Observer.OnStart(eff, len(samples), len(groups))
	}

	for i := range samples {
		started := time.Now()
		item, fatal := d.step(ctx, eff, samples[i])
		rr.Items = append(rr.Items, item)
		if d.Observer != nil {
			d.Observer.OnSampleDone(i+1, len(samples), item, time.Since(started))
		}
		if fatal {
			d.log().Error("运行终止", "requested_at", samples[i].At, "error_code", item.ErrorCode, "err", item.ErrorMsg)
			break
		}
	}
	return finish()
}

// step 处理一个采样点。fatal=true 表示必须终止整个运行。
func (d *Driver) step(ctx context.Context, eff config.EffectiveConfig, s planner.Sample) (domain.SampleResult, bool) {
	item := domain.SampleResult{
		RequestedAt: s.At,
		Bucket:      s.Bucket.URL(),
	}

	listing, err := d.listingFor(ctx, s.Bucket)
	if err != nil {
		fillListingError(&item, err)
		return item, true
	}

	ts, err := archive.Nearest(s.Target, listing)
	if err != nil {
		fillListingError(&item, err)
		return item, true
	}
	item.Timestamp = ts
	item.CapturedAt = time.Unix(ts, 0)
	d.log().Debug("最近匹配", "requested_at", s.At, "timestamp", ts, "delta", time.Duration(ts-s.Target)*time.Second)

	if eff.DryRun {
		item.Local = d.Archive.LocalPath(eff.OutputDir, eff.Camera, ts)
		exists, err := fsx.RegularFileExists(item.Local)
		switch {
		case err != nil:
			item.Status = domain.StatusFailed
			item.ErrorCode = classifyFSError(err)
			item.ErrorMsg = err.Error()
		case exists:
			item.Status = domain.StatusSkipped
		default:
			item.Status = domain.StatusPlanned
		}
		return item, false
	}

	res, err := d.Archive.Download(ctx, eff.OutputDir, s.Bucket, eff.Camera, ts)
	item.Local = res.Path
	if err != nil {
		fillDownloadError(&item, err)
		return item, true
	}
	if res.Skipped {
		item.Status = domain.StatusSkipped
	} else {
		item.Status = domain.StatusDownloaded
	}
	return item, false
}

// listingFor 返回 b 的目录列表：与上一个桶相同则复用缓存，否则重新抓取并整体替换缓存。
// 抓取失败时缓存被清空，避免之后误用旧桶的列表。
func (d *Driver) listingFor(ctx context.Context, b domain.Bucket) (domain.Listing, error) {
	if d.hasBucket && d.lastBucket == b {
		return d.cachedListing, nil
	}

	d.hasBucket = false
	d.cachedListing = nil

	listing, err := d.Archive.ResolveBucket(ctx, b)
	if err != nil {
		return nil, err
	}

	d.hasBucket = true
	d.lastBucket = b
	d.cachedListing = listing
	if d.Observer != nil {
		d.Observer.OnBucket(b, len(listing))
	}
	return listing, nil
}

func fillListingError(item *domain.SampleResult, err error) {
	item.Status = domain.StatusFailed
	if archive.IsContractViolation(err) {
		item.ErrorCode = domain.ErrCodeContractViolation
	} else {
		item.ErrorCode = domain.ErrCodeListingFailed
	}
	item.ErrorMsg = humanizeArchiveError("目录解析失败", err)
}

func fillDownloadError(item *domain.SampleResult, err error) {
	item.Status = domain.StatusFailed
	switch {
	case fsx.IsPathTypeConflict(err):
		item.ErrorCode = domain.ErrCodeTargetConflict
		item.ErrorMsg = err.Error()
	case archive.IsContractViolation(err):
		item.ErrorCode = domain.ErrCodeContractViolation
		item.ErrorMsg = humanizeArchiveError("下载失败", err)
	default:
		var ae *archive.Error
		if errors.As(err, &ae) {
			item.ErrorCode = domain.ErrCodeDownloadFailed
		} else {
			item.ErrorCode = domain.ErrCodeIOFailed
		}
		item.ErrorMsg = humanizeArchiveError("下载失败", err)
	}
}

func humanizeArchiveError(prefix string, err error) string {
	var hs *archive.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 404:
			return fmt.Sprintf("%s：归档返回 HTTP 404（该相机/日期/时段可能没有数据）：%s", prefix, hs.URL)
		case 403, 429:
			return fmt.Sprintf("%s：归档返回 HTTP %d（可能被限流）：%s", prefix, hs.StatusCode, hs.URL)
		}
	}
	if errors.Is(err, archive.ErrNoListing) {
		return fmt.Sprintf("%s：目录中没有任何图片：%v", prefix, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s：请求超时：%v", prefix, err)
	}
	return fmt.Sprintf("%s：%v", prefix, err)
}

func syntheticFailed(code, msg string) domain.SampleResult {
	return domain.SampleResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// classifyFSError 把本地文件系统错误映射为 error_code：类型冲突为 target_conflict，其余为 io_failed。
func classifyFSError(err error) string {
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeIOFailed
}

// checkDir 要求 dir 不存在或是目录。
func checkDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !fi.IsDir() {
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	return nil
}

func ensureDir(dir string) error {
	if err := checkDir(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
