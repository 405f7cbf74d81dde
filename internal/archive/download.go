package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/hpwren/internal/domain"
	"github.com/John-Robertt/hpwren/internal/infra/fsx"
)

// localTimeLayout 是本地文件名中的时间格式（ISO-8601，无时区后缀）。
const localTimeLayout = "2006-01-02T15:04:05"

// DownloadResult 描述一次下载调用的结果。
type DownloadResult struct {
	Path    string // 本地文件绝对/相对路径（取决于 outputDir）
	URL     string // 远端图片 URL
	Skipped bool   // 本地已存在，未发起网络请求
	Bytes   int64
}

// LocalName 返回时间戳 ts 对应的本地文件名：<camera>_<YYYY-MM-DDTHH;MM;SS>.jpg。
//
// 时间取归档时区的墙钟；':' 替换为 ';'，保证在 Windows 上也是合法文件名。
func (c *Client) LocalName(camera domain.CameraID, ts int64) string {
	s := time.Unix(ts, 0).In(c.loc()).Format(localTimeLayout)
	s = strings.ReplaceAll(s, ":", ";")
	return string(camera) + "_" + s + domain.ImageSuffix
}

// LocalPath 返回 outputDir 下 ts 对应的本地文件路径。
func (c *Client) LocalPath(outputDir string, camera domain.CameraID, ts int64) string {
	return filepath.Join(outputDir, c.LocalName(camera, ts))
}

// Download 把桶 b 中时间戳 ts 的图片下载到 outputDir。
//
// - 本地已有同名普通文件：跳过（记录日志，不是错误，不发起请求）
// - 否则 GET <bucket>/<ts>.jpg，流式写入同目录临时文件，成功后 rename
// - URL 本身已指向 .jpg，不要求 Content-Type 恰好是 image/jpeg；只拒绝明显的 HTML 页面
// - 中途失败不会留下最终文件名，下次运行不会误判为已下载
func (c *Client) Download(ctx context.Context, outputDir string, b domain.Bucket, camera domain.CameraID, ts int64) (DownloadResult, error) {
	name := c.LocalName(camera, ts)
	res := DownloadResult{
		Path: filepath.Join(outputDir, name),
		URL:  b.FileURL(ts),
	}
	c.log().Info("本地文件", "path", res.Path)

	exists, err := fsx.RegularFileExists(res.Path)
	if err != nil {
		return res, err
	}
	if exists {
		c.log().Info("文件已下载，跳过", "path", res.Path)
		res.Skipped = true
		return res, nil
	}

	c.log().Info("文件 URL", "url", res.URL)
	r, err := c.Fetch(ctx, res.URL)
	if err != nil {
		return res, err
	}
	defer r.Body.Close()
	if isHTMLPage(r.ContentType) {
		return res, &ContractError{URL: res.URL, Want: "image", Got: r.ContentType}
	}

	n, err := fsx.WriteReaderAtomicNoOverwrite(outputDir, name, r.Body)
	if errors.Is(err, os.ErrExist) {
		// 检查与写入之间被其它进程写出：同样视为已下载。
		c.log().Info("文件已下载，跳过", "path", res.Path)
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		if fsx.IsPathTypeConflict(err) {
			return res, err
		}
		c.log().Error("下载失败", "url", res.URL, "err", err)
		return res, &Error{Stage: StageDownload, URL: res.URL, Err: err}
	}
	res.Bytes = n
	return res, nil
}

// isHTMLPage 判断 Content-Type 是否为 text/html（忽略参数与大小写）。
func isHTMLPage(ct string) bool {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.EqualFold(strings.TrimSpace(mt), "text/html")
}
