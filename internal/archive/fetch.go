package archive

import (
	"context"
	"io"
	"net/http"

	"github.com/John-Robertt/hpwren/internal/domain"
)

// Kind 标记一次抓取得到的资源类型。
type Kind int

const (
	KindDirectory Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	default:
		return "directory"
	}
}

// Resource 是一次成功抓取的结果。
//
// 约束：Body 由调用方负责读完并关闭（通常立即下载，或整体读出交给 ParseListing）。
type Resource struct {
	Kind        Kind
	URL         string
	ContentType string
	Body        io.ReadCloser
}

// Fetch 对 u 发起 GET。
//
// - Content-Type 恰好为 image/jpeg：KindImage
// - 其它任何 Content-Type：KindDirectory（body 应按文本解析为目录索引）
//
// 传输失败、非 2xx、超时都会记录日志并以 *Error{Stage: "fetch"} 返回；这里不重试。
func (c *Client) Fetch(ctx context.Context, u string) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Resource{}, &Error{Stage: StageFetch, URL: u, Err: err}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.log().Error("抓取失败", "url", u, "err", err)
		return Resource{}, &Error{Stage: StageFetch, URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		hs := &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
		c.log().Error("抓取失败", "url", u, "err", hs)
		return Resource{}, &Error{Stage: StageFetch, URL: u, Err: hs}
	}

	ct := resp.Header.Get("Content-Type")
	kind := KindDirectory
	if ct == domain.ImageContentType {
		kind = KindImage
	}
	return Resource{Kind: kind, URL: u, ContentType: ct, Body: resp.Body}, nil
}
