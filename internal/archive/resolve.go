package archive

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/hpwren/internal/domain"
)

// ResolveBucket 抓取桶目录并返回其中所有图片的时间戳。
//
// 失败分类：
// - 抓取失败：*Error{Stage: "fetch"}
// - 桶 URL 返回了图片：*ContractError（不可恢复）
// - 非 UTF-8、文件名非法、没有任何图片：*Error{Stage: "parse"}（后者包裹 ErrNoListing）
func (c *Client) ResolveBucket(ctx context.Context, b domain.Bucket) (domain.Listing, error) {
	u := b.URL()
	c.log().Info("目录 URL", "url", u)
	started := time.Now()

	res, err := c.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.Kind != KindDirectory {
		return nil, &ContractError{URL: u, Want: "directory", Got: res.ContentType}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		c.log().Error("读取目录页失败", "url", u, "err", err)
		return nil, &Error{Stage: StageFetch, URL: u, Err: err}
	}
	if !utf8.Valid(body) {
		return nil, &Error{Stage: StageParse, URL: u, Err: errors.New("目录页不是合法的 UTF-8 文本")}
	}

	times, err := ParseListing(body)
	if err != nil {
		return nil, &Error{Stage: StageParse, URL: u, Err: err}
	}
	if len(times) == 0 {
		return nil, &Error{Stage: StageParse, URL: u, Err: ErrNoListing}
	}

	c.log().Debug("目录解析完成", "url", u, "images", len(times), "dur", time.Since(started))
	return times, nil
}
