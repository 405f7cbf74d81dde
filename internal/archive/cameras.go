package archive

import (
	"context"
	"io"
	"strings"

	"github.com/John-Robertt/hpwren/internal/domain"
)

// ListCameras 读取归档根目录索引，返回其中的相机目录（按字典序）。
// 不是合法 CameraID 的目录名会被忽略。
func (c *Client) ListCameras(ctx context.Context, baseURL string) ([]domain.CameraID, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/"

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
		return nil, &Error{Stage: StageFetch, URL: u, Err: err}
	}
	names, err := ParseSubdirs(body)
	if err != nil {
		return nil, &Error{Stage: StageParse, URL: u, Err: err}
	}

	out := make([]domain.CameraID, 0, len(names))
	for _, n := range names {
		if id, ok := domain.ParseCameraID(n); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
