package archive

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/John-Robertt/hpwren/internal/infra/logx"
)

// Client 负责访问远端时间分桶归档：抓取目录索引、解析时间戳、下载图片。
//
// 约束：
// - 不缓存、不重试（缓存只存在于上层 driver 的“上一个桶”字段）
// - 一次只有一个请求在途；Body 由调用方负责读完并关闭
type Client struct {
	HTTP   *http.Client
	Logger *slog.Logger

	// Location 是归档所在时区，用于生成本地文件名中的墙钟时间。
	Location *time.Location
}

func New(c *http.Client, logger *slog.Logger, loc *time.Location) *Client {
	return &Client{HTTP: c, Logger: logger, Location: loc}
}

func (c *Client) log() *slog.Logger {
	if c.Logger == nil {
		return logx.Discard()
	}
	return c.Logger
}

func (c *Client) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}
