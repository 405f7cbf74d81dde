package archive

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StageFetch    = "fetch"
	StageParse    = "parse"
	StageDownload = "download"
)

var (
	// ErrNoListing 表示目录页可以访问，但其中没有任何 <ts>.jpg 条目。
	// 对调用方而言与抓取失败同级：没有列表就无法做最近匹配。
	ErrNoListing = errors.New("目录页中没有任何图片条目")

	// ErrEmptyListing 表示最近匹配的候选集合为空（调用方违反前置条件）。
	ErrEmptyListing = errors.New("候选时间戳集合为空")
)

// Error 是归档访问阶段的可追溯错误。
// 上层可以据此把失败归类为 listing_failed / download_failed，并写入 report。
type Error struct {
	Stage string // "fetch" / "parse" / "download"
	URL   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage=%s url=%s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示归档返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// ContractError 表示归档返回了与路径约定不符的资源类型
// （例如桶目录 URL 直接返回了一张图片）。这是不可恢复的断言失败。
type ContractError struct {
	URL  string
	Want string
	Got  string // 实际 Content-Type
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("归档约定被破坏：%s 期望返回 %s，实际 Content-Type=%q", e.URL, e.Want, e.Got)
}

// IsContractViolation 判断 err 链中是否有 ContractError。
func IsContractViolation(err error) bool {
	var e *ContractError
	return errors.As(err, &e)
}

// MalformedNameError 表示目录页中出现了 .jpg 结尾、但前缀不是十进制整数的链接。
// 规范归档里不会出现；一旦出现就视为致命错误而不是静默跳过。
type MalformedNameError struct {
	Href string
	Err  error
}

func (e *MalformedNameError) Error() string {
	return fmt.Sprintf("无法从文件名解析时间戳：%q：%v", e.Href, e.Err)
}

func (e *MalformedNameError) Unwrap() error { return e.Err }
