package archive

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/hpwren/internal/domain"
)

// ParseListing 从 Apache 风格的目录索引页中提取所有 <ts>.jpg 链接的时间戳。
//
// 规则：
// - 只看 <a href>，href 必须以 .jpg 结尾（区分大小写），其它链接忽略
// - .jpg 之前的部分按十进制整数解析；解析失败返回 *MalformedNameError
// - 结果去重，不保证顺序；没有任何 .jpg 链接时返回空集合且不报错
//
// Parse 是纯函数：相同输入 => 相同输出。
func ParseListing(html []byte) (domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, 128)
	out := make(domain.Listing, 0, 128)

	var perr error
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.HasSuffix(href, domain.ImageSuffix) {
			return true
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(href, domain.ImageSuffix), 10, 64)
		if err != nil {
			perr = &MalformedNameError{Href: href, Err: err}
			return false
		}
		if _, ok := seen[ts]; ok {
			return true
		}
		seen[ts] = struct{}{}
		out = append(out, ts)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}

// ParseSubdirs 从目录索引页中提取子目录名（href 以 '/' 结尾的相对链接）。
//
// 父目录、绝对路径、排序链接（?C=N;O=D）与外部链接都会被忽略。结果去重并按字典序排序。
func ParseSubdirs(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 64)
	out := make([]string, 0, 64)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(href, "/") {
			return
		}
		if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "?") || strings.HasPrefix(href, ".") || strings.Contains(href, "://") {
			return
		}
		name := strings.TrimSuffix(href, "/")
		if name == "" || strings.Contains(name, "/") {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	})
	sort.Strings(out)
	return out, nil
}
