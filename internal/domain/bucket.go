package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuartersPerDay 是一天内的桶数量（每桶 3 小时，Q1..Q8）。
const QuartersPerDay = 8

// ArchiveLayout 描述远端归档的目录布局参数。
type ArchiveLayout struct {
	BaseURL  string // 例如 http://c1.hpwren.ucsd.edu/archive
	SizeTier string // 例如 large

	// YearOmitted：该年份的数据在归档中没有年份目录（历史遗留布局）。
	YearOmitted int
}

// Bucket 标识一个相机在某天某个 3 小时窗口内的远端目录。
//
// 不变量：Bucket 完全由 (layout, camera, 本地日期, QuarterIndex) 决定。
type Bucket struct {
	BaseURL  string
	Camera   CameraID
	SizeTier string
	Year     int // 0 表示路径中省略年份段
	Date     string
	Quarter  int
}

// QuarterIndex 返回 t 所在的 3 小时桶编号（1..8），只看 t 自身时区的小时。
func QuarterIndex(t time.Time) int {
	return 1 + t.Hour()/3
}

// NewBucket 计算 t 所在的桶。t 必须已经处于归档时区。
func NewBucket(layout ArchiveLayout, camera CameraID, t time.Time) Bucket {
	b := Bucket{
		BaseURL:  strings.TrimRight(strings.TrimSpace(layout.BaseURL), "/"),
		Camera:   camera,
		SizeTier: layout.SizeTier,
		Date:     fmt.Sprintf("%04d%02d%02d", t.Year(), int(t.Month()), t.Day()),
		Quarter:  QuarterIndex(t),
	}
	if t.Year() != layout.YearOmitted {
		b.Year = t.Year()
	}
	return b
}

// Segments 按顺序返回桶路径的各段（第一段是 BaseURL）。
func (b Bucket) Segments() []string {
	segs := make([]string, 0, 6)
	segs = append(segs, b.BaseURL, string(b.Camera), b.SizeTier)
	if b.Year != 0 {
		segs = append(segs, strconv.Itoa(b.Year))
	}
	segs = append(segs, b.Date, "Q"+strconv.Itoa(b.Quarter))
	return segs
}

// URL 返回桶目录 URL（不带尾部 '/'，与归档索引页地址一致）。
func (b Bucket) URL() string {
	return strings.Join(b.Segments(), "/")
}

// FileURL 返回桶内某个时间戳图片的 URL：<bucket>/<ts>.jpg。
func (b Bucket) FileURL(ts int64) string {
	return b.URL() + "/" + strconv.FormatInt(ts, 10) + ImageSuffix
}
