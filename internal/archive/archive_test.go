package archive

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/hpwren/internal/domain"
)

// pst 是测试用的归档时区（2019-02-22 不在夏令时内）。
var pst = time.FixedZone("PST", -8*3600)

// fakeArchive 模拟 HPWREN 归档：目录返回 text/html，图片返回 image/jpeg。
type fakeArchive struct {
	listing []byte
	root    []byte
	hits    map[string]*int64
}

func newFakeArchive(t *testing.T) (*httptest.Server, *fakeArchive) {
	t.Helper()
	fa := &fakeArchive{
		listing: readFixture(t, "listing.html"),
		root:    readFixture(t, "root.html"),
		hits:    map[string]*int64{},
	}
	for _, p := range []string{"/", "/c1/large/20190222/Q5", "/c1/large/20190222/Q5/1550872780.jpg"} {
		var n int64
		fa.hits[p] = &n
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if n, ok := fa.hits[r.URL.Path]; ok {
			atomic.AddInt64(n, 1)
		}
		switch {
		case r.URL.Path == "/":
			w.Header().Set("Content-Type", "text/html;charset=ISO-8859-1")
			_, _ = w.Write(fa.root)
		case r.URL.Path == "/c1/large/20190222/Q5":
			w.Header().Set("Content-Type", "text/html;charset=ISO-8859-1")
			_, _ = w.Write(fa.listing)
		case r.URL.Path == "/c1/large/20190222/Q6":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><a href=\"../\">Parent</a></body></html>"))
		case r.URL.Path == "/c1/large/20190222/Q7":
			// 桶 URL 直接返回图片：违反路径约定
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("\xff\xd8\xff"))
		case r.URL.Path == "/c1/large/20190222/Q8":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte{0xff, 0xfe, 0xfd})
		case r.URL.Path == "/c1/large/20190222/Q5/1550872961.jpg":
			// 图片 URL 返回了目录页
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(fa.listing)
		case strings.HasPrefix(r.URL.Path, "/c1/large/20190222/Q5/") && strings.HasSuffix(r.URL.Path, ".jpg"):
			if strings.HasSuffix(r.URL.Path, "/1550872899.jpg") {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("JPEG:" + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, fa
}

func (fa *fakeArchive) count(path string) int64 {
	n, ok := fa.hits[path]
	if !ok {
		return -1
	}
	return atomic.LoadInt64(n)
}

func testBucket(base string, q int) domain.Bucket {
	return domain.Bucket{BaseURL: base, Camera: "c1", SizeTier: "large", Date: "20190222", Quarter: q}
}

func newTestClient(srv *httptest.Server) *Client {
	return New(srv.Client(), nil, pst)
}
