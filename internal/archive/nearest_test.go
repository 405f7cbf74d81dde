package archive

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/John-Robertt/hpwren/internal/domain"
)

func TestNearest(t *testing.T) {
	cases := []struct {
		name    string
		target  int64
		listing domain.Listing
		want    int64
	}{
		{"单元素", 10, domain.Listing{3}, 3},
		{"精确命中", 100, domain.Listing{90, 100, 110}, 100},
		{"更靠近后者", 104, domain.Listing{90, 100, 105}, 105},
		{"平局取较小", 100, domain.Listing{110, 90}, 90},
		{"平局取较小（顺序无关）", 100, domain.Listing{90, 110}, 90},
		{"target 在所有元素之前", 0, domain.Listing{50, 20, 30}, 20},
		{"target 在所有元素之后", 1000, domain.Listing{50, 20, 30}, 50},
		{"真实目录", 1550872800, domain.Listing{1550872780, 1550872842, 1550872899, 1550872961}, 1550872780},
		{"极端值不溢出", math.MaxInt64, domain.Listing{math.MinInt64, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Nearest(tc.target, tc.listing)
			if err != nil {
				t.Fatalf("Nearest: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestNearest_Empty(t *testing.T) {
	if _, err := Nearest(1, nil); !errors.Is(err, ErrEmptyListing) {
		t.Fatalf("期望 ErrEmptyListing，got=%v", err)
	}
}

// 与暴力定义对比：结果属于集合、距离最小、平局取最小值、与顺序无关。
func TestNearest_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(20190222))
	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(20)
		listing := make(domain.Listing, n)
		for j := range listing {
			listing[j] = rng.Int63n(200)
		}
		target := rng.Int63n(240) - 20

		got, err := Nearest(target, listing)
		if err != nil {
			t.Fatalf("Nearest: %v", err)
		}

		want := listing[0]
		for _, x := range listing {
			dx, dw := absDiff(x, target), absDiff(want, target)
			if dx < dw || (dx == dw && x < want) {
				want = x
			}
		}
		if got != want {
			t.Fatalf("target=%d listing=%v got=%d want=%d", target, listing, got, want)
		}

		shuffled := append(domain.Listing(nil), listing...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got2, _ := Nearest(target, shuffled)
		if got2 != got {
			t.Fatalf("结果依赖顺序：%v=>%d %v=>%d", listing, got, shuffled, got2)
		}
	}
}
