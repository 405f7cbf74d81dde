package archive

import "github.com/John-Robertt/hpwren/internal/domain"

// Nearest 返回 listing 中与 target 绝对差最小的时间戳。
//
// 平局时取较小（更早）的时间戳，结果与 listing 的顺序无关。
// listing 为空时返回 ErrEmptyListing。
func Nearest(target int64, listing domain.Listing) (int64, error) {
	if len(listing) == 0 {
		return 0, ErrEmptyListing
	}

	best := listing[0]
	bestD := absDiff(best, target)
	for _, x := range listing[1:] {
		d := absDiff(x, target)
		if d < bestD || (d == bestD && x < best) {
			best, bestD = x, d
		}
	}
	return best, nil
}

// absDiff 用 uint64 表示 |a-b|，避免极端值相减溢出。
func absDiff(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
