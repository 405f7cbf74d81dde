package domain

import (
	"regexp"
	"strings"
)

// CameraID 是归档中某个相机子树的目录名（例如 69bravo-n-mobo-c）。
//
// 约束：只允许单个路径段，避免拼出越界的归档 URL 或本地路径。
type CameraID string

var cameraRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ParseCameraID 校验相机 ID；大小写保持原样（归档目录区分大小写）。
func ParseCameraID(s string) (CameraID, bool) {
	s = strings.TrimSpace(s)
	if !cameraRE.MatchString(s) {
		return "", false
	}
	return CameraID(s), true
}
