//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

// *os.LinkError 实现了 Unwrap，errors.Is 能直接穿透。
func isEXDEV(err error) bool { return errors.Is(err, syscall.EXDEV) }
