package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info 不应在 warn 级别输出：%s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":1`) {
		t.Fatalf("json 输出不符合预期：%s", out)
	}
}

func TestNew_Invalid(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New(&buf, "loud", "text"); err == nil {
		t.Fatalf("非法 level 应报错")
	}
	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Fatalf("非法 format 应报错")
	}
}
