package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func noEnv() envconfig.Lookuper { return envconfig.MapLookuper(map[string]string{}) }

func TestLoadSettings_Defaults(t *testing.T) {
	cwd := t.TempDir()

	st, err := LoadSettings(context.Background(), cwd, "", noEnv())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.ConfigPath != "" {
		t.Fatalf("没有配置文件时 ConfigPath 应为空，实际=%q", st.ConfigPath)
	}
	if st.Layout.BaseURL != DefaultBaseURL || st.Layout.SizeTier != DefaultSizeTier || st.Layout.YearOmitted != DefaultYearOmitted {
		t.Fatalf("layout=%+v", st.Layout)
	}
	if st.Location.String() != DefaultTimezone {
		t.Fatalf("location=%s", st.Location)
	}
	if st.Gap != time.Minute || st.Timeout != DefaultTimeout {
		t.Fatalf("gap=%s timeout=%s", st.Gap, st.Timeout)
	}
	if st.OutputDir != filepath.Join(cwd, DefaultOutputDir) {
		t.Fatalf("output=%q", st.OutputDir)
	}
	if st.LogLevel != "info" || st.LogFormat != "text" {
		t.Fatalf("log=%s/%s", st.LogLevel, st.LogFormat)
	}
}

func TestLoadSettings_FileThenEnv(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`
archive:
  base_url: https://mirror.example.org/archive/
  size_tier: small
  year_omitted: 2020
output_dir: out
gap_minutes: 5
http:
  timeout: 45s
  proxy_url: http://127.0.0.1:8080
log:
  level: debug
`))

	st, err := LoadSettings(context.Background(), cwd, "", envconfig.MapLookuper(map[string]string{
		"HPWREN_SIZE_TIER":   "large",
		"HPWREN_GAP_MINUTES": "10",
		"HPWREN_LOG_FORMAT":  "json",
	}))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.ConfigPath != filepath.Join(cwd, FileName) {
		t.Fatalf("ConfigPath=%q", st.ConfigPath)
	}
	if st.Layout.BaseURL != "https://mirror.example.org/archive" {
		t.Fatalf("base_url 应去掉尾部 '/'，实际=%q", st.Layout.BaseURL)
	}
	if st.Layout.SizeTier != "large" {
		t.Fatalf("环境变量应覆盖配置文件：size_tier=%q", st.Layout.SizeTier)
	}
	if st.Layout.YearOmitted != 2020 {
		t.Fatalf("year_omitted=%d", st.Layout.YearOmitted)
	}
	if st.Gap != 10*time.Minute {
		t.Fatalf("gap=%s", st.Gap)
	}
	if st.Timeout != 45*time.Second {
		t.Fatalf("timeout=%s", st.Timeout)
	}
	if st.ProxyURL != "http://127.0.0.1:8080" {
		t.Fatalf("proxy=%q", st.ProxyURL)
	}
	if st.OutputDir != filepath.Join(cwd, "out") {
		t.Fatalf("output=%q", st.OutputDir)
	}
	if st.LogLevel != "debug" || st.LogFormat != "json" {
		t.Fatalf("log=%s/%s", st.LogLevel, st.LogFormat)
	}
}

func TestLoadSettings_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadSettings(context.Background(), cwd, "missing.yaml", noEnv())
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadSettings_ExplicitConfigRelativeToCwd(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "conf", "a.yaml"), []byte("gap_minutes: 3\n"))

	st, err := LoadSettings(context.Background(), cwd, "conf/a.yaml", noEnv())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.Gap != 3*time.Minute {
		t.Fatalf("gap=%s", st.Gap)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "YAML 语法错误", yaml: "archive: [\n"},
		{name: "时区不存在", yaml: "archive:\n  timezone: Mars/Olympus\n"},
		{name: "base_url 缺 scheme", yaml: "archive:\n  base_url: c1.hpwren.ucsd.edu/archive\n"},
		{name: "size_tier 含 /", yaml: "archive:\n  size_tier: a/b\n"},
		{name: "timeout 格式错误", yaml: "http:\n  timeout: soon\n"},
		{name: "log.level 未知", yaml: "log:\n  level: chatty\n"},
		{name: "proxy 不是 http", yaml: "http:\n  proxy_url: socks5://127.0.0.1:1080\n"},
		{name: "环境变量不是整数", env: map[string]string{"HPWREN_GAP_MINUTES": "many"}},
		{name: "环境变量 gap 为负", env: map[string]string{"HPWREN_GAP_MINUTES": "-2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cwd := t.TempDir()
			if tc.yaml != "" {
				writeFile(t, filepath.Join(cwd, FileName), []byte(tc.yaml))
			}
			env := tc.env
			if env == nil {
				env = map[string]string{}
			}
			_, err := LoadSettings(context.Background(), cwd, "", envconfig.MapLookuper(env))
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestDefaultLookuper_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, EnvFileName), []byte("HPWREN_SIZE_TIER=small\nHPWREN_TIMEZONE=UTC\n"))
	t.Setenv("HPWREN_SIZE_TIER", "large")

	st, err := LoadSettings(context.Background(), cwd, "", nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.Layout.SizeTier != "large" {
		t.Fatalf("进程环境应优先于 .env：size_tier=%q", st.Layout.SizeTier)
	}
	if st.Location.String() != "UTC" {
		t.Fatalf(".env 中的时区应生效：%s", st.Location)
	}
	if _, ok := os.LookupEnv("HPWREN_TIMEZONE"); ok {
		t.Fatalf("读取 .env 不应修改进程环境")
	}
}

func TestLoadEffective_CLIOverrides(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("gap_minutes: 5\noutput_dir: from-file\n"))

	eff, err := LoadEffective(context.Background(), cwd, CLIArgs{
		Camera:       "c1",
		Start:        "2019-02-22T14:00:00",
		End:          "2019-02-22T14:02",
		GapMinutes:   1,
		GapSet:       true,
		OutputDir:    "imgs",
		OutputDirSet: true,
		DryRun:       true,
		ReportPath:   "r.json",
	}, envconfig.MapLookuper(map[string]string{"HPWREN_GAP_MINUTES": "9"}))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Camera != "c1" {
		t.Fatalf("camera=%q", eff.Camera)
	}
	if eff.Gap != time.Minute {
		t.Fatalf("CLI 应覆盖环境变量与配置文件：gap=%s", eff.Gap)
	}
	if eff.OutputDir != filepath.Join(cwd, "imgs") {
		t.Fatalf("output=%q", eff.OutputDir)
	}
	if eff.ReportPath != filepath.Join(cwd, "r.json") || !eff.DryRun {
		t.Fatalf("report=%q dry=%v", eff.ReportPath, eff.DryRun)
	}
	if eff.Start.Unix() != 1550872800 {
		t.Fatalf("start=%s unix=%d", eff.Start, eff.Start.Unix())
	}
	if eff.End.Sub(eff.Start) != 2*time.Minute {
		t.Fatalf("end=%s", eff.End)
	}
	if eff.Start.Location() != eff.Location {
		t.Fatalf("start 应处于归档时区：%s", eff.Start.Location())
	}
}

func TestLoadEffective_EndDefaultsToStart(t *testing.T) {
	eff, err := LoadEffective(context.Background(), t.TempDir(), CLIArgs{Camera: "c1", Start: "2019-02-22 14:00"}, noEnv())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.End.Equal(eff.Start) {
		t.Fatalf("end=%s start=%s", eff.End, eff.Start)
	}
}

func TestLoadEffective_BadRequest(t *testing.T) {
	cases := []struct {
		name string
		cli  CLIArgs
	}{
		{"缺相机", CLIArgs{Start: "2019-02-22"}},
		{"相机含路径分隔符", CLIArgs{Camera: "../c1", Start: "2019-02-22"}},
		{"缺开始时间", CLIArgs{Camera: "c1"}},
		{"开始时间无法解析", CLIArgs{Camera: "c1", Start: "yesterday"}},
		{"结束时间无法解析", CLIArgs{Camera: "c1", Start: "2019-02-22", End: "22/02/2019"}},
		{"gap 为 0", CLIArgs{Camera: "c1", Start: "2019-02-22", GapSet: true}},
		{"out 为空", CLIArgs{Camera: "c1", Start: "2019-02-22", OutputDirSet: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadEffective(context.Background(), t.TempDir(), tc.cli, noEnv())
			if Code(err) != ErrCodeBadRequest {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeBadRequest, err, Code(err))
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	want := time.Date(2019, 2, 22, 14, 0, 0, 0, loc)

	for _, s := range []string{
		"2019-02-22T14:00:00",
		"2019-02-22T14:00",
		"2019-02-22 14:00:00",
		" 2019-02-22 14:00 ",
		"2019-02-22T22:00:00Z",
		"2019-02-22T23:00:00+01:00",
	} {
		got, err := ParseTime(s, loc)
		if err != nil {
			t.Fatalf("%q：不期望错误：%v", s, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q：got=%s want=%s", s, got, want)
		}
		if got.Location() != loc {
			t.Fatalf("%q：结果应处于归档时区，实际=%s", s, got.Location())
		}
	}

	day, err := ParseTime("2019-02-22", loc)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !day.Equal(time.Date(2019, 2, 22, 0, 0, 0, 0, loc)) {
		t.Fatalf("day=%s", day)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}
