package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // 归档时区不依赖宿主机的 tz 数据库

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/hpwren/internal/domain"
	"github.com/John-Robertt/hpwren/internal/infra/logx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件/环境变量无法读取、解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeBadRequest 表示命令行参数本身不合法（相机、时间、间隔）。
	ErrCodeBadRequest = domain.ErrCodeBadRequest
)

const (
	// FileName 是 cwd 下自动发现的配置文件名（可选）。
	FileName = "hpwren.yaml"
	// EnvFileName 是 cwd 下自动读取的 dotenv 文件名（可选）。
	EnvFileName = ".env"
)

const (
	DefaultBaseURL    = "http://c1.hpwren.ucsd.edu/archive"
	DefaultSizeTier   = "large"
	DefaultTimezone   = "America/Los_Angeles"
	DefaultOutputDir  = "downloads"
	DefaultGapMinutes = 1
	DefaultTimeout    = 30 * time.Second

	// DefaultYearOmitted：归档中 2019 年的数据没有年份目录。
	DefaultYearOmitted = 2019
)

// CLIArgs 是 fetch 命令的入口参数。*Set 字段保留“是否显式指定”的信息，保证 CLI 能覆盖环境变量与配置文件。
type CLIArgs struct {
	ConfigPath string

	Camera string
	Start  string
	End    string // 为空表示与 Start 相同

	GapMinutes int
	GapSet     bool

	OutputDir    string
	OutputDirSet bool

	DryRun     bool
	ReportPath string
}

// FileConfig 对应 hpwren.yaml。
type FileConfig struct {
	Archive    ArchiveFileConfig `yaml:"archive"`
	OutputDir  string            `yaml:"output_dir"`
	GapMinutes int               `yaml:"gap_minutes"`
	HTTP       HTTPFileConfig    `yaml:"http"`
	Log        LogFileConfig     `yaml:"log"`
}

type ArchiveFileConfig struct {
	BaseURL     string `yaml:"base_url"`
	SizeTier    string `yaml:"size_tier"`
	YearOmitted int    `yaml:"year_omitted"`
	Timezone    string `yaml:"timezone"`
}

type HTTPFileConfig struct {
	Timeout  string `yaml:"timeout"` // time.ParseDuration 格式，例如 "45s"
	ProxyURL string `yaml:"proxy_url"`
}

type LogFileConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EnvConfig 是环境变量覆盖层（零值表示未设置）。
type EnvConfig struct {
	BaseURL     string        `env:"HPWREN_BASE_URL"`
	SizeTier    string        `env:"HPWREN_SIZE_TIER"`
	YearOmitted int           `env:"HPWREN_YEAR_OMITTED"`
	Timezone    string        `env:"HPWREN_TIMEZONE"`
	OutputDir   string        `env:"HPWREN_OUTPUT_DIR"`
	GapMinutes  int           `env:"HPWREN_GAP_MINUTES"`
	Timeout     time.Duration `env:"HPWREN_TIMEOUT"`
	ProxyURL    string        `env:"HPWREN_PROXY_URL"`
	LogLevel    string        `env:"HPWREN_LOG_LEVEL"`
	LogFormat   string        `env:"HPWREN_LOG_FORMAT"`
}

// Settings 是与单次请求无关的配置（fetch 与 cameras 共用）。
type Settings struct {
	ConfigPath string // 实际读取的配置文件；没有则为空

	Layout   domain.ArchiveLayout
	Location *time.Location

	OutputDir string // 绝对路径
	Gap       time.Duration

	Timeout  time.Duration
	ProxyURL string

	LogLevel  string
	LogFormat string
}

// EffectiveConfig 是合并并规范化后的 fetch 配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Settings

	Camera domain.CameraID
	Start  time.Time // 归档时区
	End    time.Time // 归档时区

	DryRun     bool
	ReportPath string // 绝对路径；为空表示不写 report 文件
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DefaultLookuper 返回进程环境 + <cwd>/.env 的组合查找器（进程环境优先）。
// .env 只被读取，不会写回进程环境。
func DefaultLookuper(cwd string) (envconfig.Lookuper, error) {
	p := filepath.Join(cwd, EnvFileName)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return envconfig.OsLookuper(), nil
		}
		return nil, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	m, err := godotenv.Read(p)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	return envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(m)), nil
}

// LoadSettings 发现并读取配置文件，与环境变量、内置默认值合并。
//
// 发现规则（固定）：
// 1) configPath 非空：必须存在（相对路径以 cwd 为基准）
// 2) 否则尝试 <cwd>/hpwren.yaml（可选）
//
// 覆盖优先级：环境变量 > 配置文件 > 默认值（CLI 由 LoadEffective 再叠加）。
// lookup 为 nil 时使用 DefaultLookuper(cwd)。
func LoadSettings(ctx context.Context, cwd, configPath string, lookup envconfig.Lookuper) (Settings, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Settings{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(configPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, configPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Settings{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return Settings{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return Settings{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
	}

	if lookup == nil {
		lookup, err = DefaultLookuper(cwdAbs)
		if err != nil {
			return Settings{}, err
		}
	}
	var env EnvConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: lookup}); err != nil {
		return Settings{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("环境变量无效：%w", err)}
	}

	return merge(cwdAbs, cfgPath, fc, env)
}

func merge(cwdAbs, cfgPath string, fc FileConfig, env EnvConfig) (Settings, error) {
	invalid := func(err error) (Settings, error) {
		return Settings{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	baseURL := firstNonEmpty(env.BaseURL, fc.Archive.BaseURL, DefaultBaseURL)
	if err := validateHTTPURL("archive.base_url", baseURL); err != nil {
		return invalid(err)
	}

	sizeTier := firstNonEmpty(env.SizeTier, fc.Archive.SizeTier, DefaultSizeTier)
	if strings.Contains(sizeTier, "/") {
		return invalid(fmt.Errorf("archive.size_tier 不能包含 '/'：%q", sizeTier))
	}

	yearOmitted := firstNonZero(env.YearOmitted, fc.Archive.YearOmitted, DefaultYearOmitted)

	tzName := firstNonEmpty(env.Timezone, fc.Archive.Timezone, DefaultTimezone)
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return invalid(fmt.Errorf("archive.timezone 无效：%w", err))
	}

	gapMinutes := firstNonZero(env.GapMinutes, fc.GapMinutes, DefaultGapMinutes)
	if gapMinutes < 0 {
		return invalid(fmt.Errorf("gap_minutes 必须大于 0，实际是 %d", gapMinutes))
	}

	timeout := env.Timeout
	if timeout == 0 && strings.TrimSpace(fc.HTTP.Timeout) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(fc.HTTP.Timeout))
		if err != nil {
			return invalid(fmt.Errorf("http.timeout 无效：%w", err))
		}
		timeout = d
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout < 0 {
		return invalid(fmt.Errorf("http.timeout 必须大于 0，实际是 %s", timeout))
	}

	proxyURL := firstNonEmpty(env.ProxyURL, fc.HTTP.ProxyURL)
	if proxyURL != "" {
		if err := validateHTTPURL("http.proxy_url", proxyURL); err != nil {
			return invalid(err)
		}
	}

	logLevel := firstNonEmpty(env.LogLevel, fc.Log.Level, "info")
	logFormat := firstNonEmpty(env.LogFormat, fc.Log.Format, "text")
	if _, err := logx.New(io.Discard, logLevel, logFormat); err != nil {
		return invalid(err)
	}

	outputDir := absCleanFrom(cwdAbs, firstNonEmpty(env.OutputDir, fc.OutputDir, DefaultOutputDir))

	return Settings{
		ConfigPath: cfgPath,
		Layout: domain.ArchiveLayout{
			BaseURL:     strings.TrimRight(baseURL, "/"),
			SizeTier:    sizeTier,
			YearOmitted: yearOmitted,
		},
		Location:  loc,
		OutputDir: outputDir,
		Gap:       time.Duration(gapMinutes) * time.Minute,
		Timeout:   timeout,
		ProxyURL:  proxyURL,
		LogLevel:  logLevel,
		LogFormat: logFormat,
	}, nil
}

// LoadEffective 在 LoadSettings 的基础上叠加 CLI 参数，并解析相机与时间范围。
//
// - camera/start：必填
// - end：缺省等于 start
// - gap/out：CLI > 环境变量 > 配置文件 > 默认
//
// 时间范围本身（同一天、end >= start）由 planner 校验。
func LoadEffective(ctx context.Context, cwd string, cli CLIArgs, lookup envconfig.Lookuper) (EffectiveConfig, error) {
	st, err := LoadSettings(ctx, cwd, cli.ConfigPath, lookup)
	if err != nil {
		return EffectiveConfig{}, err
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	badRequest := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadRequest, Err: err}
	}

	if strings.TrimSpace(cli.Camera) == "" {
		return badRequest(errors.New("缺少相机 ID（--camera）"))
	}
	camera, ok := domain.ParseCameraID(cli.Camera)
	if !ok {
		return badRequest(fmt.Errorf("相机 ID 不合法：%q", cli.Camera))
	}

	if strings.TrimSpace(cli.Start) == "" {
		return badRequest(errors.New("缺少开始时间（--start）"))
	}
	start, err := ParseTime(cli.Start, st.Location)
	if err != nil {
		return badRequest(fmt.Errorf("--start：%w", err))
	}
	end := start
	if strings.TrimSpace(cli.End) != "" {
		end, err = ParseTime(cli.End, st.Location)
		if err != nil {
			return badRequest(fmt.Errorf("--end：%w", err))
		}
	}

	if cli.GapSet {
		if cli.GapMinutes <= 0 {
			return badRequest(fmt.Errorf("--gap 必须是正整数（分钟），实际是 %d", cli.GapMinutes))
		}
		st.Gap = time.Duration(cli.GapMinutes) * time.Minute
	}
	if cli.OutputDirSet {
		if strings.TrimSpace(cli.OutputDir) == "" {
			return badRequest(errors.New("--out 不能为空"))
		}
		st.OutputDir = absCleanFrom(cwdAbs, cli.OutputDir)
	}

	reportPath := ""
	if strings.TrimSpace(cli.ReportPath) != "" {
		reportPath = absCleanFrom(cwdAbs, cli.ReportPath)
	}

	return EffectiveConfig{
		Settings:   st,
		Camera:     camera,
		Start:      start,
		End:        end,
		DryRun:     cli.DryRun,
		ReportPath: reportPath,
	}, nil
}

// timeLayouts 是不带时区的输入格式，按归档时区解释。
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime 解析命令行时间：
// - RFC3339（带时区偏移）：换算到 loc
// - 其余格式：视为 loc 下的墙钟时间
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q（支持 2006-01-02T15:04:05、2006-01-02 15:04、2006-01-02 或 RFC3339）", s)
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
