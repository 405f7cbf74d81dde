package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/hpwren/internal/app/run"
	"github.com/John-Robertt/hpwren/internal/archive"
	"github.com/John-Robertt/hpwren/internal/config"
	"github.com/John-Robertt/hpwren/internal/domain"
	"github.com/John-Robertt/hpwren/internal/infra/fsx"
	"github.com/John-Robertt/hpwren/internal/infra/httpx"
	"github.com/John-Robertt/hpwren/internal/infra/logx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "fetch":
		if code := fetchCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "cameras":
		if code := camerasCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func fetchCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printFetchUsage()
			return 0
		}
	}

	fa, err := parseFetchArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printFetchUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	ctx := context.Background()

	// 交互终端下没给相机：从归档根目录列出相机供选择。
	if strings.TrimSpace(fa.Camera) == "" && interactiveInput() {
		cam, err := chooseCamera(ctx, cwd, fa.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "选择相机失败：%v\n", err)
			return 1
		}
		fa.Camera = string(cam)
	}

	eff, err := config.LoadEffective(ctx, cwd, fa, nil)
	if err != nil {
		emitReport(os.Stdout, os.Stderr, isTerminal(os.Stdout), reportForConfigError(fa, err))
		if config.Code(err) == config.ErrCodeBadRequest {
			return 2
		}
		return 1
	}

	logger, err := logx.New(os.Stderr, eff.LogLevel, eff.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	hc, err := httpx.NewClient(httpx.Options{Timeout: eff.Timeout, ProxyURL: eff.ProxyURL})
	if err != nil {
		emitReport(os.Stdout, os.Stderr, isTerminal(os.Stdout),
			reportForConfigError(fa, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}))
		return 1
	}
	arc := archive.New(hc, logger, eff.Location)

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, arc, obs)

	if eff.ReportPath != "" {
		if err := writeReportFile(eff.ReportPath, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report 失败：%v\n", err)
			emitReport(os.Stdout, os.Stderr, isTerminal(os.Stdout), rr)
			return 1
		}
	}

	emitReport(os.Stdout, os.Stderr, isTerminal(os.Stdout), rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return exitCode(rr)
}

func camerasCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printCamerasUsage()
			return 0
		}
	}
	configPath, err := parseCamerasArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printCamerasUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	ctx := context.Background()
	arc, st, err := newArchiveClient(ctx, cwd, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	cams, err := arc.ListCameras(ctx, st.Layout.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取相机列表失败：%v\n", err)
		return 1
	}
	for _, c := range cams {
		fmt.Fprintln(os.Stdout, c)
	}
	return 0
}

// newArchiveClient 只依赖全局配置（不需要相机与时间），供 cameras 命令与交互式选择使用。
func newArchiveClient(ctx context.Context, cwd, configPath string) (*archive.Client, config.Settings, error) {
	st, err := config.LoadSettings(ctx, cwd, configPath, nil)
	if err != nil {
		return nil, config.Settings{}, err
	}
	logger, err := logx.New(os.Stderr, st.LogLevel, st.LogFormat)
	if err != nil {
		return nil, config.Settings{}, err
	}
	slog.SetDefault(logger)

	hc, err := httpx.NewClient(httpx.Options{Timeout: st.Timeout, ProxyURL: st.ProxyURL})
	if err != nil {
		return nil, config.Settings{}, &config.Error{Code: config.ErrCodeInvalid, Path: st.ConfigPath, Err: err}
	}
	return archive.New(hc, logger, st.Location), st, nil
}

var valueFlags = map[string]struct{}{
	"-c": {}, "--camera": {},
	"-s": {}, "--start": {},
	"-e": {}, "--end": {},
	"-g": {}, "--gap": {},
	"-o": {}, "--out": {},
	"--config": {}, "--report": {},
}

// parseFetchArgs 支持 --flag value、--flag=value 与短参数 -c value。
func parseFetchArgs(args []string) (config.CLIArgs, error) {
	var fa config.CLIArgs

	for i := 0; i < len(args); i++ {
		a := args[i]
		name, val, hasVal := strings.Cut(a, "=")
		if !strings.HasPrefix(a, "-") {
			return config.CLIArgs{}, fmt.Errorf("多余的参数 %q", a)
		}
		if name == "--dry-run" {
			if hasVal {
				b, err := strconv.ParseBool(val)
				if err != nil {
					return config.CLIArgs{}, fmt.Errorf("--dry-run 只能是 true 或 false，实际是 %q", val)
				}
				fa.DryRun = b
			} else {
				fa.DryRun = true
			}
			continue
		}

		if _, ok := valueFlags[name]; !ok {
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if !hasVal {
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "-c", "--camera":
			fa.Camera = val
		case "-s", "--start":
			fa.Start = val
		case "-e", "--end":
			fa.End = val
		case "-g", "--gap":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil || n <= 0 {
				return config.CLIArgs{}, fmt.Errorf("--gap 必须是正整数（分钟），实际是 %q", val)
			}
			fa.GapMinutes = n
			fa.GapSet = true
		case "-o", "--out":
			if strings.TrimSpace(val) == "" {
				return config.CLIArgs{}, fmt.Errorf("--out 不能为空")
			}
			fa.OutputDir = val
			fa.OutputDirSet = true
		case "--config":
			fa.ConfigPath = val
		case "--report":
			fa.ReportPath = val
		}
	}
	return fa, nil
}

func parseCamerasArgs(args []string) (string, error) {
	configPath := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--config 需要一个值")
			}
			i++
			configPath = args[i]
		case strings.HasPrefix(a, "--config="):
			configPath = strings.TrimPrefix(a, "--config=")
		default:
			return "", fmt.Errorf("未知参数 %q", a)
		}
	}
	return configPath, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  hpwren fetch -c <camera> -s <time> [-e <time>] [-g <minutes>] [-o <dir>] [--dry-run] [--config <file>] [--report <file>]
  hpwren cameras [--config <file>]

命令：
  fetch    下载时间范围内每个采样点最近的归档图片
  cameras  列出归档中的相机

使用 "hpwren fetch --help" 查看详细说明。
`)
}

func printFetchUsage() {
	fmt.Fprint(os.Stdout, `用法：
  hpwren fetch -c <camera> -s <time> [-e <time>] [-g <minutes>] [-o <dir>] [--dry-run] [--config <file>] [--report <file>]

参数：
  -c, --camera  相机 ID（例如 c1）；交互终端下省略则从列表中选择
  -s, --start   开始时间，归档时区（默认 America/Los_Angeles）下的 2006-01-02T15:04:05，或带偏移的 RFC3339
  -e, --end     结束时间（含），默认等于开始时间；必须与开始时间在同一天
  -g, --gap     采样间隔（分钟），默认 1
  -o, --out     输出目录，默认 ./downloads
  --dry-run     只解析目录与最近匹配，不下载、不写入输出目录
  --config      配置文件（默认读取 ./hpwren.yaml，可选）
  --report      把 RunReport JSON 写入该文件
  -h, --help    显示帮助
`)
}

func printCamerasUsage() {
	fmt.Fprint(os.Stdout, `用法：
  hpwren cameras [--config <file>]

列出归档根目录中的相机 ID（每行一个）。
`)
}

// emitReport：stdout 为 TTY 时输出一行摘要（失败明细走 stderr）；
// 否则 stdout 必须且仅输出一个 RunReport JSON，摘要走 stderr。
func emitReport(stdout, stderr io.Writer, tty bool, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：samples=%d downloaded=%d skipped=%d planned=%d failed=%d\n",
		rr.Summary.Samples, rr.Summary.Downloaded, rr.Summary.Skipped, rr.Summary.Planned, rr.Summary.Failed,
	)
	if tty {
		fmt.Fprint(stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := "<config>"
			if !it.RequestedAt.IsZero() {
				key = it.RequestedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprint(stderr, summary)
}

func exitCode(rr domain.RunReport) int {
	if rr.Summary.Failed == 0 {
		return 0
	}
	for _, it := range rr.Items {
		if it.ErrorCode == domain.ErrCodeBadRequest {
			return 2
		}
	}
	return 1
}

func reportForConfigError(fa config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Camera:     fa.Camera,
		DryRun:     fa.DryRun,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.SampleResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, filepath.Base(path), b)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func interactiveInput() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stderr)
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTerminal(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTerminal(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.ReportPath != "" {
		fmt.Fprintf(w, "report: %s\n", eff.ReportPath)
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "out: %s\n", eff.OutputDir)
	}
}
