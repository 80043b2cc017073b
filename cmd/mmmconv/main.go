package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/mmmconv/internal/app/run"
	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
	"github.com/John-Robertt/mmmconv/internal/infra/fsx"
)

// reportFileName 是 apply 模式下写入 out_dir 的运行报告。
const reportFileName = "report.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:     ra.Path,
		OutDir:   ra.OutDir,
		Mode:     ra.Mode,
		ModeSet:  ra.ModeSet,
		Apply:    ra.Apply,
		ApplySet: ra.ApplySet,
	})
	if err != nil {
		emitReport(reportForConfigError(cwdAbs, ra, err))
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	res := run.ExecuteWithObserver(context.Background(), eff, obs)
	rr := res.Report

	// apply：报告与数组一起落在 out_dir；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.OutDir, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", reportFileName, err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	return exitCode(rr)
}

// exitCode：只有 failed 决定退出码；布局不一致的 skipped 不算失败。
func exitCode(rr domain.RunReport) int {
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Path   string
	OutDir string

	Mode    string
	ModeSet bool

	Apply    bool
	ApplySet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--out":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--out 需要一个值")
			}
			i++
			ra.OutDir = args[i]
		case strings.HasPrefix(a, "--out="):
			ra.OutDir = strings.TrimPrefix(a, "--out=")
		case a == "--mode":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--mode 需要一个值")
			}
			i++
			ra.Mode = args[i]
			ra.ModeSet = true
		case strings.HasPrefix(a, "--mode="):
			ra.Mode = strings.TrimPrefix(a, "--mode=")
			ra.ModeSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return runArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	if ra.ModeSet {
		if err := config.ValidateMode(ra.Mode); err != nil {
			return runArgs{}, fmt.Errorf("--mode：%w", err)
		}
	}
	if strings.TrimSpace(ra.OutDir) == "" && hasFlag(args, "--out") {
		return runArgs{}, fmt.Errorf("--out 不能为空")
	}

	return ra, nil
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name || strings.HasPrefix(a, name+"=") {
			return true
		}
	}
	return false
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mmmconv run [path] [--out dir] [--mode keep_last|accumulate] [--apply[=true|false]]

命令：
  run    转换目录下的 <id>_mmm.xml 录制（默认 dry-run）

使用 "mmmconv run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  mmmconv run [path] [--out dir] [--mode keep_last|accumulate] [--apply[=true|false]]

参数：
  --out       输出目录（默认 <path>/out；相对路径以当前目录为基准）
  --mode      keep_last：只输出最后一条录制（默认）；accumulate：拼接全部录制并输出 frame_ids
  --apply     写出 .npy 与 report.json（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply: true
  -h, --help  显示帮助
`)
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：processed=%d skipped=%d failed=%d",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rr))
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.Basename
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summaryLine(rr))
}

func reportForConfigError(cwdAbs string, ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(ra.ApplySet && ra.Apply),
		Mode:       ra.Mode,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(dir, reportFileName, b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	if w == nil || !eff.Apply {
		return
	}
	for _, o := range rr.Outputs {
		if o.Written {
			fmt.Fprintf(w, "写出: %s\n", filepath.Join(eff.OutDir, o.Name))
		}
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutDir, reportFileName))
}
