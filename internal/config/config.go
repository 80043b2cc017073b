package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/mmmconv/internal/app/reshape"
)

// FileName 是配置文件名（YAML；JSON 也是合法 YAML，可直接使用）。
const FileName = "mmmconv.yaml"

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 mmmconv.yaml。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// ModeKeepLast：输出只来自最后一条被保留的录制（与历史脚本的产物一致）。
	ModeKeepLast = "keep_last"
	// ModeAccumulate：输出由全部被保留的录制按处理顺序拼接而成。
	ModeAccumulate = "accumulate"

	DefaultMode         = ModeKeepLast
	DefaultOutputPrefix = "01"
	DefaultOutDirName   = "out"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息，
// 保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply: true。
type CLIArgs struct {
	Path   string
	OutDir string

	Mode    string
	ModeSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 mmmconv.yaml 的解析结构。
type FileConfig struct {
	Path         string `yaml:"path"`
	OutDir       string `yaml:"out_dir"`
	Apply        *bool  `yaml:"apply"`
	Mode         string `yaml:"mode"`
	OutputPrefix string `yaml:"output_prefix"`
	// nil 表示未配置（使用默认标记关节）；显式的空列表表示不排除任何关节。
	ExcludedJoints *[]string `yaml:"excluded_joints"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path   string
	OutDir string
	Apply  bool

	Mode           string
	OutputPrefix   string
	ExcludedJoints []string
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
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
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

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/mmmconv.yaml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/mmmconv.yaml（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：
// - path：CLI path > config path
// - out_dir：CLI --out（相对 cwd）> config out_dir（相对 path）> <path>/out
// - mode：CLI > config > 默认 keep_last
// - apply：CLI --apply/--apply=false > config > 默认 false
// - output_prefix / excluded_joints：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(cwdAbs, absPath, cli, fc, cfgPath)
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	mode := DefaultMode
	if cli.ModeSet {
		mode = cli.Mode
	} else if strings.TrimSpace(fc.Mode) != "" {
		mode = strings.TrimSpace(fc.Mode)
	}
	if err := ValidateMode(mode); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	outDir := filepath.Join(absPath, DefaultOutDirName)
	if strings.TrimSpace(cli.OutDir) != "" {
		outDir = absCleanFrom(cwdAbs, cli.OutDir)
	} else if strings.TrimSpace(fc.OutDir) != "" {
		outDir = absCleanFrom(absPath, fc.OutDir)
	}
	// 输出写回输入目录会在下一次 run 被当成录制扫描到。
	if outDir == absPath {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("out_dir 不能与输入目录相同：%q", outDir)}
	}

	prefix := strings.TrimSpace(fc.OutputPrefix)
	if prefix == "" {
		prefix = DefaultOutputPrefix
	}
	if strings.ContainsAny(prefix, `/\`) || strings.HasPrefix(prefix, ".") {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("output_prefix 非法：%q", prefix)}
	}

	excluded := append([]string(nil), reshape.DefaultExcluded...)
	if fc.ExcludedJoints != nil {
		excluded = make([]string, 0, len(*fc.ExcludedJoints))
		for _, j := range *fc.ExcludedJoints {
			if j = strings.TrimSpace(j); j != "" {
				excluded = append(excluded, j)
			}
		}
	}

	return EffectiveConfig{
		Path:           absPath,
		OutDir:         outDir,
		Apply:          apply,
		Mode:           mode,
		OutputPrefix:   prefix,
		ExcludedJoints: excluded,
	}, nil
}

// ValidateMode 校验输出模式。
func ValidateMode(m string) error {
	switch m {
	case ModeKeepLast, ModeAccumulate:
		return nil
	case "":
		return fmt.Errorf("mode 不能为空")
	default:
		return fmt.Errorf("mode 只能是 %s 或 %s，实际是 %q", ModeKeepLast, ModeAccumulate, m)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
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
