package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/mmmconv/internal/app/run"
	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约；
// run 层只发事件，这里决定如何展示。
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time

	ok   int
	skip int
	fail int

	styles statusStyles
}

type statusStyles struct {
	ok    lipgloss.Style
	skip  lipgloss.Style
	fail  lipgloss.Style
	label lipgloss.Style
}

func newProgressUI(w io.Writer) *progressUI {
	// 以目标 writer 建 renderer：非终端（例如测试里的 buffer）自动退化为无颜色输出。
	r := lipgloss.NewRenderer(w)
	return &progressUI{
		w: w,
		styles: statusStyles{
			ok:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
			skip:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
			fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
			label: r.NewStyle().Faint(true),
		},
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写入)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] mmmconv run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, p.styles.label.Render("配置（生效）:"))
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  run: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  mode: %s\n", eff.Mode)
	fmt.Fprintf(p.w, "  output_prefix: %s\n", eff.OutputPrefix)
	fmt.Fprintf(p.w, "  excluded_joints: %s\n", formatList(eff.ExcludedJoints))
	fmt.Fprintln(p.w, p.styles.label.Render("输出:"))
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir)
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: basenames=%d (%s)\n\n",
			intField(fields, "basenames"), formatShortDuration(dur),
		)
	case "parse":
		fmt.Fprintf(p.w, "\n解析: processed=%d skipped=%d frames=%d (%s)\n",
			intField(fields, "processed"), intField(fields, "skipped"), intField(fields, "frames"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: outputs=%d (%s)\n",
			intField(fields, "outputs"), formatShortDuration(dur),
		)
	case "write":
		fmt.Fprintf(p.w, "写入: files=%d (%s) elapsed=%s\n",
			intField(fields, "files"), formatShortDuration(dur), formatElapsed(time.Since(p.startedAt)),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s %s id=%d frames=%d joints=%d (%s)\n",
			idx, total, res.Basename, p.styles.ok.Render("OK"), res.ID, res.Frames, res.Joints, formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.Basename, p.styles.skip.Render("SKIP"), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.Basename, p.styles.fail.Render("FAIL"), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
}

func formatList(xs []string) string {
	if len(xs) == 0 {
		return "[]"
	}
	return "[" + strings.Join(xs, ", ") + "]"
}

// truncate 按字节预算截断，但只在 rune 边界处切（消息多为中文）。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeCut(s, max)]
	}
	return s[:runeCut(s, max-3)] + "..."
}

func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
