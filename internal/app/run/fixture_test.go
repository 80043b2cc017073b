package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/mmmconv/internal/config"
)

// kitJoints 是一个缩小版的 KIT 关节顺序（含一个被排除的标记关节）。
var kitJoints = []string{"BLNx_joint", "BLNy_joint", "BLNz_joint", "RFx_joint", "LKx_joint"}

// writeMMM 写出一个最小可用的 <base>_mmm.xml；每帧的 root 位置取 (帧号, 0, 0)。
func writeMMM(t *testing.T, dir, base string, joints []string, frames [][]float64) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<MMM>\n<Motion name=\"" + base + "\">\n<JointOrder>\n")
	for _, j := range joints {
		fmt.Fprintf(&b, "<Joint name=%q/>\n", j)
	}
	b.WriteString("</JointOrder>\n<MotionFrames>\n")
	for i, f := range frames {
		vals := make([]string, len(f))
		for k, v := range f {
			vals[k] = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "<MotionFrame><Timestep>%d</Timestep><RootPosition>%d 0 0</RootPosition><RootRotation>0 0 %d</RootRotation><JointPosition>%s</JointPosition></MotionFrame>\n",
			i, i, i, strings.Join(vals, " "))
	}
	b.WriteString("</MotionFrames>\n</Motion>\n</MMM>\n")

	p := filepath.Join(dir, base+"_mmm.xml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("写入 %s 失败：%v", p, err)
	}
	return p
}

func testConfig(root string, apply bool, mode string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Path:           root,
		OutDir:         filepath.Join(root, "out"),
		Apply:          apply,
		Mode:           mode,
		OutputPrefix:   "01",
		ExcludedJoints: []string{"RMro", "LMro", "RF", "LF"},
	}
}
