package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mmmconv/internal/config"
	"github.com/John-Robertt/mmmconv/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{"data", "--out", "o", "--mode=accumulate", "--apply"})
	require.NoError(t, err)
	assert.Equal(t, runArgs{
		Path:     "data",
		OutDir:   "o",
		Mode:     config.ModeAccumulate,
		ModeSet:  true,
		Apply:    true,
		ApplySet: true,
	}, ra)

	ra, err = parseRunArgs([]string{"--apply=false"})
	require.NoError(t, err)
	assert.True(t, ra.ApplySet)
	assert.False(t, ra.Apply)
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"mode 非法":  {"--mode=latest"},
		"mode 缺值":  {"--mode"},
		"out 缺值":   {"--out"},
		"out 为空":   {"--out="},
		"apply 非法": {"--apply=yes"},
		"未知参数":     {"--provider", "x"},
		"重复 path":  {"a", "b"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRunArgs(args)
			assert.Error(t, err)
		})
	}
}

func TestExitCode_SkippedDoesNotFail(t *testing.T) {
	rr := domain.RunReport{Summary: domain.ReportSummary{Processed: 2, Skipped: 1}}
	assert.Equal(t, 0, exitCode(rr))

	rr.Summary.Failed = 1
	assert.Equal(t, 1, exitCode(rr))
}

func TestReportForConfigError(t *testing.T) {
	err := &config.Error{Code: config.ErrCodeNotFound, Path: "/x/mmmconv.yaml"}
	rr := reportForConfigError("/x", runArgs{Apply: true, ApplySet: true}, err)

	assert.False(t, rr.DryRun)
	assert.Equal(t, 1, rr.Summary.Failed)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, config.ErrCodeNotFound, rr.Items[0].ErrorCode)
}
