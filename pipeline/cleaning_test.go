package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDepartment(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"sewing", "sewing"},
		{"sweing", "sewing"},
		{"  sweing ", "sewing"},
		{"finishing ", "finishing"},
		{"finishing", "finishing"},
		{"Sewing", "Sewing"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDepartment(tt.raw))
		})
	}
}

func TestCleanThenFilterKeepsOnlySewing(t *testing.T) {
	records := []Record{
		{Department: "sweing", Incentive: 98, ActualProductivity: 0.94},
		{Department: "sewing", Incentive: 50, ActualProductivity: 0.8},
		{Department: "finishing ", Incentive: 0, ActualProductivity: 0.7},
		{Department: "finishing", Incentive: 0, ActualProductivity: 0.6},
		{Department: "cutting", Incentive: 10, ActualProductivity: 0.5},
		{Department: "Sewing", Incentive: 10, ActualProductivity: 0.5},
	}

	cleaned, issues := NewDataCleaner().Clean(records)
	require.Empty(t, issues)

	sewing := FilterDepartment(cleaned, DefaultDepartment)
	require.Len(t, sewing, 2)
	for _, rec := range sewing {
		assert.Equal(t, "sewing", rec.Department)
	}

	finishing := FilterDepartment(cleaned, "finishing")
	assert.Len(t, finishing, 2)
}

func TestDataCleanerRejectsMissingTarget(t *testing.T) {
	cleaner := NewDataCleaner()
	records := []Record{
		{Department: "sewing", Incentive: 1, ActualProductivity: math.NaN()},
		{Department: "sewing", Incentive: math.NaN(), ActualProductivity: 0.7},
		{Department: "sweing", Incentive: 2, ActualProductivity: 0.9},
	}

	cleaned, issues := cleaner.Clean(records)
	require.Len(t, cleaned, 2)
	require.Len(t, issues, 1)
	assert.Equal(t, "target_validation", issues[0].Rule)
	assert.Equal(t, 1, issues[0].Row)
	assert.True(t, math.IsNaN(cleaned[0].Incentive), "missing incentive is kept for imputation")

	stats := cleaner.GetStats()
	assert.Equal(t, int64(3), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.Passed)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(1), stats.Corrected)
	assert.Equal(t, int64(1), stats.Issues["target_validation"])
}

func TestFilterDepartmentEmpty(t *testing.T) {
	out := FilterDepartment([]Record{{Department: "finishing"}}, DefaultDepartment)
	assert.Empty(t, out)
}
