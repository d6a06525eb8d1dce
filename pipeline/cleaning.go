package pipeline

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// DefaultDepartment is the only sub-population the model is trained on.
const DefaultDepartment = "sewing"

// departmentAliases maps known misspellings, after trimming, to the
// canonical department name.
var departmentAliases = map[string]string{
	"sweing": "sewing",
}

// NormalizeDepartment trims surrounding whitespace and resolves known
// misspellings. Any other label is returned trimmed but otherwise as is.
func NormalizeDepartment(raw string) string {
	name := strings.TrimSpace(raw)
	if canonical, ok := departmentAliases[name]; ok {
		return canonical
	}
	return name
}

// FilterDepartment keeps records whose department equals name exactly.
func FilterDepartment(records []Record, name string) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Department == name {
			out = append(out, rec)
		}
	}
	return out
}

// CleaningRule rewrites a record or rejects it with an error.
type CleaningRule interface {
	Apply(Record) (Record, error)
	Name() string
}

// QualityIssue describes one rejected record.
type QualityIssue struct {
	Rule      string    `json:"rule"`
	Row       int       `json:"row"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CleaningStats counts what the cleaner did.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner runs its rules in order over every record.
type DataCleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner with the department and target rules.
func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{
		stats: CleaningStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(DepartmentNormalizationRule{})
	cleaner.AddRule(TargetValidationRule{})
	return cleaner
}

// AddRule appends a rule; rules run in the order added.
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns the records that passed every rule and one issue per
// rejected record. Row numbers in issues are 1-based data rows.
func (dc *DataCleaner) Clean(records []Record) ([]Record, []QualityIssue) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	cleaned := make([]Record, 0, len(records))
	var issues []QualityIssue
	for i, rec := range records {
		dc.stats.TotalProcessed++
		original := rec

		var rejected bool
		for _, rule := range dc.rules {
			out, err := rule.Apply(rec)
			if err != nil {
				issues = append(issues, QualityIssue{
					Rule:      rule.Name(),
					Row:       i + 1,
					Message:   err.Error(),
					Timestamp: time.Now(),
				})
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			rec = out
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		if !sameRecord(original, rec) {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, rec)
	}
	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

// GetStats returns a copy of the running counters.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

func sameRecord(a, b Record) bool {
	sameIncentive := a.Incentive == b.Incentive || (math.IsNaN(a.Incentive) && math.IsNaN(b.Incentive))
	return a.Department == b.Department && sameIncentive && a.ActualProductivity == b.ActualProductivity
}

// DepartmentNormalizationRule canonicalizes the department label.
type DepartmentNormalizationRule struct{}

func (DepartmentNormalizationRule) Name() string { return "department_normalization" }

func (DepartmentNormalizationRule) Apply(rec Record) (Record, error) {
	rec.Department = NormalizeDepartment(rec.Department)
	return rec, nil
}

// TargetValidationRule rejects rows without a usable productivity target.
type TargetValidationRule struct{}

func (TargetValidationRule) Name() string { return "target_validation" }

func (TargetValidationRule) Apply(rec Record) (Record, error) {
	if math.IsNaN(rec.ActualProductivity) || math.IsInf(rec.ActualProductivity, 0) {
		return Record{}, fmt.Errorf("actual_productivity is not a number")
	}
	return rec, nil
}
