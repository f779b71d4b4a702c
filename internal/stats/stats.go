// Package stats derives summary figures from a reconciled result set.
// Aggregates are recomputed on demand and never stored, so they cannot
// drift from the records they summarize.
package stats

import (
	"math"

	"github.com/felixgeelhaar/keysync/internal/domain"
)

// CategoryStats is the per-category slice of the aggregate.
type CategoryStats struct {
	Tests           int `json:"tests"`
	AverageWPM      int `json:"averageWpm"`
	AverageAccuracy int `json:"averageAccuracy"`
}

// UserStats is the derived aggregate over a result set.
type UserStats struct {
	TotalTests      int                      `json:"totalTests"`
	AverageWPM      int                      `json:"averageWpm"`
	BestWPM         int                      `json:"bestWpm"`
	AverageAccuracy int                      `json:"averageAccuracy"`
	LastTestDate    int64                    `json:"lastTestDate"`
	Categories      map[string]CategoryStats `json:"categories"`
}

type accumulator struct {
	tests  int
	wpmSum int
	accSum int
}

// Aggregate computes UserStats from the given records. An empty input
// yields the zero value, never an error.
func Aggregate(records []domain.Result) UserStats {
	s := UserStats{Categories: map[string]CategoryStats{}}
	if len(records) == 0 {
		return s
	}

	var wpmSum, accSum int
	byCategory := map[string]*accumulator{}

	for _, r := range records {
		s.TotalTests++
		wpmSum += r.WPM
		accSum += r.Accuracy
		if r.WPM > s.BestWPM {
			s.BestWPM = r.WPM
		}
		if r.Timestamp > s.LastTestDate {
			s.LastTestDate = r.Timestamp
		}

		cat := r.DisplayCategory()
		acc, ok := byCategory[cat]
		if !ok {
			acc = &accumulator{}
			byCategory[cat] = acc
		}
		acc.tests++
		acc.wpmSum += r.WPM
		acc.accSum += r.Accuracy
	}

	s.AverageWPM = roundedMean(wpmSum, s.TotalTests)
	s.AverageAccuracy = roundedMean(accSum, s.TotalTests)

	for cat, acc := range byCategory {
		s.Categories[cat] = CategoryStats{
			Tests:           acc.tests,
			AverageWPM:      roundedMean(acc.wpmSum, acc.tests),
			AverageAccuracy: roundedMean(acc.accSum, acc.tests),
		}
	}
	return s
}

func roundedMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
