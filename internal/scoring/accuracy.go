package scoring

import "log/slog"

// minRatedCoverage is the smallest share of the reference script that must be
// rated before accuracy is scored above the floor.
const minRatedCoverage = 0.25

// accuracyLevels maps adjusted scores to discrete levels, highest first.
var accuracyLevels = []struct {
	min   float64
	level int
}{
	{2.4, 5},
	{1.7, 4},
	{1.0, 3},
	{0.5, 2},
}

// Accuracy aggregates per-word ratings into a pronunciation accuracy score.
// The expected rating is scaled by fluency/100 and bucketed into one of five
// levels, giving one of 10, 30, 50, 70 or 90.
func Accuracy(ratings []Rating, fluency float64, baseScriptLen int) float64 {
	if baseScriptLen <= 0 || float64(len(ratings))/float64(baseScriptLen) < minRatedCoverage {
		return scoreFloor
	}
	ev := ExpectedValue(ratings)
	adjusted := ev * (fluency / 100)
	level := accuracyLevel(adjusted)
	slog.Debug("accuracy components",
		"expected_value", ev,
		"fluency", fluency,
		"adjusted", adjusted,
		"level", level,
	)
	return scoreFloor + float64(level-1)*20
}

func accuracyLevel(adjusted float64) int {
	for _, l := range accuracyLevels {
		if adjusted >= l.min {
			return l.level
		}
	}
	return 1
}
