package scoring

// Rating is the three-level pronunciation rating assigned to a single word.
type Rating int

const (
	// RatingBad means no nearby expected word was close enough.
	RatingBad Rating = 1
	// RatingUnderstandable means the best match differed by at most 40 % of
	// the word's phonemes.
	RatingUnderstandable Rating = 2
	// RatingGood means an exact phoneme match was found.
	RatingGood Rating = 3
)

// String returns the display label for r.
func (r Rating) String() string {
	switch r {
	case RatingBad:
		return "bad"
	case RatingUnderstandable:
		return "understandable"
	case RatingGood:
		return "good"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the three defined ratings.
func (r Rating) Valid() bool {
	return r >= RatingBad && r <= RatingGood
}

// Band classifies a fluency or accuracy score for display.
// Scores below 30 are "poor", below 60 "fair", anything else "good".
func Band(score float64) string {
	switch {
	case score < 30:
		return "poor"
	case score < 60:
		return "fair"
	default:
		return "good"
	}
}
