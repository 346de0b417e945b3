package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// understandableRatio is the largest edit distance, as a fraction of the
	// rated word's length, that still earns RatingUnderstandable.
	understandableRatio = 0.40

	// searchAhead bounds how many expected words past the current index are
	// considered. One word behind is always included.
	searchAhead = 3
)

// RatePronunciation rates every word of actual against a small neighbourhood
// of expected, returning one [Rating] per element of actual.
//
// For actual[i] the candidates are expected[max(0,i-1) : i+min(3,len(expected)-i)].
// The search only runs while i <= len(expected); beyond that the best distance
// is infinite and the word is rated bad. Distances count Unicode code points.
func RatePronunciation(expected, actual []string) []Rating {
	ratings := make([]Rating, 0, len(actual))
	for i, word := range actual {
		best := math.MaxInt
		if i <= len(expected) {
			lo := max(0, i-1)
			hi := i + min(searchAhead, len(expected)-i)
			for j := lo; j < hi; j++ {
				if d := matchr.Levenshtein(expected[j], word); d < best {
					best = d
					if best == 0 {
						break
					}
				}
			}
		}
		ratings = append(ratings, rateDistance(best, utf8.RuneCountInString(word)))
	}
	return ratings
}

func rateDistance(dist, wordLen int) Rating {
	switch {
	case dist == 0:
		return RatingGood
	case dist == math.MaxInt:
		return RatingBad
	case float64(dist) <= understandableRatio*float64(wordLen):
		return RatingUnderstandable
	default:
		return RatingBad
	}
}
