package imports

import (
	"strings"
)

// Text written into records that the owner still has to fill in.
const (
	PlaceholderProcessing   = "Processing…"
	PlaceholderReviewNeeded = "Review needed"
	PlaceholderNotSpecified = "Not specified"
	PlaceholderNeedsInput   = "Needs input"
	ExcerptCouldNotExtract  = "Could not extract text from image"
	ExcerptProcessingFailed = "Processing failed — manual review needed"
)

// ReviewThreshold is the confidence below which an import requires review.
const ReviewThreshold = 0.6

const (
	minOCRChars            = 10
	wordsForFullConfidence = 50
	maxTraits              = 3
	maxExcerptRunes        = 1000
	maxGiverFieldRunes     = 120
)

var giverPlaceholders = []string{
	PlaceholderReviewNeeded,
	PlaceholderNotSpecified,
	PlaceholderNeedsInput,
	PlaceholderProcessing,
}

var excerptPlaceholders = []string{
	PlaceholderProcessing,
	ExcerptCouldNotExtract,
	ExcerptProcessingFailed,
}

// IsPlaceholder reports whether a giver field is blank or still holds a
// placeholder token. Comparison ignores case and surrounding space.
func IsPlaceholder(s string) bool {
	return matchesAny(s, giverPlaceholders)
}

func isExcerptPlaceholder(s string) bool {
	return matchesAny(s, excerptPlaceholders)
}

func matchesAny(s string, tokens []string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, t := range tokens {
		if strings.EqualFold(s, t) {
			return true
		}
	}
	return false
}

// RequiresReview is the automatic review gate.
func RequiresReview(confidence float64) bool {
	return confidence < ReviewThreshold
}
