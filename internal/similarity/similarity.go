// Package similarity scores package names against well-known names to flag
// likely typosquats.
package similarity

import (
	"math"
	"strings"

	"github.com/acheong08/sentinel/pkg/models"
)

// TyposquatThreshold is the score at which a name is treated as a likely typo
const TyposquatThreshold = 90

// PopularPackages are frequently typosquatted PyPI names. Order matters for ties.
var PopularPackages = []string{
	"requests", "flask", "django", "numpy", "pandas", "scipy",
	"matplotlib", "seaborn", "sqlalchemy", "fastapi", "pytest",
	"beautifulsoup4", "pillow", "opencv-python", "tensorflow",
	"torch", "scikit-learn", "celery", "redis", "uvicorn",
}

// Check compares name against every reference and returns the best match.
// The first reference reaching the maximum wins.
func Check(name string, references []string) models.SimilarityResult {
	var best models.SimilarityResult
	best.Score = -1
	for _, ref := range references {
		if score := Ratio(name, ref); score > best.Score {
			best = models.SimilarityResult{Score: score, ClosestMatch: ref}
		}
	}
	if best.Score < 0 {
		return models.SimilarityResult{}
	}
	return best
}

// Ratio is a case-insensitive similarity in [0,100] based on the insertion/deletion
// distance: 100 * (1 - indel / (len(a)+len(b))), rounded half to even.
func Ratio(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}

	indel := total - 2*lcsLength(ra, rb)
	ratio := 100 * (1 - float64(indel)/float64(total))
	return int(math.RoundToEven(ratio))
}

// lcsLength is the longest common subsequence length, using two rows
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
