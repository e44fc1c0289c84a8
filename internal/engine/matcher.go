package engine

import (
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSimilarityThreshold = 0.85
	defaultMatchCacheSize      = 4096
	matchCacheTTL              = time.Hour
)

// Matcher decides whether user input refers to the merchant behind a pattern.
type Matcher interface {
	Match(input, pattern string) bool
}

// SubstringMatcher matches when either normalized string contains the other.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(input, pattern string) bool { return Matches(input, pattern) }

// Matches reports whether input and pattern refer to the same merchant:
// both are trimmed and lower-cased, then one must contain the other.
func Matches(input, pattern string) bool {
	in, pat := normalize(input), normalize(pattern)
	if in == "" || pat == "" {
		return false
	}
	return strings.Contains(in, pat) || strings.Contains(pat, in)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SimilarityMatcher extends the substring rule with Jaro-Winkler similarity
// so small typos ("trendyl") still match. Scores are cached per pair.
type SimilarityMatcher struct {
	threshold float64
	metric    *metrics.JaroWinkler
	cache     *expirable.LRU[string, bool]
}

func NewSimilarityMatcher(threshold float64, cacheSize int) *SimilarityMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	if cacheSize <= 0 {
		cacheSize = defaultMatchCacheSize
	}
	return &SimilarityMatcher{
		threshold: threshold,
		metric:    metrics.NewJaroWinkler(),
		cache:     expirable.NewLRU[string, bool](cacheSize, nil, matchCacheTTL),
	}
}

func (m *SimilarityMatcher) Match(input, pattern string) bool {
	in, pat := normalize(input), normalize(pattern)
	if in == "" || pat == "" {
		return false
	}
	if strings.Contains(in, pat) || strings.Contains(pat, in) {
		return true
	}

	// order the pair so Match(a, b) and Match(b, a) share an entry
	a, b := in, pat
	if b < a {
		a, b = b, a
	}
	key := a + "\x00" + b
	if ok, hit := m.cache.Get(key); hit {
		return ok
	}
	ok := strutil.Similarity(a, b, m.metric) >= m.threshold
	m.cache.Add(key, ok)
	return ok
}
