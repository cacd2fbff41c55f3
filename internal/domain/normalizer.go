package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultExcludedKeywords are generic infrastructure words that would match
// far too many unrelated hosts if used as keyword roots.
var DefaultExcludedKeywords = []string{
	"com", "net", "org", "cn", "tv", "me", "cc", "io", "co",
	"api", "www", "provide", "vod", "php", "cdn", "img", "static",
	"video", "videos", "play", "player", "stream", "media", "m3u8",
	"example", "cloudflare", "cloudfront", "akamaized", "amazonaws",
	"aliyuncs", "myqcloud", "qiniu", "google", "baidu", "github",
}

// NormalizerConfig holds the thresholds of the normalization rules.
type NormalizerConfig struct {
	// PrefixMaxLetters is the longest letter run accepted in a rotating
	// prefix label ("yyv14" has 3).
	PrefixMaxLetters int
	// MinPrefixKeyword is the minimum length of a rotating-prefix keyword.
	MinPrefixKeyword int
	// OpaqueMinLen is the minimum length of an adopted base label.
	OpaqueMinLen int
	// MergeMinLen is the minimum length the stripped form must have to
	// replace a candidate during trailing-digit merging.
	MergeMinLen int
	// MinKeywordLen is the minimum length of any retained keyword root.
	MinKeywordLen int
	// Excluded keywords are dropped after canonicalization.
	Excluded []string
}

// DefaultNormalizerConfig returns the thresholds used when nothing is configured.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		PrefixMaxLetters: 4,
		MinPrefixKeyword: 2,
		OpaqueMinLen:     5,
		MergeMinLen:      3,
		MinKeywordLen:    2,
		Excluded:         DefaultExcludedKeywords,
	}
}

// Rule derives at most one keyword candidate from the labels of a hostname.
type Rule struct {
	Name  string
	Apply func(labels []string) (string, bool)
}

// Normalizer turns hostnames into keyword candidates and canonicalizes them.
type Normalizer struct {
	cfg      NormalizerConfig
	rules    []Rule
	excluded Set
}

// NewNormalizer builds the ordered rule list from cfg.
// Zero thresholds fall back to the defaults.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	def := DefaultNormalizerConfig()
	if cfg.PrefixMaxLetters <= 0 {
		cfg.PrefixMaxLetters = def.PrefixMaxLetters
	}
	if cfg.MinPrefixKeyword <= 0 {
		cfg.MinPrefixKeyword = def.MinPrefixKeyword
	}
	if cfg.OpaqueMinLen <= 0 {
		cfg.OpaqueMinLen = def.OpaqueMinLen
	}
	if cfg.MergeMinLen <= 0 {
		cfg.MergeMinLen = def.MergeMinLen
	}
	if cfg.MinKeywordLen < 2 {
		cfg.MinKeywordLen = def.MinKeywordLen
	}
	if cfg.Excluded == nil {
		cfg.Excluded = def.Excluded
	}

	excluded := NewSet()
	for _, w := range cfg.Excluded {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			excluded.Add(w)
		}
	}

	n := &Normalizer{cfg: cfg, excluded: excluded}
	n.rules = []Rule{
		RotatingPrefixRule(cfg.PrefixMaxLetters, cfg.MinPrefixKeyword),
		OpaqueBaseRule(cfg.OpaqueMinLen),
	}
	return n
}

// RotatingPrefixRule matches edge hosts such as "v12.x.com" or "yyv14.x.com"
// (at least three labels, first label = letters then digits) and keeps the
// letters.
func RotatingPrefixRule(maxLetters, minLen int) Rule {
	re := regexp.MustCompile(fmt.Sprintf(`^([a-z]{1,%d})[0-9]+$`, maxLetters))
	return Rule{
		Name: "rotating-prefix",
		Apply: func(labels []string) (string, bool) {
			if len(labels) < 3 {
				return "", false
			}
			m := re.FindStringSubmatch(labels[0])
			if m == nil || len(m[1]) < minLen {
				return "", false
			}
			return m[1], true
		},
	}
}

// OpaqueBaseRule adopts the second-to-last label verbatim when it is long
// enough to be a distinguishing registrable name on its own.
func OpaqueBaseRule(minLen int) Rule {
	return Rule{
		Name: "opaque-base",
		Apply: func(labels []string) (string, bool) {
			if len(labels) < 2 {
				return "", false
			}
			base := labels[len(labels)-2]
			if len(base) < minLen {
				return "", false
			}
			return base, true
		},
	}
}

// Candidates returns the keyword candidates for host. Rules are tried in
// order and the first one whose candidate survives canonicalization wins.
func (n *Normalizer) Candidates(host string) []string {
	h, ok := ParseHostname(host)
	if !ok {
		return nil
	}
	labels := strings.Split(h, ".")
	for _, r := range n.rules {
		k, ok := r.Apply(labels)
		if !ok {
			continue
		}
		if _, keep := n.Canonical(k); keep {
			return []string{k}
		}
	}
	return nil
}

// Canonical applies trailing-digit merging and the exclusion filter to one
// candidate. "cdnlz12" and "cdnlz07" both become "cdnlz"; "ab12" stays as is
// because "ab" is too short to stand alone.
func (n *Normalizer) Canonical(k string) (string, bool) {
	k = strings.ToLower(strings.TrimSpace(k))
	if stripped := strings.TrimRight(k, "0123456789"); len(stripped) >= n.cfg.MergeMinLen {
		k = stripped
	}
	if len(k) < n.cfg.MinKeywordLen || n.excluded.Has(k) {
		return "", false
	}
	return k, true
}

// Canonicalize maps every keyword through Canonical until the set stops
// changing. Canonical is idempotent, so this settles after one pass.
func (n *Normalizer) Canonicalize(keywords Set) Set {
	cur := keywords.Clone()
	for i := 0; i < 8; i++ {
		next := make(Set, len(cur))
		for k := range cur {
			if c, ok := n.Canonical(k); ok {
				next.Add(c)
			}
		}
		if next.Equal(cur) {
			return next
		}
		cur = next
	}
	return cur
}

// Observe derives observations from a batch of hostnames.
func (n *Normalizer) Observe(hosts ...string) Observations {
	obs := NewObservations()
	for _, raw := range hosts {
		h, ok := ParseHostname(raw)
		if !ok {
			continue
		}
		obs.Hostnames.Add(h)
		for _, k := range n.Candidates(h) {
			obs.Keywords.Add(k)
		}
	}
	return obs
}
