package seo

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Density thresholds compare against the raw fraction count/total words.
const (
	lowDensity       = 0.5
	overuseDensity   = 3
	secondaryOveruse = 2.5

	introWords     = 100
	maxSuggestions = 5
	maxRelated     = 10
	maxBigrams     = 5
	minRelatedLen  = 4
)

// KeywordStats describes how one keyword occurs in the content. Density is
// the fraction of words (0..1); Positions are word indexes of each match.
type KeywordStats struct {
	Keyword   string  `json:"keyword"`
	Count     int     `json:"count"`
	Density   float64 `json:"density"`
	Positions []int   `json:"positions"`
}

// PrimaryKeyword adds variations suggested when the keyword is missing.
type PrimaryKeyword struct {
	KeywordStats
	Suggestions []string `json:"suggestions"`
}

// Result is a keyword analysis of one page.
type Result struct {
	TotalWords        int            `json:"totalWords"`
	PrimaryKeyword    PrimaryKeyword `json:"primaryKeyword"`
	SecondaryKeywords []KeywordStats `json:"secondaryKeywords"`
	RelatedKeywords   []string       `json:"relatedKeywords"`
	OveruseWarnings   []string       `json:"overuseWarnings"`
	Recommendations   []string       `json:"recommendations"`
}

// Input is the content and SEO settings to analyze.
type Input struct {
	Words     []string
	Title     string
	Primary   string
	Secondary []string
}

func emptyResult() *Result {
	return &Result{
		PrimaryKeyword:    PrimaryKeyword{KeywordStats: KeywordStats{Positions: []int{}}, Suggestions: []string{}},
		SecondaryKeywords: []KeywordStats{},
		RelatedKeywords:   []string{},
		OveruseWarnings:   []string{},
		Recommendations:   []string{},
	}
}

// ErrorResult is returned in place of an analysis that could not run.
func ErrorResult() *Result {
	r := emptyResult()
	r.Recommendations = []string{
		"An error occurred while analyzing keywords. Please try again later.",
		"Ensure you have set a primary keyword in your SEO settings.",
	}
	return r
}

// Analyze scores the primary and secondary keywords against the words.
func Analyze(in Input) *Result {
	r := emptyResult()
	r.TotalWords = len(in.Words)
	r.PrimaryKeyword.Keyword = in.Primary

	if in.Primary != "" {
		st := CountKeyword(in.Words, in.Primary)
		r.PrimaryKeyword.KeywordStats = st
		pct := st.Density * 100

		switch {
		case st.Density == 0:
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"Your primary keyword %q is not present in the content. Consider adding it naturally to your text.", in.Primary))
			r.PrimaryKeyword.Suggestions = Variations(in.Primary)
		case st.Density < lowDensity:
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"Your primary keyword %q density is low (%.2f%%). Consider using it more prominently, especially in headings and first paragraph.", in.Primary, pct))
		case st.Density > overuseDensity:
			r.OveruseWarnings = append(r.OveruseWarnings, fmt.Sprintf(
				"Your primary keyword %q appears too frequently (%.2f%%). This might be seen as keyword stuffing.", in.Primary, pct))
		}

		if in.Title != "" && !strings.Contains(strings.ToLower(in.Title), strings.ToLower(in.Primary)) {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"Your primary keyword %q is not in your page title. Adding it can improve SEO ranking.", in.Primary))
		}

		if st.Count > 0 && !slices.ContainsFunc(st.Positions, func(p int) bool { return p < introWords }) {
			r.Recommendations = append(r.Recommendations, fmt.Sprintf(
				"Your primary keyword %q doesn't appear in the first 100 words. Consider adding it to your introduction.", in.Primary))
		}
	} else {
		r.Recommendations = append(r.Recommendations,
			"No primary keyword defined. Set a primary keyword in your SEO settings to improve optimization efforts.")
	}

	for _, kw := range in.Secondary {
		if kw == "" {
			continue
		}
		st := CountKeyword(in.Words, kw)
		r.SecondaryKeywords = append(r.SecondaryKeywords, st)
		if st.Density > secondaryOveruse {
			r.OveruseWarnings = append(r.OveruseWarnings, fmt.Sprintf(
				"Your secondary keyword %q appears too frequently (%.2f%%). Consider reducing usage.", kw, st.Density*100))
		}
	}

	r.RelatedKeywords = RelatedKeywords(in.Words, in.Primary)
	return r
}

// CountKeyword finds case-insensitive matches of a single- or multi-word
// keyword.
func CountKeyword(words []string, keyword string) KeywordStats {
	st := KeywordStats{Keyword: keyword, Positions: []int{}}
	parts := strings.Fields(strings.ToLower(keyword))
	if len(parts) == 0 {
		return st
	}
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if strings.ToLower(words[i+j]) != p {
				match = false
				break
			}
		}
		if match {
			st.Count++
			st.Positions = append(st.Positions, i)
		}
	}
	if len(words) > 0 {
		st.Density = float64(st.Count) / float64(len(words))
	}
	return st
}

var (
	variationPrefixes = []string{"best", "top", "guide to", "how to", "affordable", "professional"}
	variationSuffixes = []string{"guide", "tips", "advice", "service", "solutions"}
)

// Variations suggests up to five alternative phrasings of keyword.
func Variations(keyword string) []string {
	if keyword == "" {
		return []string{}
	}
	var out []string
	if !strings.HasSuffix(keyword, "s") {
		out = append(out, keyword+"s")
	}
	if strings.HasSuffix(keyword, "s") && !strings.HasSuffix(keyword, "ss") {
		out = append(out, strings.TrimSuffix(keyword, "s"))
	}
	for _, p := range variationPrefixes {
		out = append(out, p+" "+keyword)
	}
	for _, s := range variationSuffixes {
		out = append(out, keyword+" "+s)
	}
	out = dedupe(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "if": true, "in": true, "into": true, "is": true,
	"it": true, "no": true, "not": true, "of": true, "on": true, "or": true, "such": true,
	"that": true, "the": true, "their": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "to": true, "was": true, "will": true, "with": true,
}

func relatedCandidate(w string) bool {
	return len(w) >= minRelatedLen && !stopWords[strings.ToLower(w)]
}

// RelatedKeywords lists frequent words and bigrams of the content, excluding
// the primary keyword. Without a primary keyword every bigram contains it
// and none are listed. Equal counts keep first-occurrence order.
func RelatedKeywords(words []string, primary string) []string {
	primary = strings.ToLower(primary)

	var singles counter
	for _, w := range words {
		if relatedCandidate(w) {
			singles.add(strings.ToLower(w))
		}
	}
	var out []string
	for _, w := range singles.ranked() {
		if w != primary {
			out = append(out, w)
		}
		if len(out) == maxRelated {
			break
		}
	}

	var bigrams counter
	for i := 0; i+1 < len(words); i++ {
		if relatedCandidate(words[i]) && relatedCandidate(words[i+1]) {
			bigrams.add(strings.ToLower(words[i]) + " " + strings.ToLower(words[i+1]))
		}
	}
	added := 0
	for _, b := range bigrams.ranked() {
		if added == maxBigrams {
			break
		}
		if strings.Contains(b, primary) {
			continue
		}
		out = append(out, b)
		added++
	}

	if len(out) > maxRelated {
		out = out[:maxRelated]
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// counter counts terms and remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func (c *counter) add(term string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	if _, seen := c.counts[term]; !seen {
		c.order = append(c.order, term)
	}
	c.counts[term]++
}

func (c *counter) ranked() []string {
	out := slices.Clone(c.order)
	sort.SliceStable(out, func(i, j int) bool { return c.counts[out[i]] > c.counts[out[j]] })
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
