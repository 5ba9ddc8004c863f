package seo

import (
	"github.com/nextmonth/smartsite/internal/model"
)

// AnalyzePage extracts the page's copy and analyzes it against the page's
// SEO settings.
func AnalyzePage(p *model.Page) (*Result, error) {
	text, err := ExtractText(p.Components)
	if err != nil {
		return nil, err
	}
	return Analyze(Input{
		Words:     Words(text),
		Title:     p.SEO.Title,
		Primary:   p.SEO.PrimaryKeyword,
		Secondary: p.SEO.Keywords,
	}), nil
}
