// Package seo scores keyword usage in page content.
package seo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type component struct {
	Type    string `json:"type"`
	Content *struct {
		Text string `json:"text"`
	} `json:"content"`
}

type section struct {
	Components []component `json:"components"`
}

// textTypes are the component types whose content.text counts as copy.
var textTypes = map[string]bool{
	"text":      true,
	"richtext":  true,
	"paragraph": true,
	"heading":   true,
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// ExtractText returns the copy of a page's components joined with spaces.
// raw is either {"sections": [...]} or a bare array of sections.
func ExtractText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var sections []section
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &sections); err != nil {
			return "", fmt.Errorf("decode sections: %w", err)
		}
	} else {
		var doc struct {
			Sections []section `json:"sections"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("decode page components: %w", err)
		}
		sections = doc.Sections
	}

	var parts []string
	for _, s := range sections {
		for _, c := range s.Components {
			if c.Content != nil && textTypes[c.Type] {
				parts = append(parts, c.Content.Text)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

// Words splits text into words, treating punctuation as whitespace.
func Words(text string) []string {
	return strings.Fields(nonWord.ReplaceAllString(text, " "))
}
