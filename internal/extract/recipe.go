// Package extract turns a fetched page into the single normalized string
// that change detection compares.
package extract

import (
	"fmt"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"pagewatch/internal/browser"
	"pagewatch/internal/model"
)

// Method selects how matched elements become text.
type Method int

// Extraction methods.
const (
	// MethodText takes the text content of every matched element.
	MethodText Method = iota
	// MethodAttr takes one named attribute of every matched element.
	MethodAttr
	// MethodBody takes the text of the whole body without scripts and styles.
	MethodBody
	// MethodReadable takes the main article text found by readability.
	MethodReadable
)

// Recipe describes how one mode extracts content.
type Recipe struct {
	Selector string
	Method   Method
	Attr     string
}

// nonContentSelectors lists elements stripped before taking body text.
const nonContentSelectors = "script, style, noscript, template"

var recipes = map[model.Mode]Recipe{
	model.ModeDefault:     {Selector: "body", Method: MethodBody},
	model.ModeProduct:     {Selector: "div.product-item-meta", Method: MethodText},
	model.ModeAriaLabel:   {Selector: "div[aria-label]", Method: MethodAttr, Attr: "aria-label"},
	model.ModeLinkTitle:   {Selector: "a[title]", Method: MethodAttr, Attr: "title"},
	model.ModeSearchTitle: {Selector: `span[class*="SearchResultItemTitle"]`, Method: MethodText},
	model.ModeArticle:     {Method: MethodReadable},
}

// RecipeFor returns the recipe registered for mode.
func RecipeFor(mode model.Mode) (Recipe, error) {
	r, ok := recipes[mode]
	if !ok {
		return Recipe{}, fmt.Errorf("no recipe for mode %q", mode)
	}
	return r, nil
}

// Apply runs the recipe against doc and returns the shaped content.
func (r Recipe) Apply(doc *browser.Document) (string, error) {
	var parts []string
	switch r.Method {
	case MethodText:
		parts = doc.Locate(r.Selector).AllTextContents()
	case MethodAttr:
		parts = doc.Locate(r.Selector).EvaluateAll(browser.Attr(r.Attr))
	case MethodBody:
		body := doc.Locate(r.Selector)
		body.Find(nonContentSelectors).Remove()
		parts = body.AllTextContents()
	case MethodReadable:
		text, err := readableText(doc)
		if err != nil {
			return "", err
		}
		parts = []string{text}
	default:
		return "", fmt.Errorf("unknown extraction method %d", r.Method)
	}
	return Shape(parts), nil
}

func readableText(doc *browser.Document) (string, error) {
	html, err := doc.HTML()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(html), doc.URL())
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}

// Shape splits every part into lines, trims them, drops empty lines and
// joins everything with newlines.
func Shape(parts []string) string {
	var lines []string
	for _, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.ReplaceAll(p, "\r", "\n")
		for _, line := range strings.Split(p, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
