package browser

import (
	"fmt"
	"io"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed DOM snapshot.
type Document struct {
	doc *goquery.Document
	url *url.URL
}

// NewDocument parses HTML read from r. pageURL is kept for extractors that
// resolve relative links; it may be empty.
func NewDocument(r io.Reader, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc.Url = u
	return &Document{doc: doc, url: u}, nil
}

// URL returns the URL the document was loaded from.
func (d *Document) URL() *url.URL {
	return d.url
}

// HTML renders the document back to markup.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

// Locate returns the elements matching a CSS selector.
func (d *Document) Locate(selector string) Locator {
	return Locator{sel: d.doc.Find(selector)}
}

// Locator is a set of matched elements.
type Locator struct {
	sel *goquery.Selection
}

// Count returns the number of matched elements.
func (l Locator) Count() int {
	return l.sel.Length()
}

// Remove detaches the matched elements from the document.
func (l Locator) Remove() {
	l.sel.Remove()
}

// Find narrows the locator to descendants matching selector.
func (l Locator) Find(selector string) Locator {
	return Locator{sel: l.sel.Find(selector)}
}

// AllTextContents returns the text content of every matched element.
func (l Locator) AllTextContents() []string {
	out := make([]string, 0, l.sel.Length())
	l.sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}

// EvaluateAll runs fn on every matched element and collects the values it
// reports as present.
func (l Locator) EvaluateAll(fn func(*goquery.Selection) (string, bool)) []string {
	var out []string
	l.sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := fn(s); ok {
			out = append(out, v)
		}
	})
	return out
}

// Attr returns an extractor that reads the named attribute.
func Attr(name string) func(*goquery.Selection) (string, bool) {
	return func(s *goquery.Selection) (string, bool) {
		return s.Attr(name)
	}
}
