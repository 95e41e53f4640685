package domain

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reference is one entry of the curated literature list.
type Reference struct {
	ArticleID       string `json:"article_id"`
	Type            string `json:"type"`
	DOI             string `json:"doi"`
	Link            string `json:"link"`
	LinkReplacement string `json:"link_replacement"`
	Title           string `json:"title"`
	Authors         string `json:"authors"`
	Date            string `json:"date"`
	Journal         string `json:"journal"`
	Issue           string `json:"issue"`
}

// CleanReferenceType normalises a free-text reference type from the source
// sheet: surrounding space is trimmed, inner runs of whitespace collapse, and
// each word is capitalised with the rest lower case ("journal  ARTICLE" →
// "Journal Article").
func CleanReferenceType(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// ValidateReference rejects a reference without an id, which is the table key.
func ValidateReference(r Reference) error {
	if strings.TrimSpace(r.ArticleID) == "" {
		return fmt.Errorf("%w: reference without article_id", ErrInvalidParameter)
	}
	return nil
}

// FilterReferences returns references whose cleaned type equals the cleaned
// filter. An empty filter keeps every reference.
func FilterReferences(refs []Reference, refType string) []Reference {
	want := CleanReferenceType(refType)
	if want == "" {
		return refs
	}
	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if CleanReferenceType(r.Type) == want {
			out = append(out, r)
		}
	}
	return out
}

// Citation is the bibliographic record registered for a DOI.
type Citation struct {
	Title   string
	Authors string
	Date    string
	Journal string
	Issue   string
}

// CitationResolver looks up the citation registered for a DOI.
type CitationResolver interface {
	ResolveDOI(ctx context.Context, doi string) (Citation, error)
}

// Resolvable reports whether a DOI lookup can complete the reference: it has
// a DOI, no title, and a type the registry describes.
func (r Reference) Resolvable() bool {
	if strings.TrimSpace(r.DOI) == "" || strings.TrimSpace(r.Title) != "" {
		return false
	}
	switch r.Type {
	case "Journal Article", "Report", "Book", "Book Section":
		return true
	}
	return false
}

// WithCitation fills the empty bibliographic fields of r from c. Books carry
// no journal or issue.
func (r Reference) WithCitation(c Citation) Reference {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&r.Title, c.Title)
	fill(&r.Authors, c.Authors)
	fill(&r.Date, c.Date)
	if r.Type != "Book" && r.Type != "Book Section" {
		fill(&r.Journal, c.Journal)
		fill(&r.Issue, c.Issue)
	}
	return r
}
