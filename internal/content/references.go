// Package content turns the curated source exports (the references sheet and
// the Kumu adaptation map) into the rows the service stores.
package content

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// Column headers of the references sheet export.
const (
	colID          = "Reference_ID"
	colType        = "Reference_Type"
	colDOI         = "DOI"
	colURL         = "URL"
	colReplacement = "Replacement_URL"
	colTitle       = "Title"
	colAuthors     = "Authors"
	colDate        = "Date"
	colJournal     = "Journal"
	colIssue       = "Volume/Issue"
)

var requiredColumns = []string{colID, colType}

// ErrMalformedSource is returned when an export does not have the expected
// shape.
var ErrMalformedSource = errors.New("malformed source export")

// ProcessReferencesCSV reads the references sheet and returns references keyed
// by id. Types are cleaned, absent cells become empty strings, and a later row
// replaces an earlier one with the same id.
func ProcessReferencesCSV(r io.Reader) (map[string]domain.Reference, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty references sheet", ErrMalformedSource)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedSource, c)
		}
	}

	out := make(map[string]domain.Reference)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		ref := domain.Reference{
			ArticleID:       get(row, colIdx, colID),
			Type:            domain.CleanReferenceType(get(row, colIdx, colType)),
			DOI:             get(row, colIdx, colDOI),
			Link:            get(row, colIdx, colURL),
			LinkReplacement: get(row, colIdx, colReplacement),
			Title:           get(row, colIdx, colTitle),
			Authors:         get(row, colIdx, colAuthors),
			Date:            get(row, colIdx, colDate),
			Journal:         get(row, colIdx, colJournal),
			Issue:           get(row, colIdx, colIssue),
		}
		if err := domain.ValidateReference(ref); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out[ref.ArticleID] = ref
	}
	return out, nil
}

// SortedReferences flattens a processed reference map, ordering numeric ids
// numerically.
func SortedReferences(refs map[string]domain.Reference) []domain.Reference {
	out := make([]domain.Reference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref)
	}
	slices.SortFunc(out, func(a, b domain.Reference) int {
		if len(a.ArticleID) != len(b.ArticleID) {
			return len(a.ArticleID) - len(b.ArticleID)
		}
		return strings.Compare(a.ArticleID, b.ArticleID)
	})
	return out
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
