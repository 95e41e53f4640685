package content

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// DOIReport counts the outcome of ResolveDOIs.
type DOIReport struct {
	Candidates int
	Resolved   int
	Failed     []string
}

// ResolveDOIs completes references that have a DOI but no title with the
// citation registered for the DOI. Only empty fields are filled. A failed
// lookup leaves the row as it was and is recorded in the report; only context
// cancellation stops the run.
func ResolveDOIs(ctx context.Context, refs map[string]domain.Reference, resolver domain.CitationResolver, logger *slog.Logger) (DOIReport, error) {
	var report DOIReport
	for _, ref := range SortedReferences(refs) {
		if !ref.Resolvable() {
			continue
		}
		report.Candidates++

		c, err := resolver.ResolveDOI(ctx, ref.DOI)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			logger.Warn("doi lookup failed", "article_id", ref.ArticleID, "doi", ref.DOI, "error", err)
			report.Failed = append(report.Failed, ref.ArticleID)
			continue
		}
		refs[ref.ArticleID] = ref.WithCitation(c)
		report.Resolved++
	}
	logger.Info("doi lookups finished",
		"candidates", report.Candidates,
		"resolved", report.Resolved,
		"failed", len(report.Failed),
	)
	return report, nil
}
