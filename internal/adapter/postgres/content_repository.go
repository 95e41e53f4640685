package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// ContentRepository stores the curated reference and adaptation content.
type ContentRepository struct {
	db DB
	observer
}

// NewContentRepository creates a repository over db.
func NewContentRepository(db DB, metrics *observability.Metrics) *ContentRepository {
	return &ContentRepository{db: db, observer: observer{metrics: metrics}}
}

var referenceColumns = []string{
	"article_id", "type", "doi", "link", "link_replacement",
	"title", "authors", "date", "journal", "issue",
}

// References returns all references ordered by id. A non-empty refType keeps
// only references of that cleaned type.
func (r *ContentRepository) References(ctx context.Context, refType string) (_ []domain.Reference, err error) {
	defer r.observe("references", time.Now(), &err)

	stmt := psql.Select(coalesced(referenceColumns)...).From(ident("references")).OrderBy("article_id")
	if t := domain.CleanReferenceType(refType); t != "" {
		stmt = stmt.Where("type = ?", t)
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Reference, 0)
	for rows.Next() {
		var ref domain.Reference
		if err := rows.Scan(
			&ref.ArticleID, &ref.Type, &ref.DOI, &ref.Link, &ref.LinkReplacement,
			&ref.Title, &ref.Authors, &ref.Date, &ref.Journal, &ref.Issue,
		); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func coalesced(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = fmt.Sprintf("COALESCE(%s, '')", ident(c))
	}
	return out
}

// InsertReferences inserts references in one transaction, leaving existing ids
// untouched. It returns the number of rows inserted.
func (r *ContentRepository) InsertReferences(ctx context.Context, refs []domain.Reference) (_ int, err error) {
	defer r.observe("insert_references", time.Now(), &err)

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (article_id) DO NOTHING`,
		ident("references"), columnList(referenceColumns),
	)

	rows := make([][]any, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, []any{
			ref.ArticleID, ref.Type, ref.DOI, ref.Link, ref.LinkReplacement,
			ref.Title, ref.Authors, ref.Date, ref.Journal, ref.Issue,
		})
	}
	return r.insertAll(ctx, query, rows, "references")
}

// Adaptations returns every stored adaptation ordered by label.
func (r *ContentRepository) Adaptations(ctx context.Context) (_ []domain.Adaptation, err error) {
	defer r.observe("adaptations", time.Now(), &err)

	query, args, err := psql.
		Select("id", "label", "COALESCE(description, '')", "attributes").
		From("adaptations").
		OrderBy("label", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query adaptations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Adaptation, 0)
	for rows.Next() {
		var a domain.Adaptation
		var attrs []byte
		if err := rows.Scan(&a.ID, &a.Label, &a.Description, &attrs); err != nil {
			return nil, fmt.Errorf("scan adaptation: %w", err)
		}
		if err := json.Unmarshal(attrs, &a.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of adaptation %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAdaptations upserts adaptations by id.
func (r *ContentRepository) InsertAdaptations(ctx context.Context, adaptations []domain.Adaptation) (_ int, err error) {
	defer r.observe("insert_adaptations", time.Now(), &err)

	const query = `INSERT INTO adaptations (id, label, description, attributes) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, description = EXCLUDED.description, attributes = EXCLUDED.attributes`

	rows := make([][]any, 0, len(adaptations))
	for _, a := range adaptations {
		attrs, err := json.Marshal(a.Attributes)
		if err != nil {
			return 0, fmt.Errorf("encode attributes of adaptation %s: %w", a.ID, err)
		}
		rows = append(rows, []any{a.ID, a.Label, a.Description, attrs})
	}
	return r.insertAll(ctx, query, rows, "adaptations")
}

// insertAll queues query once per row in a single batch inside one
// transaction and sums the affected rows.
func (r *ContentRepository) insertAll(ctx context.Context, query string, rows [][]any, table string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin %s insert: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, args := range rows {
		batch.Queue(query, args...)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range rows {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close %s batch: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s insert: %w", table, err)
	}
	return inserted, nil
}
