package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// CoastalValues are the chess_scape_grid.coastal_info bands that make a
// region coastal.
var CoastalValues = []string{"20km from coast", "10km from coast", "coastline"}

// allCoastal lists boundaries whose regions are all treated as coastal. The
// Northern Ireland grid marks the land border with Ireland as coastline.
var allCoastal = map[string]bool{"ni_dz": true}

// Builder prepares derived tables for the API. It backs the lcatdb CLI.
type Builder struct {
	db     DB
	logger *slog.Logger
}

// NewBuilder creates a Builder over db.
func NewBuilder(db DB, logger *slog.Logger) *Builder {
	return &Builder{db: db, logger: logger}
}

// SeedBoundaryDetails replaces the boundary_details contents in one
// transaction.
func (b *Builder) SeedBoundaryDetails(ctx context.Context, boundaries []domain.BoundaryDetails) error {
	if len(boundaries) == 0 {
		return fmt.Errorf("%w: no boundaries to seed", domain.ErrInvalidParameter)
	}
	normalized := make([]domain.BoundaryDetails, len(boundaries))
	for i, d := range boundaries {
		normalized[i] = d.Normalize()
		if err := normalized[i].Validate(); err != nil {
			return fmt.Errorf("boundary %q: %w", d.Identifier, err)
		}
	}
	boundaries = normalized

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM boundary_details"); err != nil {
		return fmt.Errorf("clear boundary details: %w", err)
	}

	insert := psql.Insert("boundary_details").Columns(
		"boundary_identifier", "print_name", "shapefile_name_col", "source_srid",
		"db_srid", "boundary_table_name", "overlap_table_name", "method",
	)
	for _, d := range boundaries {
		insert = insert.Values(
			d.Identifier, d.PrintName, d.NameColumn, d.SourceSRID,
			d.DBSRID, d.TableName, d.OverlapTableName, string(d.Method),
		)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert boundary details: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	b.logger.Info("boundary details seeded", "count", len(boundaries))
	return nil
}

// TagCoastal adds the is_coastal column to a boundary table if missing and
// sets it from the coastal bands of the overlapping grid cells. Changes are
// rolled back on error.
func (b *Builder) TagCoastal(ctx context.Context, d domain.BoundaryDetails) error {
	table := ident(d.TableName)

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin coastal tagging: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS is_coastal BOOLEAN", table)); err != nil {
		return fmt.Errorf("add is_coastal to %s: %w", d.TableName, err)
	}

	var query string
	var args []any
	if allCoastal[d.Identifier] {
		query = fmt.Sprintf("UPDATE %s SET is_coastal = TRUE", table)
	} else {
		query = fmt.Sprintf(`UPDATE %s b SET is_coastal = EXISTS (
	SELECT 1
	FROM %s o
	JOIN chess_scape_grid g ON o.grid_cell_id = g.grid_cell_id
	WHERE o.gid = b.gid AND g.coastal_info = ANY($1)
)`, table, ident(d.OverlapTableName))
		args = []any{CoastalValues}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("tag coastal regions of %s: %w", d.TableName, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit coastal tagging: %w", err)
	}

	b.logger.Info("coastal regions tagged", "boundary", d.Identifier, "rows", tag.RowsAffected())
	return nil
}

// GridTable holds the CHESS-SCAPE grid cell geometries.
const GridTable = "chess_scape_grid"

// BuildOverlaps recreates the overlap table of a boundary. Every grid cell
// intersecting a region is recorded with is_overlap TRUE. A region no cell
// intersects, typically a small island, gets its nearest cell by KNN distance
// with is_overlap FALSE.
func (b *Builder) BuildOverlaps(ctx context.Context, d domain.BoundaryDetails) error {
	boundary := ident(d.TableName)
	overlaps := ident(d.OverlapTableName)

	statements := []string{
		spatialIndex(GridTable, "geometry"),
		spatialIndex(d.TableName, "geom"),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", overlaps),
		fmt.Sprintf("CREATE TABLE %s (gid INTEGER, grid_cell_id INTEGER, is_overlap BOOLEAN, bias_corrected BOOLEAN)", overlaps),
	}
	intersecting := fmt.Sprintf(`INSERT INTO %s (gid, grid_cell_id, is_overlap, bias_corrected)
SELECT s.gid, g.grid_cell_id, TRUE, g.bias_corrected
FROM %s g
JOIN %s s ON ST_Intersects(g.geometry, s.geom)`, overlaps, ident(GridTable), boundary)
	nearest := fmt.Sprintf(`INSERT INTO %s (gid, grid_cell_id, is_overlap, bias_corrected)
SELECT s.gid, c.grid_cell_id, FALSE, c.bias_corrected
FROM %s s
CROSS JOIN LATERAL (
	SELECT g.grid_cell_id, g.bias_corrected
	FROM %s g
	ORDER BY g.geometry <-> s.geom
	LIMIT 1
) c
WHERE NOT EXISTS (SELECT 1 FROM %s o WHERE o.gid = s.gid)`, overlaps, boundary, ident(GridTable), overlaps)

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin overlap build: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare %s: %w", d.OverlapTableName, err)
		}
	}
	hit, err := tx.Exec(ctx, intersecting)
	if err != nil {
		return fmt.Errorf("insert overlaps of %s: %w", d.TableName, err)
	}
	near, err := tx.Exec(ctx, nearest)
	if err != nil {
		return fmt.Errorf("insert nearest cells of %s: %w", d.TableName, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", d.OverlapTableName, err)
	}

	b.logger.Info("grid overlaps built",
		"table", d.OverlapTableName,
		"overlaps", hit.RowsAffected(),
		"nearest", near.RowsAffected(),
	)
	return nil
}

func spatialIndex(table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (%s)",
		ident(table+"_"+column+"_idx"), ident(table), ident(column))
}

// climateColumnsOf returns the climate columns of a table as recorded in
// information_schema, in ordinal order. Columns that do not follow the
// <var>_<decade>_<stat> form are ignored.
func (b *Builder) climateColumnsOf(ctx context.Context, table string) ([]string, error) {
	query, args, err := psql.
		Select("column_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": "public", "table_name": table}).
		OrderBy("ordinal_position").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		if domain.IsClimateColumn(name) {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

// BuildCache recreates cache_<id>_to_<rcp>_<season> with one row per region,
// aggregating the grid cells overlapping each region. The drop, create and
// fill run in one transaction.
func (b *Builder) BuildCache(ctx context.Context, d domain.BoundaryDetails, rcp domain.Scenario, season domain.Season) error {
	climateTable := domain.ClimateTable(rcp, season)
	cacheTable := domain.CacheTable(d.Identifier, rcp, season)

	columns, err := b.climateColumnsOf(ctx, climateTable)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("climate table %s has no climate columns: %w", climateTable, domain.ErrNotFound)
	}

	selects, err := aggregateColumns(columns, "ct")
	if err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = ident(c) + " DOUBLE PRECISION"
	}

	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", ident(cacheTable)),
		fmt.Sprintf("CREATE TABLE %s (gid INT PRIMARY KEY, %s)", ident(cacheTable), strings.Join(defs, ", ")),
		fmt.Sprintf(`INSERT INTO %s (gid, %s)
SELECT ot.gid, %s
FROM %s ot
JOIN %s ct ON ot.grid_cell_id = ct.grid_cell_id
GROUP BY ot.gid`,
			ident(cacheTable), columnList(columns),
			strings.Join(selects, ", "),
			ident(d.OverlapTableName),
			ident(climateTable),
		),
	}

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cache build: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var rows int64
	for _, stmt := range statements {
		tag, err := tx.Exec(ctx, stmt)
		if err != nil {
			return fmt.Errorf("build %s: %w", cacheTable, err)
		}
		rows = tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", cacheTable, err)
	}

	b.logger.Info("climate cache built", "table", cacheTable, "rows", rows)
	return nil
}

// Problem is one defect found by Validate.
type Problem struct {
	Boundary string
	Detail   string
}

// Validate checks that every table the API reads for the given boundaries
// exists and carries the expected columns.
func (b *Builder) Validate(ctx context.Context, boundaries []domain.BoundaryDetails) ([]Problem, error) {
	var problems []Problem
	add := func(boundary, format string, args ...any) {
		problems = append(problems, Problem{Boundary: boundary, Detail: fmt.Sprintf(format, args...)})
	}

	for _, rcp := range domain.Scenarios {
		for _, season := range domain.Seasons {
			table := domain.ClimateTable(rcp, season)
			cols, err := b.columnsOf(ctx, table)
			if err != nil {
				return nil, err
			}
			if len(cols) == 0 {
				add("chess_scape", "table %s is missing", table)
			} else if !cols["grid_cell_id"] {
				add("chess_scape", "table %s has no column grid_cell_id", table)
			}
		}
	}

	for _, d := range boundaries {
		cols, err := b.columnsOf(ctx, d.TableName)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			add(d.Identifier, "table %s is missing", d.TableName)
		} else {
			for _, want := range []string{"gid", "geom", "is_coastal", d.NameColumn} {
				if !cols[want] {
					add(d.Identifier, "table %s has no column %s", d.TableName, want)
				}
			}
		}

		var required []string
		switch d.Method {
		case domain.MethodCache:
			for _, rcp := range domain.Scenarios {
				for _, season := range domain.Seasons {
					required = append(required, domain.CacheTable(d.Identifier, rcp, season))
				}
			}
		default:
			required = append(required, d.OverlapTableName)
		}
		for _, table := range required {
			cols, err := b.columnsOf(ctx, table)
			if err != nil {
				return nil, err
			}
			if len(cols) == 0 {
				add(d.Identifier, "table %s is missing", table)
			}
		}
	}
	return problems, nil
}

func (b *Builder) columnsOf(ctx context.Context, table string) (map[string]bool, error) {
	query, args, err := psql.
		Select("column_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": "public", "table_name": table}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := b.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		out[name] = true
	}
	return out, rows.Err()
}
