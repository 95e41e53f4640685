package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

const ukAveragesTable = "chess_scape_uk_averages"

// ClimateRepository reads CHESS-SCAPE projections.
type ClimateRepository struct {
	db      DB
	columns []string
	observer
}

// NewClimateRepository creates a repository over db.
func NewClimateRepository(db DB, metrics *observability.Metrics) *ClimateRepository {
	return &ClimateRepository{
		db:       db,
		columns:  domain.ClimateColumns(),
		observer: observer{metrics: metrics},
	}
}

// aggregateColumns renders MIN/AVG/MAX(<col>) AS <col> for each column.
func aggregateColumns(columns []string, qualifier string) ([]string, error) {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		agg, err := domain.AggregateFor(col)
		if err != nil {
			return nil, err
		}
		ref := ident(col)
		if qualifier != "" {
			ref = qualifier + "." + ref
		}
		out = append(out, fmt.Sprintf("%s(%s)::double precision AS %s", agg, ref, ident(col)))
	}
	return out, nil
}

// Prediction aggregates the climate columns over the selected regions. Cell
// boundaries aggregate the grid table over the cells overlapping the regions;
// cache boundaries aggregate their per-region cache rows. The result always
// has every column, nil where there was no data.
func (r *ClimateRepository) Prediction(ctx context.Context, q domain.ClimateQuery) (_ domain.ClimatePrediction, err error) {
	defer r.observe("chess_scape_"+string(q.Boundary.Method), time.Now(), &err)

	selects, err := aggregateColumns(r.columns, "")
	if err != nil {
		return nil, err
	}

	stmt := psql.Select(selects...)
	switch q.Boundary.Method {
	case domain.MethodCache:
		stmt = stmt.
			From(ident(domain.CacheTable(q.Boundary.Identifier, q.Scenario, q.Season))).
			Where(sq.Expr("gid = ANY(?)", q.Gids))
	case domain.MethodCell:
		cells := sq.
			Select("DISTINCT grid_cell_id").
			From(ident(q.Boundary.OverlapTableName)).
			Where(sq.Expr("gid = ANY(?)", q.Gids))
		stmt = stmt.
			From(ident(domain.ClimateTable(q.Scenario, q.Season))).
			Where(sq.Expr("grid_cell_id IN (?)", cells))
	default:
		return nil, fmt.Errorf("%w: aggregation method %q", domain.ErrInvalidParameter, q.Boundary.Method)
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, err
	}

	values := make([]*float64, len(r.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("query climate prediction for %s: %w", q.Boundary.TableName, err)
	}

	out := make(domain.ClimatePrediction, len(r.columns))
	for i, col := range r.columns {
		out[col] = values[i]
	}
	return out, nil
}

// UKAverages returns the whole-UK decade statistics for one variable, ordered
// by decade.
func (r *ClimateRepository) UKAverages(ctx context.Context, biasCorrected bool, rcp domain.Scenario, season domain.Season, variable domain.Variable) (_ []domain.UKAverage, err error) {
	defer r.observe("uk_averages", time.Now(), &err)

	query, args, err := psql.
		Select("decade", "min", "mean", "max").
		From(ukAveragesTable).
		Where(sq.Eq{
			"is_bias_corrected": biasCorrected,
			"rcp":               string(rcp),
			"season":            string(season),
			"variable":          string(variable),
		}).
		OrderBy("decade").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query uk averages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UKAverage, 0, len(domain.Decades()))
	for rows.Next() {
		var a domain.UKAverage
		if err := rows.Scan(&a.Decade, &a.Min, &a.Mean, &a.Max); err != nil {
			return nil, fmt.Errorf("scan uk average: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// columnList joins quoted column names for INSERT targets.
func columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}
