package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// simplifySRID is the projected CRS used for geometry simplification, so the
// tolerance is expressed in metres.
const simplifySRID = 27700

// BoundaryRepository reads boundary polygons and metadata.
type BoundaryRepository struct {
	db DB
	observer
}

// NewBoundaryRepository creates a repository over db.
func NewBoundaryRepository(db DB, metrics *observability.Metrics) *BoundaryRepository {
	return &BoundaryRepository{db: db, observer: observer{metrics: metrics}}
}

// BoundaryDetails returns every row of boundary_details.
func (r *BoundaryRepository) BoundaryDetails(ctx context.Context) (_ []domain.BoundaryDetails, err error) {
	defer r.observe("boundary_details", time.Now(), &err)

	query, args, err := psql.
		Select(
			"boundary_identifier", "print_name", "shapefile_name_col", "source_srid",
			"db_srid", "boundary_table_name", "overlap_table_name", "method",
		).
		From("boundary_details").
		OrderBy("boundary_identifier").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query boundary details: %w", err)
	}
	defer rows.Close()

	var out []domain.BoundaryDetails
	for rows.Next() {
		var b domain.BoundaryDetails
		var method string
		if err := rows.Scan(
			&b.Identifier, &b.PrintName, &b.NameColumn, &b.SourceSRID,
			&b.DBSRID, &b.TableName, &b.OverlapTableName, &method,
		); err != nil {
			return nil, fmt.Errorf("scan boundary details: %w", err)
		}
		b.Method = domain.AggregationMethod(method)
		out = append(out, b)
	}
	return out, rows.Err()
}

// AllRegions lists the gid and name of every region in a boundary.
func (r *BoundaryRepository) AllRegions(ctx context.Context, b domain.BoundaryDetails) (_ []domain.Region, err error) {
	defer r.observe("all_regions", time.Now(), &err)

	query, args, err := psql.
		Select("gid", fmt.Sprintf("COALESCE(%s::text, '') AS name", ident(b.NameColumn))).
		From(ident(b.TableName)).
		OrderBy("gid").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query regions of %s: %w", b.TableName, err)
	}
	defer rows.Close()

	out := make([]domain.Region, 0)
	for rows.Next() {
		var reg domain.Region
		if err := rows.Scan(&reg.Gid, &reg.Name); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// AnyCoastal reports whether any of the given regions is tagged coastal.
func (r *BoundaryRepository) AnyCoastal(ctx context.Context, b domain.BoundaryDetails, gids []int) (_ bool, err error) {
	defer r.observe("are_gids_coastal", time.Now(), &err)

	sub, subArgs, err := sq.
		Select("1").
		From(ident(b.TableName)).
		Where(sq.Expr("gid = ANY(?)", gids)).
		Where("is_coastal = true").
		ToSql()
	if err != nil {
		return false, err
	}

	query, args, err := psql.Select().Column(sq.Expr("EXISTS ("+sub+")", subArgs...)).ToSql()
	if err != nil {
		return false, err
	}

	var coastal bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&coastal); err != nil {
		return false, fmt.Errorf("query coastal regions of %s: %w", b.TableName, err)
	}
	return coastal, nil
}

// RegionsGeoJSON returns a GeoJSON FeatureCollection of the regions that
// intersect bbox. Geometry is simplified in British National Grid with
// tolerance metres and returned in EPSG:4326.
func (r *BoundaryRepository) RegionsGeoJSON(ctx context.Context, b domain.BoundaryDetails, tolerance float64, bbox domain.BoundingBox) (_ json.RawMessage, err error) {
	defer r.observe("region", time.Now(), &err)

	feature := fmt.Sprintf(`json_build_object(
		'type', 'Feature',
		'geometry', ST_AsGeoJSON(ST_Transform(ST_Simplify(ST_Transform(geom, %d), ?), 4326))::json,
		'properties', json_build_object(
			'gid', gid,
			'isCoastal', is_coastal,
			'name', %s,
			'geometricCenter', json_build_object(
				'lat', ST_Y(ST_Transform(ST_Centroid(geom), 4326)),
				'lon', ST_X(ST_Transform(ST_Centroid(geom), 4326))
			)
		)
	) AS feature`, simplifySRID, ident(b.NameColumn))

	features := psql.
		Select().
		Column(sq.Expr(feature, tolerance)).
		From(ident(b.TableName)).
		Where(sq.Expr(
			"ST_Intersects(geom, ST_Transform(ST_MakeEnvelope(?, ?, ?, ?, 4326), ?::integer))",
			bbox.Left, bbox.Bottom, bbox.Right, bbox.Top, b.DBSRID,
		))

	query, args, err := psql.
		Select(`json_build_object('type', 'FeatureCollection', 'features', COALESCE(json_agg(f.feature), '[]'::json))`).
		FromSelect(features, "f").
		ToSql()
	if err != nil {
		return nil, err
	}

	var out []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&out); err != nil {
		return nil, fmt.Errorf("query geojson of %s: %w", b.TableName, err)
	}
	return json.RawMessage(out), nil
}

// Centre returns the centroid of the union of the given regions in
// EPSG:4326, or domain.ErrNotFound when none of them exist.
func (r *BoundaryRepository) Centre(ctx context.Context, b domain.BoundaryDetails, gids []int) (_ domain.Centre, err error) {
	defer r.observe("gids_centre", time.Now(), &err)

	query, args, err := psql.
		Select("ST_Y(c)", "ST_X(c)").
		FromSelect(
			psql.Select("ST_Transform(ST_Centroid(ST_Union(geom)), 4326) AS c").
				From(ident(b.TableName)).
				Where(sq.Expr("gid = ANY(?)", gids)),
			"u",
		).
		ToSql()
	if err != nil {
		return domain.Centre{}, err
	}

	var lat, lon *float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&lat, &lon); err != nil {
		return domain.Centre{}, fmt.Errorf("query centre of %s: %w", b.TableName, err)
	}
	if lat == nil || lon == nil {
		return domain.Centre{}, fmt.Errorf("regions of %s: %w", b.TableName, domain.ErrNotFound)
	}
	return domain.Centre{Lat: *lat, Lon: *lon}, nil
}

// RegionAt returns the region of a boundary containing a WGS-84 point.
func (r *BoundaryRepository) RegionAt(ctx context.Context, b domain.BoundaryDetails, lat, lon float64) (_ domain.Region, err error) {
	defer r.observe("region_at", time.Now(), &err)

	query, args, err := psql.
		Select("gid", fmt.Sprintf("COALESCE(%s::text, '') AS name", ident(b.NameColumn))).
		From(ident(b.TableName)).
		Where(sq.Expr(
			"ST_Contains(geom, ST_Transform(ST_SetSRID(ST_MakePoint(?, ?), 4326), ?::integer))",
			lon, lat, b.DBSRID,
		)).
		OrderBy("gid").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Region{}, err
	}

	var reg domain.Region
	err = r.db.QueryRow(ctx, query, args...).Scan(&reg.Gid, &reg.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Region{}, fmt.Errorf("region of %s at %.5f,%.5f: %w", b.TableName, lat, lon, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Region{}, fmt.Errorf("query region at point: %w", err)
	}
	return reg, nil
}
