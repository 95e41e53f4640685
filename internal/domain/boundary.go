package domain

import (
	"fmt"
	"math"
	"regexp"
)

// AggregationMethod selects how climate values are computed for a boundary.
type AggregationMethod string

const (
	MethodCell  AggregationMethod = "cell"
	MethodCache AggregationMethod = "cache"
)

// BoundaryDetails describes one boundary dataset loaded into PostGIS.
type BoundaryDetails struct {
	Identifier       string            `json:"identifier" yaml:"identifier"`
	PrintName        string            `json:"printName" yaml:"print_name"`
	NameColumn       string            `json:"-" yaml:"name_column"`
	SourceSRID       int               `json:"-" yaml:"source_srid"`
	DBSRID           int               `json:"-" yaml:"db_srid"`
	TableName        string            `json:"table" yaml:"table_name"`
	OverlapTableName string            `json:"-" yaml:"overlap_table_name"`
	Method           AggregationMethod `json:"method" yaml:"method"`
}

// DefaultSRID is British National Grid.
const DefaultSRID = 27700

var identifierRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidIdentifier reports whether s is safe to use as an unquoted SQL
// identifier fragment.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// BoundaryTable is the PostGIS table holding a boundary's polygons.
func BoundaryTable(identifier string) string {
	return "boundary_" + identifier
}

// OverlapTable maps a boundary's regions to CHESS-SCAPE grid cells.
func OverlapTable(identifier string) string {
	return "grid_overlaps_" + identifier
}

// NewBoundaryDetails fills derived fields from an identifier and its name
// column, using cell aggregation and British National Grid by default.
func NewBoundaryDetails(identifier, printName, nameColumn string, sourceSRID int) BoundaryDetails {
	return BoundaryDetails{
		Identifier:       identifier,
		PrintName:        printName,
		NameColumn:       nameColumn,
		SourceSRID:       sourceSRID,
		DBSRID:           DefaultSRID,
		TableName:        BoundaryTable(identifier),
		OverlapTableName: OverlapTable(identifier),
		Method:           MethodCell,
	}
}

// Normalize fills unset derived fields with their defaults.
func (b BoundaryDetails) Normalize() BoundaryDetails {
	if b.TableName == "" {
		b.TableName = BoundaryTable(b.Identifier)
	}
	if b.OverlapTableName == "" {
		b.OverlapTableName = OverlapTable(b.Identifier)
	}
	if b.DBSRID == 0 {
		b.DBSRID = DefaultSRID
	}
	if b.SourceSRID == 0 {
		b.SourceSRID = DefaultSRID
	}
	if b.Method == "" {
		b.Method = MethodCell
	}
	return b
}

// Validate checks that every identifier used in dynamic SQL is safe and the
// method is known.
func (b BoundaryDetails) Validate() error {
	for _, id := range []string{b.Identifier, b.NameColumn, b.TableName, b.OverlapTableName} {
		if !ValidIdentifier(id) {
			return fmt.Errorf("%w: boundary identifier %q", ErrInvalidParameter, id)
		}
	}
	if b.Method != MethodCell && b.Method != MethodCache {
		return fmt.Errorf("%w: aggregation method %q", ErrInvalidParameter, b.Method)
	}
	if b.DBSRID <= 0 {
		return fmt.Errorf("%w: db srid %d", ErrInvalidParameter, b.DBSRID)
	}
	return nil
}

// DefaultBoundaries are the UK boundary datasets shipped with the site.
func DefaultBoundaries() []BoundaryDetails {
	return []BoundaryDetails{
		NewBoundaryDetails("uk_counties", "UK Counties", "ctyua23nm", DefaultSRID),
		NewBoundaryDetails("la_districts", "Local Authority Districts", "lad23nm", DefaultSRID),
		NewBoundaryDetails("lsoa", "Lower Layer Super Output Areas", "lsoa21nm", DefaultSRID),
		NewBoundaryDetails("msoa", "Middle Layer Super Output Areas", "msoa21nm", DefaultSRID),
		NewBoundaryDetails("parishes", "Parishes", "par23nm", DefaultSRID),
		NewBoundaryDetails("sc_dz", "Scottish Data Zones", "name", DefaultSRID),
		NewBoundaryDetails("ni_dz", "Northern Ireland Data Zones", "dz2021_nm", 29902),
		NewBoundaryDetails("iom", "Isle of Man", "name_engli", 4326),
	}
}

// BoundingBox is a map viewport in EPSG:4326.
type BoundingBox struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Validate rejects non-finite, inverted, or out-of-range boxes.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.Left, b.Bottom, b.Right, b.Top} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bounding box is not finite", ErrInvalidParameter)
		}
	}
	if b.Left < -180 || b.Right > 180 || b.Bottom < -90 || b.Top > 90 {
		return fmt.Errorf("%w: bounding box out of range", ErrInvalidParameter)
	}
	if b.Left >= b.Right || b.Bottom >= b.Top {
		return fmt.Errorf("%w: bounding box is empty", ErrInvalidParameter)
	}
	return nil
}

// ValidateTolerance checks a simplification tolerance in metres.
func ValidateTolerance(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: tolerance %v", ErrInvalidParameter, t)
	}
	return nil
}

// Region is one polygon of a boundary dataset.
type Region struct {
	Gid  int    `json:"gid"`
	Name string `json:"name"`
}

// Centre is the centroid of a set of regions.
type Centre struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"placeName,omitempty"`
}
