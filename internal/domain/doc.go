// Package domain models the UK climate projection data served by the API.
//
// # Data Source
//
// Climate statistics come from CHESS-SCAPE, the UKCEH 1 km gridded projection
// dataset. External ingestion tooling loads each scenario/season combination
// into its own table, one row per grid cell, and boundary shapefiles into
// boundary_<identifier> tables. Everything in this package works on the
// tables those tools produce.
//
// # CHESS-SCAPE Conventions
//
// Climate columns:
//
//	"<variable>_<decade>_<stat>"  →  e.g. "tas_2030_mean"
//	variable: tas (air temperature, °C), pr (precipitation, mm/day),
//	          sfcWind (wind speed, m/s), rsds (downwelling shortwave, W/m²).
//	decade:   1980, 1990, ... 2070 (start year of the decade).
//	stat:     min, mean, max over the decade.
//
// Column names are case sensitive ("sfcWind") and must be quoted in SQL.
//
// Aggregating many grid cells into one region always uses the same rule:
//
//	_min  → MIN
//	_mean → AVG
//	_max  → MAX
//
// Scenario and season:
//
//	Scenario is an RCP emissions pathway, "rcp60" or "rcp85".
//	Season is "annual", "summer" or "winter".
//	The grid table for a combination is chess_scape_<rcp>_<season>.
//
// # Boundaries
//
// Each boundary dataset (counties, districts, LSOA, MSOA, parishes, data
// zones, Isle of Man) has a boundary_details row describing its table, the
// column holding region names, its SRIDs, and how climate values are
// aggregated:
//
//	cell:  aggregate the grid table on the fly over the cells listed in
//	       grid_overlaps_<identifier> for the selected regions.
//	cache: read cache_<identifier>_to_<rcp>_<season>, pre-aggregated per region.
//
// Geometries are stored in the boundary's db_srid (British National Grid,
// EPSG:27700, unless stated otherwise) and served in EPSG:4326.
//
// # Summaries
//
// A climate summary compares the decade mean of each variable against the
// 1980 baseline. rsds is inverted because more surface radiation means less
// cloud, and the summary speaks about cloudiness. See [Summarize].
package domain
