package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/lcat-climate-service/internal/adapter/postgres"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

func (a *app) seedBoundariesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-boundaries",
		Short: "Replace the boundary_details table",
		Long:  "Replace the boundary_details table with the boundaries listed in --file, or the built-in UK set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			boundaries := domain.DefaultBoundaries()
			if file != "" {
				var err error
				if boundaries, err = readBoundaries(file); err != nil {
					return err
				}
			}

			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			return postgres.NewBuilder(pool, a.logger).SeedBoundaryDetails(cmd.Context(), boundaries)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file listing boundary datasets")
	return cmd
}

// readBoundaries decodes a YAML list of boundary datasets, filling derived
// fields for entries that omit them.
func readBoundaries(path string) ([]domain.BoundaryDetails, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var boundaries []domain.BoundaryDetails
	if err := yaml.Unmarshal(data, &boundaries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i := range boundaries {
		boundaries[i] = boundaries[i].Normalize()
	}
	return boundaries, nil
}

func (a *app) buildOverlapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-overlaps [identifier...]",
		Short: "Match boundary regions to grid cells",
		Long: "Recreate the grid overlap tables of the named boundaries, or of every registered boundary " +
			"when none are named. Regions that touch no grid cell are matched to the nearest one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			boundaries, err := selectBoundaries(ctx, pool, args, nil)
			if err != nil {
				return err
			}
			return buildOverlaps(ctx, postgres.NewBuilder(pool, a.logger), boundaries)
		},
	}
}

type overlapBuilder interface {
	BuildOverlaps(ctx context.Context, d domain.BoundaryDetails) error
}

// buildOverlaps runs one boundary at a time. Each build scans the whole grid.
func buildOverlaps(ctx context.Context, builder overlapBuilder, boundaries []domain.BoundaryDetails) error {
	for _, b := range boundaries {
		if err := builder.BuildOverlaps(ctx, b); err != nil {
			return fmt.Errorf("overlaps %s: %w", b.Identifier, err)
		}
	}
	return nil
}

func (a *app) tagCoastalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag-coastal [identifier...]",
		Short: "Set is_coastal on boundary tables",
		Long:  "Set is_coastal on the named boundary tables, or on every registered boundary when none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}
			boundaries, err := selectBoundaries(ctx, pool, args, nil)
			if err != nil {
				return err
			}

			builder := postgres.NewBuilder(pool, a.logger)
			for _, b := range boundaries {
				a.logger.Info("tagging coastal regions", "boundary", b.Identifier)
				if err := builder.TagCoastal(ctx, b); err != nil {
					return fmt.Errorf("tag %s: %w", b.Identifier, err)
				}
			}
			return nil
		},
	}
}

func (a *app) buildCacheCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "build-cache [identifier...]",
		Short: "Precompute climate values per region",
		Long: "Build cache tables for every scenario and season of the named boundaries, " +
			"or of every boundary registered with the cache method when none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			ctx := cmd.Context()
			pool, err := a.db(ctx)
			if err != nil {
				return err
			}

			var keep func(domain.BoundaryDetails) bool
			if len(args) == 0 {
				keep = func(b domain.BoundaryDetails) bool { return b.Method == domain.MethodCache }
			}
			boundaries, err := selectBoundaries(ctx, pool, args, keep)
			if err != nil {
				return err
			}
			if len(boundaries) == 0 {
				a.logger.Info("no boundaries use the cache method")
				return nil
			}
			return buildCaches(ctx, postgres.NewBuilder(pool, a.logger), boundaries, concurrency)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "cache tables built at once")
	return cmd
}

// cacheBuilder is the part of postgres.Builder that buildCaches drives.
type cacheBuilder interface {
	BuildCache(ctx context.Context, d domain.BoundaryDetails, rcp domain.Scenario, season domain.Season) error
}

// buildCaches builds every scenario and season of each boundary, at most
// concurrency at a time. The first failure cancels the rest.
func buildCaches(ctx context.Context, builder cacheBuilder, boundaries []domain.BoundaryDetails, concurrency int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, b := range boundaries {
		for _, rcp := range domain.Scenarios {
			for _, season := range domain.Seasons {
				g.Go(func() error {
					if err := builder.BuildCache(ctx, b, rcp, season); err != nil {
						return fmt.Errorf("cache %s: %w", domain.CacheTable(b.Identifier, rcp, season), err)
					}
					return nil
				})
			}
		}
	}
	return g.Wait()
}

// selectBoundaries returns the registered boundaries named by identifiers, in
// the order given, or all registered boundaries accepted by keep when no
// identifiers are given. A nil keep accepts everything.
func selectBoundaries(ctx context.Context, db postgres.DB, identifiers []string, keep func(domain.BoundaryDetails) bool) ([]domain.BoundaryDetails, error) {
	all, err := postgres.NewBoundaryRepository(db, nil).BoundaryDetails(ctx)
	if err != nil {
		return nil, err
	}
	return pickBoundaries(all, identifiers, keep)
}

func pickBoundaries(all []domain.BoundaryDetails, identifiers []string, keep func(domain.BoundaryDetails) bool) ([]domain.BoundaryDetails, error) {
	if len(identifiers) == 0 {
		out := make([]domain.BoundaryDetails, 0, len(all))
		for _, b := range all {
			if keep == nil || keep(b) {
				out = append(out, b)
			}
		}
		return out, nil
	}

	byID := make(map[string]domain.BoundaryDetails, len(all))
	for _, b := range all {
		byID[b.Identifier] = b
	}
	out := make([]domain.BoundaryDetails, 0, len(identifiers))
	for _, id := range identifiers {
		b, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("boundary %q is not registered in boundary_details", id)
		}
		out = append(out, b)
	}
	return out, nil
}
