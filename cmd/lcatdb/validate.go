package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/lcat-climate-service/internal/adapter/postgres"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// validationSource is what the validate command inspects.
type validationSource interface {
	BoundaryDetails(ctx context.Context) ([]domain.BoundaryDetails, error)
	Validate(ctx context.Context, boundaries []domain.BoundaryDetails) ([]postgres.Problem, error)
	References(ctx context.Context, refType string) ([]domain.Reference, error)
	Adaptations(ctx context.Context) ([]domain.Adaptation, error)
}

// dbSource joins the repositories and builder behind validationSource.
type dbSource struct {
	*postgres.BoundaryRepository
	*postgres.ContentRepository
	builder *postgres.Builder
}

func (s dbSource) Validate(ctx context.Context, boundaries []domain.BoundaryDetails) ([]postgres.Problem, error) {
	return s.builder.Validate(ctx, boundaries)
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every table the API reads is present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			src := dbSource{
				BoundaryRepository: postgres.NewBoundaryRepository(pool, nil),
				ContentRepository:  postgres.NewContentRepository(pool, nil),
				builder:            postgres.NewBuilder(pool, a.logger),
			}
			return runValidation(cmd.Context(), src, cmd.OutOrStdout())
		},
	}
}

// runValidation runs every phase, prints a report, and returns
// errValidationFailed if any phase failed.
func runValidation(ctx context.Context, src validationSource, out io.Writer) error {
	fmt.Fprintln(out, "=== LCAT Database Validation ===")
	fmt.Fprintln(out)

	boundaries, err := src.BoundaryDetails(ctx)
	if err != nil {
		return fmt.Errorf("load boundary details: %w", err)
	}

	phases := []*phase{
		validateBoundaryDetails(boundaries),
	}
	schema, err := validateSchema(ctx, src, boundaries)
	if err != nil {
		return err
	}
	content, err := validateContent(ctx, src)
	if err != nil {
		return err
	}
	phases = append(phases, schema, content)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Boundaries: %d registered\n", len(boundaries))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return nil
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return errValidationFailed
}

func validateBoundaryDetails(boundaries []domain.BoundaryDetails) *phase {
	p := &phase{name: "Phase 1: Boundary details"}
	if len(boundaries) == 0 {
		p.errorf("boundary_details is empty; run seed-boundaries")
		return p
	}
	seen := make(map[string]bool, len(boundaries))
	for _, b := range boundaries {
		if err := b.Validate(); err != nil {
			p.errorf("%s: %v", b.Identifier, err)
		}
		if seen[b.TableName] {
			p.errorf("%s: table %s registered twice", b.Identifier, b.TableName)
		}
		seen[b.TableName] = true
	}
	return p
}

func validateSchema(ctx context.Context, src validationSource, boundaries []domain.BoundaryDetails) (*phase, error) {
	p := &phase{name: "Phase 2: Tables and columns"}
	problems, err := src.Validate(ctx, boundaries)
	if err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	for _, pr := range problems {
		p.errorf("%s: %s", pr.Boundary, pr.Detail)
	}
	return p, nil
}

func validateContent(ctx context.Context, src validationSource) (*phase, error) {
	p := &phase{name: "Phase 3: Reference content"}

	refs, err := src.References(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	if len(refs) == 0 {
		p.errorf("references table is empty; run references load")
	}

	adaptations, err := src.Adaptations(ctx)
	if err != nil {
		return nil, fmt.Errorf("read adaptations: %w", err)
	}
	if len(adaptations) == 0 {
		p.errorf("adaptations table is empty; run kumu load")
	}
	for _, a := range adaptations {
		if len(a.Layers()) == 0 {
			p.errorf("adaptation %s has no layer", a.ID)
		}
	}
	return p, nil
}
