package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/lcat-climate-service/internal/adapter/crossref"
	"github.com/couchcryptid/lcat-climate-service/internal/adapter/postgres"
	"github.com/couchcryptid/lcat-climate-service/internal/content"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

func (a *app) referencesCmd() *cobra.Command {
	var (
		resolveDOI bool
		mailto     string
		rps        float64
	)
	process := &cobra.Command{
		Use:   "process <sheet.csv> <references.json>",
		Short: "Convert the references sheet export to JSON",
		Long: "Convert the references sheet export to JSON. With --resolve-doi, rows that have a DOI " +
			"but no title are completed from Crossref.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			refs, err := content.ProcessReferencesCSV(f)
			if err != nil {
				return fmt.Errorf("process %s: %w", args[0], err)
			}
			if resolveDOI {
				resolver := crossref.NewClient(mailto, 20*time.Second, rps, a.logger)
				if _, err := content.ResolveDOIs(cmd.Context(), refs, resolver, a.logger); err != nil {
					return err
				}
			}
			if err := content.WriteJSON(args[1], refs); err != nil {
				return err
			}
			a.logger.Info("references processed", "count", len(refs), "output", args[1])
			return nil
		},
	}

	process.Flags().BoolVar(&resolveDOI, "resolve-doi", false, "complete untitled rows from their DOI via Crossref")
	process.Flags().StringVar(&mailto, "crossref-mailto", os.Getenv("CROSSREF_MAILTO"), "contact address sent to Crossref")
	process.Flags().Float64Var(&rps, "crossref-rps", 5, "Crossref requests per second")

	load := &cobra.Command{
		Use:   "load <references.json>",
		Short: "Insert processed references, keeping existing ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := content.ReadJSON[map[string]domain.Reference](args[0])
			if err != nil {
				return err
			}
			for id, ref := range refs {
				if err := domain.ValidateReference(ref); err != nil {
					return fmt.Errorf("reference %q: %w", id, err)
				}
			}

			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			n, err := postgres.NewContentRepository(pool, nil).InsertReferences(cmd.Context(), content.SortedReferences(refs))
			if err != nil {
				return err
			}
			a.logger.Info("references loaded", "read", len(refs), "inserted", n)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "references",
		Short: "Process and load the literature references",
	}
	cmd.AddCommand(process, load)
	return cmd
}

func (a *app) kumuCmd() *cobra.Command {
	process := &cobra.Command{
		Use:   "process <kumu-export.json> <adaptations.json>",
		Short: "Extract adaptation actions from a Kumu export",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			adaptations, err := content.ProcessKumu(data)
			if err != nil {
				return fmt.Errorf("process %s: %w", args[0], err)
			}
			if err := content.WriteJSON(args[1], adaptations); err != nil {
				return err
			}
			a.logger.Info("kumu export processed", "adaptations", len(adaptations), "output", args[1])
			return nil
		},
	}

	load := &cobra.Command{
		Use:   "load <adaptations.json>",
		Short: "Upsert processed adaptations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adaptations, err := content.ReadJSON[[]domain.Adaptation](args[0])
			if err != nil {
				return err
			}

			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			n, err := postgres.NewContentRepository(pool, nil).InsertAdaptations(cmd.Context(), adaptations)
			if err != nil {
				return err
			}
			a.logger.Info("adaptations loaded", "read", len(adaptations), "written", n)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "kumu",
		Short: "Process and load adaptation actions",
	}
	cmd.AddCommand(process, load)
	return cmd
}
