package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/evaluation"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and index the endpoint catalog",
	}
	cmd.AddCommand(catalogListCmd(), catalogIndexCmd(), catalogEvalCmd())
	return cmd
}

func catalogListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			kind, _ := cmd.Flags().GetString("kind")

			var specs []endpoint.Spec
			for _, s := range endpoint.DefaultCatalog().All() {
				if kind == "" || string(s.Kind) == kind {
					specs = append(specs, s)
				}
			}
			if format == "json" {
				return printJSON(cmd.OutOrStdout(), specs, true)
			}
			return printCatalog(cmd, specs)
		},
	}
	cmd.Flags().String("format", "text", "output format (text, json)")
	cmd.Flags().String("kind", "", "only list endpoints of this kind (discovery, search, credits, trending)")
	return cmd
}

func printCatalog(cmd *cobra.Command, specs []endpoint.Spec) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tMEDIA\tPRIOR\tPARAMS")
	for _, s := range specs {
		media := string(s.Media)
		if media == "" {
			media = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", s.Path, s.Kind, media, s.Prior, strings.Join(s.Params, ","))
	}
	return tw.Flush()
}

func catalogIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the catalog descriptions and upsert them into Qdrant",
		Long: `Index embeds every endpoint description with the configured embedder
and upserts it into the Qdrant collection used for semantic retrieval.
Requires retrieval.type = qdrant. With --recreate the collection is dropped
first, which removes endpoints that are no longer in the catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := globalConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Retrieval.Type != "qdrant" {
				return errors.New("catalog index needs retrieval type qdrant")
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if recreate, _ := cmd.Flags().GetBool("recreate"); recreate && a.vector != nil {
				if err := a.vector.Reset(ctx); err != nil {
					return err
				}
			}
			n, err := indexCatalog(ctx, a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d endpoints\n", n)

			info, err := a.vector.Stats(ctx)
			if err != nil {
				log.Warn("Could not read collection stats", "error", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %s: %d points, status %s\n", info.Name, info.PointsCount, info.Status)
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 2*time.Minute, "indexing timeout")
	cmd.Flags().Bool("recreate", false, "drop the collection before indexing")
	return cmd
}

func indexCatalog(ctx context.Context, a *app) (int, error) {
	if a.vector == nil {
		return 0, errors.New("semantic retrieval is not configured")
	}
	return a.vector.Index(ctx, a.catalog)
}

func catalogEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval judgments.yaml",
		Short: "Score endpoint retrieval against judged queries",
		Long: `Eval runs every judged query through the configured retriever and
reports NDCG, recall and precision at each cutoff, plus MRR and MAP.

Judgment file:
  queries:
    - id: two-actors
      query: "movies with Pacino and De Niro"
      relevant:
        /discover/movie: 3
        /person/{person_id}/movie_credits: 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := globalConfig(cmd)
			if err != nil {
				return err
			}
			set, err := evaluation.LoadJudgments(args[0])
			if err != nil {
				return err
			}
			ks, _ := cmd.Flags().GetIntSlice("k")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.Background()) }()

			results, summary, err := evaluation.NewEvaluator(a.retriever).Evaluate(cmd.Context(), set, ks)
			if err != nil {
				return err
			}
			if verbose, _ := cmd.Flags().GetBool("per-query"); verbose {
				return printJSON(cmd.OutOrStdout(), map[string]any{"results": results, "summary": summary}, true)
			}
			return printJSON(cmd.OutOrStdout(), summary, true)
		},
	}
	cmd.Flags().IntSlice("k", evaluation.DefaultKs, "cutoffs to report")
	cmd.Flags().Bool("per-query", false, "include per query results")
	return cmd
}
