package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search assets by text or CLIP similarity",
	Long: `Search the assets of an owner. Text is matched against tags and file
names, or embedded and compared with asset embeddings when --clip is set.

Example:
  photo-people search --owner u1 beach
  photo-people search --owner u1 --clip --recent "kids at the lake"
  photo-people search --owner u1 --type video --take 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var searchPeopleCmd = &cobra.Command{
	Use:   "people <name>",
	Short: "Search people by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearchPeople,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(searchPeopleCmd)

	searchCmd.PersistentFlags().String("owner", "", "Owner (account) id")
	searchCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	searchCmd.Flags().Bool("clip", false, "Rank by CLIP embedding similarity")
	searchCmd.Flags().Bool("recent", false, "Order results by date, newest first")
	searchCmd.Flags().Bool("motion", false, "Only motion photos")
	searchCmd.Flags().String("type", "", "Asset type: image, video, audio, other")
	searchCmd.Flags().Int("take", 0, "Page size (default 100)")
	searchCmd.Flags().Int("skip", 0, "Page offset")

	searchPeopleCmd.Flags().Bool("hidden", false, "Include hidden people")
}

// searchValues converts the flags to the query parameters the HTTP API takes,
// so both surfaces go through the same planner.
func searchValues(cmd *cobra.Command, args []string) url.Values {
	vals := url.Values{}
	if len(args) > 0 {
		vals.Set("q", args[0])
	}
	for _, name := range []string{"clip", "recent", "motion"} {
		if mustGetBool(cmd, name) {
			vals.Set(name, "true")
		}
	}
	if t := mustGetString(cmd, "type"); t != "" {
		vals.Set("type", t)
	}
	if cmd.Flags().Changed("take") {
		vals.Set("take", strconv.Itoa(mustGetInt(cmd, "take")))
	}
	if cmd.Flags().Changed("skip") {
		vals.Set("skip", strconv.Itoa(mustGetInt(cmd, "skip")))
	}
	return vals
}

// withExecutor opens the store and the search executor for a search subcommand.
func withExecutor(cmd *cobra.Command, withIndex bool, fn func(ctx context.Context, cfg *config.Config, ex *search.Executor, owner string) error) error {
	owner, err := requireOwner(cmd)
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cmd, cfg, withIndex)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, cfg, newExecutor(ctx, cfg, store), owner)
}

func runSearch(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	plan, err := search.ParseSearch(searchValues(cmd, args))
	if err != nil {
		return err
	}

	withIndex := plan.Strategy == search.StrategyEmbedding
	return withExecutor(cmd, withIndex, func(ctx context.Context, cfg *config.Config, ex *search.Executor, owner string) error {
		page, err := ex.Execute(ctx, owner, plan)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(page)
		}

		assets := make([]database.Asset, len(page.Items))
		scores := make([]float64, len(page.Items))
		for i, hit := range page.Items {
			assets[i] = hit.Asset
			scores[i] = hit.Score
		}
		printAssets(cfg, assets, scores)

		fmt.Printf("\n%d result(s), strategy %s, order %s\n", len(page.Items), plan.Strategy, plan.Order)
		if page.NextOffset != nil {
			fmt.Printf("More results: --skip %d\n", *page.NextOffset)
		}
		return nil
	})
}

func runSearchPeople(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	vals := url.Values{"name": {args[0]}}
	if mustGetBool(cmd, "hidden") {
		vals.Set("withHidden", "true")
	}
	plan, err := search.ParsePeopleSearch(vals)
	if err != nil {
		return err
	}

	return withExecutor(cmd, false, func(ctx context.Context, _ *config.Config, ex *search.Executor, owner string) error {
		people, err := ex.ExecutePeople(ctx, owner, plan)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(people)
		}
		printPeople(people)
		return nil
	})
}
