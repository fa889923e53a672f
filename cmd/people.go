package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/identity"
	"github.com/spf13/cobra"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List and manage people",
	Long: `List the people of an owner. Use subcommands to inspect, create,
merge people and move their faces.

Example:
  photo-people people --owner u1 --hidden
  photo-people people show --owner u1 3f2a...`,
	RunE: runPeopleList,
}

var peopleShowCmd = &cobra.Command{
	Use:   "show <person-id>",
	Short: "Show a person, their statistics and assets",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeopleShow,
}

var peopleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a person",
	Long: `Create a person. A person created with no faces is kept until it
receives and then loses its first face.`,
	Args: cobra.NoArgs,
	RunE: runPeopleCreate,
}

var peopleMergeCmd = &cobra.Command{
	Use:   "merge <target-id> <source-id>...",
	Short: "Merge people into a target",
	Long: `Move every face of the source people to the target and delete the
sources. An unnamed target takes the first non-empty source name.

Example:
  photo-people people merge --owner u1 target-id source-a source-b`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPeopleMerge,
}

var peopleReassignCmd = &cobra.Command{
	Use:   "reassign <person-id> <face-id>...",
	Short: "Assign faces to a person",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPeopleReassign,
}

var peopleUnassignCmd = &cobra.Command{
	Use:   "unassign <face-id>...",
	Short: "Detach faces from their person",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPeopleUnassign,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.AddCommand(peopleShowCmd, peopleCreateCmd, peopleMergeCmd, peopleReassignCmd, peopleUnassignCmd)

	peopleCmd.PersistentFlags().String("owner", "", "Owner (account) id")
	peopleCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	peopleCmd.Flags().Bool("hidden", false, "Include hidden people")

	peopleCreateCmd.Flags().String("name", "", "Person name")
	peopleCreateCmd.Flags().String("birth-date", "", "Birth date (YYYY-MM-DD)")
	peopleCreateCmd.Flags().Bool("hidden", false, "Create the person hidden")
}

// withPeople opens the store and the identity service for a people subcommand.
func withPeople(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, svc *identity.Service, owner string) error) error {
	owner, err := requireOwner(cmd)
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cmd, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newIdentityService(cfg, store)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, svc, owner)
}

func runPeopleList(cmd *cobra.Command, args []string) error {
	withHidden := mustGetBool(cmd, "hidden")
	jsonOutput := mustGetBool(cmd, "json")

	return withPeople(cmd, func(ctx context.Context, _ *config.Config, svc *identity.Service, owner string) error {
		list, err := svc.ListPeople(ctx, owner, withHidden)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(list)
		}
		printPeople(list.People)
		fmt.Printf("\n%d people (%d hidden)\n", list.Total, list.Hidden)
		return nil
	})
}

func runPeopleShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withPeople(cmd, func(ctx context.Context, cfg *config.Config, svc *identity.Service, owner string) error {
		person, err := svc.GetPerson(ctx, owner, args[0])
		if err != nil {
			return err
		}
		stats, err := svc.Statistics(ctx, owner, person.ID)
		if err != nil {
			return err
		}
		assets, err := svc.GetPersonAssets(ctx, owner, person.ID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"person":     person,
				"statistics": stats,
				"assets":     assets,
			})
		}

		printPeople([]database.Person{*person})
		fmt.Printf("\nAssets: %d (oldest %s, newest %s)\n\n",
			stats.AssetCount, formatDate(stats.OldestAssetDate), formatDate(stats.NewestAssetDate))
		if len(assets) > 0 {
			printAssets(cfg, assets, nil)
		}
		return nil
	})
}

func runPeopleCreate(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	var fields identity.PersonUpdate
	if cmd.Flags().Changed("name") {
		name := mustGetString(cmd, "name")
		fields.Name = &name
	}
	if cmd.Flags().Changed("hidden") {
		hidden := mustGetBool(cmd, "hidden")
		fields.Hidden = &hidden
	}
	if raw := mustGetString(cmd, "birth-date"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fmt.Errorf("--birth-date must be YYYY-MM-DD: %w", err)
		}
		fields.BirthDate = identity.DateField{Set: true, Value: &t}
	}

	return withPeople(cmd, func(ctx context.Context, _ *config.Config, svc *identity.Service, owner string) error {
		person, err := svc.CreatePerson(ctx, owner, fields)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(person)
		}
		fmt.Printf("Created person %s\n", person.ID)
		return nil
	})
}

func runPeopleMerge(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withPeople(cmd, func(ctx context.Context, _ *config.Config, svc *identity.Service, owner string) error {
		res, err := svc.Merge(ctx, owner, args[0], args[1:])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Printf("Merged %d person(s) into %s\n", len(res.Merged), res.Target.ID)
		return nil
	})
}

func runPeopleReassign(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withPeople(cmd, func(ctx context.Context, _ *config.Config, svc *identity.Service, owner string) error {
		res, err := svc.ReassignFaces(ctx, owner, args[0], args[1:])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		printFaceResult(res)
		return nil
	})
}

func runPeopleUnassign(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withPeople(cmd, func(ctx context.Context, _ *config.Config, svc *identity.Service, owner string) error {
		res, err := svc.UnassignFaces(ctx, owner, args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(res)
		}
		printFaceResult(res)
		return nil
	})
}
