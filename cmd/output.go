package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/identity"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func printPeople(people []database.Person) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tHIDDEN\tBIRTH DATE\tTHUMBNAIL")
	for _, p := range people {
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.ID, name, p.Hidden, formatDate(p.BirthDate), p.Thumbnail)
	}
	w.Flush()
}

// printAssets lists assets; the id is a PhotoPrism link when PHOTOPRISM_DOMAIN is set.
func printAssets(cfg *config.Config, assets []database.Asset, scores []float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if scores != nil {
		fmt.Fprintln(w, "ID\tTYPE\tTAKEN\tFILE\tSCORE")
	} else {
		fmt.Fprintln(w, "ID\tTYPE\tTAKEN\tFILE")
	}
	for i, a := range assets {
		id := a.ID
		if link := cfg.PhotoPrism.PhotoURL(a.ID); link != "" {
			id = link
		}
		taken := a.TakenAt.Format(time.DateOnly)
		if scores != nil {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\n", id, a.Type, taken, a.FileName, scores[i])
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, a.Type, taken, a.FileName)
		}
	}
	w.Flush()
}

func printFaceResult(res *identity.BulkFaceResult) {
	fmt.Printf("Moved %d face(s)\n", len(res.Succeeded))
	for _, f := range res.Failed {
		fmt.Printf("  %s: %s (%s)\n", f.ID, f.Message, f.Kind)
	}
	for _, id := range res.Deleted {
		fmt.Printf("Deleted person %s (no faces left)\n", id)
	}
}
