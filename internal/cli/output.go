// Package cli renders search results and ingestion history for the menurag command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

type restaurantsOutput struct {
	Query   string                    `json:"query"`
	Results []models.RestaurantResult `json:"results"`
}

type menuItemsOutput struct {
	Query   string                  `json:"query"`
	Results []models.MenuItemResult `json:"results"`
}

// WriteRestaurants writes ranked restaurants to w.
func WriteRestaurants(w io.Writer, query string, results []models.RestaurantResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, restaurantsOutput{Query: query, Results: nonNil(results)})
	}
	fmt.Fprintf(w, "\nFound %d restaurants for %q\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | ID: %s\n", i+1, r.Score, r.Restaurant.ID)
		fmt.Fprintf(w, "%s\n", r.Label())
		for j, it := range r.Restaurant.Items {
			if j == 5 {
				fmt.Fprintf(w, "  ... %d more\n", len(r.Restaurant.Items)-j)
				break
			}
			fmt.Fprintf(w, "  - %s\n", utils.Truncate(it.Text(), 120))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteMenuItems writes ranked menu items to w.
func WriteMenuItems(w io.Writer, query string, results []models.MenuItemResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, menuItemsOutput{Query: query, Results: nonNil(results)})
	}
	fmt.Fprintf(w, "\nFound %d menu items for %q\n\n", len(results), query)
	for i, it := range results {
		fmt.Fprintf(w, "%2d. [%.4f] %s\n", i+1, it.Score, it.Label())
	}
	return nil
}

// WriteRuns writes ingestion runs, newest first as given.
func WriteRuns(w io.Writer, runs []*models.IngestRun, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, nonNil(runs))
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No ingestion runs recorded.")
		return nil
	}
	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = "failed: " + TruncateWords(r.Error, 12)
		}
		fmt.Fprintf(w, "%s  %s  %s  records=%d batches=%d failed=%d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, r.Source,
			r.Records, r.Batches, r.Failed, status)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
