package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"dynamic-flea-price/internal/catalog"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/storage"
)

// entry is one stored multiplier prepared for reporting.
type entry struct {
	Kind   string
	ID     string
	Name   string
	Value  float64
	Factor float64
}

// collectEntries flattens the state into entries ordered by magnitude,
// strongest pressure first.
func collectEntries(state storage.MultiplierState, cat *catalog.Catalog) []entry {
	out := make([]entry, 0, len(state.ItemMultiplier)+len(state.CategoryMultiplier))
	add := func(kind string, m map[string]float64) {
		for id, v := range m {
			out = append(out, entry{
				Kind:   kind,
				ID:     id,
				Name:   cat.Name(id),
				Value:  v,
				Factor: flea.ApplyMultiplier(1, v),
			})
		}
	}
	add("item", state.ItemMultiplier)
	add("category", state.CategoryMultiplier)

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Value), math.Abs(out[j].Value)
		if ai != aj {
			return ai > aj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Show prints the current multipliers.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, _ := rt.engine.Snapshot()
	return writeShow(os.Stdout, state, rt.catalog, opts.Limit)
}

func writeShow(w io.Writer, state storage.MultiplierState, cat *catalog.Catalog, limit int) error {
	entries := collectEntries(state, cat)
	if len(entries) == 0 {
		fmt.Fprintln(w, "no flea pressure recorded")
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if !state.LastDecayAt.IsZero() {
		fmt.Fprintf(w, "last decay: %s UTC\n\n", state.LastDecayAt.UTC().Format(time.RFC3339))
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Kind\tID\tName\tMultiplier\tPrice factor")
	for _, e := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%.3f\tx%.3f\n",
			e.Kind,
			e.ID,
			sanitizeInline(e.Name),
			e.Value,
			e.Factor,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
