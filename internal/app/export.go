package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
)

// chartBars caps the bar chart; beyond this labels become unreadable.
const chartBars = 25

// Export writes the current multipliers as CSV and/or a PNG bar chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	rt, err := a.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	state, _ := rt.engine.Snapshot()
	entries := collectEntries(state, rt.catalog)
	if len(entries) == 0 {
		a.Logger.Info().Msg("no flea pressure to export")
		return nil
	}
	if len(entries) > opts.MaxRows {
		entries = entries[:opts.MaxRows]
	}
	a.Logger.Info().Int("exported", len(entries)).Msg("exporting multipliers")

	if opts.CSVPath != "" {
		if err := writeEntriesCSV(opts.CSVPath, entries); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeEntriesPNG(opts.PNGPath, entries); err != nil {
			return err
		}
	}

	return nil
}

func writeEntriesCSV(path string, entries []entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"kind", "id", "name", "multiplier", "price_factor"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		record := []string{
			e.Kind,
			e.ID,
			e.Name,
			strconv.FormatFloat(e.Value, 'f', -1, 64),
			strconv.FormatFloat(e.Factor, 'f', 6, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeEntriesPNG(path string, entries []entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	if len(entries) > chartBars {
		entries = entries[:chartBars]
	}

	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		label := []rune(e.Name)
		if len(label) > 18 {
			label = append(label[:17], '~')
		}
		bars = append(bars, chart.Value{Label: string(label), Value: e.Value})
	}
	// a lone bar gives the y axis a zero-width range
	if len(bars) == 1 {
		bars = append(bars, chart.Value{Label: "", Value: 0})
	}

	graph := chart.BarChart{
		Title:        "Flea pressure",
		Width:        1280,
		Height:       720,
		BarWidth:     36,
		UseBaseValue: true,
		BaseValue:    0,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Bottom: 40},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
