package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"dynamic-flea-price/internal/catalog"
)

// CheatSheet lists every priced item id and category id with its display
// name, for hand-authoring the weight maps of the mod config.
func (a *App) CheatSheet(ctx context.Context, opts CheatSheetOptions) error {
	cat, err := a.loadCatalog(ctx, true)
	if err != nil {
		return err
	}

	groups := cat.PricedItemsByCategory()
	if len(groups) == 0 {
		return errors.New("catalog has no priced items; check catalog.prices and catalog.handbook")
	}

	if opts.TextPath == "" || opts.TextPath == "-" {
		if err := writeCheatSheet(os.Stdout, cat, groups); err != nil {
			return err
		}
	} else {
		if err := ensureDir(opts.TextPath); err != nil {
			return err
		}
		file, err := os.Create(opts.TextPath)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := writeCheatSheet(file, cat, groups); err != nil {
			return err
		}
	}

	if opts.XLSXPath != "" {
		if err := writeCheatSheetXLSX(opts.XLSXPath, cat, groups); err != nil {
			return err
		}
	}

	a.Logger.Info().Int("categories", len(groups)).Msg("cheat sheet written")
	return nil
}

func writeCheatSheet(w io.Writer, cat *catalog.Catalog, groups []catalog.Group) error {
	if _, err := fmt.Fprintln(w, "Category only:"); err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s | %s\n", g.CategoryID, cat.Name(g.CategoryID))
	}

	fmt.Fprintln(w, "\nCategory and items:")
	for _, g := range groups {
		fmt.Fprintf(w, "\n%s\t | %s\n", g.CategoryID, cat.Name(g.CategoryID))
		for _, tpl := range g.Items {
			fmt.Fprintf(w, "\t%s | %s\n", tpl, cat.Name(tpl))
		}
	}
	return nil
}

func writeCheatSheetXLSX(path string, cat *catalog.Catalog, groups []catalog.Group) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const (
		categoriesSheet = "Categories"
		itemsSheet      = "Items"
	)
	if err := f.SetSheetName("Sheet1", categoriesSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	if err := f.SetSheetRow(categoriesSheet, "A1", &[]any{"Category ID", "Name", "Items"}); err != nil {
		return err
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &[]any{"Item ID", "Name", "Category ID", "Category", "Handbook price", "Flea price"}); err != nil {
		return err
	}

	itemRow := 2
	for i, g := range groups {
		catName := cat.Name(g.CategoryID)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(categoriesSheet, cell, &[]any{g.CategoryID, catName, len(g.Items)}); err != nil {
			return err
		}
		for _, tpl := range g.Items {
			handbook, _ := cat.HandbookPrice(tpl)
			fleaPrice, _ := cat.FleaPrice(tpl)
			cell, _ := excelize.CoordinatesToCellName(1, itemRow)
			if err := f.SetSheetRow(itemsSheet, cell, &[]any{tpl, cat.Name(tpl), g.CategoryID, catName, handbook, fleaPrice}); err != nil {
				return err
			}
			itemRow++
		}
	}

	for _, sheet := range []string{categoriesSheet, itemsSheet} {
		if err := f.SetColWidth(sheet, "A", "D", 28); err != nil {
			return err
		}
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
