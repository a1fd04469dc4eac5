package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/dataset"
	"finboard/internal/sheets"
)

// Datasets are the two inputs of the dashboard, loaded once at startup.
type Datasets struct {
	Tax  *dataset.TaxDataset
	Tips *dataset.TipDataset
}

// LoadDatasets reads and binds both tables concurrently. The first failure
// cancels the other read and is returned; no partial result is produced.
func LoadDatasets(ctx context.Context, reader sheets.TableReader, taxName, tipsName string) (*Datasets, error) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var out Datasets
	g.Go(func() error {
		t, err := reader.ReadTable(gctx, taxName)
		if err != nil {
			return fmt.Errorf("load tax dataset %s: %w", taxName, err)
		}
		ds, err := dataset.BindTax(t)
		if err != nil {
			return fmt.Errorf("bind tax dataset %s: %w", taxName, err)
		}
		out.Tax = ds
		return nil
	})
	g.Go(func() error {
		t, err := reader.ReadTable(gctx, tipsName)
		if err != nil {
			return fmt.Errorf("load tips dataset %s: %w", tipsName, err)
		}
		ds, err := dataset.BindTips(t)
		if err != nil {
			return fmt.Errorf("bind tips dataset %s: %w", tipsName, err)
		}
		out.Tips = ds
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Datasets loaded",
		"tax", out.Tax.Name(), "tax_rows", out.Tax.Len(),
		"tips", out.Tips.Name(), "tips_rows", out.Tips.Len(),
		"duration", time.Since(start))
	return &out, nil
}
