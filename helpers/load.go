package helpers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spektr-org/pivot/engine"
	"github.com/spektr-org/pivot/schema"
)

// ============================================================================
// FILE LOADING: Several CSV/XLSX files into one table
// ============================================================================
// Files are read and parsed concurrently; rows are concatenated in
// argument order. Without a schema, the first file is used for discovery
// and every file is parsed with the result.
// ============================================================================

// LoadFiles reads every path and returns the combined rows and the schema
// used to parse them. sch may be nil.
func LoadFiles(ctx context.Context, paths []string, sch *schema.Config) ([]engine.Row, *schema.Config, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no data files given")
	}

	if sch == nil {
		data, err := readFile(ctx, paths[0])
		if err != nil {
			return nil, nil, err
		}
		discovered, err := discover(paths[0], data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", paths[0], err)
		}
		sch = discovered
	}

	parts := make([][]engine.Row, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			data, err := readFile(ctx, path)
			if err != nil {
				return err
			}
			rows, err := parseFile(path, data, *sch)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	rows := make([]engine.Row, 0, total)
	for _, p := range parts {
		rows = append(rows, p...)
	}

	log.Printf("📂 Loaded %d rows from %d file(s) (%d dims, %d measures)",
		len(rows), len(paths), len(sch.Dimensions), len(sch.Measures))
	return rows, sch, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func isXLSX(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

func discover(path string, data []byte) (*schema.Config, error) {
	opt := schema.DefaultDiscoverOptions()
	opt.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if isXLSX(path) {
		_, sch, err := ParseXLSXAuto(data, opt)
		return sch, err
	}
	_, sch, err := ParseCSVAuto(data, opt)
	return sch, err
}

func parseFile(path string, data []byte, sch schema.Config) ([]engine.Row, error) {
	if isXLSX(path) {
		return ParseXLSX(data, sch)
	}
	return ParseCSV(data, sch)
}
