package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// CSV extracts one row set from a delimited text file, named after the file
// stem. Tab-separated files are recognized by extension.
type CSV struct {
	log *zap.Logger
}

func NewCSV(log *zap.Logger) *CSV { return &CSV{log: log} }

func (*CSV) Name() string             { return "csv" }
func (*CSV) Extensions() []string     { return []string{".csv", ".tsv"} }
func (h *CSV) CanHandle(p string) bool { return hasExt(p, h.Extensions()) }

func (h *CSV) Extract(ctx context.Context, path string) []RowSet {
	raw, err := os.ReadFile(path)
	if err != nil {
		h.log.Warn("csv read failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	text, enc := decodeText(raw)

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}
	grid, err := readDelimited(ctx, text, comma)
	if err != nil {
		h.log.Warn("csv parse stopped early", zap.String("file", path), zap.Int("rows", len(grid)), zap.Error(err))
	}
	if len(grid) == 0 {
		h.log.Warn("csv file is empty", zap.String("file", path))
		return nil
	}

	rs := gridRowSet(SanitizeTableName(fileStem(path)), grid, map[string]any{
		"source_file":       path,
		"encoding":          enc,
		"extraction_method": "delimited",
	})
	if len(rs.Rows) == 0 {
		return nil
	}
	return []RowSet{rs}
}

// readDelimited reads every record it can. Malformed records are skipped;
// the grid read so far is returned with the context error on cancellation.
func readDelimited(ctx context.Context, text string, comma rune) ([][]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var grid [][]string
	var skipped error
	for {
		if err := ctx.Err(); err != nil {
			return grid, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return grid, skipped
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped = err
				continue
			}
			return grid, err
		}
		grid = append(grid, rec)
	}
}
