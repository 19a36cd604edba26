package handlers

import (
	"context"
	"os"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Excel extracts one row set per worksheet. Tables are named after the
// sanitized sheet name; the catalog suffixes names that collide across files.
//
// Legacy binary .xls workbooks are not claimed.
type Excel struct {
	log *zap.Logger
}

func NewExcel(log *zap.Logger) *Excel { return &Excel{log: log} }

func (*Excel) Name() string         { return "excel" }
func (*Excel) Extensions() []string { return []string{".xlsx", ".xlsm"} }

func (h *Excel) CanHandle(p string) bool {
	return !IsSkippable(p) && hasExt(p, h.Extensions())
}

func (h *Excel) Extract(ctx context.Context, path string) []RowSet {
	f, err := excelize.OpenFile(path)
	if err != nil {
		h.log.Error("open workbook failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	h.log.Info("workbook opened", zap.String("file", path), zap.Int("sheets", len(sheets)))

	var out []RowSet
	for _, sheet := range sheets {
		if ctx.Err() != nil {
			return out
		}
		grid, err := f.GetRows(sheet)
		if err != nil {
			h.log.Warn("read sheet failed", zap.String("file", path), zap.String("sheet", sheet), zap.Error(err))
			continue
		}
		rs := gridRowSet(SanitizeTableName(sheet), grid, map[string]any{
			"source_file":       path,
			"sheet_name":        sheet,
			"extraction_method": "spreadsheet",
		})
		if len(rs.Rows) == 0 {
			h.log.Warn("sheet is empty", zap.String("file", path), zap.String("sheet", sheet))
			continue
		}
		h.log.Info("sheet extracted", zap.String("sheet", sheet), zap.Int("rows", len(rs.Rows)))
		out = append(out, rs)
	}
	return out
}

// fileSize is shared by handlers that report basic file info.
func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
