package fileio

import (
	"io"

	"github.com/cockroachdb/errors"
	excelize "github.com/xuri/excelize/v2"
)

func readXLSX(r io.Reader, opt ReadOptions) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := opt.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.Newf("sheet %q not found", sheet)
	}

	it, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	limit := rowLimit(opt)
	var rows [][]string
	for it.Next() {
		cols, err := it.Columns()
		if err != nil {
			return nil, err
		}
		rows = append(rows, cols)
		if limit > 0 && len(rows) >= limit && !allBlank(cols) {
			// превью: дочитываем только пока не набрали нужное число непустых строк
			if countFilled(rows[opt.headerRow():]) >= opt.MaxRows {
				break
			}
		}
	}
	return rows, it.Error()
}

func allBlank(cols []string) bool {
	for _, c := range cols {
		if normalizeCell(c) != "" {
			return false
		}
	}
	return true
}

func countFilled(rows [][]string) int {
	n := 0
	for _, r := range rows {
		if !allBlank(r) {
			n++
		}
	}
	return n
}
