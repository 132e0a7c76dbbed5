package fileio

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	excelize "github.com/xuri/excelize/v2"

	"colmatch-service/internal/dataset"
)

const sheetName = "Sheet1"

// WriteAny picks the writer by extension (.xlsx or .csv).
func WriteAny(w io.Writer, filename string, ds *dataset.Dataset) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return WriteXLSX(w, ds)
	case ".csv":
		return WriteCSV(w, ds)
	default:
		return errors.Wrapf(ErrUnsupported, "%s", filename)
	}
}

// WriteXLSX streams the table into a single-sheet workbook.
func WriteXLSX(w io.Writer, ds *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	header := make([]any, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, row := range ds.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v.Any()
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return errors.Wrapf(err, "row %d", r+1)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// WriteCSV writes UTF-8 with BOM so Excel opens CJK text correctly.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return err
	}
	rec := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = row[i].String()
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
