package fileio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"colmatch-service/internal/dataset"
)

// ErrUnsupported is returned for files that are neither spreadsheets nor CSV.
var ErrUnsupported = errors.New("unsupported file")

// ReadOptions controls how a sheet is turned into a dataset.
type ReadOptions struct {
	HeaderRow int    // строка заголовков (1-based), 0 == 1
	MaxRows   int    // сколько строк данных читать; 0: все (превью читает 20)
	Sheet     string // имя листа xlsx; пусто: первый лист
}

func (o ReadOptions) headerRow() int {
	if o.HeaderRow <= 0 {
		return 1
	}
	return o.HeaderRow
}

// ReadAny выбирает парсер по расширению и возвращает типизированную таблицу.
func ReadAny(r io.Reader, filename string, opt ReadOptions) (*dataset.Dataset, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r, opt)
	case ".xls":
		rows, err = readXLS(r, opt)
	case ".csv", ".txt":
		rows, err = readCSV(r, opt)
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%s", filename)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(filename))
	}
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return toDataset(name, rows, opt), nil
}

// IsSpreadsheet reports whether name is an Excel workbook (drag-and-drop filter).
func IsSpreadsheet(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls", ".xlsm":
		return true
	}
	return false
}

// IsSupported reports whether ReadAny can parse name.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return true
	}
	return IsSpreadsheet(name)
}

// rowLimit: сколько сырых строк нужно прочитать, чтобы получить MaxRows строк данных.
// Пустые строки пропускаются позже, поэтому это нижняя граница, а не точное число.
func rowLimit(opt ReadOptions) int {
	if opt.MaxRows <= 0 {
		return -1
	}
	return opt.headerRow() + opt.MaxRows
}

// pickHeader: берёт строку заголовков, подставляет Column N для пустых
// и переименовывает дубли в name.1, name.2.
func pickHeader(rows [][]string, headerRow int) []string {
	idx := headerRow - 1
	if idx < 0 || idx >= len(rows) {
		idx = 0
	}
	h := rows[idx]
	out := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, v := range h {
		v = normalizeCell(v)
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		if n, dup := seen[v]; dup {
			seen[v] = n + 1
			v = fmt.Sprintf("%s.%d", v, n+1)
		} else {
			seen[v] = 0
		}
		out[i] = v
	}
	return out
}

// toDataset: конвертирует AoA в таблицу, пропуская полностью пустые строки.
func toDataset(name string, rows [][]string, opt ReadOptions) *dataset.Dataset {
	if len(rows) == 0 {
		return dataset.New(name, nil)
	}
	headerRow := opt.headerRow()
	headers := pickHeader(rows, headerRow)
	ds := dataset.New(name, headers)
	for r := headerRow; r < len(rows); r++ {
		if opt.MaxRows > 0 && ds.Len() >= opt.MaxRows {
			break
		}
		rec := rows[r]
		row := make([]dataset.Value, len(headers))
		empty := true
		for c := range headers {
			if c >= len(rec) {
				continue
			}
			v := dataset.Infer(rec[c])
			if !v.IsNull() {
				empty = false
			}
			row[c] = v
		}
		if !empty {
			ds.AppendRow(row)
		}
	}
	return ds
}

// normalizeCell: обрезает пробелы (включая NBSP) и убирает \r, которые оставляют .xls и 1С.
func normalizeCell(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.Trim(s, " \t\n\u00a0\u3000")
}
