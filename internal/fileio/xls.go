// Надёжный парсер .xls: фиксируем ширину таблицы сами и читаем все ячейки до неё.
package fileio

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	xls "github.com/extrame/xls"
)

// вычисляем "реальную" ширину: пробегаем разумное число колонок и ищем непустые
func computeMaxCols(sheet *xls.WorkSheet, lastRow int) int {
	const probeMax = 512
	maxCols := 0
	for i := 0; i <= lastRow; i++ {
		r := sheet.Row(i)
		if r == nil {
			continue
		}
		for j := probeMax - 1; j >= maxCols; j-- {
			if normalizeCell(r.Col(j)) != "" {
				maxCols = j + 1
				break
			}
		}
	}
	if maxCols == 0 {
		maxCols = 1
	}
	return maxCols
}

func readXLS(r io.Reader, opt ReadOptions) (rows [][]string, err error) {
	// extrame/xls паникует на битых файлах
	defer func() {
		if rec := recover(); rec != nil {
			rows, err = nil, errors.Newf("xls: malformed workbook: %v", rec)
		}
	}()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// старые .xls из китайских офисных пакетов чаще всего в GBK, но бывает и UTF-8
	var wb *xls.WorkBook
	var lastErr error
	for _, ch := range []string{"utf-8", "gbk", "windows-1251"} {
		wb, err = xls.OpenReader(bytes.NewReader(b), ch)
		if err == nil && wb != nil {
			lastErr = nil
			break
		}
		lastErr = err
	}
	if wb == nil {
		if lastErr == nil {
			lastErr = errors.New("xls: failed to open workbook")
		}
		return nil, lastErr
	}

	sheet := wb.GetSheet(0)
	if opt.Sheet != "" {
		sheet = nil
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil && s.Name == opt.Sheet {
				sheet = s
				break
			}
		}
		if sheet == nil {
			return nil, errors.Newf("sheet %q not found", opt.Sheet)
		}
	}
	if sheet == nil {
		return nil, nil
	}

	lastRow := int(sheet.MaxRow)
	if limit := rowLimit(opt); limit > 0 && limit-1 < lastRow {
		// превью: пустые строки не считаются, поэтому берём с запасом
		lastRow = 2*limit - 1
		if lastRow > int(sheet.MaxRow) {
			lastRow = int(sheet.MaxRow)
		}
	}

	// фиксируем ширину и читаем все строки до неё (НЕ полагаемся на Row.LastCol())
	maxCols := computeMaxCols(sheet, lastRow)
	rows = make([][]string, 0, lastRow+1)
	for i := 0; i <= lastRow; i++ {
		row := sheet.Row(i)
		cols := make([]string, maxCols)
		if row != nil {
			for j := 0; j < maxCols; j++ {
				cols[j] = normalizeCell(row.Col(j)) // безопасно: пустые -> ""
			}
		}
		rows = append(rows, cols)
	}
	return rows, nil
}
