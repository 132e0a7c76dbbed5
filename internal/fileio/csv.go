package fileio

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readCSV reads CSV, auto-detecting encoding and converting to UTF-8.
// It supports UTF-8 (with or without BOM), GB18030/GBK, Big5 and Windows-1251.
func readCSV(r io.Reader, opt ReadOptions) ([][]string, error) {
	br := bufio.NewReader(r)

	// Peek a bit to detect encoding
	peek, _ := br.Peek(4096)
	dec := decoderFor(detectCharset(peek))
	cr := csv.NewReader(transform.NewReader(br, dec))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	limit := rowLimit(opt)
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
		if limit > 0 && len(rows) >= limit && countFilled(rows[opt.headerRow():]) >= opt.MaxRows {
			break
		}
	}
	return rows, nil
}

// detectCharset trusts valid UTF-8 first: chardet is unreliable on short CJK samples.
func detectCharset(peek []byte) string {
	if len(peek) == 0 || validUTF8Prefix(peek) {
		return "utf-8"
	}
	det, err := chardet.NewTextDetector().DetectBest(peek)
	if err != nil || det == nil {
		return "gb18030"
	}
	return strings.ToLower(det.Charset)
}

// validUTF8Prefix allows a rune cut in half at the end of the peek window.
func validUTF8Prefix(b []byte) bool {
	for cut := 0; cut < utf8.UTFMax && cut < len(b); cut++ {
		if utf8.Valid(b[:len(b)-cut]) {
			return true
		}
	}
	return false
}

func decoderFor(cs string) transform.Transformer {
	var enc encoding.Encoding
	switch cs {
	case "gb-18030", "gb18030", "gbk", "gb2312":
		enc = simplifiedchinese.GB18030
	case "big5":
		enc = traditionalchinese.Big5
	case "windows-1251", "cp1251":
		enc = charmap.Windows1251
	case "iso-8859-1", "windows-1252":
		enc = charmap.Windows1252
	case "utf-16le":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case "utf-8":
		// dropping a leading BOM written by Excel
		return unicode.BOMOverride(unicode.UTF8.NewDecoder())
	default:
		// other multibyte guesses (euc-jp, shift_jis, ...) on our data are misdetected GBK
		enc = simplifiedchinese.GB18030
	}
	return enc.NewDecoder()
}
