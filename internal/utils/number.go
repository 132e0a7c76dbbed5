package utils

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	rxPlainNum     = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	rxThousandsSep = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	rxLeadingZero  = regexp.MustCompile(`^[-+]?0\d`)
)

// float64 точно держит только 15 значащих цифр; длиннее: ИНН, паспорта,
// номера карт и заказов, их оставляем текстом
const maxSignificantDigits = 15

// ParseNumber парсит "1,234.50", "1 234,50", "１２３" (full-width), NBSP/NNBSP и т.п.
// Строки с мусором ("11栋1601", "A-12") числом не считаются.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(width.Narrow.String(s))
	if s == "" {
		return 0, false
	}
	// убрать неразрывные/узкие пробелы и обычные пробелы внутри числа
	s = strings.NewReplacer("\u00A0", "", "\u202F", "", " ", "", "\t", "").Replace(s)

	// коды с ведущим нулём (артикулы, индексы) оставляем текстом
	if rxLeadingZero.MatchString(s) && !strings.HasPrefix(strings.TrimLeft(s, "+-"), "0.") {
		return 0, false
	}

	switch {
	case rxThousandsSep.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1 && !strings.Contains(s, "."):
		// десятичная запятая: 0,5 → 0.5
		s = strings.Replace(s, ",", ".", 1)
	}
	if !rxPlainNum.MatchString(s) {
		return 0, false
	}
	if significantDigits(s) > maxSignificantDigits {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// significantDigits считает цифры мантиссы без ведущих нулей.
func significantDigits(s string) int {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "+-")
	s = strings.Replace(s, ".", "", 1)
	return len(strings.TrimLeft(s, "0"))
}
