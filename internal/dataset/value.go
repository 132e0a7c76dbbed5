package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"colmatch-service/internal/utils"
)

// TimeLayout is how timestamps are rendered in tables and exports.
const TimeLayout = "2006-01-02 15:04:05"

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Text
	Number
	Time
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Time:
		return "time"
	default:
		return "null"
	}
}

// Value is a single cell. The zero Value is Null.
// Raw keeps the source text of inferred numbers and times so the cell is
// written back exactly as it was read.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
	Raw    string
}

func TextValue(s string) Value { return Value{Kind: Text, Text: s} }
func NumberValue(f float64) Value { return Value{Kind: Number, Number: f} }
func TimeValue(t time.Time) Value { return Value{Kind: Time, Time: t} }
func (v Value) IsNull() bool { return v.Kind == Null }
func (v Value) Equal(o Value) bool { return v.Kind == o.Kind && v.String() == o.String() }

// String renders the cell the way the table shows it; Null renders as "".
func (v Value) String() string {
	if v.Raw != "" && v.Kind != Null {
		return v.Raw
	}
	switch v.Kind {
	case Text:
		return v.Text
	case Number:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case Time:
		return v.Time.Format(TimeLayout)
	default:
		return ""
	}
}

// Any returns a driver/JSON friendly representation (nil for Null).
func (v Value) Any() any {
	switch v.Kind {
	case Text:
		return v.Text
	case Number:
		return v.Number
	case Time:
		return v.Time.Format(TimeLayout)
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

var timeLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04",
	"2006/01/02",
	"2006/1/2",
	"01-02-06", // excelize default for builtin date format 14
	"1-2-06 15:04",
}

// Infer turns a raw spreadsheet/CSV cell into a typed Value.
func Infer(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}
	}
	if f, ok := utils.ParseNumber(s); ok {
		v := NumberValue(f)
		v.Raw = s
		return v
	}
	if strings.ContainsAny(s, "-/") && len(s) <= 25 {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				v := TimeValue(t)
				v.Raw = s
				return v
			}
		}
	}
	return TextValue(raw)
}
