package fileio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"colmatch-service/internal/dataset"
)

const ordersCSV = "订单地址,门店地址,数量\n" +
	"珠海店荷塘物语11栋1601,珠海店+荷塘物语11栋1601,3\n" +
	",,\n" +
	"广州店天河路123号,广州店-天河路123,\n"

func TestReadCSVUTF8(t *testing.T) {
	ds, err := ReadAny(strings.NewReader(ordersCSV), "orders.csv", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "orders", ds.Name)
	assert.Equal(t, []string{"订单地址", "门店地址", "数量"}, ds.Columns)
	require.Equal(t, 2, ds.Len(), "blank rows are skipped")
	assert.Equal(t, dataset.Number, ds.Rows[0][2].Kind)
	assert.True(t, ds.Rows[1][2].IsNull())
}

func TestReadCSVWithBOM(t *testing.T) {
	ds, err := ReadAny(strings.NewReader("\ufeff"+ordersCSV), "orders.csv", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "订单地址", ds.Columns[0])
}

func TestReadCSVGB18030(t *testing.T) {
	// a longer sample gives the detector enough bytes
	body := strings.Repeat(ordersCSV[strings.Index(ordersCSV, "\n")+1:], 20)
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String("订单地址,门店地址,数量\n" + body)
	require.NoError(t, err)

	ds, err := ReadAny(strings.NewReader(encoded), "orders.csv", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"订单地址", "门店地址", "数量"}, ds.Columns)
	assert.Equal(t, "珠海店荷塘物语11栋1601", ds.Rows[0][0].String())
}

func TestReadPreviewLimitsRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i < 100; i++ {
		b.WriteString("row\n")
	}
	ds, err := ReadAny(strings.NewReader(b.String()), "big.csv", ReadOptions{MaxRows: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, ds.Len())
}

func TestHeaderRowAndDuplicates(t *testing.T) {
	src := "report title\n" +
		"name,,name\n" +
		"a,b,c\n"
	ds, err := ReadAny(strings.NewReader(src), "r.csv", ReadOptions{HeaderRow: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "Column 2", "name.1"}, ds.Columns)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "c", ds.Rows[0][2].String())
}

func TestUnsupportedExtension(t *testing.T) {
	_, err := ReadAny(strings.NewReader(""), "notes.docx", ReadOptions{})
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.True(t, IsSpreadsheet("a.XLSX"))
	assert.True(t, IsSpreadsheet("b.xls"))
	assert.False(t, IsSpreadsheet("c.csv"))
	assert.True(t, IsSupported("c.csv"))
}

func TestXLSXRoundTrip(t *testing.T) {
	src, err := ReadAny(strings.NewReader(ordersCSV), "orders.csv", ReadOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteAny(&buf, "out.xlsx", src))

	got, err := ReadAny(bytes.NewReader(buf.Bytes()), "out.xlsx", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, src.Columns, got.Columns)
	require.Equal(t, src.Len(), got.Len())
	assert.Equal(t, "广州店-天河路123", got.Rows[1][1].String())
	assert.Equal(t, "3", got.Rows[0][2].String())

	_, err = ReadAny(bytes.NewReader(buf.Bytes()), "out.xlsx", ReadOptions{Sheet: "missing"})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	ds := dataset.New("t", []string{"a", "b"})
	ds.AppendRow([]dataset.Value{dataset.TextValue("x,y"), {}})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.Equal(t, "\ufeffa,b\n\"x,y\",\n", buf.String())
}

func TestCSVRoundTripKeepsCells(t *testing.T) {
	in := "\ufeff身份证号,卡号,金额,日期,编码\n" +
		"440106199001011234,6222020200112233445,\"1,234.50\",2024/3/1,007\n" +
		"110105198512120019,,3.10,2024-03-01 08:30:00,A-12\n"

	ds, err := ReadAny(strings.NewReader(in), "ids.csv", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, dataset.Text, ds.Rows[0][0].Kind)
	assert.Equal(t, dataset.Number, ds.Rows[0][2].Kind)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	assert.Equal(t, in, buf.String())
}

func TestReadXLSRejectsNonBIFF(t *testing.T) {
	_, err := ReadAny(strings.NewReader("this is not a workbook, just text"), "broken.xls", ReadOptions{})
	assert.Error(t, err)

	_, err = ReadAny(bytes.NewReader(nil), "empty.xls", ReadOptions{MaxRows: 20})
	assert.Error(t, err)
}
