package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"caisse/internal/core"
	"caisse/internal/reconcile"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTable() Table {
	revenues := []core.RevenueRecord{
		{
			Date: "2024-01-15", TTC: d("500"), HT: d("450"), TVA: d("50"),
			HTByRate:  core.RateBreakdown(map[string]decimal.Decimal{"10": d("300"), "20": d("150")}),
			TVAByRate: core.RateBreakdown(map[string]decimal.Decimal{"10": d("30"), "20": d("20")}),
		},
		{Date: "2024-01-16", TTC: d("1000.5")},
	}
	entries := []core.CashEntry{
		{ID: "a", Date: "2024-01-15", Especes: d("200"), CBClassique: d("300"), Virement: d("99")},
	}
	rows := reconcile.Merge(revenues, entries).Rows
	return NewTable(rows, reconcile.Aggregate(rows))
}

func TestColumnsAddRateColumns(t *testing.T) {
	table := sampleTable()
	header := table.Header()

	assert.Equal(t, "Date", header[0])
	assert.Equal(t, "Statut", header[len(DefaultColumns())-1])
	assert.Equal(t, []string{"HT 20 %", "TVA 20 %", "HT 10 %", "TVA 10 %"}, header[len(DefaultColumns()):])
}

func TestRecordsFooter(t *testing.T) {
	table := sampleTable()
	records := table.Records(Plain)
	require.Len(t, records, 4)

	first := records[1]
	assert.Equal(t, "15/01/2024", first[0])
	assert.Equal(t, "500,00", first[1])
	assert.Equal(t, "Équilibré", first[12])

	pending := records[2]
	assert.Equal(t, "En attente", pending[12])
	assert.Equal(t, "-1000,50", pending[11])

	footer := records[3]
	assert.Equal(t, "Total", footer[0])
	assert.Equal(t, "1500,50", footer[1])
	assert.Equal(t, "99,00", footer[9])
	assert.Equal(t, "", footer[12])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Date;CA TTC;CA HT;TVA;"))
	assert.True(t, strings.HasPrefix(lines[1], "15/01/2024;500,00;450,00;50,00;"))
	assert.True(t, strings.HasPrefix(lines[3], "Total;1500,50;"))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "Janvier", sampleTable()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Janvier"}, f.GetSheetList())

	header, err := f.GetCellValue("Janvier", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Date", header)

	ttc, err := f.GetCellValue("Janvier", "B2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "500", ttc)

	total, err := f.GetCellValue("Janvier", "B4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1500.5", total)
}

func TestDisplayDateKeepsUnparseable(t *testing.T) {
	assert.Equal(t, "01/02/2024", DisplayDate("2024/02/01"))
	assert.Equal(t, "n/a", DisplayDate("n/a"))
}
