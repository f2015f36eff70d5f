package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduleTable() Table {
	return Table{
		Title:   "Availability schedule from 2026-09-14",
		Columns: []string{"Date", "Start", "End"},
		Rows: [][]string{
			{"2026-09-14", "10:00", "11:00"},
			{"2026-09-21", "10:00", "11:00"},
		},
	}
}

func TestCSV(t *testing.T) {
	out, err := CSV(scheduleTable())
	require.NoError(t, err)
	assert.Equal(t, "Date,Start,End\n2026-09-14,10:00,11:00\n2026-09-21,10:00,11:00\n", string(out))
}

func TestCSVQuotesCells(t *testing.T) {
	table := Table{
		Columns: []string{"Title"},
		Rows:    [][]string{{`Dinner, then a "walk"`}},
	}
	out, err := CSV(table)
	require.NoError(t, err)
	assert.Equal(t, "Title\n\"Dinner, then a \"\"walk\"\"\"\n", string(out))
}

func TestTableValidation(t *testing.T) {
	_, err := CSV(Table{})
	require.Error(t, err)

	ragged := scheduleTable()
	ragged.Rows[1] = []string{"2026-09-21"}
	_, err = CSV(ragged)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestPDF(t *testing.T) {
	out, err := PDF(scheduleTable())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF", string(out[:4]))

	_, err = PDF(Table{})
	require.Error(t, err)
}
