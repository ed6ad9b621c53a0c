package fileproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCSV(t *testing.T) {
	input := " Customer_ID ,Full_Name,Phone\nabc123,John Doe,+95 1 234\nxyz,Jane,\n"

	rows, headers, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer_ID", "Full_Name", "Phone"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "abc123", rows[0]["Customer_ID"].String())
	assert.Equal(t, "+95 1 234", rows[0]["Phone"].String())
	assert.Equal(t, "", rows[1]["Phone"].String())
}

func TestDecodeCSVShortRowsPadded(t *testing.T) {
	input := "a,b,c\n1,2\n"

	rows, _, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["c"].String())
}

func TestDecodeCSVEmpty(t *testing.T) {
	_, _, err := DecodeCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, _, err = DecodeCSV(strings.NewReader("only,headers\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestValidExtension(t *testing.T) {
	assert.True(t, ValidExtension("customers.csv"))
	assert.True(t, ValidExtension("Customers.XLSX"))
	assert.False(t, ValidExtension("legacy.xls"))
	assert.False(t, ValidExtension("notes.txt"))
	assert.False(t, ValidExtension("noextension"))
}

func TestDecodeDispatch(t *testing.T) {
	rows, _, err := Decode("data.csv", []byte("h\nv\n"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, _, err = Decode("data.xls", []byte{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
