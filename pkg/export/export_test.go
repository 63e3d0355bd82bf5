package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Event registrants",
		Columns: []Column{{Key: "name", Label: "Name"}, {Key: "email", Label: "Email"}},
		Rows: []map[string]string{
			{"name": "Ada", "email": "ada@example.com"},
			{"name": "Grace, H.", "email": "grace@example.com"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := NewRenderer().Render(FormatCSV, sampleDataset())
	require.NoError(t, err)
	require.Equal(t, "Name,Email\nAda,ada@example.com\n\"Grace, H.\",grace@example.com\n", string(out))
}

func TestRenderPDF(t *testing.T) {
	out, err := NewRenderer().Render(FormatPDF, sampleDataset())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresColumns(t *testing.T) {
	_, err := NewRenderer().Render(FormatCSV, Dataset{})
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	require.Error(t, err)
}
