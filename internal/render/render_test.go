package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdfutil "github.com/dharsanguruparan/amenagements/internal/pdf"
)

func TestEncodeDecisionPDF(t *testing.T) {
	data, err := New().Encode(DecisionDocument{
		Numero:       12,
		Annee:        2024,
		Beneficiaire: "Léa Martin",
		Amenagements: []AmenagementLigne{{Categorie: "Temps", Libelle: "Tiers-temps"}},
		DateEdition:  time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}, FormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	summary, err := pdfutil.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
}

func TestEncodeCSV(t *testing.T) {
	data, err := New().Encode(Table{
		Header: []string{"a", "b"},
		Rows:   [][]string{{"1", "x;y"}, {"2", ""}},
	}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;\"x;y\"\n2;\n", string(data))
}

func TestEncodeErrorsAreTyped(t *testing.T) {
	_, err := New().Encode("nope", FormatPDF)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Retryable())
	assert.Equal(t, FormatPDF, rerr.Format)

	_, err = New().Encode(Table{Header: []string{"a"}, Rows: [][]string{{"1", "2"}}}, FormatCSV)
	require.True(t, errors.As(err, &rerr))
}

func TestMimeTypes(t *testing.T) {
	assert.Equal(t, "application/pdf", FormatPDF.MimeType())
	assert.Equal(t, "text/csv", FormatCSV.MimeType())
}
