package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	_, err := ExtractText(nil)
	assert.Error(t, err)
}
