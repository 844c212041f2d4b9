package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Number("INV-{YYYY}{MM}-{SEQ6}", start, 7)
	require.NoError(t, err)
	assert.Equal(t, "INV-202401-000007", got)

	got, err = Number("{YY}/{SEQ}", start, 1234)
	require.NoError(t, err)
	assert.Equal(t, "24/1234", got)
}

func TestNumberRejects(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Number("", start, 1)
	assert.Error(t, err)
	_, err = Number("INV-{SEQ}", start, 0)
	assert.Error(t, err)
	_, err = Number("INV-{QQ}-{SEQ}", start, 1)
	assert.Error(t, err)
}

func TestPDFFilename(t *testing.T) {
	assert.Equal(t, "inv-202401-000007-acme-logistics.pdf", PDFFilename("INV-202401-000007", "Acme Logistics"))
	assert.Equal(t, "invoice.pdf", PDFFilename("", ""))
}
