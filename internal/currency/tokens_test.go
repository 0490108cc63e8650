package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	assert.Equal(t, "1,234.56", Strip("€1,234.56"))
	assert.Equal(t, "37,500", Strip("37,500 EUR"))
	assert.Equal(t, "50", Strip("50"))
	assert.Equal(t, "eur", Strip("eur"))
}

func TestDetect(t *testing.T) {
	code, ok := Detect("€1,234.56")
	assert.True(t, ok)
	assert.Equal(t, "EUR", code)

	code, ok = Detect("50 NOK")
	assert.True(t, ok)
	assert.Equal(t, "NOK", code)

	_, ok = Detect("1234.56")
	assert.False(t, ok)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("EUR"))
	assert.False(t, Known("XXX"))
}
