package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeText(t *testing.T) {
	assert.Equal(t, "Total%3A%2014.00%20USD%0A1%2B1", escapeText("Total: 14.00 USD\n1+1"))
}
