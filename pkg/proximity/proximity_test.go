package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseness(t *testing.T) {
	assert.Equal(t, float64(100), Closeness(0, 2))
	assert.Equal(t, float64(50), Closeness(1, 2))
	assert.Equal(t, float64(0), Closeness(2, 2))
	assert.Equal(t, float64(0), Closeness(3, 2))
	assert.Equal(t, float64(0), Closeness(1, 0))
}

func TestLabel(t *testing.T) {
	cases := map[float64]string{
		100: "muy cerca",
		75:  "muy cerca",
		60:  "cerca",
		30:  "en la zona",
		1:   "lejos",
		0:   "",
	}
	for pct, want := range cases {
		assert.Equal(t, want, Label(pct), "pct %v", pct)
	}
}
