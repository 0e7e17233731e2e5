package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseZoom(t *testing.T) {
	t.Run("symbolic test", func(t *testing.T) {
		z, err := ParseZoom("fit")
		assert.NoError(t, err)
		assert.Equal(t, Fit, z.Mode)

		z, err = ParseZoom(" AUTO ")
		assert.NoError(t, err)
		assert.Equal(t, Auto, z.Mode)
		assert.Equal(t, "auto", z.String())
	})

	t.Run("numeric test", func(t *testing.T) {
		z, err := ParseZoom("1.25")
		assert.NoError(t, err)
		assert.Equal(t, Zoom{Mode: Numeric, Scale: 1.25}, z)
		assert.Equal(t, "1.25", z.String())

		z, err = ParseZoom("150%")
		assert.NoError(t, err)
		assert.Equal(t, 1.5, z.Scale)

		z, err = ParseZoom("9")
		assert.NoError(t, err)
		assert.Equal(t, MaxScale, z.Scale)
	})

	t.Run("invalid test", func(t *testing.T) {
		for _, s := range []string{"", "wide", "-1", "0", "NaN"} {
			_, err := ParseZoom(s)
			assert.Error(t, err, s)
		}
	})
}

func TestResolve(t *testing.T) {
	assert.Equal(t, 1.5, Scale(1.5).resolve(600, 800, 1000, 1000))
	assert.InDelta(t, 1.6, Zoom{Mode: Fit}.resolve(600, 800, 1000, 500), 1e-9)
	assert.InDelta(t, 0.575, Zoom{Mode: Auto}.resolve(600, 800, 1000, 500), 1e-9)
	assert.Equal(t, 1.0, Zoom{Mode: Auto}.resolve(600, 800, 0, 0))
}
