package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFprintBanner(t *testing.T) {
	var buf bytes.Buffer
	FprintBanner(&buf, "feed", "ColorBlue", "1.0.0", 3)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, ColorBlue))
	assert.Contains(t, out, "version 1.0.0, 3 collector(s) enabled")
	assert.Greater(t, strings.Count(out, "\n"), 2)
}

func TestColorCodeUnknown(t *testing.T) {
	assert.Equal(t, ColorReset, colorCode("ColorPurple"))
	assert.Equal(t, ColorGreen, colorCode("ColorGreen"))
}
