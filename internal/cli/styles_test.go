package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		format func(string) string
		name   string
		icon   string
	}{
		{name: "success", format: FormatSuccess, icon: SuccessIcon},
		{name: "error", format: FormatError, icon: ErrorIcon},
		{name: "warning", format: FormatWarning, icon: WarningIcon},
		{name: "info", format: FormatInfo, icon: InfoIcon},
		{name: "title", format: FormatTitle, icon: CuminIcon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.format("3 rules applied")
			assert.Contains(t, out, tt.icon)
			assert.Contains(t, out, "3 rules applied")
		})
	}
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Summary", "updated: 3")
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "updated: 3")
	assert.Greater(t, strings.Count(out, "\n"), 2, "box spans several lines")
}

func TestNewProgressBar(t *testing.T) {
	var buf bytes.Buffer

	bar := NewProgressBar(&buf, 3, "Applying rules...")
	for range 3 {
		require.NoError(t, bar.Add(1))
	}
	require.NoError(t, bar.Finish())

	assert.True(t, bar.IsFinished())
	assert.Contains(t, buf.String(), "Applying rules...")
}
