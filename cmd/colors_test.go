package cmd

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestPaintStatus(t *testing.T) {
	withoutColor(t)

	for _, s := range []probe.Status{probe.StatusSuccess, probe.StatusPartial, probe.StatusFailed, probe.Status("queued")} {
		assert.Equal(t, string(s), paintStatus(s))
	}
}

func TestPaintSeverity(t *testing.T) {
	withoutColor(t)

	for s := probe.SeverityInfo; s <= probe.SeverityCritical; s++ {
		assert.Equal(t, s.String(), paintSeverity(s))
	}
}
