package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Render(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "Entity", "Count")
	table.AddRow("Region", "2")
	table.AddRow("Facility", "6", "ignored")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Entity    Count", lines[0])
	assert.Equal(t, "────────  ─────", lines[1])
	assert.Equal(t, "Region    2", lines[2])
	assert.Equal(t, "Facility  6", lines[3])
	assert.NotContains(t, buf.String(), "ignored")
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true)
	table.AddRow("x")
	table.Render()
	assert.Empty(t, buf.String())
}

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, true, "seeded %d entities", 3)
	Warn(&buf, true, "aborted")
	assert.Equal(t, "✓ seeded 3 entities\n! aborted\n", buf.String())
}
