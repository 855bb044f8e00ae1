package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolEndMatchByID(t *testing.T) {
	stats := NewExecutionStats()
	stats.RecordToolStart("Read", "tu-1")
	stats.RecordToolStart("Read", "tu-2")

	inv := stats.RecordToolEnd("", "tu-1", true, "")
	require.NotNil(t, inv)
	assert.Equal(t, "tu-1", inv.ID)
	assert.True(t, inv.Finished())
	require.NotNil(t, inv.Success)
	assert.True(t, *inv.Success)
}

func TestRecordToolEndMatchByNameUnfinishedFirst(t *testing.T) {
	stats := NewExecutionStats()
	stats.RecordToolStart("Bash", "")
	stats.RecordToolStart("Bash", "")

	first := stats.RecordToolEnd("Bash", "", true, "")
	require.NotNil(t, first)
	second := stats.RecordToolEnd("Bash", "", false, "exit 1")
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	for _, inv := range stats.Invocations() {
		assert.True(t, inv.Finished())
	}
}

func TestRecordToolEndNoMatch(t *testing.T) {
	stats := NewExecutionStats()
	assert.Nil(t, stats.RecordToolEnd("Never", "tu-x", true, ""))
}

func TestToolNamesInOrderDeduplicates(t *testing.T) {
	stats := NewExecutionStats()
	stats.RecordToolStart("Read", "1")
	stats.RecordToolStart("Bash", "2")
	stats.RecordToolStart("Read", "3")
	stats.RecordToolStart("Edit", "4")

	assert.Equal(t, []string{"Read", "Bash", "Edit"}, stats.ToolNamesInOrder())
}

func TestFinishStampsOnce(t *testing.T) {
	stats := NewExecutionStats()
	first := stats.Finish()
	second := stats.Finish()
	assert.Equal(t, first, second)
}

func TestTokenAccumulation(t *testing.T) {
	stats := NewExecutionStats()
	stats.AddTokens(100)
	stats.AddTokens(23)
	assert.Equal(t, 123, stats.TokensUsed())
}
