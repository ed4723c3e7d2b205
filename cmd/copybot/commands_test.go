package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/monitor"
)

func TestPrintActivity(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	trades := []monitor.Activity{{Timestamp: now.Add(-2 * time.Hour).Unix()}}
	reports := []monitor.ActivityReport{
		monitor.Classify("0xabc", trades, now),
		monitor.Classify("0xdef", nil, now),
	}

	var buf bytes.Buffer
	require.NoError(t, printActivity(&buf, reports))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "very_active")
	assert.Contains(t, lines[1], "2h0m0s")
	assert.Contains(t, lines[2], "dead")
}

func TestPrintPositions(t *testing.T) {
	var buf bytes.Buffer
	printPositions(&buf, nil)
	assert.Contains(t, buf.String(), "没有持仓")

	buf.Reset()
	printPositions(&buf, []domain.OwnPosition{
		{Title: "Will it rain?", Outcome: "Yes", Size: 10, CurrentValue: 4.5},
		{Title: "Another market", Outcome: "No", Size: 2, CurrentValue: 1.5},
	})
	assert.Contains(t, buf.String(), "Will it rain?")
	assert.Contains(t, buf.String(), "6.00")
}

func TestTruncateAndShortID(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "123456…wxyz", shortID("1234567890abcdefwxyz"))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "sell-all", "check-activity", "balance"} {
		assert.True(t, names[want], "缺少子命令 %s", want)
	}
}
