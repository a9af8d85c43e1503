package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("12345678-abcd-efgh"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	runs := []model.Run{
		{
			ID:         "aaaabbbb-1111-2222-3333-444455556666",
			Mode:       model.ModeFull,
			Status:     model.RunCompleted,
			StartedAt:  started,
			FinishedAt: &finished,
			Summary:    &model.Summary{Leads: 10, Matched: 7, Unlocked: 5, Phones: 3},
		},
		{
			ID:        "ccccdddd-1111-2222-3333-444455556666",
			Mode:      model.ModeDryRun,
			Status:    model.RunRunning,
			StartedAt: started,
		},
	}

	var sb strings.Builder
	formatRunsList(&sb, runs)
	out := sb.String()

	assert.Contains(t, out, "aaaabbbb")
	assert.Contains(t, out, "full")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2026-08-01 10:30")
	assert.Contains(t, out, "1m35s")

	// Unfinished run shows no duration and dashes for summary columns.
	assert.Contains(t, out, "ccccdddd")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "-")
}
