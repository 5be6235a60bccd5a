package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func TestRenderJobResult(t *testing.T) {
	duration := 95.0
	out := renderJobResult(&domain.JobResult{
		JobID:          "job-1",
		Mode:           domain.DeliveryArchive,
		State:          domain.JobCompletedPartial,
		SuccessCount:   1,
		TotalAttempted: 2,
		Items: []domain.ItemResult{
			{GlobalIndex: 4, Success: true, Title: strPtr("First clip"), DurationSeconds: &duration, PublicURL: strPtr("https://pub.example.com/jobs/job-1/job-1.zip")},
			{GlobalIndex: 5, Error: strPtr("no usable encoding")},
		},
		Archive: &domain.ArchiveResult{PublicURL: "https://pub.example.com/jobs/job-1/job-1.zip", MemberCount: 1},
	})

	assert.Contains(t, out, "Job job-1: completed-partial (1/2 succeeded, archive mode)")
	assert.Contains(t, out, "URL / Error")
	assert.Contains(t, out, "First clip")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "no usable encoding")
	assert.Contains(t, out, "Archive: https://pub.example.com/jobs/job-1/job-1.zip (1 files)")
}

func TestRenderListResult(t *testing.T) {
	out := renderListResult(&domain.ListResult{Items: []domain.ItemReference{
		{URL: "https://media.example.com/watch/3", GlobalIndex: 3, PageLocalIndex: 1},
	}})
	assert.Contains(t, out, "https://media.example.com/watch/3")
	assert.Contains(t, out, "Global")
	assert.NotContains(t, out, "GLOBAL")
}

func TestRenderTable_PadsShortRows(t *testing.T) {
	out := renderTable([]column{{title: "Name"}, {title: "Size", align: text.AlignRight}}, [][]string{{"only"}})
	assert.Contains(t, out, "only")
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Size")
	assert.Empty(t, renderTable(nil, nil))
}

func TestWriteJSON(t *testing.T) {
	cmd := &cobra.Command{}
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, writeJSON(cmd, map[string]int{"success_count": 2}))
	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["success_count"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestWindowFlags_Parse(t *testing.T) {
	cfg := testConfig()
	f := windowFlags{url: "https://media.example.com/list", pageIndex: 2}
	listing, window, err := f.parse(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/list", listing.String())
	assert.Equal(t, domain.PageWindow{PageSize: cfg.Jobs.DefaultPageSize, PageIndex: 2}, window)

	f.pageSize = cfg.Jobs.MaxPageSize + 1
	_, _, err = f.parse(cfg)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
