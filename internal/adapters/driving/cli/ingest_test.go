package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

func TestIngestCmd_Use(t *testing.T) {
	assert.Equal(t, "ingest", ingestCmd.Use)
}

func TestIngestCmd_ReportsCounts(t *testing.T) {
	svcs := defaultTestServices()
	cleanup := setupTestServices(svcs)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "3 documents, 3 succeeded, 0 failed")
	assert.Equal(t, 1, svcs.Ingestor.(*mockIngestor).calls)
}

func TestIngestCmd_FailedDocumentsReturnError(t *testing.T) {
	svcs := defaultTestServices()
	svcs.Ingestor = &mockIngestor{
		result: &domain.IngestResult{
			TotalDocuments:      2,
			SuccessfulDocuments: 1,
			FailedDocuments:     1,
			Errors: []domain.DocumentError{
				{DocumentKey: "docs/bad.md", Err: errors.New("embed timeout")},
			},
		},
	}
	cleanup := setupTestServices(svcs)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents failed")
	assert.Contains(t, buf.String(), "docs/bad.md")
	assert.Contains(t, buf.String(), "embed timeout")
}

func TestIngestCmd_IngestorNotConfigured(t *testing.T) {
	cleanup := setupTestServices(&Services{})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingestor not configured")
}

func TestIngestCmd_IngestError(t *testing.T) {
	svcs := defaultTestServices()
	svcs.Ingestor = &mockIngestor{err: errors.New("loader unreachable")}
	cleanup := setupTestServices(svcs)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest failed")
}
