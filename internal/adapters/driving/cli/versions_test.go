package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

func TestVersionsCmd_Use(t *testing.T) {
	assert.Equal(t, "versions", versionsCmd.Use)
}

func TestVersionsCmd_ListsSorted(t *testing.T) {
	svcs := defaultTestServices()
	cleanup := setupTestServices(svcs)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"versions"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "docs/a.md")
	assert.Contains(t, out, "docs/b.md")
	assert.Contains(t, out, "Total: 2 documents")
	assert.Less(t, strings.Index(out, "docs/a.md"), strings.Index(out, "docs/b.md"))
}

func TestVersionsCmd_Empty(t *testing.T) {
	svcs := defaultTestServices()
	svcs.Store = &mockStore{versions: []domain.DocumentVersion{}}
	cleanup := setupTestServices(svcs)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"versions"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No documents indexed")
}

func TestVersionsCmd_StoreNotConfigured(t *testing.T) {
	cleanup := setupTestServices(&Services{})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"versions"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store not configured")
}
