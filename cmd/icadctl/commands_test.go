package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"kb", "media", "bootstrap", "search", "mcp"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	kbNames := map[string]bool{}
	for _, c := range kbCmd.Commands() {
		kbNames[c.Name()] = true
	}
	for _, want := range []string{"ingest", "stats", "clear", "reindex", "watch"} {
		assert.True(t, kbNames[want], "missing kb command %s", want)
	}
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestMediaIngestCmd_RequiresFile(t *testing.T) {
	_, err := execute(t, "media", "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestKBClearCmd_RequiresConfirmation(t *testing.T) {
	kbYes = false
	_, err := execute(t, "kb", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestBootstrapCmd_RequiresPassword(t *testing.T) {
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")
	_, err := execute(t, "bootstrap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOTSTRAP_ADMIN_PASSWORD")
}

func TestKBIngestCmd_Flags(t *testing.T) {
	columns := kbIngestCmd.Flags().Lookup("columns")
	require.NotNil(t, columns)
	assert.Equal(t, "[]", columns.DefValue)

	yes := kbClearCmd.Flags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "y", yes.Shorthand)
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "", formatScore(nil))
	s := 0.8126
	assert.Equal(t, "(0.813)", formatScore(&s))
}

type indexedStore struct {
	retrieval.VectorStore
	calls int
}

func (s *indexedStore) Reindex(context.Context) error {
	s.calls++
	return nil
}

func TestReindex(t *testing.T) {
	store := &indexedStore{}
	require.NoError(t, reindex(context.Background(), store))
	assert.Equal(t, 1, store.calls)

	var plain retrieval.VectorStore = struct{ retrieval.VectorStore }{}
	assert.ErrorIs(t, reindex(context.Background(), plain), errReindexUnsupported)
}
