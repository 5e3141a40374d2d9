package flowfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/flow/flowfile"
	"github.com/openkcm/bot-flow/internal/serviceerr"
)

func TestNewRepository(t *testing.T) {
	repo, err := flowfile.NewRepository("testdata")
	require.NoError(t, err)

	assert.Equal(t, []string{"support", "welcome"}, repo.BotIDs())

	g, err := repo.GetFlow(t.Context(), "welcome")
	require.NoError(t, err)
	require.Len(t, g.Nodes, 6)

	check, ok := g.Node("check")
	require.True(t, ok)
	assert.Equal(t, flow.ConditionData{
		Variable:  "age",
		Operator:  flow.OperatorGreaterThan,
		Value:     float64(17),
		TrueNext:  "adult",
		FalseNext: "minor",
	}, check.Data)

	// the bot id falls back to the file name
	g, err = repo.GetFlow(t.Context(), "support")
	require.NoError(t, err)
	assert.Equal(t, "support", g.BotID)

	_, err = repo.GetFlow(t.Context(), "unknown")
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)

	assert.ErrorIs(t, repo.SaveFlow(t.Context(), g), flow.ErrReadOnly)
	assert.ErrorIs(t, repo.DeleteFlow(t.Context(), "welcome"), flow.ErrReadOnly)
}

func TestNewRepository_Errors(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name: "Duplicate bot id",
			files: map[string]string{
				"a.yaml": "botId: same\nnodes: [{id: s, type: start}]\n",
				"b.yaml": "botId: same\nnodes: [{id: s, type: start}]\n",
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrConflict)
			},
		},
		{
			name: "Invalid payload",
			files: map[string]string{
				"a.yaml": "nodes: [{id: m, type: message, data: {}}]\n",
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, flow.ErrInvalidGraph)
			},
		},
		{
			name: "Malformed yaml",
			files: map[string]string{
				"a.yml": "nodes: [\n",
			},
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, flow.ErrInvalidGraph)
			},
		},
		{
			name:      "Empty directory",
			files:     map[string]string{},
			assertErr: assert.NoError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
			}

			_, err := flowfile.NewRepository(dir)
			tt.assertErr(t, err)
		})
	}

	t.Run("Missing directory", func(t *testing.T) {
		_, err := flowfile.NewRepository(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}
