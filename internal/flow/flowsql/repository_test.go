package flowsql_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/dbtest/postgrestest"
	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/flow/flowsql"
	"github.com/openkcm/bot-flow/internal/serviceerr"
)

var dbPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, _, terminate := postgrestest.Start(ctx)
	defer terminate(ctx)

	dbPool = pool

	code := m.Run()
	os.Exit(code)
}

func TestRepository_GetFlow(t *testing.T) {
	tests := []struct {
		name      string
		botID     string
		wantNodes []flow.Node
		wantEdges []flow.Edge
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:  "Success",
			botID: postgrestest.SeededBotID,
			wantNodes: []flow.Node{
				{ID: "start", Type: flow.NodeTypeStart, Data: flow.StartData{}},
				{ID: "greet", Type: flow.NodeTypeMessage, Data: flow.MessageData{Content: "Hello {{name}}"}},
				{ID: "ask", Type: flow.NodeTypeInput, Data: flow.InputData{Variable: "answer"}},
			},
			wantEdges: []flow.Edge{
				{Source: "start", Target: "greet"},
				{Source: "greet", Target: "ask"},
			},
			assertErr: assert.NoError,
		},
		{
			name:  "Error does not exist",
			botID: "does-not-exist",
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, serviceerr.ErrNotFound)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := flowsql.NewRepository(dbPool)

			g, err := repo.GetFlow(t.Context(), tt.botID)
			if !tt.assertErr(t, err) || err != nil {
				return
			}

			assert.Equal(t, tt.botID, g.BotID)
			assert.Equal(t, tt.wantNodes, g.Nodes)
			assert.Equal(t, tt.wantEdges, g.Edges)
		})
	}
}

func TestRepository_SaveFlow(t *testing.T) {
	repo := flowsql.NewRepository(dbPool)
	ctx := t.Context()

	g, err := flow.NewGraph("saved-bot",
		[]flow.Node{
			{ID: "s", Type: flow.NodeTypeStart, Data: flow.StartData{}},
			{ID: "c", Type: flow.NodeTypeCondition, Data: flow.ConditionData{Variable: "age", Operator: flow.OperatorGreaterThan, Value: float64(18)}},
			{ID: "adult", Type: flow.NodeTypeMessage, Data: flow.MessageData{Content: "welcome"}},
			{ID: "custom", Type: "webhook", Data: flow.RawData{"url": "http://example.com"}},
		},
		[]flow.Edge{
			{Source: "s", Target: "c"},
			{Source: "c", Target: "adult", SourceHandle: "true"},
			{Source: "c", Target: "custom", SourceHandle: "false"},
		},
	)
	require.NoError(t, err)

	require.NoError(t, repo.SaveFlow(ctx, g))

	got, err := repo.GetFlow(ctx, "saved-bot")
	require.NoError(t, err)
	assert.Equal(t, g.Nodes, got.Nodes)
	assert.Equal(t, g.Edges, got.Edges)

	t.Run("Save replaces the previous graph", func(t *testing.T) {
		small, err := flow.NewGraph("saved-bot", []flow.Node{{ID: "only", Type: flow.NodeTypeStart, Data: flow.StartData{}}}, nil)
		require.NoError(t, err)
		require.NoError(t, repo.SaveFlow(ctx, small))

		got, err := repo.GetFlow(ctx, "saved-bot")
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 1)
		assert.Empty(t, got.Edges)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteFlow(ctx, "saved-bot"))

		_, err := repo.GetFlow(ctx, "saved-bot")
		require.ErrorIs(t, err, serviceerr.ErrNotFound)

		err = repo.DeleteFlow(ctx, "saved-bot")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})
}
