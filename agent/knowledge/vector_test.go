package knowledge

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockPgVectorIndex(t *testing.T) (*PgVectorIndex, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	index, err := NewPgVectorIndex(db)
	require.NoError(t, err)
	return index, mock
}

func TestPgVectorIndexNearest(t *testing.T) {
	t.Parallel()

	index, mock := newMockPgVectorIndex(t)
	mock.ExpectQuery(`ORDER BY embedding <=> '\[0\.5,-1,0\.25\]'::vector LIMIT 6`).
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow("primeiro").AddRow("segundo"))

	got, err := index.Nearest(context.Background(), "T", []float32{0.5, -1, 0.25}, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"primeiro", "segundo"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndexHasDocuments(t *testing.T) {
	t.Parallel()

	index, mock := newMockPgVectorIndex(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM document_chunks WHERE tenant_id = 'T'`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := index.HasDocuments(context.Background(), "T")
	require.NoError(t, err)
	assert.True(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorLiteral(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[0.1,2,-3.5]", vectorLiteral([]float32{0.1, 2, -3.5}))
}

func TestChromemIndexNearest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	index, err := NewChromemIndex(&fakeEmbedder{})
	require.NoError(t, err)

	has, err := index.HasDocuments(ctx, "T")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, index.Index(ctx, "T",
		[]string{"1", "2", "3"},
		[]string{"plano premium com suporte", "entrega em todo o Brasil", "   "},
	))

	has, err = index.HasDocuments(ctx, "T")
	require.NoError(t, err)
	assert.True(t, has)

	vec, err := (&fakeEmbedder{}).Embed(ctx, "plano premium com suporte")
	require.NoError(t, err)
	got, err := index.Nearest(ctx, "T", vec, 6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "plano premium com suporte", got[0])

	other, err := index.Nearest(ctx, "other", vec, 6)
	require.NoError(t, err)
	assert.Empty(t, other)
}
