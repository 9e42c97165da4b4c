package content

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres/pgtest"
)

func TestUpsertDecodesEntities(t *testing.T) {
	repo := &Repo{DB: pgtest.New(t)}
	ctx := context.Background()

	empty, err := repo.Get(ctx, Terms)
	require.NoError(t, err)
	assert.Empty(t, empty.Content)

	_, err = repo.Upsert(ctx, Terms, "&lt;p&gt;v1&lt;/p&gt;")
	require.NoError(t, err)
	p, err := repo.Upsert(ctx, Terms, "&lt;p&gt;Terms &amp; conditions&lt;/p&gt;")
	require.NoError(t, err)
	assert.Equal(t, "<p>Terms & conditions</p>", p.Content)

	got, err := repo.Get(ctx, Terms)
	require.NoError(t, err)
	assert.Equal(t, "<p>Terms & conditions</p>", got.Content)

	_, err = repo.Get(ctx, Kind("faq"))
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}
