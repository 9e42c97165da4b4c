package payments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/postgres/pgtest"
)

func TestRepoIntegration(t *testing.T) {
	repo := &Repo{DB: pgtest.New(t)}
	ctx := context.Background()

	p := &Payment{
		UserID:          uuid.New(),
		Amount:          decimal.RequireFromString("12.34"),
		Currency:        "usd",
		Method:          "stripe",
		Status:          StatusPending,
		PaymentIntentID: "pi_repo",
		Metadata:        map[string]string{"cart": "c1"},
	}
	require.NoError(t, repo.CreatePayment(ctx, p))
	require.NoError(t, repo.SetStatus(ctx, "pi_repo", StatusSucceeded))

	got, err := repo.GetByIntent(ctx, "pi_repo")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	require.NoError(t, repo.SetStatus(ctx, "pi_repo", StatusFailed))
	got, err = repo.GetByIntent(ctx, "pi_repo")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status, "late failure does not overwrite success")

	require.NoError(t, repo.SetStatus(ctx, "pi_repo", StatusRefunded))
	require.NoError(t, repo.SetStatus(ctx, "pi_repo", StatusSucceeded))
	got, err = repo.GetByIntent(ctx, "pi_repo")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
	assert.True(t, p.Amount.Equal(got.Amount))
	assert.Equal(t, "c1", got.Metadata["cart"])

	_, err = repo.GetByIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	dl := &DeadLetter{
		EventID:         "evt_repo",
		EventType:       EventIntentSucceeded,
		PaymentIntentID: "pi_orphan",
		Payload:         json.RawMessage(`{"id":"evt_repo"}`),
		LastError:       "order not found",
	}
	require.NoError(t, repo.SaveDeadLetter(ctx, dl))
	again := &DeadLetter{EventID: "evt_repo", EventType: dl.EventType, PaymentIntentID: dl.PaymentIntentID, Payload: dl.Payload}
	require.NoError(t, repo.SaveDeadLetter(ctx, again))
	assert.Equal(t, dl.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)

	pending, err := repo.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.JSONEq(t, `{"id":"evt_repo"}`, string(pending[0].Payload))

	require.NoError(t, repo.RecordDeadLetterAttempt(ctx, dl.ID, "still missing"))
	require.NoError(t, repo.ResolveDeadLetter(ctx, dl.ID, time.Now()))
	pending, err = repo.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
