package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/charityng-backend/internal/config"
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// newTestStore connects to TEST_MONGO_URI with a throwaway database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Connect(ctx, config.MongoConfig{
		URI:      uri,
		Database: fmt.Sprintf("charityng_test_%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.DB.Drop(context.Background())
		_ = store.Close(context.Background())
	})
	return store
}

func TestCampaignRepository_ConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	repo := store.Campaigns()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Campaign{
		ID: "c1", Title: "Winter coats drive", Description: "Coats for the shelter",
		Resources: []model.Resource{{ID: "r1", Name: "Coats", Quantity: 10}},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.AppendFulfillmentReference(ctx, "c1", "r1", fmt.Sprintf("f%d", i)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, repo.AppendFulfillmentReference(ctx, "c1", "r1", "f0"))

	c, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, c.Resources[0].Fulfillments, 20)

	err = repo.AppendFulfillmentReference(ctx, "c1", "missing", "f99")
	assert.ErrorIs(t, err, appErrors.ErrResourceNotFound)
}

func TestFulfillmentRepository_MessagesAndCounts(t *testing.T) {
	store := newTestStore(t)
	repo := store.Fulfillments()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Fulfillment{
		ID: "f1", UserID: "u1", CampaignID: "c1",
		Resources: []model.Allocation{{ResourceID: "r1", Quantity: 2}},
		Messages:  []model.Message{{ID: "m1", Text: "first message", UserID: "u1"}},
	}))
	require.NoError(t, repo.AppendMessage(ctx, "f1", &model.Message{ID: "m2", Text: "staff reply", StaffID: "s1"}))

	n, err := repo.MarkMessagesRead(ctx, "f1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.MessageRead, f.Messages[0].Status)
	assert.Equal(t, model.MessageUnread, f.Messages[1].Status)

	stats, err := repo.CountByStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[model.FulfillmentPending])

	byResource, err := repo.List(ctx, model.FulfillmentFilter{ResourceID: "r1"})
	require.NoError(t, err)
	assert.Len(t, byResource, 1)
}

func TestAccountRepository_DuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	repo := store.Accounts("users")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Account{ID: "a1", Email: "ada@example.org"}))
	err := repo.Create(ctx, &model.Account{ID: "a2", Email: "ADA@example.org"})
	assert.ErrorIs(t, err, appErrors.ErrEmailTaken)
}
