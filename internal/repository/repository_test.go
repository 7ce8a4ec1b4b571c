package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// testDB opens TEST_DATABASE_URL. The schema must already be applied.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCampaignRepository_AtomicAppend(t *testing.T) {
	db := testDB(t)
	repo := &CampaignRepository{DB: db}
	ctx := context.Background()
	id := fmt.Sprintf("test-%p", t)

	require.NoError(t, repo.Create(ctx, &model.Campaign{
		ID: id, Title: "Winter coats drive", Description: "Coats for the shelter",
		Resources: []model.Resource{{ID: id + "-r1", Name: "Coats", Quantity: 10}},
	}))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.AppendFulfillmentReference(ctx, id, id+"-r1", fmt.Sprintf("f%d", i)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, repo.AppendFulfillmentReference(ctx, id, id+"-r1", "f0"))

	c, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Resources, 1)
	assert.Len(t, c.Resources[0].Fulfillments, 20)

	err = repo.AppendFulfillmentReference(ctx, id, "missing", "f1")
	assert.ErrorIs(t, err, appErrors.ErrResourceNotFound)
}

func TestCampaignRepository_DeleteCascade(t *testing.T) {
	db := testDB(t)
	campaigns := &CampaignRepository{DB: db}
	fulfillments := &FulfillmentRepository{DB: db}
	ctx := context.Background()
	id := fmt.Sprintf("cascade-%p", t)

	require.NoError(t, campaigns.Create(ctx, &model.Campaign{
		ID: id, Title: "Books for school", Description: "Textbooks for pupils",
		Resources: []model.Resource{{ID: id + "-r1", Name: "Books", Quantity: 5}},
	}))
	require.NoError(t, fulfillments.Create(ctx, &model.Fulfillment{
		ID: id + "-f1", UserID: "u1", CampaignID: id,
		Resources: []model.Allocation{{ResourceID: id + "-r1", Quantity: 1}},
		Messages:  []model.Message{{ID: id + "-m1", Text: "I can bring two", UserID: "u1"}},
	}))

	require.NoError(t, campaigns.DeleteCascade(ctx, id))

	_, err := campaigns.GetByID(ctx, id)
	assert.ErrorIs(t, err, appErrors.ErrCampaignNotFound)
	_, err = fulfillments.GetByID(ctx, id+"-f1")
	assert.ErrorIs(t, err, appErrors.ErrFulfillmentNotFound)
	assert.ErrorIs(t, campaigns.DeleteCascade(ctx, id), appErrors.ErrCampaignNotFound)
}
