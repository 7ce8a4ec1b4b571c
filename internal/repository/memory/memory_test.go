package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

func seedCampaign(t *testing.T, repo *CampaignRepository, id string) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		ID:          id,
		Title:       "Winter coats drive",
		Description: "Coats for the shelter",
		Resources: []model.Resource{
			{ID: id + "-r1", Name: "Coats", Type: model.ResourceMaterial, Quantity: 10},
		},
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestCampaignRepository_GetReturnsCopies(t *testing.T) {
	repo := NewCampaignRepository()
	seedCampaign(t, repo, "c1")

	got, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	got.Title = "changed"
	got.Resources[0].Fulfillments = append(got.Resources[0].Fulfillments, "f-x")

	again, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Winter coats drive", again.Title)
	assert.Empty(t, again.Resources[0].Fulfillments)
}

func TestCampaignRepository_ListNewestFirstWithFilters(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()
	seedCampaign(t, repo, "c1")
	seedCampaign(t, repo, "c2")
	require.NoError(t, repo.Create(ctx, &model.Campaign{ID: "c3", Title: "Books for school", Description: "Textbooks"}))
	require.NoError(t, repo.UpdateStatus(ctx, "c2", model.CampaignActive))

	all, total, err := repo.List(ctx, model.CampaignFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"c3", "c2", "c1"}, ids(all))

	active := model.CampaignActive
	filtered, total, err := repo.List(ctx, model.CampaignFilter{Status: &active}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"c2"}, ids(filtered))

	searched, total, err := repo.List(ctx, model.CampaignFilter{Search: "TEXTBOOK"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"c3"}, ids(searched))

	beyond, total, err := repo.List(ctx, model.CampaignFilter{}, 30, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, beyond)
}

func ids(cs []*model.Campaign) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestCampaignRepository_AppendIsIdempotent(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()
	seedCampaign(t, repo, "c1")

	require.NoError(t, repo.AppendFulfillmentReference(ctx, "c1", "c1-r1", "f1"))
	require.NoError(t, repo.AppendFulfillmentReference(ctx, "c1", "c1-r1", "f1"))

	c, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, c.Resources[0].Fulfillments)

	err = repo.AppendFulfillmentReference(ctx, "c1", "missing", "f2")
	assert.ErrorIs(t, err, appErrors.ErrResourceNotFound)
	err = repo.AppendFulfillmentReference(ctx, "nope", "c1-r1", "f2")
	assert.ErrorIs(t, err, appErrors.ErrResourceNotFound)
}

func TestCampaignRepository_ConcurrentAppendsKeepEveryReference(t *testing.T) {
	repo := NewCampaignRepository()
	seedCampaign(t, repo, "c1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "f" + string(rune('A'+i%26)) + string(rune('a'+i/26))
			assert.NoError(t, repo.AppendFulfillmentReference(context.Background(), "c1", "c1-r1", id))
		}(i)
	}
	wg.Wait()

	c, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, c.Resources[0].Fulfillments, 50)
}

func TestCampaignRepository_NaiveAppendLosesUpdates(t *testing.T) {
	repo := NewCampaignRepository()
	seedCampaign(t, repo, "c1")
	repo.NaiveAppend = true

	// Both writers read before either writes.
	var read sync.WaitGroup
	read.Add(2)
	repo.BeforeWrite = func() {
		read.Done()
		read.Wait()
	}

	var wg sync.WaitGroup
	for _, id := range []string{"f1", "f2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, repo.AppendFulfillmentReference(context.Background(), "c1", "c1-r1", id))
		}(id)
	}
	wg.Wait()

	c, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, c.Resources[0].Fulfillments, 1)
}

func TestCampaignRepository_UpdateResourceKeepsReferences(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()
	seedCampaign(t, repo, "c1")
	require.NoError(t, repo.AppendFulfillmentReference(ctx, "c1", "c1-r1", "f1"))

	err := repo.UpdateResource(ctx, "c1", &model.Resource{ID: "c1-r1", Name: "Jackets", Quantity: 4})
	require.NoError(t, err)

	c, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Jackets", c.Resources[0].Name)
	assert.Equal(t, 4, c.Resources[0].Quantity)
	assert.Equal(t, []string{"f1"}, c.Resources[0].Fulfillments)

	err = repo.UpdateResource(ctx, "c1", &model.Resource{ID: "other", Name: "x", Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrResourceNotFound)
}

func TestCampaignRepository_Media(t *testing.T) {
	repo := NewCampaignRepository()
	ctx := context.Background()
	seedCampaign(t, repo, "c1")

	require.NoError(t, repo.AddMedia(ctx, "c1", "memory://a.png"))
	require.NoError(t, repo.RemoveMedia(ctx, "c1", "memory://a.png"))
	assert.ErrorIs(t, repo.RemoveMedia(ctx, "c1", "memory://a.png"), appErrors.ErrMediaNotFound)
	assert.ErrorIs(t, repo.AddMedia(ctx, "nope", "x"), appErrors.ErrCampaignNotFound)
}

func TestFulfillmentRepository_FiltersAndCounts(t *testing.T) {
	repo := NewFulfillmentRepository()
	ctx := context.Background()
	mk := func(id, user, campaign, resource string) {
		require.NoError(t, repo.Create(ctx, &model.Fulfillment{
			ID: id, UserID: user, CampaignID: campaign,
			Resources: []model.Allocation{{ResourceID: resource, Quantity: 1}},
		}))
	}
	mk("f1", "u1", "c1", "r1")
	mk("f2", "u2", "c1", "r2")
	mk("f3", "u1", "c2", "r3")
	require.NoError(t, repo.UpdateStatus(ctx, "f2", model.FulfillmentCompleted))

	byUser, err := repo.List(ctx, model.FulfillmentFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byResource, err := repo.List(ctx, model.FulfillmentFilter{CampaignID: "c1", ResourceID: "r2"})
	require.NoError(t, err)
	require.Len(t, byResource, 1)
	assert.Equal(t, "f2", byResource[0].ID)

	stats, err := repo.CountByStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[model.FulfillmentPending])
	assert.Equal(t, 1, stats[model.FulfillmentCompleted])
	assert.Equal(t, 0, stats[model.FulfillmentFailed])

	n, err := repo.DeleteByCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = repo.GetByID(ctx, "f1")
	assert.ErrorIs(t, err, appErrors.ErrFulfillmentNotFound)
}

func TestFulfillmentRepository_MarkMessagesRead(t *testing.T) {
	repo := NewFulfillmentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Fulfillment{
		ID: "f1", UserID: "u1", CampaignID: "c1",
		Messages: []model.Message{{ID: "m1", Text: "first message", UserID: "u1"}},
	}))
	require.NoError(t, repo.AppendMessage(ctx, "f1", &model.Message{ID: "m2", Text: "staff reply", StaffID: "s1"}))

	n, err := repo.MarkMessagesRead(ctx, "f1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.MessageUnread, f.Messages[0].Status)
	assert.Equal(t, model.MessageRead, f.Messages[1].Status)

	_, err = repo.MarkMessagesRead(ctx, "nope", false)
	assert.ErrorIs(t, err, appErrors.ErrFulfillmentNotFound)
}

func TestAccountRepository_KeysAndResetTokens(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Account{ID: "a1", Email: "Ada@Example.org"}))
	assert.ErrorIs(t, repo.Create(ctx, &model.Account{ID: "a2", Email: "ada@example.org"}), appErrors.ErrEmailTaken)

	got, err := repo.GetByEmail(ctx, "ADA@example.org")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	require.NoError(t, repo.AddAPIKey(ctx, "a1", model.APIKey{Token: "hash", DeviceID: "d1"}))
	owner, err := repo.FindByAPIKey(ctx, "hash")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "a1", owner.ID)

	require.NoError(t, repo.RemoveAPIKey(ctx, "hash"))
	owner, err = repo.FindByAPIKey(ctx, "hash")
	require.NoError(t, err)
	assert.Nil(t, owner)

	require.NoError(t, repo.CreateResetToken(ctx, &model.PasswordResetToken{Token: "t", AccountID: "a1"}))
	tok, err := repo.ConsumeResetToken(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccountID)
	_, err = repo.ConsumeResetToken(ctx, "t")
	assert.ErrorIs(t, err, appErrors.ErrInvalidResetToken)
}
