package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unclebandit/charityng-backend/internal/cache"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/queue"
	"github.com/unclebandit/charityng-backend/internal/repository/memory"
	"github.com/unclebandit/charityng-backend/internal/service"
	"github.com/unclebandit/charityng-backend/internal/storage"
)

var (
	staff = &model.Principal{ID: "staff-1", Role: model.RoleStaff, Email: "staff@example.org"}
	alice = &model.Principal{ID: "user-alice", Role: model.RoleUser, Email: "alice@example.org"}
	bob   = &model.Principal{ID: "user-bob", Role: model.RoleUser, Email: "bob@example.org"}
)

// countingBus records every publish before handing it to the in-memory queue.
type countingBus struct {
	*queue.InMemoryQueue
	mu     sync.Mutex
	counts map[string]int
}

func (b *countingBus) Publish(topic string, payload any) error {
	b.mu.Lock()
	b.counts[topic]++
	b.mu.Unlock()
	return b.InMemoryQueue.Publish(topic, payload)
}

func (b *countingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[topic]
}

type captureMailer struct {
	sent chan map[string]any
}

func (m *captureMailer) Send(ctx context.Context, subject string, recipients []string, templateName, locale string, variables map[string]any) error {
	m.sent <- variables
	return nil
}

type testEnv struct {
	campaigns    *memory.CampaignRepository
	fulfillments *memory.FulfillmentRepository
	users        *memory.AccountRepository
	staffRepo    *memory.AccountRepository
	bus          *countingBus
	cache        *cache.Cache
	store        *storage.MemoryStore
	mailer       *captureMailer

	coordinator    *service.Coordinator
	campaignSvc    *service.CampaignService
	fulfillmentSvc *service.FulfillmentService
	identity       *service.IdentityService
}

func newTestEnv(t *testing.T, strict bool) *testEnv {
	t.Helper()
	q := queue.NewInMemoryQueue()
	q.Backoff = time.Millisecond
	bus := &countingBus{InMemoryQueue: q, counts: make(map[string]int)}
	t.Cleanup(func() { bus.Drain() })

	c := cache.New(bus, time.Minute)
	require.NoError(t, c.Start())

	e := &testEnv{
		campaigns:    memory.NewCampaignRepository(),
		fulfillments: memory.NewFulfillmentRepository(),
		users:        memory.NewAccountRepository(),
		staffRepo:    memory.NewAccountRepository(),
		bus:          bus,
		cache:        c,
		store:        storage.NewMemoryStore(),
		mailer:       &captureMailer{sent: make(chan map[string]any, 4)},
	}
	wf := service.Workflow{Strict: strict}

	e.coordinator = &service.Coordinator{
		CampaignRepo:    e.campaigns,
		FulfillmentRepo: e.fulfillments,
		Queue:           bus,
		Cache:           c,
	}
	e.campaignSvc = &service.CampaignService{
		CampaignRepo:    e.campaigns,
		FulfillmentRepo: e.fulfillments,
		Storage:         e.store,
		Cache:           c,
		Workflow:        wf,
	}
	e.fulfillmentSvc = &service.FulfillmentService{
		CampaignRepo:    e.campaigns,
		FulfillmentRepo: e.fulfillments,
		Coordinator:     e.coordinator,
		Cache:           c,
		Workflow:        wf,
	}
	e.identity = &service.IdentityService{
		Users:         e.users,
		Staff:         e.staffRepo,
		Storage:       e.store,
		Mailer:        e.mailer,
		ResetTokenTTL: time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
	return e
}

// seedCampaign creates a campaign with one material resource and returns
// the campaign and the resource id.
func (e *testEnv) seedCampaign(t *testing.T) (*model.Campaign, string) {
	t.Helper()
	c, err := e.campaignSvc.CreateCampaign(context.Background(), staff, service.CampaignInput{
		Title:       "Winter coats drive",
		Description: "Warm coats for the night shelter",
		Resources: []service.ResourceInput{
			{Name: "Coats", Type: int(model.ResourceMaterial), Quantity: 40},
		},
	})
	require.NoError(t, err)
	return c, c.Resources[0].ID
}

func (e *testEnv) pledge(t *testing.T, p *model.Principal, campaignID, resourceID string, qty int) *model.Fulfillment {
	t.Helper()
	f, err := e.fulfillmentSvc.CreateSinglePledge(context.Background(), p, campaignID, resourceID, qty, "I can drop these off on Friday")
	require.NoError(t, err)
	return f
}

func (e *testEnv) references(t *testing.T, campaignID, resourceID string) []string {
	t.Helper()
	c, err := e.campaigns.GetByID(context.Background(), campaignID)
	require.NoError(t, err)
	res := c.Resource(resourceID)
	require.NotNil(t, res)
	return res.Fulfillments
}
