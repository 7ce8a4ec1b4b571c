package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/charityng-backend/internal/cache"
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/metrics"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/queue"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

const reconcilePageSize = 100

// Coordinator keeps fulfillments (authoritative) and the reference lists on
// campaign resources (derived) in step.
//
// A pledge is written in two phases: the fulfillment insert, then one
// reference append per allocation. Phase 2 failures are not returned; they
// are logged, counted and queued for repair.
type Coordinator struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	FulfillmentRepo repository.FulfillmentRepositoryInterface
	Queue           queue.Queue
	Cache           *cache.Cache
}

// ReconcileReport counts the reference changes made by a reconciliation.
type ReconcileReport struct {
	Campaigns int `json:"campaigns"`
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	// Orphans counts fulfillments deleted because their campaign is gone.
	Orphans int `json:"orphans,omitempty"`
}

// Pledge persists f and then registers its references. If the campaign was
// removed between the caller's read and the insert, the fulfillment is
// deleted again and ErrCampaignNotFound is returned.
func (c *Coordinator) Pledge(ctx context.Context, f *model.Fulfillment) error {
	log := logger.FromContext(ctx).WithFields(logrus.Fields{
		"campaign_id":    f.CampaignID,
		"fulfillment_id": f.ID,
	})

	if err := c.FulfillmentRepo.Create(ctx, f); err != nil {
		metrics.RecordCoordinatorFailure("1")
		log.WithField("phase", 1).WithError(err).Error("failed to persist fulfillment")
		return err
	}
	c.Cache.Invalidate(cache.KindFulfillments, "")

	if err := c.RegisterReferences(ctx, f); err != nil {
		if isMissing(err) {
			gone, _, cleanErr := c.removeOrphans(ctx, f.CampaignID)
			if cleanErr != nil {
				log.WithError(cleanErr).Error("failed to remove pledge of removed campaign")
			}
			if gone {
				return appErrors.ErrCampaignNotFound
			}
		}
		warning := appErrors.NewConsistencyWarning(f.CampaignID, f.ID, err)
		metrics.RecordCoordinatorFailure("2")
		log.WithFields(logrus.Fields{
			"phase":               2,
			"consistency_warning": warning.Error(),
		}).Warn("reference append failed, queued for repair")

		job := queue.RepairJob{CampaignID: f.CampaignID, FulfillmentID: f.ID}
		if err := c.Queue.Publish(queue.TopicReferenceRepairs, job); err != nil {
			log.WithError(err).Error("failed to queue reference repair")
		}
	}
	return nil
}

// RegisterReferences appends f's id to every resource it targets. It stops
// at the first failure; appends are idempotent so a retry is safe.
func (c *Coordinator) RegisterReferences(ctx context.Context, f *model.Fulfillment) error {
	defer c.Cache.Invalidate(cache.KindCampaigns, "")
	for _, a := range f.Resources {
		if err := c.CampaignRepo.AppendFulfillmentReference(ctx, f.CampaignID, a.ResourceID, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// RepairReference re-registers the references of one fulfillment. A
// fulfillment or resource that no longer exists leaves nothing to repair;
// a fulfillment whose campaign no longer exists is deleted.
func (c *Coordinator) RepairReference(ctx context.Context, campaignID, fulfillmentID string) error {
	f, err := c.FulfillmentRepo.GetByID(ctx, fulfillmentID)
	if errors.Is(err, appErrors.ErrFulfillmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = c.RegisterReferences(ctx, f)
	if isMissing(err) {
		gone, _, err := c.removeOrphans(ctx, f.CampaignID)
		if err != nil || gone {
			return err
		}
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"campaign_id":    campaignID,
			"fulfillment_id": fulfillmentID,
		}).Warn("pledged resource no longer exists")
		return nil
	}
	if err == nil {
		metrics.RecordRepair("added", len(f.Resources))
	}
	return err
}

// Reconcile makes every resource of the campaign reference exactly the
// fulfillments that target it.
func (c *Coordinator) Reconcile(ctx context.Context, campaignID string) (*ReconcileReport, error) {
	campaign, err := c.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	fulfillments, err := c.FulfillmentRepo.List(ctx, model.FulfillmentFilter{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}

	expected := make(map[string][]string)
	for _, f := range fulfillments {
		for _, a := range f.Resources {
			expected[a.ResourceID] = append(expected[a.ResourceID], f.ID)
		}
	}

	report := &ReconcileReport{Campaigns: 1}
	for _, res := range campaign.Resources {
		want := expected[res.ID]
		for _, id := range want {
			if res.HasFulfillment(id) {
				continue
			}
			if err := c.CampaignRepo.AppendFulfillmentReference(ctx, campaignID, res.ID, id); err != nil {
				return report, err
			}
			report.Added++
		}
		for _, id := range res.Fulfillments {
			if contains(want, id) {
				continue
			}
			if err := c.CampaignRepo.RemoveFulfillmentReference(ctx, campaignID, res.ID, id); err != nil {
				return report, err
			}
			report.Removed++
		}
	}

	metrics.RecordRepair("added", report.Added)
	metrics.RecordRepair("removed", report.Removed)
	if report.Added > 0 || report.Removed > 0 {
		c.Cache.Invalidate(cache.KindCampaigns, "")
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"added":       report.Added,
			"removed":     report.Removed,
		}).Info("campaign references reconciled")
	}
	return report, nil
}

// ReconcileAll pages through every campaign. A campaign removed while the
// sweep runs is skipped.
func (c *Coordinator) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	total := &ReconcileReport{}
	for offset := 0; ; offset += reconcilePageSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		campaigns, count, err := c.CampaignRepo.List(ctx, model.CampaignFilter{}, offset, reconcilePageSize)
		if err != nil {
			return total, err
		}
		for _, campaign := range campaigns {
			report, err := c.Reconcile(ctx, campaign.ID)
			if errors.Is(err, appErrors.ErrCampaignNotFound) || errors.Is(err, appErrors.ErrResourceNotFound) {
				continue
			}
			if err != nil {
				return total, err
			}
			total.Campaigns++
			total.Added += report.Added
			total.Removed += report.Removed
		}
		if offset+reconcilePageSize >= count {
			break
		}
	}

	campaignIDs, err := c.FulfillmentRepo.CampaignIDs(ctx)
	if err != nil {
		return total, err
	}
	for _, id := range campaignIDs {
		_, n, err := c.removeOrphans(ctx, id)
		if err != nil {
			return total, err
		}
		total.Orphans += n
	}
	return total, nil
}

// removeOrphans deletes the fulfillments of campaignID if the campaign does
// not exist. It reports whether the campaign is gone and how many
// fulfillments were deleted.
func (c *Coordinator) removeOrphans(ctx context.Context, campaignID string) (bool, int, error) {
	_, err := c.CampaignRepo.GetByID(ctx, campaignID)
	if err == nil {
		return false, 0, nil
	}
	if !errors.Is(err, appErrors.ErrCampaignNotFound) {
		return false, 0, err
	}

	n, err := c.FulfillmentRepo.DeleteByCampaign(ctx, campaignID)
	if err != nil {
		return true, 0, appErrors.NewCascadeIncomplete(campaignID, err)
	}
	if n > 0 {
		c.Cache.Invalidate(cache.KindFulfillments, "")
		metrics.RecordRepair("orphaned", n)
		logger.FromContext(ctx).WithFields(logrus.Fields{
			"campaign_id":  campaignID,
			"fulfillments": n,
		}).Warn("removed fulfillments of removed campaign")
	}
	return true, n, nil
}

func isMissing(err error) bool {
	return errors.Is(err, appErrors.ErrResourceNotFound) || errors.Is(err, appErrors.ErrCampaignNotFound)
}
