package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// CampaignRepository stores campaigns in PostgreSQL. Resources live in
// campaign_resources and their fulfillment references in a TEXT[] column so
// appends are a single UPDATE.
type CampaignRepository struct {
	DB *sqlx.DB
}

type campaignRow struct {
	model.Campaign
	Media pq.StringArray `db:"media_list"`
}

type resourceRow struct {
	model.Resource
	CampaignID     string         `db:"campaign_id"`
	FulfillmentIDs pq.StringArray `db:"fulfillment_ids"`
}

const pqForeignKeyViolation = "23503"

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, title, description, status, media_list, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Title, c.Description, c.Status, pq.Array(nonNil(c.MediaList)), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	for i := range c.Resources {
		res := &c.Resources[i]
		res.Fulfillments = nonNil(res.Fulfillments)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_resources (id, campaign_id, position, name, type, quantity, fulfillment_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, res.ID, c.ID, i, res.Name, res.Type, res.Quantity, pq.Array(res.Fulfillments))
		if err != nil {
			return fmt.Errorf("failed to create resource: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var row campaignRow
	err := r.DB.GetContext(ctx, &row, `
		SELECT id, title, description, status, media_list, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	campaigns, err := r.withResources(ctx, []campaignRow{row})
	if err != nil {
		return nil, err
	}
	return campaigns[0], nil
}

func (r *CampaignRepository) List(ctx context.Context, filter model.CampaignFilter, offset, limit int) ([]*model.Campaign, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := `SELECT id, title, description, status, media_list, created_at, updated_at FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows := []campaignRow{}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}

	campaigns, err := r.withResources(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// withResources loads the embedded resources of every row in one query.
func (r *CampaignRepository) withResources(ctx context.Context, rows []campaignRow) ([]*model.Campaign, error) {
	campaigns := make([]*model.Campaign, len(rows))
	byID := make(map[string]*model.Campaign, len(rows))
	ids := make([]string, len(rows))
	for i := range rows {
		c := rows[i].Campaign
		c.MediaList = nonNil([]string(rows[i].Media))
		c.Resources = []model.Resource{}
		campaigns[i] = &c
		byID[c.ID] = &c
		ids[i] = c.ID
	}
	if len(ids) == 0 {
		return campaigns, nil
	}

	resources := []resourceRow{}
	err := r.DB.SelectContext(ctx, &resources, `
		SELECT id, campaign_id, name, type, quantity, fulfillment_ids
		FROM campaign_resources
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id, position
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}
	for _, res := range resources {
		out := res.Resource
		out.Fulfillments = nonNil([]string(res.FulfillmentIDs))
		if c, ok := byID[res.CampaignID]; ok {
			c.Resources = append(c.Resources, out)
		}
	}
	return campaigns, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return expectOne(res, appErrors.ErrCampaignNotFound)
}

// ====================== Resources ======================

func (r *CampaignRepository) AddResource(ctx context.Context, campaignID string, res *model.Resource) error {
	res.Fulfillments = nonNil(res.Fulfillments)
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO campaign_resources (id, campaign_id, position, name, type, quantity, fulfillment_ids)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0), $3, $4, $5, $6
		FROM campaign_resources WHERE campaign_id = $2
	`, res.ID, campaignID, res.Name, res.Type, res.Quantity, pq.Array(res.Fulfillments))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return appErrors.ErrCampaignNotFound
		}
		return fmt.Errorf("failed to add resource: %w", err)
	}
	return r.touch(ctx, campaignID)
}

func (r *CampaignRepository) UpdateResource(ctx context.Context, campaignID string, res *model.Resource) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_resources SET name = $1, type = $2, quantity = $3
		WHERE campaign_id = $4 AND id = $5
	`, res.Name, res.Type, res.Quantity, campaignID, res.ID)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if err := expectOne(result, appErrors.ErrResourceNotFound); err != nil {
		return err
	}
	return r.touch(ctx, campaignID)
}

// ====================== Fulfillment references ======================

func (r *CampaignRepository) AppendFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_resources
		SET fulfillment_ids = array_append(fulfillment_ids, $1)
		WHERE campaign_id = $2 AND id = $3 AND NOT ($1 = ANY(fulfillment_ids))
	`, fulfillmentID, campaignID, resourceID)
	if err != nil {
		return fmt.Errorf("failed to append fulfillment reference: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	// Either already referenced or the resource is gone.
	return r.resourceExists(ctx, campaignID, resourceID)
}

func (r *CampaignRepository) RemoveFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_resources
		SET fulfillment_ids = array_remove(fulfillment_ids, $1)
		WHERE campaign_id = $2 AND id = $3
	`, fulfillmentID, campaignID, resourceID)
	if err != nil {
		return fmt.Errorf("failed to remove fulfillment reference: %w", err)
	}
	return expectOne(result, appErrors.ErrResourceNotFound)
}

func (r *CampaignRepository) resourceExists(ctx context.Context, campaignID, resourceID string) error {
	var exists bool
	err := r.DB.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM campaign_resources WHERE campaign_id = $1 AND id = $2)`,
		campaignID, resourceID)
	if err != nil {
		return fmt.Errorf("failed to look up resource: %w", err)
	}
	if !exists {
		return appErrors.ErrResourceNotFound
	}
	return nil
}

// ====================== Media ======================

func (r *CampaignRepository) AddMedia(ctx context.Context, campaignID, url string) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns SET media_list = array_append(media_list, $1), updated_at = $2 WHERE id = $3
	`, url, time.Now().UTC(), campaignID)
	if err != nil {
		return fmt.Errorf("failed to add media: %w", err)
	}
	return expectOne(result, appErrors.ErrCampaignNotFound)
}

func (r *CampaignRepository) RemoveMedia(ctx context.Context, campaignID, url string) error {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns SET media_list = array_remove(media_list, $1), updated_at = $2
		WHERE id = $3 AND $1 = ANY(media_list)
	`, url, time.Now().UTC(), campaignID)
	if err != nil {
		return fmt.Errorf("failed to remove media: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, campaignID); err != nil {
			return err
		}
		return appErrors.ErrMediaNotFound
	}
	return nil
}

// ====================== Removal ======================

func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return expectOne(result, appErrors.ErrCampaignNotFound)
}

// DeleteCascade removes the campaign, its resources and every fulfillment
// pointing at it in one transaction. Fulfillments of a campaign that is
// already gone are still removed; ErrCampaignNotFound means neither existed.
func (r *CampaignRepository) DeleteCascade(ctx context.Context, campaignID string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fulfillments, err := tx.ExecContext(ctx, `DELETE FROM fulfillments WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return appErrors.NewCascadeIncomplete(campaignID, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if err := expectOne(result, appErrors.ErrCampaignNotFound); err != nil {
		if !errors.Is(err, appErrors.ErrCampaignNotFound) {
			return err
		}
		if orphanErr := expectOne(fulfillments, appErrors.ErrCampaignNotFound); orphanErr != nil {
			return orphanErr
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *CampaignRepository) touch(ctx context.Context, campaignID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), campaignID)
	if err != nil {
		return fmt.Errorf("failed to touch campaign: %w", err)
	}
	return nil
}

func expectOne(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ CampaignRepositoryInterface = (*CampaignRepository)(nil)
	_ CascadeDeleter              = (*CampaignRepository)(nil)
)
