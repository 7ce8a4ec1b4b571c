// internal/controller/campaign_controller.go
package controller

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Coordinator     *service.Coordinator
	MaxUploadBytes  int64
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.NewValidation("invalid query", map[string]string{name: "must be an integer"})
	}
	return &v, nil
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	params := service.ListCampaignsParams{Search: r.URL.Query().Get("search")}
	for name, dst := range map[string]*int{"page": &params.Page, "page_size": &params.PageSize} {
		v, err := queryInt(r, name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if v != nil {
			*dst = *v
		}
	}
	status, err := queryInt(r, "status")
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.Status = status

	page, err := c.CampaignService.ListCampaigns(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), PrincipalFrom(r.Context()), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// GetCampaignStats is the staff view with fulfillment counts.
func (c *CampaignController) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.CampaignService.GetCampaignStats(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type statusBody struct {
	Status *int `json:"status"`
}

func (b statusBody) value() (int, error) {
	if b.Status == nil {
		return 0, appErrors.NewValidation("invalid input", map[string]string{"status": "is required"})
	}
	return *b.Status, nil
}

func (c *CampaignController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := body.value()
	if err != nil {
		writeError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.UpdateCampaignStatus(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) AddResource(w http.ResponseWriter, r *http.Request) {
	var body service.ResourceInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.CampaignService.AddResource(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *CampaignController) UpdateResource(w http.ResponseWriter, r *http.Request) {
	var body service.ResourceInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.CampaignService.UpdateResource(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "resourceId"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) AddMedia(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, err := readUpload(w, r, c.MaxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	url, err := c.CampaignService.AddMedia(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), filename, contentType, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (c *CampaignController) RemoveMedia(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := c.CampaignService.RemoveMedia(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), body.URL); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) RemoveCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.CampaignService.RemoveCampaign(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile repairs the reference lists of one campaign on demand.
func (c *CampaignController) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := service.Authorize(service.ActionManageCampaign, PrincipalFrom(r.Context()), ""); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := c.Coordinator.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// readUpload reads the multipart "file" field, up to limit bytes.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, string, []byte, error) {
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", "", nil, appErrors.NewValidation("invalid upload", map[string]string{"file": "must be a multipart upload within the size limit"})
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, appErrors.NewValidation("invalid upload", map[string]string{"file": "is required"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", "", nil, err
	}
	if int64(len(data)) > limit {
		return "", "", nil, appErrors.NewValidation("invalid upload", map[string]string{"file": "is too large"})
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return header.Filename, contentType, data, nil
}
