package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/charityng-backend/internal/handler"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// Router wires every HTTP route.
type Router struct {
	Campaigns    *CampaignController
	Fulfillments *FulfillmentController
	Auth         *AuthController
	Health       *handler.HealthHandler
	Resolver     Resolver
	PledgeLimit  *RateLimiter
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	r.Get("/health", rt.Health.Health)
	r.Get("/health/db", rt.Health.Database)
	r.Handle("/metrics", promhttp.Handler())

	pledgeLimit := func(next http.Handler) http.Handler { return next }
	if rt.PledgeLimit != nil {
		pledgeLimit = rt.PledgeLimit.Handler
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", rt.Auth.Register)
		r.Post("/users/login", rt.Auth.LoginUser)
		r.Post("/users/forgotten-password", rt.Auth.ForgottenPassword)
		r.Post("/users/reset-password", rt.Auth.ResetPassword)
		r.Get("/campaigns", rt.Campaigns.ListCampaigns)
		r.Get("/campaigns/{id}", rt.Campaigns.GetCampaign)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(rt.Resolver, model.RoleUser))

			r.Get("/users/me", rt.Auth.Me)
			r.Post("/users/me/profile-image", rt.Auth.UploadProfileImage)
			r.Delete("/users/me/api-keys/current", rt.Auth.RevokeCurrent)

			r.With(pledgeLimit).Post("/campaigns/{id}/fulfillments", rt.Fulfillments.CreatePledge)
			r.With(pledgeLimit).Post("/campaigns/{id}/resources/{resourceId}/fulfillments", rt.Fulfillments.CreateSinglePledge)
			r.Get("/campaigns/{id}/fulfillments", rt.Fulfillments.ListMineByCampaign)

			r.Get("/fulfillments", rt.Fulfillments.ListMine)
			r.Get("/fulfillments/{id}", rt.Fulfillments.Get)
			r.Post("/fulfillments/{id}/messages", rt.Fulfillments.SendMessage)
			r.Post("/fulfillments/{id}/read", rt.Fulfillments.MarkRead)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", rt.Auth.LoginStaff)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(rt.Resolver, model.RoleStaff))

			r.Post("/staff", rt.Auth.CreateStaff)
			r.Get("/me", rt.Auth.Me)
			r.Delete("/me/api-keys/current", rt.Auth.RevokeCurrent)

			r.Post("/campaigns", rt.Campaigns.CreateCampaign)
			r.Get("/campaigns/{id}", rt.Campaigns.GetCampaignStats)
			r.Delete("/campaigns/{id}", rt.Campaigns.RemoveCampaign)
			r.Post("/campaigns/{id}/status", rt.Campaigns.UpdateStatus)
			r.Post("/campaigns/{id}/resources", rt.Campaigns.AddResource)
			r.Put("/campaigns/{id}/resources/{resourceId}", rt.Campaigns.UpdateResource)
			r.Get("/campaigns/{id}/resources/{resourceId}/fulfillments", rt.Fulfillments.ListByResource)
			r.Post("/campaigns/{id}/media", rt.Campaigns.AddMedia)
			r.Delete("/campaigns/{id}/media", rt.Campaigns.RemoveMedia)
			r.Post("/campaigns/{id}/reconcile", rt.Campaigns.Reconcile)

			r.Get("/fulfillments/{id}", rt.Fulfillments.Get)
			r.Post("/fulfillments/{id}/messages", rt.Fulfillments.SendMessage)
			r.Post("/fulfillments/{id}/status", rt.Fulfillments.UpdateStatus)
			r.Post("/fulfillments/{id}/read", rt.Fulfillments.MarkRead)
		})
	})

	return r
}
