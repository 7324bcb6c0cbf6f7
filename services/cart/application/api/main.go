package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/orderflow/services/cart/application/handlers"
	appsvcs "github.com/ghuser/orderflow/services/cart/application/services"
)

// CartRoutes registers cart endpoints on the provided chi router.
func CartRoutes(r chi.Router, svcs *appsvcs.Services) {
	r.Group(func(r chi.Router) {
		r.Post("/create-order", handlers.NewPostCreateOrderHandler(svcs).Execute)
	})
}
