package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ghuser/orderflow/services/order/application/handlers"
	appsvcs "github.com/ghuser/orderflow/services/order/application/services"
)

// OrderRoutes registers order endpoints on the provided chi router.
func OrderRoutes(r chi.Router, svcs *appsvcs.Services) {
	r.Group(func(r chi.Router) {
		r.Get("/order-details", handlers.NewGetOrderDetailsHandler(svcs).Execute)
	})
}
