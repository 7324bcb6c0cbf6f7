package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/errhttp"
	"github.com/ghuser/orderflow/pkg/httpx"
	appsvcs "github.com/ghuser/orderflow/services/order/application/services"
	"github.com/ghuser/orderflow/services/order/domain/models"
)

// OrderItemResponse is one line of a stored order.
type OrderItemResponse struct {
	ItemID    string          `json:"itemId"    example:"A1B2C3"`
	Quantity  int             `json:"quantity"  example:"2"`
	Price     decimal.Decimal `json:"price"     example:"10.25" swaggertype:"string"`
	LineTotal decimal.Decimal `json:"lineTotal" example:"20.5"  swaggertype:"string"`
} // @name OrderItemResponse

// OrderDetailsResponse is a materialized order with its shipping cost.
type OrderDetailsResponse struct {
	OrderID       string              `json:"orderId"       example:"X1"`
	CustomerID    string              `json:"customerId"    example:"CUST_AB12CD34"`
	OrderDate     time.Time           `json:"orderDate"     example:"2025-01-15T10:30:00Z"`
	NumberOfItems int                 `json:"numberOfItems" example:"3"`
	Items         []OrderItemResponse `json:"items"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"   example:"59.97" swaggertype:"string"`
	Currency      string              `json:"currency"      example:"USD"`
	Status        string              `json:"status"        example:"completed"`
	ShippingCost  decimal.Decimal     `json:"shippingCost"  example:"1.2"   swaggertype:"string"`
	EventID       string              `json:"eventId"       example:"123e4567-e89b-12d3-a456-426614174000"`
	ReceivedAt    time.Time           `json:"receivedAt"    example:"2025-01-15T10:30:01Z"`
} // @name OrderDetailsResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"order not found: X1"`
} // @name ErrorResponse

// GetOrderDetailsHandler handles GET /order-details requests.
type GetOrderDetailsHandler struct {
	svc *appsvcs.Services
}

// NewGetOrderDetailsHandler returns a GetOrderDetailsHandler backed by the given services.
func NewGetOrderDetailsHandler(svc *appsvcs.Services) *GetOrderDetailsHandler {
	return &GetOrderDetailsHandler{svc: svc}
}

// Execute returns a stored order.
//
//	@Summary		Order details
//	@Description	Returns the materialized order including its computed shipping cost
//	@Tags			orders
//	@Produce		json
//	@Param			orderId	query		string	true	"Order identifier"
//	@Success		200		{object}	OrderDetailsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/order-details [get]
func (h *GetOrderDetailsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		httpx.JSONError(w, http.StatusBadRequest, "orderId query parameter is required")
		return
	}

	order, err := h.svc.Order.Get(r.Context(), orderID)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, toResponse(order))
}

func toResponse(o *models.MaterializedOrder) OrderDetailsResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			LineTotal: it.LineTotal,
		}
	}
	return OrderDetailsResponse{
		OrderID:       o.OrderID,
		CustomerID:    o.CustomerID,
		OrderDate:     o.OrderDate,
		NumberOfItems: o.NumberOfItems,
		Items:         items,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		Status:        string(o.Status),
		ShippingCost:  o.ShippingCost,
		EventID:       o.EventID,
		ReceivedAt:    o.ReceivedAt,
	}
}
