package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/errhttp"
	"github.com/ghuser/orderflow/pkg/httpx"
	pkgvalidator "github.com/ghuser/orderflow/pkg/validator"
	appsvcs "github.com/ghuser/orderflow/services/cart/application/services"
)

// CreateOrderRequest is the request body for POST /create-order.
// Unknown fields are ignored.
type CreateOrderRequest struct {
	OrderID       string `json:"orderId"       validate:"required,orderid"         example:"X1"`
	NumberOfItems int    `json:"numberOfItems" validate:"required,gte=1,lte=100" example:"3"`
} // @name CreateOrderRequest

// OrderItemResponse is one generated order line.
type OrderItemResponse struct {
	ItemID   string          `json:"itemId"   example:"A1B2C3"`
	Quantity int             `json:"quantity" example:"2"`
	Price    decimal.Decimal `json:"price"    example:"19.99" swaggertype:"string"`
} // @name OrderItemResponse

// CreateOrderResponse is the order as published, plus the identifiers of
// the event and broker message that carried it.
type CreateOrderResponse struct {
	OrderID       string              `json:"orderId"       example:"X1"`
	CustomerID    string              `json:"customerId"    example:"CUST_AB12CD34"`
	OrderDate     time.Time           `json:"orderDate"     example:"2025-01-15T10:30:00Z"`
	NumberOfItems int                 `json:"numberOfItems" example:"3"`
	Items         []OrderItemResponse `json:"items"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"   example:"59.97" swaggertype:"string"`
	Currency      string              `json:"currency"      example:"USD"`
	Status        string              `json:"status"        example:"new"`
	EventID       string              `json:"eventId"       example:"123e4567-e89b-12d3-a456-426614174000"`
	MessageID     string              `json:"messageId"     example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	RoutingKey    string              `json:"routingKey"    example:"new.X1"`
} // @name CreateOrderResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"order already exists: X1"`
} // @name ErrorResponse

// PostCreateOrderHandler handles POST /create-order requests.
type PostCreateOrderHandler struct {
	svc *appsvcs.Services
}

// NewPostCreateOrderHandler returns a PostCreateOrderHandler backed by the given services.
func NewPostCreateOrderHandler(svc *appsvcs.Services) *PostCreateOrderHandler {
	return &PostCreateOrderHandler{svc: svc}
}

// Execute creates an order with generated items and publishes it.
//
//	@Summary		Create order
//	@Description	Generates items for the order and publishes an order_created event with routing key new.<orderId>
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateOrderRequest	true	"Order creation request"
//	@Success		201		{object}	CreateOrderResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/create-order [post]
func (h *PostCreateOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[CreateOrderRequest](w, r)
	if !ok {
		return
	}

	created, err := h.svc.Cart.CreateOrder(r.Context(), req.OrderID, req.NumberOfItems)
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	o := created.Order
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{ItemID: it.ID, Quantity: it.Quantity, Price: it.Price}
	}
	httpx.JSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		OrderDate:     o.CreatedAt,
		NumberOfItems: len(o.Items),
		Items:         items,
		TotalAmount:   o.Total,
		Currency:      o.Currency,
		Status:        o.Status,
		EventID:       created.EventID,
		MessageID:     created.Receipt.MessageID,
		RoutingKey:    created.Receipt.RoutingKey.String(),
	})
}
