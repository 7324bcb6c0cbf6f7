// Package orders holds the OpenAPI document for the orders service.
// Regenerate with: swag init -g cmd/orders/main.go -o docs/orders --instanceName orders
package orders

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/order-details": {
            "get": {
                "description": "Returns the materialized order including its computed shipping cost",
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Order details",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Order identifier",
                        "name": "orderId",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/OrderDetailsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "order not found: X1"}
            }
        },
        "OrderDetailsResponse": {
            "type": "object",
            "properties": {
                "currency": {"type": "string", "example": "USD"},
                "customerId": {"type": "string", "example": "CUST_AB12CD34"},
                "eventId": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/OrderItemResponse"}},
                "numberOfItems": {"type": "integer", "example": 3},
                "orderDate": {"type": "string", "example": "2025-01-15T10:30:00Z"},
                "orderId": {"type": "string", "example": "X1"},
                "receivedAt": {"type": "string", "example": "2025-01-15T10:30:01Z"},
                "shippingCost": {"type": "string", "example": "1.2"},
                "status": {"type": "string", "example": "completed"},
                "totalAmount": {"type": "string", "example": "59.97"}
            }
        },
        "OrderItemResponse": {
            "type": "object",
            "properties": {
                "itemId": {"type": "string", "example": "A1B2C3"},
                "lineTotal": {"type": "string", "example": "20.5"},
                "price": {"type": "string", "example": "10.25"},
                "quantity": {"type": "integer", "example": 2}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Orders Service API",
	Description:      "Serves orders materialized from order_created events.",
	InfoInstanceName: "orders",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
