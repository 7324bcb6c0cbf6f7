// Package cart holds the OpenAPI document for the cart service.
// Regenerate with: swag init -g cmd/cart/main.go -o docs/cart --instanceName cart
package cart

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
        "/create-order": {
            "post": {
                "description": "Generates items for the order and publishes an order_created event with routing key new.<orderId>",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Create order",
                "parameters": [
                    {
                        "description": "Order creation request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreateOrderRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/CreateOrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "CreateOrderRequest": {
            "type": "object",
            "required": ["numberOfItems", "orderId"],
            "properties": {
                "numberOfItems": {"type": "integer", "maximum": 100, "minimum": 1, "example": 3},
                "orderId": {"type": "string", "example": "X1"}
            }
        },
        "CreateOrderResponse": {
            "type": "object",
            "properties": {
                "currency": {"type": "string", "example": "USD"},
                "customerId": {"type": "string", "example": "CUST_AB12CD34"},
                "eventId": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/OrderItemResponse"}},
                "messageId": {"type": "string", "example": "0f8fad5b-d9cb-469f-a165-70867728950e"},
                "numberOfItems": {"type": "integer", "example": 3},
                "orderDate": {"type": "string", "example": "2025-01-15T10:30:00Z"},
                "orderId": {"type": "string", "example": "X1"},
                "routingKey": {"type": "string", "example": "new.X1"},
                "status": {"type": "string", "example": "new"},
                "totalAmount": {"type": "string", "example": "59.97"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "order already exists: X1"}
            }
        },
        "OrderItemResponse": {
            "type": "object",
            "properties": {
                "itemId": {"type": "string", "example": "A1B2C3"},
                "price": {"type": "string", "example": "19.99"},
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
	Title:            "Cart Service API",
	Description:      "Creates orders and publishes them to the orders exchange.",
	InfoInstanceName: "cart",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
