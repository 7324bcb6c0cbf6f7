package errhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
	cartdomain "github.com/ghuser/orderflow/services/cart/domain"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
)

func TestWriteError_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ErrOrderNotFound", orderdomain.ErrOrderNotFound, http.StatusNotFound},
		{"ErrOrderAlreadyExists", cartdomain.ErrOrderAlreadyExists, http.StatusConflict},
		{"ErrInvalidOrder", cartdomain.ErrInvalidOrder, http.StatusUnprocessableEntity},
		{"ErrInvalidIdentifier", routingkey.ErrInvalidIdentifier, http.StatusUnprocessableEntity},
		{"ErrBrokerUnavailable", messaging.ErrBrokerUnavailable, http.StatusServiceUnavailable},
		{"ErrExchangeNotFound", messaging.ErrExchangeNotFound, http.StatusServiceUnavailable},
		{"ErrStoreUnavailable", orderdomain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"wrapped ErrOrderNotFound", fmt.Errorf("get order: %w", orderdomain.ErrOrderNotFound), http.StatusNotFound},
		{"wrapped ErrOrderAlreadyExists", fmt.Errorf("%w: X1", cartdomain.ErrOrderAlreadyExists), http.StatusConflict},
		{"wrapped ErrBrokerUnavailable", fmt.Errorf("publish order X1: %w", messaging.ErrBrokerUnavailable), http.StatusServiceUnavailable},
		{"ErrTopologyConflict", messaging.ErrTopologyConflict, http.StatusInternalServerError},
		{"unknown error", errors.New("something unexpected"), http.StatusInternalServerError},
		{"generic wrapped error", fmt.Errorf("context: %w", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestWriteError_JSONBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if body["error"] != orderdomain.ErrOrderNotFound.Error() {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	ct := w.Header().Get("Content-Type")
	if ct == "" {
		t.Fatal("Content-Type header not set")
	}
}
