package resource

import (
	"net/http"

	"github.com/redletterlabs/vouchsafe/pkg/httpx"
)

// Orders returns the orders service definition with its demo payloads.
func Orders() Definition {
	return Definition{
		Name:       "orders",
		BasePath:   "/orders",
		ReadScope:  "orders.read",
		WriteScope: "orders.write",
		List: func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteJSON(w, http.StatusOK, []map[string]any{
				{"id": 1, "item": "demo"},
			})
		},
		Create: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", "/orders/1")
			httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": 1})
		},
	}
}

// Payments returns the payments service definition with its demo payloads.
func Payments() Definition {
	return Definition{
		Name:       "payments",
		BasePath:   "/payments",
		ReadScope:  "payments.read",
		WriteScope: "payments.write",
		List: func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteJSON(w, http.StatusOK, []map[string]any{
				{"id": 1, "amount": 100.0},
			})
		},
		Create: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", "/payments/1")
			httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": 1})
		},
	}
}
