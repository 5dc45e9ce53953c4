// Package handler provides HTTP request handlers for the products API.
package handler

import "github.com/vyrodovalexey/productos-api/internal/model"

// Version is the application version.
const Version = "1.0.0"

// Plain-text bodies of the liveness endpoints.
const (
	RootMessage   = "API running"
	HealthMessage = "OK"
)

// ProductNotifier is told about every product that was persisted.
type ProductNotifier interface {
	NotifyProductCreated(product model.Product)
}
