package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/productos-api/internal/middleware"
	"github.com/vyrodovalexey/productos-api/internal/model"
	"github.com/vyrodovalexey/productos-api/internal/store"
)

// maxBodyBytes caps the size of a POST /productos request body.
const maxBodyBytes = 1 << 20

// nullBody is written when a lookup finds nothing.
var nullBody = json.RawMessage("null")

// errEmptyProduct is returned when the request body is a JSON null.
var errEmptyProduct = errors.New("request body must be a JSON object")

// RESTHandler handles REST API requests for products.
type RESTHandler struct {
	store          store.Store
	logger         *zap.Logger
	notifier       ProductNotifier
	strictNotFound bool
}

// Option configures a RESTHandler.
type Option func(*RESTHandler)

// WithNotifier registers a notifier that is told about created products.
func WithNotifier(n ProductNotifier) Option {
	return func(h *RESTHandler) {
		h.notifier = n
	}
}

// WithStrictNotFound makes GET /productos/{id} answer 404 instead of a 200
// with a null body when no product matches.
func WithStrictNotFound(strict bool) Option {
	return func(h *RESTHandler) {
		h.strictNotFound = strict
	}
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s store.Store, logger *zap.Logger, opts ...Option) *RESTHandler {
	h := &RESTHandler{
		store:  s,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/productos", h.ListProducts).Methods(http.MethodGet)
	router.HandleFunc("/productos", h.CreateProduct).Methods(http.MethodPost)
	router.HandleFunc("/productos/{id}", h.GetProduct).Methods(http.MethodGet)
}

// Root handles GET / requests.
func (h *RESTHandler) Root(w http.ResponseWriter, _ *http.Request) {
	h.writeText(w, http.StatusOK, RootMessage)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeText(w, http.StatusOK, HealthMessage)
}

// ListProducts handles GET /productos requests.
func (h *RESTHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Load(r.Context())
	if err != nil {
		h.handleStoreError(w, r, err, "list products")
		return
	}

	if products == nil {
		products = []model.Product{}
	}

	h.writeJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /productos/{id} requests. The first product with a
// matching id wins.
func (h *RESTHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]

	id, err := strconv.Atoi(rawID)
	if err != nil {
		h.logger.Warn("invalid product id", zap.String("id", rawID), zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	products, err := h.store.Load(r.Context())
	if err != nil {
		h.handleStoreError(w, r, err, "get product")
		return
	}

	product, ok := model.FindByID(products, id)
	if !ok {
		if h.strictNotFound {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.writeJSON(w, http.StatusOK, nullBody)
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /productos requests. The product is appended as
// sent; ids are neither generated nor checked for uniqueness.
func (h *RESTHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, err := decodeProduct(w, r)
	if err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.store.Mutate(r.Context(), func(products []model.Product) ([]model.Product, error) {
		return append(products, *input), nil
	})
	if err != nil {
		h.handleStoreError(w, r, err, "create product")
		return
	}

	h.logger.Debug("product created", zap.Int("id", input.ID))
	h.writeJSON(w, http.StatusCreated, input)

	if h.notifier != nil {
		h.notifier.NotifyProductCreated(*input)
	}
}

// decodeProduct reads a single product from the request body.
func decodeProduct(w http.ResponseWriter, r *http.Request) (*model.Product, error) {
	var input *model.Product
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		return nil, err
	}
	if input == nil {
		return nil, errEmptyProduct
	}
	return input, nil
}

// handleStoreError logs a storage failure and answers 500.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	if requestID := middleware.RequestIDFromContext(r.Context()); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	var storageErr *store.StorageError
	if errors.As(err, &storageErr) && storageErr.Path != "" {
		fields = append(fields, zap.String("path", storageErr.Path))
	}
	if errors.Is(err, store.ErrCorruptData) {
		fields = append(fields, zap.Bool("corrupt", true))
	}

	h.logger.Error("store operation failed", fields...)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeText writes a plain text response with the given status code.
func (h *RESTHandler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
