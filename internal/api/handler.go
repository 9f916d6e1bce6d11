package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type CheckoutInitiator interface {
	CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

type WebhookProcessor interface {
	HandleNotification(ctx context.Context, n *models.PaymentNotification) (service.WebhookOutcome, error)
}

type OrderManager interface {
	ListOrders(ctx context.Context, req *service.ListOrdersRequest) (*service.ListOrdersResponse, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type CustomerResolver interface {
	ResolveCustomer(ctx context.Context, req *service.ResolveCustomerRequest) (*models.Customer, bool, error)
}

type StockReader interface {
	GetAvailable(ctx context.Context, variantID string) (int, error)
	GetVariantStock(ctx context.Context, variantID string) (*service.VariantStock, error)
}

// Services groups the collaborators the routes dispatch to
type Services struct {
	Checkout  CheckoutInitiator
	Webhook   WebhookProcessor
	Orders    OrderManager
	Customers CustomerResolver
	Stock     StockReader
}

// Handler contains HTTP handlers
type Handler struct {
	svc         Services
	adminAPIKey string
	ready       func(ctx context.Context) error
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. ready may be nil.
func NewHandler(svc Services, adminAPIKey string, ready func(ctx context.Context) error) *Handler {
	return &Handler{
		svc:         svc,
		adminAPIKey: adminAPIKey,
		ready:       ready,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(tracingMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	storefront := router.Group("/api")
	{
		storefront.POST("/checkout", h.createCheckout)
		storefront.POST("/webhook", h.paymentWebhook)
		storefront.POST("/customers", h.resolveCustomer)
	}

	v1 := router.Group("/api/v1")
	v1.Use(apiKeyAuth(h.adminAPIKey, h.logger))
	{
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.DELETE("/orders/:id", h.deleteOrder)
		v1.GET("/stock/:variantId", h.getStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createCheckout handles checkout initiation
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.svc.Checkout.CreateCheckout(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"init_point": resp.InitPoint})
}

// paymentWebhook acknowledges every delivery with 200 so the processor
// never retries on our account. Failures are only logged.
func (h *Handler) paymentWebhook(c *gin.Context) {
	logger := util.WithTrace(c.Request.Context())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Webhook processing panicked", zap.Any("panic", r))
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Failed to read webhook body", zap.Error(err))
		return
	}

	var notification models.PaymentNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		logger.Warn("Dropping malformed webhook body", zap.Error(err))
		return
	}

	outcome, err := h.svc.Webhook.HandleNotification(c.Request.Context(), &notification)
	if err != nil {
		logger.Error("Webhook processing failed",
			zap.String("outcome", string(outcome)),
			zap.String("payment_id", notification.Data.ID),
			zap.Error(err))
		return
	}

	logger.Debug("Webhook processed",
		zap.String("outcome", string(outcome)),
		zap.String("payment_id", notification.Data.ID))
}

// resolveCustomer finds a customer by email or creates one
func (h *Handler) resolveCustomer(c *gin.Context) {
	var req service.ResolveCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	customer, created, err := h.svc.Customers.ResolveCustomer(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, customer)
}

func (h *Handler) listOrders(c *gin.Context) {
	var req service.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	resp, err := h.svc.Orders.ListOrders(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	order, err := h.svc.Orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.svc.Orders.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getStock(c *gin.Context) {
	variantID := c.Param("variantId")

	stock, err := h.svc.Stock.GetVariantStock(c.Request.Context(), variantID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	available, err := h.svc.Stock.GetAvailable(c.Request.Context(), variantID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"variant_id": stock.VariantID,
		"total":      stock.Total,
		"available":  available,
		"warehouses": stock.Warehouses,
	})
}

// respondError maps service errors onto status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *models.ValidationError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
