package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ShiftOperations is the cash session manager as seen by HTTP
type ShiftOperations interface {
	OpenShift(ctx context.Context, uid string, openingFloat float64) (string, error)
	CloseShift(ctx context.Context, uid string, req service.CloseShiftRequest) (*models.ShiftClosing, error)
	CurrentShift(ctx context.Context, uid string) (*models.CashShift, error)
	ShiftSales(ctx context.Context, uid, shiftID string) ([]models.SaleRecord, error)
}

// CheckoutOperations is the checkout engine as seen by HTTP
type CheckoutOperations interface {
	Checkout(ctx context.Context, uid string, req service.CheckoutRequest) (*service.CheckoutResult, error)
	DirectSale(ctx context.Context, uid string, req service.DirectSaleRequest) (*service.CheckoutResult, error)
}

// OrderOperations moves orders through their lifecycle
type OrderOperations interface {
	AdvanceOrderStatus(ctx context.Context, uid, orderID string, to models.OrderStatus) (*models.Order, error)
}

// InventoryOperations are the manual inventory actions
type InventoryOperations interface {
	GetInventory(ctx context.Context, uid, productID string) (*models.InventoryRecord, error)
	ReactivateProduct(ctx context.Context, uid, productID string) error
	RestockIngredient(ctx context.Context, uid, productID, ingredient string, quantity int) (*models.InventoryRecord, error)
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	shifts    ShiftOperations
	checkout  CheckoutOperations
	orders    OrderOperations
	inventory InventoryOperations
	jwtSecret []byte
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	shifts ShiftOperations,
	checkout CheckoutOperations,
	orders OrderOperations,
	inventory InventoryOperations,
	jwtSecret string,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		shifts:    shifts,
		checkout:  checkout,
		orders:    orders,
		inventory: inventory,
		jwtSecret: []byte(jwtSecret),
		checks:    checks,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(h.jwtSecret))
	{
		v1.POST("/shifts", h.openShift)
		v1.GET("/shifts/current", h.currentShift)
		v1.POST("/shifts/:id/close", h.closeShift)
		v1.GET("/shifts/:id/sales", h.shiftSales)

		v1.POST("/checkout", h.checkoutOrder)
		v1.POST("/sales/direct", h.directSale)

		v1.PATCH("/orders/:id/status", h.advanceOrderStatus)

		v1.GET("/inventory/:productId", h.getInventory)
		v1.POST("/inventory/:productId/reactivate", h.reactivateProduct)
		v1.POST("/inventory/:productId/restock", h.restockIngredient)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing service
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"failing": failing,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) openShift(c *gin.Context) {
	var req openShiftRequest
	if !h.bind(c, &req, false) {
		return
	}

	// a missing float is not finite and is rejected after the caller is authorized
	openingFloat := math.NaN()
	if req.OpeningFloat != nil {
		openingFloat = *req.OpeningFloat
	}

	shiftID, err := h.shifts.OpenShift(c.Request.Context(), callerID(c), openingFloat)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"shiftId": shiftID})
}

func (h *Handler) closeShift(c *gin.Context) {
	var req closeShiftRequest
	if !h.bind(c, &req, true) {
		return
	}

	_, err := h.shifts.CloseShift(c.Request.Context(), callerID(c), service.CloseShiftRequest{
		ShiftID:     c.Param("id"),
		CountedCash: req.CountedCash,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) currentShift(c *gin.Context) {
	shift, err := h.shifts.CurrentShift(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newShiftView(shift))
}

func (h *Handler) shiftSales(c *gin.Context) {
	sales, err := h.shifts.ShiftSales(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]saleView, 0, len(sales))
	for i := range sales {
		views = append(views, newSaleView(&sales[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sales": views})
}

func (h *Handler) checkoutOrder(c *gin.Context) {
	var req checkoutRequest
	if !h.bind(c, &req, false) {
		return
	}

	result, err := h.checkout.Checkout(c.Request.Context(), callerID(c), service.CheckoutRequest{
		OrderID:       req.OrderID,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Customer:      req.CustomerDetails.toModel(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSaleResponse(result))
}

func (h *Handler) directSale(c *gin.Context) {
	var req directSaleRequest
	if !h.bind(c, &req, false) {
		return
	}

	result, err := h.checkout.DirectSale(c.Request.Context(), callerID(c), service.DirectSaleRequest{
		Items:         toLineItems(req.Items),
		Discount:      req.Discount.toModel(),
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Customer:      req.CustomerDetails.toModel(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSaleResponse(result))
}

func (h *Handler) advanceOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if !h.bind(c, &req, false) {
		return
	}

	order, err := h.orders.AdvanceOrderStatus(c.Request.Context(), callerID(c), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId": order.ID,
		"status":  order.Status,
	})
}

func (h *Handler) getInventory(c *gin.Context) {
	rec, err := h.inventory.GetInventory(c.Request.Context(), callerID(c), c.Param("productId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newInventoryView(rec))
}

func (h *Handler) reactivateProduct(c *gin.Context) {
	if err := h.inventory.ReactivateProduct(c.Request.Context(), callerID(c), c.Param("productId")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) restockIngredient(c *gin.Context) {
	var req restockRequest
	if !h.bind(c, &req, false) {
		return
	}

	rec, err := h.inventory.RestockIngredient(c.Request.Context(), callerID(c), c.Param("productId"), req.Ingredient, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newInventoryView(rec))
}

// bind decodes a JSON body. An empty body is accepted when optional is set.
// Anonymous callers are turned away before the body is looked at.
func (h *Handler) bind(c *gin.Context, dst interface{}, optional bool) bool {
	if callerID(c) == "" {
		abortUnauthenticated(c, "authentication required")
		return false
	}

	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   apperr.InvalidArgument,
		"message": "invalid request body: " + err.Error(),
	})
	return false
}

// respondError writes a coded failure. Internal causes are logged, not returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.Internal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(apperr.HTTPStatus(code), gin.H{
		"error":   code,
		"message": apperr.MessageOf(err),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
