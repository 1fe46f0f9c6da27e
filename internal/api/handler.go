package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/models"
	"farmrent/internal/service"
	"farmrent/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ListingAPI is the listing surface used by the handlers
type ListingAPI interface {
	Submit(ctx context.Context, req *service.SubmitListingRequest) (*models.Listing, error)
	Approve(ctx context.Context, id, comment string) (*models.Listing, error)
	Decline(ctx context.Context, id, comment string) (*models.Listing, error)
	Edit(ctx context.Context, id string, upd models.ListingUpdate) (*models.Listing, error)
	Delete(ctx context.Context, id string) error
	Review(ctx context.Context, id string) (*service.ListingReview, error)
	Browse(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	ListByStatus(ctx context.Context, status string) ([]models.Listing, error)
	ListBySeller(ctx context.Context, ownerID string) ([]models.Listing, error)
	ValidatePrice(category string, price int64) service.PriceCheck
}

// BookingAPI is the booking surface used by the handlers
type BookingAPI interface {
	Initiate(ctx context.Context, req *service.InitiateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, bookingID, callerID string) (*models.Booking, error)
	ListForFarmer(ctx context.Context, farmerID string) ([]models.Booking, error)
	Abandoned(ctx context.Context) ([]models.Booking, error)
}

// PaymentAPI prepares settlement transactions
type PaymentAPI interface {
	Prepare(ctx context.Context, bookingID, callerID string, isRent bool) (*service.PaymentQuote, error)
}

// ReconcileAPI confirms settled bookings
type ReconcileAPI interface {
	Confirm(ctx context.Context, bookingID, txHash, callerID string) (*service.ConfirmResult, error)
	Orders(ctx context.Context, farmerID string) ([]models.OrderRecord, error)
}

// AnalyticsAPI serves dashboards and feeds
type AnalyticsAPI interface {
	Farmer(ctx context.Context, farmerID string) (*models.FarmerAnalytics, error)
	Seller(ctx context.Context, sellerID string) (*models.SellerAnalytics, error)
	SellerOrders(ctx context.Context, sellerID string) ([]models.Booking, error)
	SellerFeed(ctx context.Context, sellerID string, limit int64) ([]models.FeedEntry, error)
}

// Services groups the handler dependencies
type Services struct {
	Listings   ListingAPI
	Bookings   BookingAPI
	Payments   PaymentAPI
	Reconciler ReconcileAPI
	Analytics  AnalyticsAPI
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	tokens *TokenManager
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, tokens *TokenManager, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		svc:    svc,
		tokens: tokens,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/catalog", h.catalog)

	farmer := v1.Group("/farmer", Authenticate(h.tokens), RequireRole(RoleFarmer))
	{
		farmer.GET("/listings", h.browseListings)
		farmer.POST("/bookings", h.initiateBooking)
		farmer.GET("/bookings", h.listBookings)
		farmer.GET("/bookings/:id", h.getBooking)
		farmer.GET("/bookings/:id/payment", h.preparePayment)
		farmer.POST("/bookings/:id/confirm", h.confirmBooking)
		farmer.GET("/orders", h.farmerOrders)
		farmer.GET("/analytics", h.farmerAnalytics)
	}

	seller := v1.Group("/seller", Authenticate(h.tokens), RequireRole(RoleSeller))
	{
		seller.POST("/listings", h.submitListing)
		seller.GET("/listings", h.sellerListings)
		seller.POST("/listings/validate-price", h.validatePrice)
		seller.GET("/orders", h.sellerOrders)
		seller.GET("/feed", h.sellerFeed)
		seller.GET("/analytics", h.sellerAnalytics)
	}

	admin := v1.Group("/admin", Authenticate(h.tokens), RequireRole(RoleAdmin))
	{
		admin.GET("/listings", h.listingsByStatus)
		admin.GET("/listings/:id", h.reviewListing)
		admin.POST("/listings/:id/approve", h.approveListing)
		admin.POST("/listings/:id/decline", h.declineListing)
		admin.PATCH("/listings/:id", h.editListing)
		admin.DELETE("/listings/:id", h.deleteListing)
		admin.GET("/bookings/abandoned", h.abandonedBookings)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"regions":    models.Regions,
		"categories": models.Categories,
	})
}

// Farmer handlers

func (h *Handler) browseListings(c *gin.Context) {
	listings, err := h.svc.Listings.Browse(c.Request.Context(), models.ListingFilter{
		Region:   c.Query("region"),
		Category: c.Query("category"),
		Query:    c.Query("q"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) initiateBooking(c *gin.Context) {
	var req service.InitiateBookingRequest
	if !h.bind(c, &req) {
		return
	}
	req.FarmerID = callerID(c)

	booking, err := h.svc.Bookings.Initiate(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.ListForFarmer(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.svc.Bookings.Get(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) preparePayment(c *gin.Context) {
	var isRent bool
	switch c.DefaultQuery("mode", "rent") {
	case "rent":
		isRent = true
	case "share":
	default:
		h.writeError(c, apperr.New(apperr.ErrValidation, "mode must be rent or share"))
		return
	}

	quote, err := h.svc.Payments.Prepare(c.Request.Context(), c.Param("id"), callerID(c), isRent)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type confirmRequest struct {
	TxHash string `json:"tx_hash"`
}

func (h *Handler) confirmBooking(c *gin.Context) {
	var req confirmRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.Reconciler.Confirm(c.Request.Context(), c.Param("id"), req.TxHash, callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) farmerOrders(c *gin.Context) {
	orders, err := h.svc.Reconciler.Orders(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) farmerAnalytics(c *gin.Context) {
	analytics, err := h.svc.Analytics.Farmer(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// Seller handlers

func (h *Handler) submitListing(c *gin.Context) {
	var req service.SubmitListingRequest
	if !h.bind(c, &req) {
		return
	}
	req.OwnerID = callerID(c)

	listing, err := h.svc.Listings.Submit(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) sellerListings(c *gin.Context) {
	listings, err := h.svc.Listings.ListBySeller(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

type priceCheckRequest struct {
	Category string `json:"category"`
	Price    int64  `json:"price"`
}

func (h *Handler) validatePrice(c *gin.Context) {
	var req priceCheckRequest
	if !h.bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, h.svc.Listings.ValidatePrice(req.Category, req.Price))
}

func (h *Handler) sellerOrders(c *gin.Context) {
	orders, err := h.svc.Analytics.SellerOrders(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) sellerFeed(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 {
		h.writeError(c, apperr.New(apperr.ErrValidation, "limit must be a positive integer"))
		return
	}

	entries, err := h.svc.Analytics.SellerFeed(c.Request.Context(), callerID(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": entries})
}

func (h *Handler) sellerAnalytics(c *gin.Context) {
	analytics, err := h.svc.Analytics.Seller(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// Admin handlers

func (h *Handler) listingsByStatus(c *gin.Context) {
	listings, err := h.svc.Listings.ListByStatus(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (h *Handler) reviewListing(c *gin.Context) {
	review, err := h.svc.Listings.Review(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

type moderationRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) approveListing(c *gin.Context) {
	h.moderate(c, h.svc.Listings.Approve)
}

func (h *Handler) declineListing(c *gin.Context) {
	h.moderate(c, h.svc.Listings.Decline)
}

func (h *Handler) moderate(c *gin.Context, action func(context.Context, string, string) (*models.Listing, error)) {
	var req moderationRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	listing, err := action(c.Request.Context(), c.Param("id"), req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) editListing(c *gin.Context) {
	var upd models.ListingUpdate
	if !h.bind(c, &upd) {
		return
	}

	listing, err := h.svc.Listings.Edit(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) deleteListing(c *gin.Context) {
	if err := h.svc.Listings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) abandonedBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.Abandoned(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"details": "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// writeError maps an error kind to its HTTP status and code
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}

	details := err.Error()
	if status == http.StatusInternalServerError {
		details = "internal server error"
	}
	c.JSON(status, gin.H{"error": code, "details": details})
}

func statusFor(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case apperr.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.ErrPreconditionFailed:
		return http.StatusConflict, "precondition_failed"
	case apperr.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case apperr.ErrConfiguration:
		return http.StatusUnprocessableEntity, "configuration_error"
	case apperr.ErrOnChainRejected:
		return http.StatusUnprocessableEntity, "onchain_rejected"
	case apperr.ErrExternalUnavailable:
		return http.StatusServiceUnavailable, "external_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
