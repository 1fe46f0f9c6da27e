package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/models"
	"farmrent/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type MockListings struct{ mock.Mock }

func (m *MockListings) Submit(ctx context.Context, req *service.SubmitListingRequest) (*models.Listing, error) {
	args := m.Called(ctx, req)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) Approve(ctx context.Context, id, comment string) (*models.Listing, error) {
	args := m.Called(ctx, id, comment)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) Decline(ctx context.Context, id, comment string) (*models.Listing, error) {
	args := m.Called(ctx, id, comment)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) Edit(ctx context.Context, id string, upd models.ListingUpdate) (*models.Listing, error) {
	args := m.Called(ctx, id, upd)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockListings) Review(ctx context.Context, id string) (*service.ListingReview, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*service.ListingReview)
	return r, args.Error(1)
}

func (m *MockListings) Browse(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	args := m.Called(ctx, filter)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) ListByStatus(ctx context.Context, status string) ([]models.Listing, error) {
	args := m.Called(ctx, status)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) ListBySeller(ctx context.Context, ownerID string) ([]models.Listing, error) {
	args := m.Called(ctx, ownerID)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *MockListings) ValidatePrice(category string, price int64) service.PriceCheck {
	return m.Called(category, price).Get(0).(service.PriceCheck)
}

type MockBookings struct{ mock.Mock }

func (m *MockBookings) Initiate(ctx context.Context, req *service.InitiateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookings) Get(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, callerID)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookings) ListForFarmer(ctx context.Context, farmerID string) ([]models.Booking, error) {
	args := m.Called(ctx, farmerID)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *MockBookings) Abandoned(ctx context.Context) ([]models.Booking, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

type MockPayments struct{ mock.Mock }

func (m *MockPayments) Prepare(ctx context.Context, bookingID, callerID string, isRent bool) (*service.PaymentQuote, error) {
	args := m.Called(ctx, bookingID, callerID, isRent)
	q, _ := args.Get(0).(*service.PaymentQuote)
	return q, args.Error(1)
}

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) Confirm(ctx context.Context, bookingID, txHash, callerID string) (*service.ConfirmResult, error) {
	args := m.Called(ctx, bookingID, txHash, callerID)
	r, _ := args.Get(0).(*service.ConfirmResult)
	return r, args.Error(1)
}

func (m *MockReconciler) Orders(ctx context.Context, farmerID string) ([]models.OrderRecord, error) {
	args := m.Called(ctx, farmerID)
	o, _ := args.Get(0).([]models.OrderRecord)
	return o, args.Error(1)
}

type MockAnalytics struct{ mock.Mock }

func (m *MockAnalytics) Farmer(ctx context.Context, farmerID string) (*models.FarmerAnalytics, error) {
	args := m.Called(ctx, farmerID)
	a, _ := args.Get(0).(*models.FarmerAnalytics)
	return a, args.Error(1)
}

func (m *MockAnalytics) Seller(ctx context.Context, sellerID string) (*models.SellerAnalytics, error) {
	args := m.Called(ctx, sellerID)
	a, _ := args.Get(0).(*models.SellerAnalytics)
	return a, args.Error(1)
}

func (m *MockAnalytics) SellerOrders(ctx context.Context, sellerID string) ([]models.Booking, error) {
	args := m.Called(ctx, sellerID)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *MockAnalytics) SellerFeed(ctx context.Context, sellerID string, limit int64) ([]models.FeedEntry, error) {
	args := m.Called(ctx, sellerID, limit)
	f, _ := args.Get(0).([]models.FeedEntry)
	return f, args.Error(1)
}

type testServer struct {
	router     *gin.Engine
	tokens     *TokenManager
	listings   *MockListings
	bookings   *MockBookings
	payments   *MockPayments
	reconciler *MockReconciler
	analytics  *MockAnalytics
}

func newTestServer(checks map[string]ReadinessCheck) *testServer {
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		router:     gin.New(),
		tokens:     NewTokenManager(testSecret),
		listings:   &MockListings{},
		bookings:   &MockBookings{},
		payments:   &MockPayments{},
		reconciler: &MockReconciler{},
		analytics:  &MockAnalytics{},
	}
	NewHandler(Services{
		Listings:   ts.listings,
		Bookings:   ts.bookings,
		Payments:   ts.payments,
		Reconciler: ts.reconciler,
		Analytics:  ts.analytics,
	}, ts.tokens, checks).SetupRoutes(ts.router)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := ts.tokens.Issue(userID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", "", "").Code)

	w := ts.do(t, http.MethodGet, "/ready", "", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	ready := newTestServer(nil)
	assert.Equal(t, http.StatusOK, ready.do(t, http.MethodGet, "/ready", "", "", "").Code)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(nil)
	ts.bookings.On("ListForFarmer", mock.Anything, "farmer-1").Return([]models.Booking{}, nil)

	t.Run("MissingToken", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/farmer/bookings", "", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewTokenManager("other").Issue("farmer-1", RoleFarmer, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/farmer/bookings", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongRole", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/farmer/bookings", "seller-1", RoleSeller, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "forbidden", decodeError(t, w))
	})

	t.Run("Cookie", func(t *testing.T) {
		token, err := ts.tokens.Issue("farmer-1", RoleFarmer, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/farmer/bookings", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: token})
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager(testSecret)
	token, err := tokens.Issue("farmer-1", RoleFarmer, -time.Minute)
	require.NoError(t, err)

	// A non-positive ttl falls back to the default lifetime.
	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "farmer-1", claims.UserID)
	assert.Equal(t, RoleFarmer, claims.Role)

	_, err = tokens.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubmitListingUsesCaller(t *testing.T) {
	ts := newTestServer(nil)
	ts.listings.On("Submit", mock.Anything, mock.MatchedBy(func(req *service.SubmitListingRequest) bool {
		return req.OwnerID == "seller-1" && req.PricePerDay == 1200 && req.AgeInYears == 3
	})).Return(&models.Listing{ID: "l1", Status: models.ListingStatusApproved, OnChainID: 1}, nil).Once()

	body := `{"name":"John Deere","category":"Tractor","region":"Pune","price_per_day":1200,` +
		`"age_in_years":3,"seller_name":"Asha","owner_id":"spoofed"}`
	w := ts.do(t, http.MethodPost, "/api/v1/seller/listings", "seller-1", RoleSeller, body)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"approved"`)
	ts.listings.AssertExpectations(t)
}

func TestInitiateBookingMalformedBody(t *testing.T) {
	ts := newTestServer(nil)

	w := ts.do(t, http.MethodPost, "/api/v1/farmer/bookings", "farmer-1", RoleFarmer, `{"days":"three"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w))
	ts.bookings.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestConfirmBooking(t *testing.T) {
	ts := newTestServer(nil)
	result := &service.ConfirmResult{
		Booking: &models.Booking{ID: "b1", Status: models.BookingStatusConfirmed},
		Order:   &models.OrderRecord{Seq: 1, Days: 3, Amount: 300},
	}
	ts.reconciler.On("Confirm", mock.Anything, "b1", "0xabc", "farmer-1").Return(result, nil).Once()
	ts.reconciler.On("Confirm", mock.Anything, "b1", "0xdef", "farmer-1").Return(nil, models.ErrAlreadyConfirmed).Once()

	w := ts.do(t, http.MethodPost, "/api/v1/farmer/bookings/b1/confirm", "farmer-1", RoleFarmer, `{"tx_hash":"0xabc"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":300`)

	w = ts.do(t, http.MethodPost, "/api/v1/farmer/bookings/b1/confirm", "farmer-1", RoleFarmer, `{"tx_hash":"0xdef"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "precondition_failed", decodeError(t, w))
}

func TestPreparePaymentMode(t *testing.T) {
	ts := newTestServer(nil)
	ts.payments.On("Prepare", mock.Anything, "b1", "farmer-1", false).
		Return(&service.PaymentQuote{BookingID: "b1", Mode: "share"}, nil).Once()
	ts.payments.On("Prepare", mock.Anything, "b2", "farmer-1", true).
		Return(nil, apperr.New(apperr.ErrConfiguration, "registry not configured")).Once()

	w := ts.do(t, http.MethodGet, "/api/v1/farmer/bookings/b1/payment?mode=share", "farmer-1", RoleFarmer, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/farmer/bookings/b2/payment", "farmer-1", RoleFarmer, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "configuration_error", decodeError(t, w))

	w = ts.do(t, http.MethodGet, "/api/v1/farmer/bookings/b1/payment?mode=lease", "farmer-1", RoleFarmer, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ts.payments.AssertExpectations(t)
}

func TestAdminModeration(t *testing.T) {
	ts := newTestServer(nil)
	ts.listings.On("Approve", mock.Anything, "l1", "").
		Return(&models.Listing{ID: "l1", Status: models.ListingStatusApproved}, nil).Once()
	ts.listings.On("Decline", mock.Anything, "l2", "blurry").
		Return(&models.Listing{ID: "l2", Status: models.ListingStatusDeclined}, nil).Once()
	ts.listings.On("Delete", mock.Anything, "l3").Return(nil).Once()
	ts.listings.On("Delete", mock.Anything, "missing").Return(models.ErrListingNotFound).Once()

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/admin/listings/l1/approve", "admin-1", RoleAdmin, "").Code)
	assert.Equal(t, http.StatusOK,
		ts.do(t, http.MethodPost, "/api/v1/admin/listings/l2/decline", "admin-1", RoleAdmin, `{"comment":"blurry"}`).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/admin/listings/l3", "admin-1", RoleAdmin, "").Code)

	w := ts.do(t, http.MethodDelete, "/api/v1/admin/listings/missing", "admin-1", RoleAdmin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w))

	ts.listings.AssertExpectations(t)
}

func TestSellerFeedLimit(t *testing.T) {
	ts := newTestServer(nil)
	ts.analytics.On("SellerFeed", mock.Anything, "seller-1", int64(5)).Return([]models.FeedEntry{}, nil).Once()

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/seller/feed?limit=5", "seller-1", RoleSeller, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/seller/feed?limit=0", "seller-1", RoleSeller, "").Code)
	ts.analytics.AssertExpectations(t)
}

func TestInternalErrorsHideDetails(t *testing.T) {
	ts := newTestServer(nil)
	ts.reconciler.On("Orders", mock.Anything, "farmer-1").Return(nil, errors.New("pq: connection reset"))

	w := ts.do(t, http.MethodGet, "/api/v1/farmer/orders", "farmer-1", RoleFarmer, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
	assert.Equal(t, "internal_error", decodeError(t, w))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.New(apperr.ErrValidation, "x"), http.StatusBadRequest, "validation_error"},
		{models.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{models.ErrListingNotApproved, http.StatusConflict, "precondition_failed"},
		{models.ErrNotBookingOwner, http.StatusForbidden, "forbidden"},
		{apperr.New(apperr.ErrConfiguration, "x"), http.StatusUnprocessableEntity, "configuration_error"},
		{apperr.New(apperr.ErrOnChainRejected, "x"), http.StatusUnprocessableEntity, "onchain_rejected"},
		{apperr.New(apperr.ErrExternalUnavailable, "x"), http.StatusServiceUnavailable, "external_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.code)
		assert.Equal(t, tt.code, code)
	}
}
