package service

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/chain"
	"farmrent/internal/models"
	"farmrent/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory stand-in for the Postgres store.
type memStore struct {
	mu          sync.Mutex
	listings    map[string]*models.Listing
	moderation  map[string][]models.ModerationEntry
	bookings    map[string]*models.Booking
	orders      map[string][]models.OrderRecord
	lastChainID int64
}

func newMemStore() *memStore {
	return &memStore{
		listings:   map[string]*models.Listing{},
		moderation: map[string][]models.ModerationEntry{},
		bookings:   map[string]*models.Booking{},
		orders:     map[string][]models.OrderRecord{},
	}
}

func (m *memStore) CreateListing(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastChainID++
	l.ID = uuid.NewString()
	l.OnChainID = m.lastChainID
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	cp := *l
	m.listings[l.ID] = &cp
	if l.Status == models.ListingStatusPending {
		m.moderation[l.ID] = append(m.moderation[l.ID], models.ModerationEntry{
			ID: uuid.NewString(), ListingID: l.ID, Status: models.ListingStatusPending,
		})
	}
	return nil
}

func (m *memStore) GetListingByID(_ context.Context, id string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, models.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) ListListings(_ context.Context, f models.ListingFilter) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Listing{}
	for _, l := range m.listings {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		if f.Region != "" && !strings.HasPrefix(strings.ToLower(l.Region), strings.ToLower(f.Region)) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(f.Category, "all") &&
			!strings.HasPrefix(strings.ToLower(l.Category), strings.ToLower(f.Category)) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(l.Name), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OnChainID < out[j].OnChainID })
	return out, nil
}

func (m *memStore) UpdateListingStatus(_ context.Context, id, status, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return models.ErrListingNotFound
	}
	l.Status = status
	entries := m.moderation[id]
	for i := range entries {
		entries[i].Status = status
		entries[i].AdminComment = comment
	}
	return nil
}

func (m *memStore) UpdateListing(_ context.Context, id string, upd models.ListingUpdate) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, models.ErrListingNotFound
	}
	if upd.Name != nil {
		l.Name = *upd.Name
	}
	if upd.Category != nil {
		l.Category = *upd.Category
	}
	if upd.Region != nil {
		l.Region = *upd.Region
	}
	if upd.PricePerDay != nil {
		l.PricePerDay = *upd.PricePerDay
	}
	if upd.ImageURL != nil {
		l.ImageURL = *upd.ImageURL
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) DeleteListing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return models.ErrListingNotFound
	}
	delete(m.listings, id)
	delete(m.moderation, id)
	return nil
}

func (m *memStore) GetModerationEntries(_ context.Context, listingID string) ([]models.ModerationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ModerationEntry{}, m.moderation[listingID]...), nil
}

func (m *memStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) GetBookingByID(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBookingsByFarmer(_ context.Context, farmerID string) ([]models.Booking, error) {
	return m.bookingsWhere(func(b *models.Booking) bool { return b.FarmerID == farmerID }), nil
}

func (m *memStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]models.Booking, error) {
	return m.bookingsWhere(func(b *models.Booking) bool {
		return b.Status == models.BookingStatusPending && b.CreatedAt.Before(cutoff)
	}), nil
}

func (m *memStore) CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	list, _ := m.ListPendingBefore(ctx, cutoff)
	return len(list), nil
}

func (m *memStore) ListConfirmedBySeller(_ context.Context, sellerID string) ([]models.Booking, error) {
	return m.bookingsWhere(func(b *models.Booking) bool {
		return b.SellerID == sellerID && b.Status == models.BookingStatusConfirmed
	}), nil
}

func (m *memStore) bookingsWhere(keep func(*models.Booking) bool) []models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Booking{}
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ConfirmBooking(_ context.Context, id, txHash string, at time.Time) (*models.Booking, *models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil, models.ErrBookingNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, nil, models.ErrAlreadyConfirmed
	}
	for _, other := range m.bookings {
		if other.TxHash != nil && strings.EqualFold(*other.TxHash, txHash) {
			return nil, nil, models.ErrTxAlreadyUsed
		}
	}
	hash := txHash
	b.Status = models.BookingStatusConfirmed
	b.TxHash = &hash
	b.ConfirmedAt = &at

	rec := models.OrderRecord{
		FarmerID:    b.FarmerID,
		Seq:         int64(len(m.orders[b.FarmerID]) + 1),
		BookingID:   b.ID,
		TxHash:      txHash,
		Amount:      b.Amount,
		Days:        b.Days,
		OnChainID:   b.OnChainID,
		ListingName: b.ListingName,
		ConfirmedAt: at,
	}
	m.orders[b.FarmerID] = append(m.orders[b.FarmerID], rec)

	cp := *b
	return &cp, &rec, nil
}

func (m *memStore) ListOrderRecords(_ context.Context, farmerID string) ([]models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderRecord{}, m.orders[farmerID]...), nil
}

func (m *memStore) usage(keep func(*models.Booking) bool) []models.MachineUsage {
	byName := map[string]*models.MachineUsage{}
	for _, b := range m.bookingsWhere(func(b *models.Booking) bool {
		return b.Status == models.BookingStatusConfirmed && keep(b)
	}) {
		u, ok := byName[b.ListingName]
		if !ok {
			u = &models.MachineUsage{ListingName: b.ListingName}
			byName[b.ListingName] = u
		}
		u.Days += int64(b.Days)
		u.Amount += b.Amount
	}
	out := []models.MachineUsage{}
	for _, u := range byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingName < out[j].ListingName })
	return out
}

func (m *memStore) FarmerUsage(_ context.Context, farmerID string) ([]models.MachineUsage, error) {
	return m.usage(func(b *models.Booking) bool { return b.FarmerID == farmerID }), nil
}

func (m *memStore) SellerRevenue(_ context.Context, sellerID string) ([]models.MachineUsage, error) {
	return m.usage(func(b *models.Booking) bool { return b.SellerID == sellerID }), nil
}

// MockPublisher records published events.
type MockPublisher struct {
	mock.Mock
}

func newMockPublisher() *MockPublisher {
	p := &MockPublisher{}
	p.On("PublishListingSubmitted", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishListingModerated", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishBookingInitiated", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishBookingConfirmed", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}

func (p *MockPublisher) PublishListingSubmitted(ctx context.Context, e *models.ListingSubmittedEvent) error {
	return p.Called(ctx, e).Error(0)
}

func (p *MockPublisher) PublishListingModerated(ctx context.Context, e *models.ListingModeratedEvent) error {
	return p.Called(ctx, e).Error(0)
}

func (p *MockPublisher) PublishBookingInitiated(ctx context.Context, e *models.BookingInitiatedEvent) error {
	return p.Called(ctx, e).Error(0)
}

func (p *MockPublisher) PublishBookingConfirmed(ctx context.Context, e *models.BookingConfirmedEvent) error {
	return p.Called(ctx, e).Error(0)
}

// MockVerifier stands in for chain.Verifier.
type MockVerifier struct {
	mock.Mock
}

func (v *MockVerifier) VerifySettlement(ctx context.Context, txHash string, index uint64) error {
	return v.Called(ctx, txHash, index).Error(0)
}

type fixedOracle struct {
	rate     *big.Rat
	fallback bool
}

func (o fixedOracle) GetExchangeRate(_ context.Context, fiat, asset string) oracle.Quote {
	source := "coingecko"
	if o.fallback {
		source = "fallback"
	}
	return oracle.Quote{Fiat: fiat, Asset: asset, Rate: o.rate, Source: source, Fallback: o.fallback}
}

type fakeRegistry struct {
	entries map[uint64]*chain.Entry
	err     error
}

func (r *fakeRegistry) GetEntry(_ context.Context, index uint64) (*chain.Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	e, ok := r.entries[index]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, chain.ErrEntryNotFound, "index %d", index)
	}
	return e, nil
}

func (r *fakeRegistry) Address() common.Address {
	return common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
}

func (r *fakeRegistry) ChainID() *big.Int { return big.NewInt(31337) }

type staticFeed struct {
	items []string
}

func (f staticFeed) SellerFeed(_ context.Context, _ string, limit int64) ([]string, error) {
	if limit > 0 && int64(len(f.items)) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

// fixture wires the services over one memStore.
type fixture struct {
	store      *memStore
	publisher  *MockPublisher
	listings   *ListingService
	bookings   *BookingService
	reconciler *Reconciler
}

func newFixture(verifier SettlementVerifier) *fixture {
	store := newMemStore()
	pub := newMockPublisher()
	return &fixture{
		store:     store,
		publisher: pub,
		listings: NewListingService(store, pub, ListingConfig{
			AutoApproveMaxAge: 5,
			PriceBands:        map[string]PriceBand{"Tractor": {Min: 500, Max: 5000}},
		}),
		bookings:   NewBookingService(store, store, pub, 72*time.Hour),
		reconciler: NewReconciler(store, store, verifier, pub),
	}
}

func (f *fixture) approvedListing(price int64) *models.Listing {
	l, err := f.listings.Submit(context.Background(), &SubmitListingRequest{
		Name: "Mahindra 575", Category: "Tractor", Region: "Thane", PricePerDay: price,
		AgeInYears: 3, SellerName: "Ravi", OwnerID: "seller-1",
	})
	if err != nil {
		panic(err)
	}
	return l
}
