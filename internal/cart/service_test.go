package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

type mockRepository struct {
	m     sync.Mutex
	carts map[primitive.ObjectID]models.Cart
	loads int
	err   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: map[primitive.ObjectID]models.Cart{}}
}

func (m *mockRepository) LoadCart(_ context.Context, userID primitive.ObjectID) (models.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.loads++
	if m.err != nil {
		return models.Cart{}, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return models.Cart{}, store.ErrNotFound
	}
	return clone(cart), nil
}

func (m *mockRepository) SaveCart(_ context.Context, cart models.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[cart.UserID] = clone(cart)
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, userID primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.carts, userID)
	return nil
}

type mockProducts struct {
	products map[primitive.ObjectID]models.Product
}

func (m *mockProducts) FindProduct(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return p, nil
}

type mockCache struct {
	m       sync.Mutex
	cart    *models.Cart
	deletes int
}

func (m *mockCache) Get(context.Context, primitive.ObjectID) (*models.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.cart == nil {
		return nil, ErrCacheMiss
	}
	c := clone(*m.cart)
	return &c, nil
}

func (m *mockCache) Set(_ context.Context, cart *models.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	c := clone(*cart)
	m.cart = &c
	return nil
}

func (m *mockCache) Delete(context.Context, primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	m.deletes++
	return nil
}

func fixture() (*Service, *mockRepository, *mockCache, models.Product, models.Product) {
	original := 60.0
	gloves := models.Product{ID: primitive.NewObjectID(), Name: "Guantes", Price: 45.99, Stock: 10, IsOnSale: true, OriginalPrice: &original}
	wraps := models.Product{ID: primitive.NewObjectID(), Name: "Vendas", Price: 0.1, Stock: 3}
	repo := newMockRepository()
	cache := &mockCache{}
	products := &mockProducts{products: map[primitive.ObjectID]models.Product{gloves.ID: gloves, wraps.ID: wraps}}
	return NewService(repo, products, cache), repo, cache, gloves, wraps
}

func TestAddItem_MergesLinesAndSnapshotsProduct(t *testing.T) {
	svc, repo, cache, gloves, wraps := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.AddItem(ctx, userID, gloves.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userID, wraps.ID, 3)
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, userID, gloves.ID, 1)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Equal(t, "Guantes", cart.Lines[0].Product.Name)
	assert.True(t, cart.Lines[0].Product.IsOnSale)
	require.NotNil(t, cart.Lines[0].Product.OriginalPrice)
	assert.Equal(t, 60.0, *cart.Lines[0].Product.OriginalPrice)
	assert.Nil(t, cart.Lines[1].Product.OriginalPrice)
	assert.Equal(t, 5, cart.TotalItems())
	assert.Equal(t, "92.28", cart.TotalPrice().StringFixed(2))

	assert.Len(t, repo.carts[userID].Lines, 2)
	require.NotNil(t, cache.cart)
	assert.Len(t, cache.cart.Lines, 2)
	assert.Equal(t, 0, cache.deletes)
}

func TestAddItem_RejectsBadInput(t *testing.T) {
	svc, _, _, gloves, _ := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.AddItem(ctx, userID, gloves.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, userID, primitive.NewObjectID(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAddItem_OutOfStock(t *testing.T) {
	svc, _, _, _, _ := fixture()
	empty := models.Product{ID: primitive.NewObjectID(), Name: "Saco", Price: 120}
	svc.products.(*mockProducts).products[empty.ID] = empty

	_, err := svc.AddItem(context.Background(), primitive.NewObjectID(), empty.ID, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestUpdateQuantity_ZeroRemovesLine(t *testing.T) {
	svc, _, _, gloves, wraps := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.AddItem(ctx, userID, gloves.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userID, wraps.ID, 1)
	require.NoError(t, err)

	cart, err := svc.UpdateQuantity(ctx, userID, wraps.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Lines[1].Quantity)

	cart, err = svc.UpdateQuantity(ctx, userID, gloves.ID, 0)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, wraps.ID, cart.Lines[0].ProductID)

	_, err = svc.UpdateQuantity(ctx, userID, gloves.ID, 2)
	assert.ErrorIs(t, err, models.ErrLineNotFound)
}

func TestRemoveItemAndClear(t *testing.T) {
	svc, repo, _, gloves, _ := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.AddItem(ctx, userID, gloves.ID, 1)
	require.NoError(t, err)

	_, err = svc.RemoveItem(ctx, userID, primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrLineNotFound)

	cart, err := svc.RemoveItem(ctx, userID, gloves.ID)
	require.NoError(t, err)
	assert.True(t, cart.Empty())

	_, err = svc.AddItem(ctx, userID, gloves.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, userID))
	_, ok := repo.carts[userID]
	assert.False(t, ok)
}

func TestGet_EmptyCartWhenNoneStored(t *testing.T) {
	svc, _, _, _, _ := fixture()
	userID := primitive.NewObjectID()

	cart, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, cart.UserID)
	assert.True(t, cart.Empty())
	assert.NotNil(t, cart.Lines)
}

func TestGet_ServesFromCache(t *testing.T) {
	svc, repo, cache, gloves, _ := fixture()
	userID := primitive.NewObjectID()
	cache.cart = &models.Cart{UserID: userID, Lines: []models.CartLine{{ProductID: gloves.ID, UnitPrice: 45.99, Quantity: 1}}}

	cart, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
	assert.Equal(t, 0, repo.loads)
}

func TestGet_PropagatesRepositoryError(t *testing.T) {
	svc, repo, _, _, _ := fixture()
	repo.err = errors.New("connection refused")

	_, err := svc.Get(context.Background(), primitive.NewObjectID())
	assert.EqualError(t, err, "connection refused")
}

func TestConcurrentAddsKeepOneLinePerProduct(t *testing.T) {
	svc, repo, _, gloves, _ := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddItem(ctx, userID, gloves.ID, 1)
		}()
	}
	wg.Wait()

	stored := repo.carts[userID]
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 20, stored.Lines[0].Quantity)
}

// gatedCache holds every Set until release is closed.
type gatedCache struct {
	*RedisCache
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCache) Set(ctx context.Context, cart *models.Cart) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.RedisCache.Set(ctx, cart)
}

func TestClearDuringCacheFillDoesNotResurrectCart(t *testing.T) {
	redisCache, _ := setupTestRedis(t)
	cache := &gatedCache{RedisCache: redisCache, entered: make(chan struct{}), release: make(chan struct{})}
	repo := newMockRepository()
	svc := NewService(repo, &mockProducts{}, cache)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	repo.carts[userID] = models.Cart{UserID: userID, Lines: []models.CartLine{{ProductID: primitive.NewObjectID(), UnitPrice: 45.99, Quantity: 1}}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cart, err := svc.Get(ctx, userID)
		assert.NoError(t, err)
		assert.Len(t, cart.Lines, 1)
	}()

	<-cache.entered
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Clear(ctx, userID))
	}()
	close(cache.release)
	wg.Wait()

	_, stored := repo.carts[userID]
	require.False(t, stored)

	cart, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, cart.Empty(), "cleared cart came back with %d lines", len(cart.Lines))
}

func TestMutateWritesThroughToCache(t *testing.T) {
	svc, repo, cache, gloves, _ := fixture()
	ctx := context.Background()
	userID := primitive.NewObjectID()

	_, err := svc.AddItem(ctx, userID, gloves.ID, 2)
	require.NoError(t, err)

	loads := repo.loads
	cart, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Equal(t, loads, repo.loads)
	require.NotNil(t, cache.cart)
}
