// Package cart keeps each shopper's cart server-side, cache-aside over Redis.
package cart

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"storefront/internal/models"
	"storefront/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product out of stock")
)

type Repository interface {
	LoadCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error)
	SaveCart(ctx context.Context, cart models.Cart) error
	DeleteCart(ctx context.Context, userID primitive.ObjectID) error
}

type ProductFinder interface {
	FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
}

const lockStripes = 64

type Service struct {
	repo     Repository
	products ProductFinder
	cache    Cache
	sfg      singleflight.Group
	locks    [lockStripes]sync.Mutex
	now      func() time.Time
}

func NewService(repo Repository, products ProductFinder, cache Cache) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	return &Service{
		repo:     repo,
		products: products,
		cache:    cache,
		now:      time.Now,
	}
}

// Get returns the user's cart, or an empty one if none is stored.
func (s *Service) Get(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	v, err, _ := s.sfg.Do(userID.Hex(), func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return *cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("[CART] [WARN] cache get error: %v", err)
		}

		return s.fill(ctx, userID)
	})
	if err != nil {
		return models.Cart{}, err
	}
	return clone(v.(models.Cart)), nil
}

// fill loads the cart and caches it under the user's lock, so a concurrent
// Clear or mutate can never be overwritten by an older snapshot.
func (s *Service) fill(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	snapshot := clone(cart)
	if err := s.cache.Set(ctx, &snapshot); err != nil {
		log.Printf("[CART] [WARN] cache set error: %v", err)
	}
	return cart, nil
}

// AddItem snapshots the product and merges quantity into its line.
func (s *Service) AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (models.Cart, error) {
	if quantity < 1 {
		return models.Cart{}, models.ErrInvalidQuantity
	}

	product, err := s.products.FindProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Cart{}, ErrProductNotFound
	}
	if err != nil {
		return models.Cart{}, err
	}
	if product.Stock < 1 {
		return models.Cart{}, ErrOutOfStock
	}

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		return cart.Add(lineFor(product, quantity))
	})
}

// UpdateQuantity sets a line's quantity; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		return cart.SetQuantity(productID, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		if !cart.Remove(productID) {
			return models.ErrLineNotFound
		}
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, userID primitive.ObjectID) error {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.DeleteCart(ctx, userID); err != nil {
		log.Printf("[CART] [ERROR] clear cart failed user=%s: %v", userID.Hex(), err)
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *Service) mutate(ctx context.Context, userID primitive.ObjectID, apply func(*models.Cart) error) (models.Cart, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	if err := apply(&cart); err != nil {
		return models.Cart{}, err
	}
	cart.UpdatedAt = s.now()

	if err := s.repo.SaveCart(ctx, cart); err != nil {
		log.Printf("[CART] [ERROR] save cart failed user=%s: %v", userID.Hex(), err)
		return models.Cart{}, err
	}
	s.writeThrough(cart)
	return cart, nil
}

func (s *Service) load(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	cart, err := s.repo.LoadCart(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		now := s.now()
		return models.Cart{UserID: userID, Lines: []models.CartLine{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return models.Cart{}, err
	}
	if cart.Lines == nil {
		cart.Lines = []models.CartLine{}
	}
	return cart, nil
}

// writeThrough replaces the cached cart; if that fails the entry is dropped so
// readers fall back to the store.
func (s *Service) writeThrough(cart models.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snapshot := clone(cart)
	if err := s.cache.Set(ctx, &snapshot); err != nil {
		log.Printf("[CART] [WARN] cache write error: %v", err)
		s.invalidate(cart.UserID)
	}
}

func (s *Service) invalidate(userID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("[CART] [WARN] cache invalidate error: %v", err)
	}
}

func (s *Service) lockFor(userID primitive.ObjectID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(userID[:])
	return &s.locks[h.Sum32()%lockStripes]
}

func lineFor(product models.Product, quantity int) models.CartLine {
	snapshot := models.ProductSnapshot{
		Name:     product.Name,
		ImageURL: product.ImageURL,
		IsOnSale: product.IsOnSale,
	}
	if product.IsOnSale {
		snapshot.OriginalPrice = product.OriginalPrice
	}
	return models.CartLine{
		ProductID: product.ID,
		UnitPrice: product.Price,
		Quantity:  quantity,
		Product:   snapshot,
	}
}

func clone(cart models.Cart) models.Cart {
	lines := make([]models.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	cart.Lines = lines
	return cart
}
