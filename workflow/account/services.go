package account

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Domain error kinds of the in-memory services.
const (
	KindAccountInvalid result.Kind = "ACCOUNT_INVALID"
	KindProductInvalid result.Kind = "PRODUCT_INVALID"
)

// Accounts is an in-memory account service.
type Accounts struct {
	mu    sync.RWMutex
	items map[string]CreateAccount
}

func NewAccounts() *Accounts {
	return &Accounts{items: make(map[string]CreateAccount)}
}

// Register binds account.create and account.delete.
func (s *Accounts) Register(registry *bus.Registry) error {
	if err := handlers.Register(registry, CommandCreateAccount,
		handlers.CommandHandlerFunc[CreateAccount, AccountCreated](s.Create)); err != nil {
		return err
	}

	return handlers.Register(registry, CommandDeleteAccount,
		handlers.CommandHandlerFunc[DeleteAccount, struct{}](s.Delete))
}

func (s *Accounts) Create(_ context.Context, cmd CreateAccount) (AccountCreated, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return AccountCreated{}, result.New(KindAccountInvalid, "Account name is required")
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.items[id] = cmd
	s.mu.Unlock()

	return AccountCreated{ID: id}, nil
}

func (s *Accounts) Delete(_ context.Context, cmd DeleteAccount) (struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[cmd.ID]; !ok {
		return struct{}{}, result.NotFound("Account " + cmd.ID + " not found")
	}
	delete(s.items, cmd.ID)

	return struct{}{}, nil
}

// Has reports whether id exists.
func (s *Accounts) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[id]
	return ok
}

func (s *Accounts) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Products is an in-memory product service.
type Products struct {
	mu    sync.RWMutex
	items map[string]CreateProduct
	// deleted keeps deletion order, newest last
	deleted []string
}

func NewProducts() *Products {
	return &Products{items: make(map[string]CreateProduct)}
}

// Register binds product.create and product.delete.
func (s *Products) Register(registry *bus.Registry) error {
	if err := handlers.Register(registry, CommandCreateProduct,
		handlers.CommandHandlerFunc[CreateProduct, ProductCreated](s.Create)); err != nil {
		return err
	}

	return handlers.Register(registry, CommandDeleteProduct,
		handlers.CommandHandlerFunc[DeleteProduct, struct{}](s.Delete))
}

func (s *Products) Create(_ context.Context, cmd CreateProduct) (ProductCreated, error) {
	switch {
	case strings.TrimSpace(cmd.SKU) == "":
		return ProductCreated{}, result.New(KindProductInvalid, "Product SKU is required")
	case cmd.Price < 0:
		return ProductCreated{}, result.Newf(KindProductInvalid, "Product %s price must not be negative", cmd.SKU)
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.items[id] = cmd
	s.mu.Unlock()

	return ProductCreated{ID: id}, nil
}

func (s *Products) Delete(_ context.Context, cmd DeleteProduct) (struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.items[cmd.ID]
	if !ok {
		return struct{}{}, result.NotFound("Product " + cmd.ID + " not found")
	}
	delete(s.items, cmd.ID)
	s.deleted = append(s.deleted, product.SKU)

	return struct{}{}, nil
}

func (s *Products) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Deleted returns the SKUs of deleted products in deletion order.
func (s *Products) Deleted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.deleted...)
}
