package service

import (
	"context"
	"errors"

	"badger/bakery-api/internal/model"
)

// RecentOrdersLimit is the size of the "latest orders" listing.
const RecentOrdersLimit = 25

// OrderStore persists orders. Implementations assign id and placedOn.
type OrderStore interface {
	Insert(ctx context.Context, order model.ValidatedOrder) (model.Receipt, error)
	ListRecent(ctx context.Context, limit int) ([]model.Order, error)
}

type OrderService struct {
	validator *OrderValidator
	store     OrderStore
}

func NewOrderService(validator *OrderValidator, store OrderStore) *OrderService {
	return &OrderService{validator: validator, store: store}
}

// PlaceOrder validates raw for identity and stores it. Validation failures
// are returned as the sentinel errors; storage failures as *StoreError.
func (s *OrderService) PlaceOrder(ctx context.Context, identity model.Identity, raw OrderRequest) (model.Receipt, error) {
	order, err := s.validator.Validate(identity, raw)
	if err != nil {
		return model.Receipt{}, err
	}

	receipt, err := s.store.Insert(ctx, order)
	if err != nil {
		return model.Receipt{}, asStoreError("insert", err)
	}
	return receipt, nil
}

func (s *OrderService) RecentOrders(ctx context.Context) ([]model.Order, error) {
	orders, err := s.store.ListRecent(ctx, RecentOrdersLimit)
	if err != nil {
		return nil, asStoreError("list", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

func asStoreError(op string, err error) error {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return &StoreError{Op: op, Err: err}
}
