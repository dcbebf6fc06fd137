package repository

import (
	"context"
	"errors"
	"time"

	"mailops/internal/model"

	"gorm.io/gorm"
)

// StatusFields is the slice of an order the status refresh job may touch.
// Line items are deliberately absent.
type StatusFields struct {
	Status           model.OrderStatus
	TrackingNumber   string
	EstimatedArrival string
	DeliveredAt      *time.Time
}

type OrderInterface interface {
	GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	// UpsertWithItems merges the order by its natural key and replaces the
	// line items atomically. Reports whether a new order row was created.
	UpsertWithItems(ctx context.Context, order *model.Order, items []model.OrderItem) (bool, error)
	UpdateStatusFields(ctx context.Context, id uint64, upd StatusFields) error
	ListActive(ctx context.Context, limit int) ([]*model.Order, error)
	Count(ctx context.Context) (int64, error)
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Preload("Items").
		Where("order_number = ?", orderNumber).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) UpsertWithItems(ctx context.Context, order *model.Order, items []model.OrderItem) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Order
		err := tx.Where("order_number = ?", order.OrderNumber).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Items").Create(order).Error; err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			// Merge parse-derived fields onto the existing row. Status,
			// tracking and delivery columns belong to the status refresh job
			// and must survive a re-parse; empty parsed strings keep the
			// stored value.
			order.ID = existing.ID
			order.CreatedAt = existing.CreatedAt
			order.Status = existing.Status
			order.TrackingNumber = existing.TrackingNumber
			order.DeliveredAt = existing.DeliveredAt

			updates := map[string]any{
				"subtotal":     order.Subtotal,
				"shipping_fee": order.ShippingFee,
				"tax":          order.Tax,
				"total":        order.Total,
			}
			if order.OrderDate != nil {
				updates["order_date"] = order.OrderDate
			}
			mergeColumn(updates, "shipping_name", order.ShippingName)
			mergeColumn(updates, "shipping_address", order.ShippingAddress)
			mergeColumn(updates, "shipping_city", order.ShippingCity)
			mergeColumn(updates, "shipping_state", order.ShippingState)
			mergeColumn(updates, "shipping_zip_code", order.ShippingZipCode)
			mergeColumn(updates, "shipping_method", order.ShippingMethod)
			mergeColumn(updates, "billing_name", order.BillingName)
			mergeColumn(updates, "billing_address", order.BillingAddress)
			mergeColumn(updates, "billing_city", order.BillingCity)
			mergeColumn(updates, "billing_state", order.BillingState)
			mergeColumn(updates, "billing_zip_code", order.BillingZipCode)
			mergeColumn(updates, "estimated_arrival", order.EstimatedArrival)
			if order.AccountID != nil {
				updates["account_id"] = order.AccountID
			}
			if order.EmailID != nil {
				updates["email_id"] = order.EmailID
			}
			if err := tx.Model(&model.Order{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		// Replace line items wholesale so a re-parse never duplicates lines.
		if err := tx.Where("order_id = ?", order.ID).Delete(&model.OrderItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
	return created, err
}

func mergeColumn(updates map[string]any, col, val string) {
	if val != "" {
		updates[col] = val
	}
}

func (r *OrderRepository) UpdateStatusFields(ctx context.Context, id uint64, upd StatusFields) error {
	updates := map[string]any{
		"status": upd.Status,
	}
	if upd.TrackingNumber != "" {
		updates["tracking_number"] = upd.TrackingNumber
	}
	if upd.EstimatedArrival != "" {
		updates["estimated_arrival"] = upd.EstimatedArrival
	}
	if upd.DeliveredAt != nil {
		updates["delivered_at"] = upd.DeliveredAt
	}
	return r.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *OrderRepository) ListActive(ctx context.Context, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []model.OrderStatus{model.OrderDelivered, model.OrderCancelled}).
		Order("order_date ASC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).Count(&count).Error
	return count, err
}
