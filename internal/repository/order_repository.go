package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(id uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, customer_name, total, status, created_at
		FROM orders
		WHERE id = $1
	`

	order := &domain.Order{}
	err := r.db.QueryRow(query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.CustomerName,
		&order.Total,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order query error: %v", err)
	}

	return order, nil
}

func (r *OrderRepository) GetByIDWithItems(id uuid.UUID) (*domain.OrderWithItems, error) {
	order, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("order items query error: %v", err)
	}
	defer rows.Close()

	result := &domain.OrderWithItems{Order: *order}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("order item scan error: %v", err)
		}
		result.Items = append(result.Items, item)
	}

	return result, rows.Err()
}
