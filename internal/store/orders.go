package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-order-service/internal/models"

	"github.com/lib/pq"
)

// PlaceImmediateOrder creates a validated order with a single line and
// decrements catalog stock, all in one transaction. The product row is
// locked for the duration; the purchase is rejected with
// ErrInsufficientStock when remaining stock does not cover the quantity.
func (s *Store) PlaceImmediateOrder(ctx context.Context, order *models.Order, line *models.OrderLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var available int
	err = tx.GetContext(ctx, &available,
		"SELECT quantity FROM products WHERE id = $1 FOR UPDATE", line.ProductID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock product: %w", err)
	}

	if available < line.Quantity {
		return ErrInsufficientStock
	}

	query := `
		INSERT INTO orders (user_id, supplier_id, wilaya_id, commune_id, full_name, phone_number, address, status, is_validated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
		RETURNING id, order_date, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.UserID, order.SupplierID, order.WilayaID, order.CommuneID,
		order.FullName, order.PhoneNumber, order.Address, order.Status)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	line.OrderID = order.ID
	err = tx.GetContext(ctx, &line.ID, `
		INSERT INTO order_products (order_id, product_id, supplier_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		line.OrderID, line.ProductID, line.SupplierID, line.Quantity, line.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to create order line: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE products SET quantity = quantity - $1 WHERE id = $2",
		line.Quantity, line.ProductID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	return tx.Commit()
}

// AddProductToCart finds or creates the user's unvalidated order for the
// product's supplier and merges the quantity into its line for the
// product. The partial unique index on (user_id, supplier_id) keeps
// concurrent calls from creating two carts for the same pair; losers of
// that race re-read the winner's row.
func (s *Store) AddProductToCart(ctx context.Context, userID int64, product *models.Product, quantity int) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID,
		"SELECT id FROM orders WHERE user_id = $1 AND supplier_id = $2 AND NOT is_validated",
		userID, product.SupplierID)
	if err == sql.ErrNoRows {
		err = tx.GetContext(ctx, &orderID, `
			INSERT INTO orders (user_id, supplier_id, status, is_validated)
			VALUES ($1, $2, $3, false)
			ON CONFLICT (user_id, supplier_id) WHERE NOT is_validated DO NOTHING
			RETURNING id`,
			userID, product.SupplierID, models.OrderStatusPending)
		if err == sql.ErrNoRows {
			// lost the create race, the winning row is committed
			err = tx.GetContext(ctx, &orderID,
				"SELECT id FROM orders WHERE user_id = $1 AND supplier_id = $2 AND NOT is_validated",
				userID, product.SupplierID)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find or create cart: %w", err)
	}

	// merge-on-add: the conflict branch keeps the original unit_price snapshot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_products (order_id, product_id, supplier_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET quantity = order_products.quantity + EXCLUDED.quantity`,
		orderID, product.ID, product.SupplierID, quantity, product.Price)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert order line: %w", err)
	}

	return orderID, tx.Commit()
}

// ActiveOrders retrieves the user's unvalidated orders.
func (s *Store) ActiveOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 AND NOT is_validated ORDER BY created_at", userID)
	return orders, err
}

// ActiveOrderByID retrieves an unvalidated order scoped to its owner.
func (s *Store) ActiveOrderByID(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2 AND NOT is_validated", orderID, userID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderByID retrieves an order by ID.
func (s *Store) OrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ValidateOrders attaches the shipping profile to every unvalidated
// order of the user and flips them to validated/processing in one
// transaction. Returns the affected orders with their item counts.
func (s *Store) ValidateOrders(ctx context.Context, userID int64, profile models.ShippingProfile) ([]models.ValidatedOrder, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var orders []models.Order
	err = tx.SelectContext(ctx, &orders, `
		UPDATE orders
		SET full_name = $1, phone_number = $2, address = $3, wilaya_id = $4, commune_id = $5,
		    is_validated = true, status = $6, updated_at = NOW()
		WHERE user_id = $7 AND NOT is_validated
		RETURNING *`,
		profile.FullName, profile.PhoneNumber, profile.Address,
		profile.WilayaID, profile.CommuneID, models.OrderStatusProcessing, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	counts := make([]struct {
		OrderID    int64 `db:"order_id"`
		TotalItems int   `db:"total_items"`
	}, 0, len(ids))
	err = tx.SelectContext(ctx, &counts, `
		SELECT order_id, COALESCE(SUM(quantity), 0) AS total_items
		FROM order_products WHERE order_id = ANY($1) GROUP BY order_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to count order items: %w", err)
	}

	countByOrder := make(map[int64]int, len(counts))
	for _, c := range counts {
		countByOrder[c.OrderID] = c.TotalItems
	}

	validated := make([]models.ValidatedOrder, len(orders))
	for i, o := range orders {
		validated[i] = models.ValidatedOrder{Order: o, TotalItems: countByOrder[o.ID]}
	}

	return validated, tx.Commit()
}

// CartContents retrieves the user's unvalidated orders with nested
// lines, products, and product pictures.
func (s *Store) CartContents(ctx context.Context, userID int64) ([]models.CartOrder, error) {
	orders, err := s.ActiveOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []models.CartOrder{}, nil
	}

	orderIDs := make([]int64, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}

	type lineRow struct {
		models.OrderLine
		ProductName      string  `db:"product_name"`
		ProductPrice     float64 `db:"product_price"`
		ProductStock     int     `db:"product_stock"`
		ProductSupplier  int64   `db:"product_supplier_id"`
	}
	var rows []lineRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT op.id, op.order_id, op.product_id, op.supplier_id, op.quantity, op.unit_price,
		       p.name AS product_name, p.price AS product_price,
		       p.quantity AS product_stock, p.supplier_id AS product_supplier_id
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = ANY($1)
		ORDER BY op.id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}

	productIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		productIDs = append(productIDs, r.ProductID)
	}
	pics, err := s.PicturesByProductIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product pictures: %w", err)
	}
	picsByProduct := make(map[int64][]models.ProductPicture)
	for _, p := range pics {
		picsByProduct[p.ProductID] = append(picsByProduct[p.ProductID], p)
	}

	linesByOrder := make(map[int64][]models.CartLine)
	for _, r := range rows {
		linesByOrder[r.OrderID] = append(linesByOrder[r.OrderID], models.CartLine{
			OrderLine: r.OrderLine,
			Product: models.Product{
				ID:         r.ProductID,
				SupplierID: r.ProductSupplier,
				Name:       r.ProductName,
				Price:      r.ProductPrice,
				Quantity:   r.ProductStock,
			},
			Pictures: picsByProduct[r.ProductID],
		})
	}

	carts := make([]models.CartOrder, len(orders))
	for i, o := range orders {
		carts[i] = models.CartOrder{Order: o, Lines: linesByOrder[o.ID]}
	}
	return carts, nil
}

// SetLineQuantity overwrites a line's quantity (absolute set).
func (s *Store) SetLineQuantity(ctx context.Context, orderID, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE order_products SET quantity = $1 WHERE order_id = $2 AND product_id = $3",
		quantity, orderID, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveLine deletes the line for a product within an order, deleting
// the order itself when its last line goes. Reports whether the order
// was deleted.
func (s *Store) RemoveLine(ctx context.Context, orderID, productID int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM order_products WHERE order_id = $1 AND product_id = $2", orderID, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining,
		"SELECT COUNT(*) FROM order_products WHERE order_id = $1", orderID); err != nil {
		return false, err
	}

	orderDeleted := false
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID); err != nil {
			return false, err
		}
		orderDeleted = true
	}

	return orderDeleted, tx.Commit()
}

// ClearActiveOrders deletes all unvalidated orders of the user; their
// lines go with them through the cascade. Returns the number of orders
// removed.
func (s *Store) ClearActiveOrders(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM orders WHERE user_id = $1 AND NOT is_validated", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateOrderStatus overwrites an order's status.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// OrderLines retrieves all lines of an order.
func (s *Store) OrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_products WHERE order_id = $1 ORDER BY id", orderID)
	return lines, err
}

// ValidatedOrdersByUser retrieves a user's placed orders.
func (s *Store) ValidatedOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 AND is_validated ORDER BY created_at DESC", userID)
	return orders, err
}

// ValidatedOrdersBySupplier retrieves a supplier's placed orders.
func (s *Store) ValidatedOrdersBySupplier(ctx context.Context, supplierID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE supplier_id = $1 AND is_validated ORDER BY created_at DESC", supplierID)
	return orders, err
}
