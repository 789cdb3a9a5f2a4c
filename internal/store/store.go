package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock is returned when a purchase would drive a
// product's available quantity below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

type Store struct {
	db *sqlx.DB
}

// NewStore connects to Postgres and returns a ready store.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProduct retrieves a catalog product by ID.
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all catalog products, used to warm the stock
// cache at startup.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// PicturesByProductIDs retrieves pictures for a set of products.
func (s *Store) PicturesByProductIDs(ctx context.Context, ids []int64) ([]models.ProductPicture, error) {
	if len(ids) == 0 {
		return []models.ProductPicture{}, nil
	}
	var pics []models.ProductPicture
	err := s.db.SelectContext(ctx, &pics,
		"SELECT * FROM product_pictures WHERE product_id = ANY($1) ORDER BY id", pq.Array(ids))
	return pics, err
}

// WilayaExists checks a wilaya reference.
func (s *Store) WilayaExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wilayas WHERE id = $1)", id)
	return exists, err
}

// CommuneExists checks a commune reference.
func (s *Store) CommuneExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM communes WHERE id = $1)", id)
	return exists, err
}

// SupplierOwnedBy reports whether the supplier record belongs to the
// given user.
func (s *Store) SupplierOwnedBy(ctx context.Context, supplierID, userID int64) (bool, error) {
	var owned bool
	err := s.db.GetContext(ctx, &owned,
		"SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1 AND user_id = $2)", supplierID, userID)
	return owned, err
}

// CreateNotification inserts a dispatcher output row.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (recipient_kind, recipient_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query,
		n.RecipientKind, n.RecipientID, n.EventType, n.Payload)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
