// README: Order store backed by PostgreSQL. Transitions are compare-and-set on (status, status_version).
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freshcart/internal/types"
)

const orderColumns = `
	id, customer_id, status, status_version, delivery_fee, discount, total_amount, currency,
	delivery_address, delivery_lat, delivery_lng,
	partner_id, partner_name, partner_phone, partner_rating, delivery_otp,
	estimated_arrival, estimated_duration, estimated_distance, eta_source, last_location_update,
	cancelled_reason, created_at, confirmed_at, preparing_at, dispatched_at, reached_at, delivered_at, cancelled_at`

type Store struct {
	db *pgxpool.Pool
}

var _ Repository = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	var lat, lng *float64
	if o.DeliveryCoordinates != nil {
		lat, lng = &o.DeliveryCoordinates.Lat, &o.DeliveryCoordinates.Lng
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, status, status_version, delivery_fee, discount, total_amount, currency,
			delivery_address, delivery_lat, delivery_lng, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID), string(o.CustomerID), string(o.Status), o.StatusVersion,
		o.DeliveryFee, o.Discount, o.Total.Amount, o.Total.Currency,
		o.DeliveryAddress, lat, lng, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range o.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name, qty, price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(o.ID), i, it.ProductID, it.Name, it.Qty, it.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.items(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) items(ctx context.Context, id types.ID) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, name, qty, price FROM order_items
		WHERE order_id = $1 ORDER BY line_no`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from Status, version int, u Update) (bool, error) {
	var otp, reason *string
	if u.OTP != "" {
		otp = &u.OTP
	}
	if u.CancelledReason != "" {
		reason = &u.CancelledReason
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    delivery_otp = $2,
		    cancelled_reason = COALESCE($3, cancelled_reason),
		    estimated_arrival = NULL,
		    estimated_duration = NULL,
		    estimated_distance = NULL,
		    eta_source = NULL,
		    last_location_update = NULL,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN $4 ELSE confirmed_at END,
		    preparing_at = CASE WHEN $1 = 'preparing' THEN $4 ELSE preparing_at END,
		    dispatched_at = CASE WHEN $1 = 'out_for_delivery' THEN $4 ELSE dispatched_at END,
		    reached_at = CASE WHEN $1 = 'reached_destination' THEN $4 ELSE reached_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $4 ELSE delivered_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN $4 ELSE cancelled_at END
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(u.To), otp, reason, u.At,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AttachPartner(ctx context.Context, id types.ID, snap PartnerSnapshot) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET partner_id = $2, partner_name = $3, partner_phone = $4, partner_rating = $5
		WHERE id = $1 AND partner_id IS NULL
		  AND status IN ('confirmed', 'preparing', 'out_for_delivery', 'reached_destination')`,
		string(id), string(snap.ID), snap.Name, snap.Phone, snap.Rating,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DetachPartner(ctx context.Context, id, partnerID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET partner_id = NULL, partner_name = NULL, partner_phone = NULL, partner_rating = NULL
		WHERE id = $1 AND partner_id = $2 AND status NOT IN ('delivered', 'cancelled')`,
		string(id), string(partnerID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetOTP(ctx context.Context, id types.ID, otp string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET delivery_otp = $2
		WHERE id = $1 AND status = 'reached_destination'`,
		string(id), otp,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, id types.ID, otp string, u Update) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    status_version = status_version + 1,
		    delivery_otp = NULL,
		    delivered_at = $4
		WHERE id = $1 AND status = 'reached_destination' AND delivery_otp = $2`,
		string(id), otp, string(u.To), u.At,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ApplyETA(ctx context.Context, id types.ID, eta ETAUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET estimated_arrival = $2,
		    estimated_duration = $3,
		    estimated_distance = $4,
		    eta_source = $5,
		    last_location_update = $6
		WHERE id = $1 AND status = 'out_for_delivery'
		  AND (last_location_update IS NULL OR last_location_update < $6)`,
		string(id), eta.Arrival, eta.DurationSec, eta.DistanceM, string(eta.Source), eta.SampledAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorType),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *Store) ListEvents(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			a := types.ID(*actorID)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) OrderState(ctx context.Context, id types.ID) (bool, bool, error) {
	var status Status
	err := s.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, string(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, status.Terminal(), nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var lat, lng, partnerRating *float64
	var partnerID, partnerName, partnerPhone, otp, etaSource, reason *string
	var duration, distance *int
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.StatusVersion, &o.DeliveryFee, &o.Discount, &o.Total.Amount, &o.Total.Currency,
		&o.DeliveryAddress, &lat, &lng,
		&partnerID, &partnerName, &partnerPhone, &partnerRating, &otp,
		&o.EstimatedArrival, &duration, &distance, &etaSource, &o.LastLocationUpdate,
		&reason, &o.CreatedAt, &o.ConfirmedAt, &o.PreparingAt, &o.DispatchedAt, &o.ReachedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		o.DeliveryCoordinates = &types.Point{Lat: *lat, Lng: *lng}
	}
	if partnerID != nil {
		o.DeliveryPartner = &PartnerSnapshot{ID: types.ID(*partnerID)}
		if partnerName != nil {
			o.DeliveryPartner.Name = *partnerName
		}
		if partnerPhone != nil {
			o.DeliveryPartner.Phone = *partnerPhone
		}
		if partnerRating != nil {
			o.DeliveryPartner.Rating = *partnerRating
		}
	}
	if otp != nil {
		o.DeliveryOTP = *otp
	}
	if duration != nil {
		o.EstimatedDuration = *duration
	}
	if distance != nil {
		o.EstimatedDistance = *distance
	}
	if etaSource != nil {
		o.ETASource = ETASource(*etaSource)
	}
	if reason != nil {
		o.CancelledReason = *reason
	}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
