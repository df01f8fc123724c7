// README: Partner registry backed by PostgreSQL; every claim/release is one conditional UPDATE.
package partner

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"freshcart/internal/types"
)

// uniqueViolation is the unique_violation SQLSTATE (partial index on current_order_id, primary key).
const uniqueViolation = "23505"

const partnerColumns = `
	id, name, phone, email, vehicle_type, is_active, current_status, current_order_id,
	current_lat, current_lng, location_updated_at, rating, total_deliveries, joined_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, p *Partner) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_partners (
			id, name, phone, email, vehicle_type, is_active, current_status,
			rating, total_deliveries, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(p.ID), p.Name, p.Phone, p.Email, string(p.VehicleType),
		p.IsActive, string(p.CurrentStatus), p.Rating, p.TotalDeliveries, p.JoinedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "delivery_partners_pkey" {
		return ErrDuplicate
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Partner, error) {
	row := s.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM delivery_partners WHERE id = $1`, string(id))
	p, err := scanPartner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) List(ctx context.Context) ([]*Partner, error) {
	return s.query(ctx, `SELECT `+partnerColumns+` FROM delivery_partners ORDER BY joined_at, id`)
}

func (s *Store) ListIdle(ctx context.Context) ([]*Partner, error) {
	return s.query(ctx, `
		SELECT `+partnerColumns+` FROM delivery_partners
		WHERE is_active AND current_status = 'idle' AND current_order_id IS NULL
		ORDER BY total_deliveries, id`)
}

func (s *Store) ListBusy(ctx context.Context) ([]*Partner, error) {
	return s.query(ctx, `
		SELECT `+partnerColumns+` FROM delivery_partners
		WHERE current_order_id IS NOT NULL
		ORDER BY id`)
}

func (s *Store) HolderOf(ctx context.Context, orderID types.ID) (*Partner, error) {
	row := s.db.QueryRow(ctx, `SELECT `+partnerColumns+` FROM delivery_partners WHERE current_order_id = $1`, string(orderID))
	p, err := scanPartner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) Claim(ctx context.Context, partnerID, orderID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_order_id = $2, current_status = 'assigned'
		WHERE id = $1 AND current_order_id IS NULL AND is_active AND current_status = 'idle'`,
		string(partnerID), string(orderID),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, ErrOrderAlreadyAssigned
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Release(ctx context.Context, partnerID types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_order_id = NULL,
		    current_status = CASE WHEN current_status = 'offline' THEN 'offline' ELSE 'idle' END
		WHERE id = $1`, string(partnerID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ReleaseIfHolding(ctx context.Context, partnerID, orderID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_order_id = NULL, current_status = 'idle'
		WHERE id = $1 AND current_order_id = $2`,
		string(partnerID), string(orderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetStatusIfHolding(ctx context.Context, partnerID, orderID types.ID, status Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_status = $3
		WHERE id = $1 AND current_order_id = $2`,
		string(partnerID), string(orderID), string(status),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteDelivery(ctx context.Context, partnerID, orderID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_order_id = NULL, current_status = 'idle', total_deliveries = total_deliveries + 1
		WHERE id = $1 AND current_order_id = $2`,
		string(partnerID), string(orderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetActive(ctx context.Context, partnerID types.ID, active bool) (bool, error) {
	if err := s.exists(ctx, partnerID); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET is_active = $2
		WHERE id = $1 AND ($2 OR current_order_id IS NULL)`,
		string(partnerID), active,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetAvailability(ctx context.Context, partnerID types.ID, status Status) (bool, error) {
	if status != StatusIdle && status != StatusOffline {
		return false, ErrBadRequest
	}
	if err := s.exists(ctx, partnerID); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_status = $2
		WHERE id = $1 AND current_order_id IS NULL`,
		string(partnerID), string(status),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE delivery_partners
		SET current_lat = $2, current_lng = $3, location_updated_at = $4
		WHERE id = $1`,
		string(partnerID), pos.Lat, pos.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id types.ID) error {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_partners WHERE id = $1)`, string(id)).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]*Partner, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPartner(row pgx.Row) (*Partner, error) {
	var p Partner
	var email, orderID *string
	var lat, lng *float64
	err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &email, &p.VehicleType, &p.IsActive, &p.CurrentStatus, &orderID,
		&lat, &lng, &p.LocationUpdatedAt, &p.Rating, &p.TotalDeliveries, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if orderID != nil {
		id := types.ID(*orderID)
		p.CurrentOrderID = &id
	}
	if lat != nil && lng != nil {
		p.CurrentLocation = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &p, nil
}
