// README: Location snapshot history backed by Postgres.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"freshcart/internal/types"
)

// SnapshotStore keeps the position history shown on the customer map.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap *Snapshot) error
	ListByOrder(ctx context.Context, orderID types.ID, limit int) ([]Snapshot, error)
}

type Store struct {
	db *pgxpool.Pool
}

var _ SnapshotStore = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) AppendSnapshot(ctx context.Context, snap *Snapshot) error {
	var orderID *string
	if snap.OrderID != nil {
		v := string(*snap.OrderID)
		orderID = &v
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO location_snapshots (partner_id, order_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(snap.PartnerID), orderID, snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	).Scan(&snap.ID)
}

// ListByOrder returns the newest limit snapshots for an order, oldest first.
func (s *Store) ListByOrder(ctx context.Context, orderID types.ID, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, partner_id, order_id, lat, lng, recorded_at FROM (
			SELECT id, partner_id, order_id, lat, lng, recorded_at
			FROM location_snapshots
			WHERE order_id = $1
			ORDER BY recorded_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY recorded_at, id`, string(orderID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap      Snapshot
			partnerID string
			oid       *string
		)
		if err := rows.Scan(&snap.ID, &partnerID, &oid, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, err
		}
		snap.PartnerID = types.ID(partnerID)
		if oid != nil {
			id := types.ID(*oid)
			snap.OrderID = &id
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
