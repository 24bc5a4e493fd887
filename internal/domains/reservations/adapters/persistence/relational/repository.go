package relational

import (
	"context"
	"time"

	"github.com/Apurer/tableside/internal/domains/reservations/domain"
	"github.com/Apurer/tableside/internal/domains/reservations/ports"
	"github.com/Apurer/tableside/internal/platform/storage"
)

const (
	tableName = "reservations"
	columns   = "id, table_id, client_name, starts_at, duration_minutes, state, phone, party_size, notes"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists reservations through the storage gateway.
type Repository struct {
	gw storage.Gateway
}

func NewRepository(gw storage.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) Insert(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	res.Start = normalize(res.Start)
	id, err := r.gw.Insert(ctx, tableName, map[string]any{
		"table_id":         res.TableID,
		"client_name":      res.ClientName,
		"starts_at":        res.Start,
		"duration_minutes": res.DurationMinutes,
		"state":            string(res.State),
		"phone":            res.Phone,
		"party_size":       res.PartySize,
		"notes":            res.Notes,
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	res.ID = id
	return res, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (domain.Reservation, error) {
	rows, err := r.gw.Query(ctx, "SELECT "+columns+" FROM "+tableName+" WHERE id = ?", id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(rows) == 0 {
		return domain.Reservation{}, ports.ErrNotFound
	}
	return toDomain(rows[0]), nil
}

func (r *Repository) UpdateState(ctx context.Context, id int64, state domain.State) error {
	ok, err := r.gw.Update(ctx, tableName, id, map[string]any{"state": string(state)})
	if err != nil {
		return err
	}
	if !ok {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) ListActiveStarting(ctx context.Context, tableID string, from, to time.Time) ([]domain.Reservation, error) {
	return r.list(ctx, "SELECT "+columns+" FROM "+tableName+
		" WHERE table_id = ? AND state = ? AND starts_at >= ? AND starts_at < ? ORDER BY starts_at",
		tableID, string(domain.StateActive), normalize(from), normalize(to))
}

func (r *Repository) ListActiveSince(ctx context.Context, from time.Time) ([]domain.Reservation, error) {
	return r.list(ctx, "SELECT "+columns+" FROM "+tableName+
		" WHERE state = ? AND starts_at >= ? ORDER BY table_id, starts_at",
		string(domain.StateActive), normalize(from))
}

func (r *Repository) list(ctx context.Context, sql string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.gw.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	list := make([]domain.Reservation, 0, len(rows))
	for _, row := range rows {
		list = append(list, toDomain(row))
	}
	return list, nil
}

func toDomain(row storage.Row) domain.Reservation {
	return domain.Reservation{
		ID:              row.Int64("id"),
		TableID:         row.String("table_id"),
		ClientName:      row.String("client_name"),
		Start:           row.Time("starts_at"),
		DurationMinutes: row.Int("duration_minutes"),
		State:           domain.State(row.String("state")),
		Phone:           row.String("phone"),
		PartySize:       row.Int("party_size"),
		Notes:           row.String("notes"),
	}
}

// normalize keeps stored times in UTC with second precision so string-typed columns
// compare in chronological order.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
