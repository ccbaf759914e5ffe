package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/ports/out/store"
)

var travelUniques = map[string]error{
	"travels_pkey": store.ErrAlreadyExists,
}

var dayUniques = map[string]error{
	"days_pkey":               store.ErrAlreadyExists,
	"days_travel_date_unique": store.ErrDayDateTaken,
}

const travelColumns = `id, name, country, date_from, date_to, user_id`

const dayColumns = `id, date, breakfast, morning, lunch, afternoon, diner, link, travel_id`

type travels struct{ t *tx }

func (r travels) Create(ctx context.Context, tr domain.Travel) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO travels (id, name, country, date_from, date_to, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		string(tr.ID),
		tr.Name,
		tr.Country,
		domain.NormalizeDate(tr.DateFrom),
		domain.NormalizeDate(tr.DateTo),
		userIDArg(tr.UserID),
	)
	if err != nil {
		return classify(err, travelUniques)
	}
	return nil
}

func (r travels) Save(ctx context.Context, tr domain.Travel) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		UPDATE travels
		SET name = $2,
		    country = $3,
		    date_from = $4,
		    date_to = $5,
		    user_id = $6
		WHERE id = $1
	`,
		string(tr.ID),
		tr.Name,
		tr.Country,
		domain.NormalizeDate(tr.DateFrom),
		domain.NormalizeDate(tr.DateTo),
		userIDArg(tr.UserID),
	)
	if err != nil {
		return classify(err, travelUniques)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete relies on days.travel_id ON DELETE CASCADE.
func (r travels) Delete(ctx context.Context, id domain.TravelID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM travels WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r travels) Get(ctx context.Context, id domain.TravelID) (domain.Travel, error) {
	row := r.t.tx.QueryRow(ctx, `SELECT `+travelColumns+` FROM travels WHERE id = $1`, string(id))
	tr, err := scanTravel(row)
	return tr, notFound(err)
}

// GetForUpdate takes FOR UPDATE, which also conflicts with the FOR KEY SHARE taken by
// Exists, so day writes on this travel queue behind the caller.
func (r travels) GetForUpdate(ctx context.Context, id domain.TravelID) (domain.Travel, error) {
	if err := r.t.writable(); err != nil {
		return domain.Travel{}, err
	}
	row := r.t.tx.QueryRow(ctx, `SELECT `+travelColumns+` FROM travels WHERE id = $1 FOR UPDATE`, string(id))
	tr, err := scanTravel(row)
	return tr, notFound(err)
}

func (r travels) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Travel, error) {
	return r.list(ctx, `
		SELECT `+travelColumns+` FROM travels
		WHERE user_id = $1
		ORDER BY date_from, id
	`, string(userID))
}

func (r travels) ListOwnerless(ctx context.Context) ([]domain.Travel, error) {
	return r.list(ctx, `
		SELECT `+travelColumns+` FROM travels
		WHERE user_id IS NULL
		ORDER BY date_from, id
	`)
}

func (r travels) list(ctx context.Context, sql string, args ...any) ([]domain.Travel, error) {
	rows, err := r.t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Travel, 0)
	for rows.Next() {
		tr, err := scanTravel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r travels) Exists(ctx context.Context, id domain.TravelID) (bool, error) {
	return exists(ctx, r.t.tx, `SELECT 1 FROM travels WHERE id = $1`+r.t.lockSuffix(), string(id))
}

func (r travels) ClearOwner(ctx context.Context, userID domain.UserID) (int, error) {
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	ct, err := r.t.tx.Exec(ctx, `UPDATE travels SET user_id = NULL WHERE user_id = $1`, string(userID))
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func scanTravel(row pgx.Row) (domain.Travel, error) {
	var (
		tr       domain.Travel
		id       string
		from, to time.Time
		userID   *string
	)
	if err := row.Scan(&id, &tr.Name, &tr.Country, &from, &to, &userID); err != nil {
		return domain.Travel{}, err
	}
	tr.ID = domain.TravelID(id)
	tr.DateFrom = domain.NormalizeDate(from)
	tr.DateTo = domain.NormalizeDate(to)
	if userID != nil {
		uid := domain.UserID(*userID)
		tr.UserID = &uid
	}
	return tr, nil
}

func userIDArg(id *domain.UserID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

type days struct{ t *tx }

func (r days) Create(ctx context.Context, d domain.Day) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO days (id, date, breakfast, morning, lunch, afternoon, diner, link, travel_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		string(d.ID),
		domain.NormalizeDate(d.Date),
		d.Breakfast,
		d.Morning,
		d.Lunch,
		d.Afternoon,
		d.Diner,
		d.Link,
		travelIDArg(d.TravelID),
	)
	if err != nil {
		return classify(err, dayUniques)
	}
	return nil
}

func (r days) Save(ctx context.Context, d domain.Day) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `
		UPDATE days
		SET date = $2,
		    breakfast = $3,
		    morning = $4,
		    lunch = $5,
		    afternoon = $6,
		    diner = $7,
		    link = $8,
		    travel_id = $9
		WHERE id = $1
	`,
		string(d.ID),
		domain.NormalizeDate(d.Date),
		d.Breakfast,
		d.Morning,
		d.Lunch,
		d.Afternoon,
		d.Diner,
		d.Link,
		travelIDArg(d.TravelID),
	)
	if err != nil {
		return classify(err, dayUniques)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r days) Delete(ctx context.Context, id domain.DayID) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM days WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r days) Get(ctx context.Context, id domain.DayID) (domain.Day, error) {
	row := r.t.tx.QueryRow(ctx, `SELECT `+dayColumns+` FROM days WHERE id = $1`, string(id))
	d, err := scanDay(row)
	return d, notFound(err)
}

func (r days) ListByTravel(ctx context.Context, travelID domain.TravelID) ([]domain.Day, error) {
	rows, err := r.t.tx.Query(ctx, `
		SELECT `+dayColumns+` FROM days
		WHERE travel_id = $1
		ORDER BY date, id
	`, string(travelID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Day, 0)
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r days) DeleteByTravel(ctx context.Context, travelID domain.TravelID) (int, error) {
	if err := r.t.writable(); err != nil {
		return 0, err
	}
	ct, err := r.t.tx.Exec(ctx, `DELETE FROM days WHERE travel_id = $1`, string(travelID))
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func scanDay(row pgx.Row) (domain.Day, error) {
	var (
		d        domain.Day
		id       string
		date     time.Time
		travelID *string
	)
	if err := row.Scan(&id, &date, &d.Breakfast, &d.Morning, &d.Lunch, &d.Afternoon, &d.Diner, &d.Link, &travelID); err != nil {
		return domain.Day{}, err
	}
	d.ID = domain.DayID(id)
	d.Date = domain.NormalizeDate(date)
	if travelID != nil {
		tid := domain.TravelID(*travelID)
		d.TravelID = &tid
	}
	return d, nil
}

func travelIDArg(id *domain.TravelID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
