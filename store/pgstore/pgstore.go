package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"elevenlab/ent"
	"elevenlab/migrations"
	"elevenlab/store"
)

const foodColumns = `id, name, price, category, image, description, quantity, origin,
	purchase_count, added_by, added_by_name, created_at`

const purchaseColumns = `id, food_id, food_name, food_image, price, quantity,
	buyer_name, buyer_email, buying_date, extra`

type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open DB: %w", err)
	}

	err = migrations.Migrate(db.DB)
	if err != nil {
		db.Close()
		return nil, err
	}

	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertFood(ctx context.Context, f ent.Food) (ent.InsertResult, error) {
	f.ID = uuid.NewString()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	_, err := s.db.NamedExecContext(ctx, `
		insert into food(`+foodColumns+`)
		values (:id, :name, :price, :category, :image, :description, :quantity, :origin,
			:purchase_count, :added_by, :added_by_name, :created_at)
	`, f)
	if err != nil {
		return ent.InsertResult{}, fmt.Errorf("insert food: %w", err)
	}

	return ent.InsertResult{Acknowledged: true, InsertedID: f.ID}, nil
}

func (s *Store) FindFoods(ctx context.Context, filter store.FoodFilter) ([]ent.Food, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.Name != "" {
		args = append(args, "%"+escapeLike(filter.Name)+"%")
		where = append(where, fmt.Sprintf(`name ilike $%d`, len(args)))
	}
	if filter.AddedBy != "" {
		args = append(args, filter.AddedBy)
		where = append(where, fmt.Sprintf(`added_by = $%d`, len(args)))
	}
	if filter.MinPurchaseCount > 0 {
		args = append(args, filter.MinPurchaseCount)
		where = append(where, fmt.Sprintf(`purchase_count >= $%d`, len(args)))
	}

	q := `select ` + foodColumns + ` from food`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, ` and `)
	}
	if filter.ByPopularity {
		q += ` order by purchase_count desc, created_at asc`
	} else {
		q += ` order by created_at asc`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(` limit $%d`, len(args))
	}

	fs := []ent.Food{}
	err := s.db.SelectContext(ctx, &fs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select foods: %w", err)
	}

	return fs, nil
}

func (s *Store) FindFood(ctx context.Context, id string) (ent.Food, error) {
	var f ent.Food

	err := s.db.GetContext(ctx, &f, `select `+foodColumns+` from food where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ent.Food{}, store.ErrNotFound
	}
	if err != nil {
		return ent.Food{}, fmt.Errorf("get food: %w", err)
	}

	return f, nil
}

func (s *Store) UpdateFood(ctx context.Context, id string, u ent.FoodUpdate) (res ent.UpdateResult, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var current ent.FoodUpdate

	err = tx.GetContext(ctx, &current, `
		select name, price, category, image, description, quantity, origin
		from food where id = $1 for update
	`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			insert into food(id, name, price, category, image, description, quantity, origin)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, u.Name, u.Price, u.Category, u.Image, u.Description, u.Quantity, u.Origin)
		if err != nil {
			return res, fmt.Errorf("upsert food: %w", err)
		}
		res = ent.UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: id}
	case err != nil:
		return res, fmt.Errorf("get food: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			update food set name = $2, price = $3, category = $4, image = $5,
				description = $6, quantity = $7, origin = $8
			where id = $1
		`, id, u.Name, u.Price, u.Category, u.Image, u.Description, u.Quantity, u.Origin)
		if err != nil {
			return res, fmt.Errorf("update food: %w", err)
		}
		res = ent.UpdateResult{Acknowledged: true, MatchedCount: 1}
		if current != u {
			res.ModifiedCount = 1
		}
	}

	err = tx.Commit()
	if err != nil {
		return ent.UpdateResult{}, fmt.Errorf("commit: %w", err)
	}

	return res, nil
}

func (s *Store) IncrementPurchaseCount(ctx context.Context, id string) error {
	r, err := s.db.ExecContext(ctx, `
		update food set purchase_count = purchase_count + 1 where id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment purchase count: %w", err)
	}
	return expectRow(r)
}

func (s *Store) ReserveFood(ctx context.Context, id string, qty float64) error {
	r, err := s.db.ExecContext(ctx, `
		update food set quantity = quantity - $2, purchase_count = purchase_count + 1
		where id = $1 and quantity > 0 and quantity >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("reserve food: %w", err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := s.FindFood(ctx, id); err != nil {
		return err
	}
	return store.ErrInsufficientStock
}

func (s *Store) ReleaseFood(ctx context.Context, id string, qty float64) error {
	r, err := s.db.ExecContext(ctx, `
		update food set quantity = quantity + $2,
			purchase_count = greatest(purchase_count - 1, 0)
		where id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("release food: %w", err)
	}
	return expectRow(r)
}

func (s *Store) InsertPurchase(ctx context.Context, p ent.Purchase) (ent.InsertResult, error) {
	p.ID = uuid.NewString()
	if p.BuyingDate.IsZero() {
		p.BuyingDate = time.Now()
	}

	_, err := s.db.NamedExecContext(ctx, `
		insert into purchase(`+purchaseColumns+`)
		values (:id, :food_id, :food_name, :food_image, :price, :quantity,
			:buyer_name, :buyer_email, :buying_date, :extra)
	`, p)
	if err != nil {
		return ent.InsertResult{}, fmt.Errorf("insert purchase: %w", err)
	}

	return ent.InsertResult{Acknowledged: true, InsertedID: p.ID}, nil
}

func (s *Store) FindPurchases(ctx context.Context, buyerEmail string) ([]ent.Purchase, error) {
	ps := []ent.Purchase{}

	err := s.db.SelectContext(ctx, &ps, `
		select `+purchaseColumns+` from purchase
		where buyer_email = $1
		order by buying_date desc
	`, buyerEmail)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}

	return ps, nil
}

func (s *Store) DeletePurchase(ctx context.Context, id string) (ent.DeleteResult, error) {
	r, err := s.db.ExecContext(ctx, `delete from purchase where id = $1`, id)
	if err != nil {
		return ent.DeleteResult{}, fmt.Errorf("delete purchase: %w", err)
	}

	n, err := r.RowsAffected()
	if err != nil {
		return ent.DeleteResult{}, err
	}

	return ent.DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func expectRow(r sql.Result) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ilike pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
