package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"elevenlab/ent"
	"elevenlab/store"
)

// Store keeps foods and purchases in memory, in insertion order.
type Store struct {
	mu sync.Mutex

	foods     map[string]*ent.Food
	foodIDs   []string
	purchases map[string]*ent.Purchase
	buyIDs    []string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		foods:     map[string]*ent.Food{},
		purchases: map[string]*ent.Purchase{},
	}
}

func (s *Store) InsertFood(_ context.Context, f ent.Food) (ent.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = uuid.NewString()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.foods[f.ID] = &f
	s.foodIDs = append(s.foodIDs, f.ID)

	return ent.InsertResult{Acknowledged: true, InsertedID: f.ID}, nil
}

func (s *Store) FindFoods(_ context.Context, filter store.FoodFilter) ([]ent.Food, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(filter.Name)

	fs := []ent.Food{}
	for _, id := range s.foodIDs {
		f := s.foods[id]
		if name != "" && !strings.Contains(strings.ToLower(f.Name), name) {
			continue
		}
		if filter.AddedBy != "" && f.AddedBy != filter.AddedBy {
			continue
		}
		if filter.MinPurchaseCount > 0 && f.PurchaseCount < filter.MinPurchaseCount {
			continue
		}
		fs = append(fs, *f)
	}

	if filter.ByPopularity {
		sort.SliceStable(fs, func(i, j int) bool {
			return fs[i].PurchaseCount > fs[j].PurchaseCount
		})
	}

	if filter.Limit > 0 && len(fs) > filter.Limit {
		fs = fs[:filter.Limit]
	}

	return fs, nil
}

func (s *Store) FindFood(_ context.Context, id string) (ent.Food, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.foods[id]
	if !ok {
		return ent.Food{}, store.ErrNotFound
	}
	return *f, nil
}

func (s *Store) UpdateFood(_ context.Context, id string, u ent.FoodUpdate) (ent.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.foods[id]
	if !ok {
		f = &ent.Food{ID: id, CreatedAt: time.Now()}
		applyUpdate(f, u)
		s.foods[id] = f
		s.foodIDs = append(s.foodIDs, id)
		return ent.UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: id}, nil
	}

	before := *f
	applyUpdate(f, u)

	res := ent.UpdateResult{Acknowledged: true, MatchedCount: 1}
	if before != *f {
		res.ModifiedCount = 1
	}
	return res, nil
}

func applyUpdate(f *ent.Food, u ent.FoodUpdate) {
	f.Name = u.Name
	f.Price = u.Price
	f.Category = u.Category
	f.Image = u.Image
	f.Description = u.Description
	f.Quantity = u.Quantity
	f.Origin = u.Origin
}

func (s *Store) IncrementPurchaseCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.foods[id]
	if !ok {
		return store.ErrNotFound
	}
	f.PurchaseCount++
	return nil
}

func (s *Store) ReserveFood(_ context.Context, id string, qty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.foods[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.Quantity <= 0 || f.Quantity < qty {
		return store.ErrInsufficientStock
	}
	f.Quantity -= qty
	f.PurchaseCount++
	return nil
}

func (s *Store) ReleaseFood(_ context.Context, id string, qty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.foods[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Quantity += qty
	if f.PurchaseCount > 0 {
		f.PurchaseCount--
	}
	return nil
}

func (s *Store) InsertPurchase(_ context.Context, p ent.Purchase) (ent.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	if p.Extra != nil {
		extra := make(ent.Extra, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	s.purchases[p.ID] = &p
	s.buyIDs = append(s.buyIDs, p.ID)

	return ent.InsertResult{Acknowledged: true, InsertedID: p.ID}, nil
}

func (s *Store) FindPurchases(_ context.Context, buyerEmail string) ([]ent.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := []ent.Purchase{}
	for i := len(s.buyIDs) - 1; i >= 0; i-- {
		p := s.purchases[s.buyIDs[i]]
		if p.BuyerEmail == buyerEmail {
			ps = append(ps, *p)
		}
	}
	return ps, nil
}

func (s *Store) DeletePurchase(_ context.Context, id string) (ent.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchases[id]; !ok {
		return ent.DeleteResult{Acknowledged: true}, nil
	}

	delete(s.purchases, id)
	for i, bid := range s.buyIDs {
		if bid == id {
			s.buyIDs = append(s.buyIDs[:i], s.buyIDs[i+1:]...)
			break
		}
	}
	return ent.DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}
