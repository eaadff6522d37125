package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"elevenlab/ent"
	"elevenlab/store"
)

const DefaultDatabase = "eleven-lab-restaurant"

type foodDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	ent.Food `bson:",inline"`
}

func (d foodDoc) food() ent.Food {
	f := d.Food
	f.ID = d.ID.Hex()
	return f
}

// purchaseDoc stores the caller's extra fields at the top level of the
// document, next to the known ones.
type purchaseDoc struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty"`
	ent.Purchase `bson:",inline"`
	Rest         map[string]interface{} `bson:",inline"`
}

func newPurchaseDoc(p ent.Purchase) purchaseDoc {
	return purchaseDoc{Purchase: p, Rest: p.Extra}
}

func (d purchaseDoc) purchase() ent.Purchase {
	p := d.Purchase
	p.ID = d.ID.Hex()
	if len(d.Rest) > 0 {
		p.Extra = ent.Extra(d.Rest)
	}
	return p
}

type Store struct {
	client    *mongo.Client
	foods     *mongo.Collection
	purchases *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Open connects to MongoDB and verifies the connection with a ping.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	if database == "" {
		database = DefaultDatabase
	}

	return New(client, client.Database(database)), nil
}

func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:    client,
		foods:     db.Collection("foods"),
		purchases: db.Collection("purchases"),
	}
}

func (s *Store) InsertFood(ctx context.Context, f ent.Food) (ent.InsertResult, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	r, err := s.foods.InsertOne(ctx, foodDoc{Food: f})
	if err != nil {
		return ent.InsertResult{}, fmt.Errorf("insert food: %w", err)
	}

	return ent.InsertResult{Acknowledged: true, InsertedID: hexID(r.InsertedID)}, nil
}

func (s *Store) FindFoods(ctx context.Context, filter store.FoodFilter) ([]ent.Food, error) {
	q := bson.M{}
	if filter.Name != "" {
		q["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Name), Options: "i"}
	}
	if filter.AddedBy != "" {
		q["addedBy"] = filter.AddedBy
	}
	if filter.MinPurchaseCount > 0 {
		q["purchase_count"] = bson.M{"$gte": filter.MinPurchaseCount}
	}

	opts := options.Find()
	if filter.ByPopularity {
		opts.SetSort(bson.D{{Key: "purchase_count", Value: -1}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.foods.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find foods: %w", err)
	}

	var docs []foodDoc
	err = cur.All(ctx, &docs)
	if err != nil {
		return nil, fmt.Errorf("read foods: %w", err)
	}

	fs := make([]ent.Food, 0, len(docs))
	for _, d := range docs {
		fs = append(fs, d.food())
	}

	return fs, nil
}

func (s *Store) FindFood(ctx context.Context, id string) (ent.Food, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ent.Food{}, store.ErrNotFound
	}

	var d foodDoc
	err = s.foods.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ent.Food{}, store.ErrNotFound
	}
	if err != nil {
		return ent.Food{}, fmt.Errorf("find food: %w", err)
	}

	return d.food(), nil
}

func (s *Store) UpdateFood(ctx context.Context, id string, u ent.FoodUpdate) (ent.UpdateResult, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ent.UpdateResult{}, store.ErrInvalidID
	}

	r, err := s.foods.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": u,
		"$setOnInsert": bson.M{
			"purchase_count": 0,
			"createdAt":      time.Now(),
		},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return ent.UpdateResult{}, fmt.Errorf("update food: %w", err)
	}

	res := ent.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  r.MatchedCount,
		ModifiedCount: r.ModifiedCount,
		UpsertedCount: r.UpsertedCount,
	}
	if r.UpsertedID != nil {
		res.UpsertedID = hexID(r.UpsertedID)
	}

	return res, nil
}

func (s *Store) IncrementPurchaseCount(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}

	r, err := s.foods.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$inc": bson.M{"purchase_count": 1}})
	if err != nil {
		return fmt.Errorf("increment purchase count: %w", err)
	}
	if r.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (s *Store) ReserveFood(ctx context.Context, id string, qty float64) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}

	r, err := s.foods.UpdateOne(ctx, bson.M{
		"_id": oid,
		"quantity": bson.M{
			"$gt":  0,
			"$gte": qty,
		},
	}, bson.M{"$inc": bson.M{
		"quantity":       -qty,
		"purchase_count": 1,
	}})
	if err != nil {
		return fmt.Errorf("reserve food: %w", err)
	}
	if r.MatchedCount == 1 {
		return nil
	}

	if _, err := s.FindFood(ctx, id); err != nil {
		return err
	}
	return store.ErrInsufficientStock
}

func (s *Store) ReleaseFood(ctx context.Context, id string, qty float64) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}

	r, err := s.foods.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{
		"quantity":       qty,
		"purchase_count": -1,
	}})
	if err != nil {
		return fmt.Errorf("release food: %w", err)
	}
	if r.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (s *Store) InsertPurchase(ctx context.Context, p ent.Purchase) (ent.InsertResult, error) {
	if p.BuyingDate.IsZero() {
		p.BuyingDate = time.Now()
	}

	r, err := s.purchases.InsertOne(ctx, newPurchaseDoc(p))
	if err != nil {
		return ent.InsertResult{}, fmt.Errorf("insert purchase: %w", err)
	}

	return ent.InsertResult{Acknowledged: true, InsertedID: hexID(r.InsertedID)}, nil
}

func (s *Store) FindPurchases(ctx context.Context, buyerEmail string) ([]ent.Purchase, error) {
	cur, err := s.purchases.Find(ctx, bson.M{"buyerEmail": buyerEmail},
		options.Find().SetSort(bson.D{{Key: "buyingDate", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find purchases: %w", err)
	}

	var docs []purchaseDoc
	err = cur.All(ctx, &docs)
	if err != nil {
		return nil, fmt.Errorf("read purchases: %w", err)
	}

	ps := make([]ent.Purchase, 0, len(docs))
	for _, d := range docs {
		ps = append(ps, d.purchase())
	}

	return ps, nil
}

func (s *Store) DeletePurchase(ctx context.Context, id string) (ent.DeleteResult, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ent.DeleteResult{}, store.ErrInvalidID
	}

	r, err := s.purchases.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return ent.DeleteResult{}, fmt.Errorf("delete purchase: %w", err)
	}

	return ent.DeleteResult{Acknowledged: true, DeletedCount: r.DeletedCount}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func hexID(v interface{}) string {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(v)
}
