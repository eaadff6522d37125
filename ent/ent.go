package ent

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Food struct {
	ID            string    `json:"_id" db:"id" bson:"-"`
	Name          string    `json:"name" db:"name" bson:"name"`
	Price         float64   `json:"price" db:"price" bson:"price"`
	Category      string    `json:"category" db:"category" bson:"category"`
	Image         string    `json:"image" db:"image" bson:"image"`
	Description   string    `json:"description" db:"description" bson:"description"`
	Quantity      float64   `json:"quantity" db:"quantity" bson:"quantity"`
	Origin        string    `json:"origin" db:"origin" bson:"origin"`
	PurchaseCount int64     `json:"purchase_count" db:"purchase_count" bson:"purchase_count"`
	AddedBy       string    `json:"addedBy" db:"added_by" bson:"addedBy"`
	AddedByName   string    `json:"addedByName,omitempty" db:"added_by_name" bson:"addedByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
}

// FoodUpdate is the field set accepted by the update endpoint.
type FoodUpdate struct {
	Name        string  `json:"name" db:"name" bson:"name"`
	Price       float64 `json:"price" db:"price" bson:"price"`
	Category    string  `json:"category" db:"category" bson:"category"`
	Image       string  `json:"image" db:"image" bson:"image"`
	Description string  `json:"description" db:"description" bson:"description"`
	Quantity    float64 `json:"quantity" db:"quantity" bson:"quantity"`
	Origin      string  `json:"origin" db:"origin" bson:"origin"`
}

type Purchase struct {
	ID         string    `json:"_id" db:"id" bson:"-"`
	FoodID     string    `json:"foodId" db:"food_id" bson:"foodId"`
	FoodName   string    `json:"foodName" db:"food_name" bson:"foodName"`
	FoodImage  string    `json:"foodImage" db:"food_image" bson:"foodImage"`
	Price      float64   `json:"price" db:"price" bson:"price"`
	Quantity   float64   `json:"quantity" db:"quantity" bson:"quantity"`
	BuyerName  string    `json:"buyerName" db:"buyer_name" bson:"buyerName"`
	BuyerEmail string    `json:"buyerEmail" db:"buyer_email" bson:"buyerEmail"`
	BuyingDate time.Time `json:"buyingDate" db:"buying_date" bson:"buyingDate"`
	Extra      Extra     `json:"extra,omitempty" db:"extra" bson:"-"`
}

// Extra holds caller supplied purchase fields that have no column of their own.
type Extra map[string]interface{}

func (e Extra) Value() (driver.Value, error) {
	if e == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e)
}

func (e *Extra) Scan(src interface{}) error {
	var b []byte

	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan extra: unsupported type %T", src)
	}

	return json.Unmarshal(b, e)
}

type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

type UpdateResult struct {
	Acknowledged  bool   `json:"acknowledged"`
	MatchedCount  int64  `json:"matchedCount"`
	ModifiedCount int64  `json:"modifiedCount"`
	UpsertedCount int64  `json:"upsertedCount"`
	UpsertedID    string `json:"upsertedId,omitempty"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}
