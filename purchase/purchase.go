package purchase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"elevenlab/ent"
	"elevenlab/store"
)

// validationError is a client mistake, reported as 400.
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

func newValidationError(msg string) error {
	return validationError{message: msg}
}

// IsValidation tells client errors apart from store failures.
func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

var ErrInsufficientStock = newValidationError("insufficient inventory")

// Policy decides how the stock check and the ledger write interact.
type Policy string

const (
	// PolicyCheck only compares stock before recording the purchase. Stock is
	// never decremented, so concurrent purchases all see the same quantity.
	PolicyCheck Policy = "check"
	// PolicyReserve takes the stock in one conditional write before recording
	// the purchase, so stock is never oversold.
	PolicyReserve Policy = "reserve"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyCheck, nil
	case PolicyCheck, PolicyReserve:
		return p, nil
	default:
		return "", fmt.Errorf("unknown purchase policy %q", s)
	}
}

type Request struct {
	FoodID     string      `json:"foodId"`
	FoodName   string      `json:"foodName"`
	FoodImage  string      `json:"foodImage"`
	Price      interface{} `json:"price"`
	Quantity   interface{} `json:"quantity"`
	BuyerName  string      `json:"buyerName"`
	BuyerEmail string      `json:"buyerEmail"`
	BuyingDate interface{} `json:"buyingDate"`

	// Extra carries payload fields not named above; they are stored as is.
	Extra map[string]interface{} `json:"-"`
}

var requestFields = map[string]bool{
	"_id":        true,
	"foodId":     true,
	"foodName":   true,
	"foodImage":  true,
	"price":      true,
	"quantity":   true,
	"buyerName":  true,
	"buyerEmail": true,
	"buyingDate": true,
}

// Extras picks the fields of a decoded payload that Request has no field for.
func Extras(payload map[string]interface{}) map[string]interface{} {
	var extra map[string]interface{}
	for k, v := range payload {
		if requestFields[k] {
			continue
		}
		if extra == nil {
			extra = map[string]interface{}{}
		}
		extra[k] = v
	}
	return extra
}

type Notifier interface {
	Publish(p ent.Purchase)
}

type Service struct {
	store    store.Store
	policy   Policy
	notifier Notifier
}

func NewService(st store.Store, policy Policy, notifier Notifier) *Service {
	if policy == "" {
		policy = PolicyCheck
	}
	return &Service{store: st, policy: policy, notifier: notifier}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// Purchase records req against the food it names and bumps the food's
// purchase_count by one.
func (s *Service) Purchase(ctx context.Context, req Request) (ent.InsertResult, error) {
	food, err := s.store.FindFood(ctx, req.FoodID)
	if err != nil {
		return ent.InsertResult{}, err
	}

	qty, err := ParseQuantity(req.Quantity)
	if err != nil {
		return ent.InsertResult{}, err
	}

	if food.Quantity <= 0 || food.Quantity < qty {
		return ent.InsertResult{}, ErrInsufficientStock
	}

	p := ent.Purchase{
		FoodID:     food.ID,
		FoodName:   req.FoodName,
		FoodImage:  req.FoodImage,
		Price:      parsePrice(req.Price),
		Quantity:   qty,
		BuyerName:  req.BuyerName,
		BuyerEmail: req.BuyerEmail,
		BuyingDate: parseDate(req.BuyingDate),
		Extra:      ent.Extra(req.Extra),
	}

	var res ent.InsertResult
	if s.policy == PolicyReserve {
		res, err = s.reserveAndRecord(ctx, p)
	} else {
		res, err = s.record(ctx, p)
	}
	if err != nil {
		return ent.InsertResult{}, err
	}

	p.ID = res.InsertedID
	if s.notifier != nil {
		s.notifier.Publish(p)
	}

	return res, nil
}

func (s *Service) record(ctx context.Context, p ent.Purchase) (ent.InsertResult, error) {
	res, err := s.store.InsertPurchase(ctx, p)
	if err != nil {
		return ent.InsertResult{}, err
	}

	err = s.store.IncrementPurchaseCount(ctx, p.FoodID)
	if err != nil {
		// Drop the record so that a retry does not leave a duplicate behind.
		if _, derr := s.store.DeletePurchase(ctx, res.InsertedID); derr != nil {
			logrus.WithError(derr).WithField("purchase_id", res.InsertedID).
				Error("failed to remove uncounted purchase")
		}
		return ent.InsertResult{}, fmt.Errorf("increment purchase count: %w", err)
	}

	return res, nil
}

func (s *Service) reserveAndRecord(ctx context.Context, p ent.Purchase) (ent.InsertResult, error) {
	err := s.store.ReserveFood(ctx, p.FoodID, p.Quantity)
	if errors.Is(err, store.ErrInsufficientStock) {
		return ent.InsertResult{}, ErrInsufficientStock
	}
	if err != nil {
		return ent.InsertResult{}, err
	}

	res, err := s.store.InsertPurchase(ctx, p)
	if err != nil {
		if rerr := s.store.ReleaseFood(ctx, p.FoodID, p.Quantity); rerr != nil {
			logrus.WithError(rerr).WithField("food_id", p.FoodID).
				Error("failed to release reserved stock")
		}
		return ent.InsertResult{}, err
	}

	return res, nil
}

// ParseQuantity accepts numbers and numeric strings. The result is a
// positive finite number.
func ParseQuantity(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil, bool:
		return 0, newValidationError("quantity must be a number")
	case string:
		v = strings.TrimSpace(x)
	}

	q, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, newValidationError("quantity must be a number")
	}
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return 0, newValidationError("quantity must be positive")
	}

	return q, nil
}

// parsePrice never fails: a price that is not a finite number is stored as 0.
func parsePrice(v interface{}) float64 {
	switch x := v.(type) {
	case bool:
		return 0
	case string:
		v = strings.TrimSpace(x)
	}

	p, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// maxDateMillis is 9999-12-31T23:59:59.999Z.
const maxDateMillis = 253402300799999

func parseDate(v interface{}) time.Time {
	if v == nil {
		return time.Now()
	}
	if ms, ok := v.(float64); ok {
		if math.IsNaN(ms) || math.Abs(ms) > maxDateMillis {
			return time.Now()
		}
		return time.UnixMilli(int64(ms))
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return time.Now()
	}
	return t
}
