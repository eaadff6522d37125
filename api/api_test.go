package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elevenlab/auth"
	"elevenlab/ent"
	"elevenlab/feed"
	"elevenlab/purchase"
	"elevenlab/store/memstore"
)

const owner = "chef@example.com"

type testEnv struct {
	srv    *Server
	store  *memstore.Store
	hub    *feed.Hub
	issuer *auth.Issuer
	token  string
}

func newTestEnv(t *testing.T, policy purchase.Policy) *testEnv {
	t.Helper()

	st := memstore.New()
	hub := feed.NewHub()
	issuer := auth.NewIssuer([]byte("test-secret"), time.Hour, false)

	srv := New(Config{CORSOrigins: "http://localhost:5173"}, st,
		purchase.NewService(st, policy, hub), issuer, hub)

	token, _, err := issuer.Issue(owner, "Chef")
	require.NoError(t, err)

	return &testEnv{srv: srv, store: st, hub: hub, issuer: issuer, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}

	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (e *testEnv) addFood(t *testing.T, f ent.Food) string {
	t.Helper()

	if f.AddedBy == "" {
		f.AddedBy = owner
	}
	res, err := e.store.InsertFood(context.Background(), f)
	require.NoError(t, err)
	return res.InsertedID
}

func decode(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func TestRoot(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	resp, body := e.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Eleven Lab Restaurant")
}

func TestAddFood(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	food := map[string]interface{}{
		"name":           "Pizza Margherita",
		"price":          12.5,
		"category":       "Italian",
		"quantity":       10,
		"purchase_count": 99,
	}

	resp, _ := e.do(t, http.MethodPost, "/add-food", food, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/add-food", food, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res ent.InsertResult
	decode(t, body, &res)
	assert.True(t, res.Acknowledged)

	f, err := e.store.FindFood(context.Background(), res.InsertedID)
	require.NoError(t, err)
	assert.Equal(t, "Pizza Margherita", f.Name)
	assert.Equal(t, owner, f.AddedBy)
	assert.EqualValues(t, 0, f.PurchaseCount)

	resp, _ = e.do(t, http.MethodPost, "/add-food", map[string]interface{}{"price": 1}, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAllFoodsAndFood(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	resp, body := e.do(t, http.MethodGet, "/all-foods", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	id := e.addFood(t, ent.Food{Name: "Ramen"})
	e.addFood(t, ent.Food{Name: "Tacos"})

	resp, body = e.do(t, http.MethodGet, "/all-foods", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fs []ent.Food
	decode(t, body, &fs)
	assert.Len(t, fs, 2)

	resp, body = e.do(t, http.MethodGet, "/food/"+id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f ent.Food
	decode(t, body, &f)
	assert.Equal(t, "Ramen", f.Name)
	assert.Equal(t, id, f.ID)

	resp, body = e.do(t, http.MethodGet, "/food/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"not found"}`, string(body))
}

func TestTopFoods(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	e.addFood(t, ent.Food{Name: "never bought"})
	for i := 1; i <= 15; i++ {
		e.addFood(t, ent.Food{Name: fmt.Sprintf("food %d", i), PurchaseCount: int64(i)})
	}

	resp, body := e.do(t, http.MethodGet, "/top-foods", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fs []ent.Food
	decode(t, body, &fs)
	require.Len(t, fs, 12)
	assert.EqualValues(t, 15, fs[0].PurchaseCount)
	for i, f := range fs {
		assert.Greater(t, f.PurchaseCount, int64(0))
		if i > 0 {
			assert.LessOrEqual(t, f.PurchaseCount, fs[i-1].PurchaseCount)
		}
	}
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	e.addFood(t, ent.Food{Name: "Pizza Margherita"})
	e.addFood(t, ent.Food{Name: "Caesar Salad"})

	resp, body := e.do(t, http.MethodGet, "/search?search=piz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fs []ent.Food
	decode(t, body, &fs)
	require.Len(t, fs, 1)
	assert.Equal(t, "Pizza Margherita", fs[0].Name)

	resp, body = e.do(t, http.MethodGet, "/search?search=.%2A", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestMyFoods(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	e.addFood(t, ent.Food{Name: "Ramen"})
	e.addFood(t, ent.Food{Name: "Tacos", AddedBy: "other@example.com"})

	resp, body := e.do(t, http.MethodGet, "/my-foods/"+owner, nil, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fs []ent.Food
	decode(t, body, &fs)
	require.Len(t, fs, 1)
	assert.Equal(t, "Ramen", fs[0].Name)

	resp, _ = e.do(t, http.MethodGet, "/my-foods/other@example.com", nil, e.token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/my-foods/"+owner, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateFood(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	id := e.addFood(t, ent.Food{Name: "Ramen", Quantity: 3, PurchaseCount: 4})

	resp, body := e.do(t, http.MethodPut, "/update-food/"+id, ent.FoodUpdate{
		Name:     "Shoyu Ramen",
		Price:    9,
		Quantity: 8,
	}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res ent.UpdateResult
	decode(t, body, &res)
	assert.EqualValues(t, 1, res.MatchedCount)
	assert.EqualValues(t, 1, res.ModifiedCount)

	f, err := e.store.FindFood(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Shoyu Ramen", f.Name)
	assert.Equal(t, 8.0, f.Quantity)
	assert.EqualValues(t, 4, f.PurchaseCount)
	assert.Equal(t, owner, f.AddedBy)

	resp, body = e.do(t, http.MethodPut, "/update-food/new-id", ent.FoodUpdate{Name: "Tacos"}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &res)
	assert.EqualValues(t, 1, res.UpsertedCount)
}

func TestFoodPurchase(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	events, cancel := e.hub.Subscribe(4)
	defer cancel()

	id := e.addFood(t, ent.Food{Name: "Pizza Margherita", Quantity: 5})

	resp, body := e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": "2",
	}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res ent.InsertResult
	decode(t, body, &res)
	assert.True(t, res.Acknowledged)

	f, err := e.store.FindFood(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.PurchaseCount)

	p := <-events
	assert.Equal(t, res.InsertedID, p.ID)
	assert.Equal(t, owner, p.BuyerEmail)
	assert.Equal(t, "Chef", p.BuyerName)

	resp, body = e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": 6,
	}, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"message":"insufficient inventory"}`, string(body))

	resp, _ = e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": "lots",
	}, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   "missing",
		"quantity": 1,
	}, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"food not found"}`, string(body))

	f, err = e.store.FindFood(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.PurchaseCount)

	ps, err := e.store.FindPurchases(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestFoodPurchaseRequiresSession(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)
	id := e.addFood(t, ent.Food{Name: "Ramen", Quantity: 5})

	resp, _ := e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": 1,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": 1,
	}, "not-a-token")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMyPurchasesAndDelete(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyReserve)
	id := e.addFood(t, ent.Food{Name: "Ramen", Quantity: 5})

	var ids []string
	for i := 0; i < 3; i++ {
		resp, body := e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
			"foodId":     id,
			"quantity":   1,
			"buyerEmail": owner,
		}, e.token)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var res ent.InsertResult
		decode(t, body, &res)
		ids = append(ids, res.InsertedID)
	}

	resp, body := e.do(t, http.MethodGet, "/food-purchase/"+owner, nil, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ps []ent.Purchase
	decode(t, body, &ps)
	assert.Len(t, ps, 3)

	resp, _ = e.do(t, http.MethodGet, "/food-purchase/other@example.com", nil, e.token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = e.do(t, http.MethodDelete, "/my-order/"+ids[1], nil, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var del ent.DeleteResult
	decode(t, body, &del)
	assert.EqualValues(t, 1, del.DeletedCount)

	ps, err := e.store.FindPurchases(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	for _, p := range ps {
		assert.NotEqual(t, ids[1], p.ID)
	}

	f, err := e.store.FindFood(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.Quantity)
	assert.EqualValues(t, 3, f.PurchaseCount)
}

func TestLoginLogout(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	resp, body := e.do(t, http.MethodPost, "/jwt", map[string]string{
		"email": "guest@example.com",
		"name":  "Guest",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.NotEmpty(t, session.Value)

	resp, _ = e.do(t, http.MethodGet, "/food-purchase/guest@example.com", nil, session.Value)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/logout", nil, session.Value)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, _ = e.do(t, http.MethodPost, "/jwt", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPurchaseFeedRequiresUpgrade(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	resp, _ := e.do(t, http.MethodGet, "/ws/purchases", nil, "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestFoodPurchaseKeepsPayload(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)
	id := e.addFood(t, ent.Food{Name: "Pizza Margherita", Quantity: 5})

	resp, body := e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": "1",
		"price":    "12.50",
		"note":     "no onions",
		"table":    7,
	}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	ps, err := e.store.FindPurchases(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, 12.5, ps[0].Price)
	assert.Equal(t, "no onions", ps[0].Extra["note"])
	assert.EqualValues(t, 7, ps[0].Extra["table"])
	assert.NotContains(t, ps[0].Extra, "price")

	resp, body = e.do(t, http.MethodGet, "/food-purchase/"+owner, nil, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []ent.Purchase
	decode(t, body, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "no onions", listed[0].Extra["note"])

	resp, body = e.do(t, http.MethodPost, "/food-purchase", map[string]interface{}{
		"foodId":   id,
		"quantity": 1,
		"price":    "free",
	}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	ps, err = e.store.FindPurchases(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Zero(t, ps[0].Price)
	assert.Empty(t, ps[0].Extra)
}

func TestCORSWildcard(t *testing.T) {
	st := memstore.New()
	hub := feed.NewHub()
	issuer := auth.NewIssuer([]byte("test-secret"), time.Hour, false)

	var srv *Server
	require.NotPanics(t, func() {
		srv = New(Config{CORSOrigins: "*"}, st, purchase.NewService(st, purchase.PolicyCheck, hub), issuer, hub)
	})

	req := httptest.NewRequest(http.MethodGet, "/all-foods", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestCORSCredentials(t *testing.T) {
	e := newTestEnv(t, purchase.PolicyCheck)

	req := httptest.NewRequest(http.MethodGet, "/all-foods", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
