package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elevenlab/data"
	"elevenlab/store"
	"elevenlab/store/memstore"
)

func TestReadEmbeddedCatalog(t *testing.T) {
	f, err := data.FS.Open("foods.csv")
	require.NoError(t, err)
	defer f.Close()

	fs, err := readFoods(f, "admin@example.com", "Admin")
	require.NoError(t, err)
	require.NotEmpty(t, fs)

	assert.Equal(t, "Pizza Margherita", fs[0].Name)
	assert.Equal(t, 12.5, fs[0].Price)
	assert.Equal(t, 20.0, fs[0].Quantity)
	assert.Equal(t, "Tomato, mozzarella and basil on a thin crust", fs[0].Description)
	assert.Equal(t, "admin@example.com", fs[0].AddedBy)
}

func TestReadFoodsRejectsEmptyName(t *testing.T) {
	_, err := readFoods(strings.NewReader("name,price\n ,3\n"), "", "")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	fs, err := readFoods(strings.NewReader("name,category,price,quantity\nRamen,Japanese,11,4\nTacos,Mexican,8,9\n"), "a@example.com", "")
	require.NoError(t, err)
	require.NoError(t, load(ctx, st, fs))

	all, err := st.FindFoods(ctx, store.FoodFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := st.FindFoods(ctx, store.FoodFilter{AddedBy: "a@example.com", Name: "ram"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 4.0, mine[0].Quantity)
}
