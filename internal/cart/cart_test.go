package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartTotalRoundsToCents(t *testing.T) {
	c := Cart{Items: []Item{
		{ID: "kombucha-ginger", Name: "Ginger Kombucha", UnitPrice: 4.99, Quantity: 3},
		{ID: "matcha-latte", Name: "Matcha Latte", UnitPrice: 5.555, Quantity: 1},
	}}

	// 4.99 -> 499 cents, 5.555 rounds to 556 cents.
	assert.Equal(t, 20.53, c.Total())
	assert.Equal(t, 4, c.Count())
}

func TestUnitPriceCents(t *testing.T) {
	assert.Equal(t, int64(499), Item{UnitPrice: 4.99}.UnitPriceCents())
	assert.Equal(t, int64(1000), Item{UnitPrice: 9.995}.UnitPriceCents())
	// Classic float trap: 0.1+0.2 style sums must still land on the cent.
	assert.Equal(t, int64(29), Item{UnitPrice: 0.1 + 0.19}.UnitPriceCents())
}

func TestPartitionPreservesOrder(t *testing.T) {
	c := Cart{Items: []Item{
		{ID: "a", Name: "A", UnitPrice: 1, Quantity: 1, IsSubscription: true},
		{ID: "b", Name: "B", UnitPrice: 1, Quantity: 1},
		{ID: "c-sub", Name: "C (Subscribe)", UnitPrice: 1, Quantity: 1, IsSubscription: true},
	}}

	subs, oneTime := c.Partition()
	require.Len(t, subs, 2)
	require.Len(t, oneTime, 1)
	assert.Equal(t, "a", subs[0].ID)
	assert.Equal(t, "c-sub", subs[1].ID)
	assert.Equal(t, "b", oneTime[0].ID)
}

func TestAddMergesAndUpdateQuantityRemovesAtZero(t *testing.T) {
	var c Cart
	c.Add(Item{ID: "a", Name: "A", UnitPrice: 2, Quantity: 1})
	c.Add(Item{ID: "a", Name: "A", UnitPrice: 2, Quantity: 2})
	c.Add(Item{ID: "a-sub", Name: "A (Subscribe)", UnitPrice: 1.8, Quantity: 1, IsSubscription: true})

	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)

	c.UpdateQuantity("a", 5)
	assert.Equal(t, 5, c.Items[0].Quantity)

	c.UpdateQuantity("a-sub", 0)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "a", c.Items[0].ID)

	c.Remove("a")
	assert.True(t, c.IsEmpty())
}

func TestValidate(t *testing.T) {
	valid := Item{ID: "a", Name: "A", UnitPrice: 2.5, Quantity: 1}

	tests := []struct {
		name    string
		cart    Cart
		wantErr bool
	}{
		{"valid", Cart{Items: []Item{valid}}, false},
		{"empty", Cart{}, true},
		{"missing id", Cart{Items: []Item{{Name: "A", UnitPrice: 1, Quantity: 1}}}, true},
		{"zero quantity", Cart{Items: []Item{{ID: "a", Name: "A", UnitPrice: 1}}}, true},
		{"negative price", Cart{Items: []Item{{ID: "a", Name: "A", UnitPrice: -1, Quantity: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cart.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
