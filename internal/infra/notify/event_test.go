package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core"
)

func TestEventCarriesChangeReferences(t *testing.T) {
	store := core.NewStore()
	var got []core.Transition
	store.Subscribe(func(tr core.Transition) { got = append(got, tr) })

	_, err := store.DispatchAll(context.Background(),
		core.AddProduct{Product: core.Product{ID: "p1", Name: "Widget", CurrentStock: 1}},
		core.CreateSalesOrder{
			Order: core.SalesOrder{ID: "o1", Status: core.OrderPending, Items: []core.OrderItem{{ID: "i1", ProductID: "p1", Quantity: 3}}},
		},
	)
	require.NoError(t, err)
	require.Len(t, got, 2)

	payload, err := Encode(got[1])
	require.NoError(t, err)
	ev, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), ev.Sequence)
	assert.Equal(t, core.KindCreateSalesOrder, ev.Command)
	assert.Equal(t, core.StatusApplied, ev.Status)
	require.NotEmpty(t, ev.Changes)
	assert.Equal(t, ChangeRef{Entity: core.EntitySalesOrder, Action: core.ActionCreate, ID: "o1"}, ev.Changes[0])

	var sawProduct bool
	for _, c := range ev.Changes {
		if c.Entity == core.EntityProduct {
			sawProduct = c.ID == "p1" && c.Action == core.ActionUpdate
		}
	}
	assert.True(t, sawProduct)
	require.NotEmpty(t, ev.Violations, "stock went negative")
	assert.Equal(t, core.RuleNegativeStock, ev.Violations[0].Rule)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}
