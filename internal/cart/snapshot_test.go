package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshcart-backend/pkg/db/models"
)

func TestNormalizeCoercesMalformedValues(t *testing.T) {
	id := uuid.New()
	lines := []CartLine{
		{ProductID: id.String(), ProductName: " Apples ", UnitPrice: json.RawMessage(`"10.00"`), Quantity: json.RawMessage(`3`)},
		{ProductID: id.String(), ProductName: "Bad price", UnitPrice: json.RawMessage(`"abc"`), Quantity: json.RawMessage(`"2"`)},
		{ProductID: id.String(), ProductName: "Negative", UnitPrice: json.RawMessage(`-4`), Quantity: json.RawMessage(`0`)},
		{ProductID: "not-a-uuid", ProductName: "Ghost", UnitPrice: json.RawMessage(`9.99`), Quantity: json.RawMessage(`5`)},
		{ProductID: id.String(), ProductName: "Missing"},
	}

	snap := Normalize(lines)
	got := snap.Lines()
	require.Len(t, got, 5, "no line may be dropped")

	require.Equal(t, "Apples", got[0].ProductName)
	require.Equal(t, int64(1000), got[0].UnitPriceCents)
	require.Equal(t, 3, got[0].Quantity)

	require.Equal(t, int64(0), got[1].UnitPriceCents)
	require.Equal(t, 2, got[1].Quantity)

	require.Equal(t, int64(0), got[2].UnitPriceCents)
	require.Equal(t, 1, got[2].Quantity)

	require.True(t, got[3].IsZeroEffect())
	require.Equal(t, int64(0), got[3].TotalCents())

	require.Equal(t, int64(0), got[4].UnitPriceCents)
	require.Equal(t, 1, got[4].Quantity)

	require.Equal(t, int64(3000), snap.SubtotalCents())
	require.Equal(t, []uuid.UUID{id}, snap.ProductIDs())
}

func TestSnapshotIsImmutable(t *testing.T) {
	source := []Line{{ProductID: uuid.New(), UnitPriceCents: 100, Quantity: 1}}
	snap := NewSnapshot(source)
	source[0].UnitPriceCents = 999

	lines := snap.Lines()
	lines[0].Quantity = 50

	again := snap.Lines()
	require.Equal(t, int64(100), again[0].UnitPriceCents)
	require.Equal(t, 1, again[0].Quantity)
}

func TestSnapshotJSONKeepsLineOrder(t *testing.T) {
	snap := NewSnapshot([]Line{
		{ProductID: uuid.New(), ProductName: "b", UnitPriceCents: 1, Quantity: 1},
		{ProductID: uuid.New(), ProductName: "a", UnitPriceCents: 2, Quantity: 2},
	})
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, snap.Lines(), decoded.Lines())
}

type fakeCatalog struct {
	products map[uuid.UUID]models.Product
	err      error
}

func (f fakeCatalog) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[uuid.UUID]models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestFreezeRepricesFromCatalog(t *testing.T) {
	milk := uuid.New()
	gone := uuid.New()
	catalog := fakeCatalog{products: map[uuid.UUID]models.Product{
		milk: {ID: milk, Name: "Milk 1L", PriceCents: 310},
	}}

	snap, err := Freeze(context.Background(), []CartLine{
		{ProductID: milk.String(), ProductName: "Milk", UnitPrice: json.RawMessage(`1.00`), Quantity: json.RawMessage(`2`)},
		{ProductID: gone.String(), ProductName: "Archived", UnitPrice: json.RawMessage(`5.00`), Quantity: json.RawMessage(`1`)},
	}, catalog)
	require.NoError(t, err)

	lines := snap.Lines()
	require.Equal(t, int64(310), lines[0].UnitPriceCents, "stale session price must be replaced")
	require.Equal(t, "Milk 1L", lines[0].ProductName)
	require.Equal(t, int64(0), lines[1].UnitPriceCents)
	require.Equal(t, int64(620), snap.SubtotalCents())
}

func TestFreezePropagatesCatalogErrors(t *testing.T) {
	_, err := Freeze(context.Background(), []CartLine{{ProductID: uuid.NewString()}}, fakeCatalog{err: errors.New("db down")})
	require.Error(t, err)
}

func TestSnapshotOfUsesFixedQuantity(t *testing.T) {
	products := []models.Product{
		{ID: uuid.New(), Name: "Eggs", PriceCents: 450},
		{ID: uuid.New(), Name: "Rice", PriceCents: 1200},
	}
	snap := SnapshotOf(products, 2)
	require.Equal(t, 2, snap.Len())
	require.Equal(t, int64(2*450+2*1200), snap.SubtotalCents())
}
