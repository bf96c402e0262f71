package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/catalog"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestIngestResolvesConnectedKinds(t *testing.T) {
	rec := catalog.Record{
		ID:            "A",
		Name:          "Mineralwasser",
		Price:         10,
		CurrentStock:  intPtr(5),
		StockQuantity: intPtr(99),
		Category:      catalog.Category{Name: "Getränke"},
		ConnectedProducts: []catalog.ConnectedRecord{
			{ID: "P", Name: "Pfand 0,25", Price: 0.25, StockQuantity: intPtr(1000), Category: catalog.Category{Name: "pfand"}},
			{ID: "K", Name: "Kiste", Price: 1.5, CurrentStock: intPtr(0), Category: catalog.Category{Name: "Zubehör"}},
		},
	}

	p := catalog.Ingest(rec, "")
	require.Equal(t, 5, p.Stock)
	require.Equal(t, "Getränke", p.Category)
	require.Len(t, p.Connected, 2)
	require.Equal(t, catalog.KindDeposit, p.Connected[0].Kind)
	require.True(t, p.Connected[0].IsDeposit())
	require.Equal(t, intPtr(1000), p.Connected[0].Stock)
	require.Equal(t, catalog.KindBundle, p.Connected[1].Kind)
	require.Equal(t, intPtr(0), p.Connected[1].Stock)
	require.False(t, p.Connected[1].Available())

	custom := catalog.Ingest(rec, "Zubehör")
	require.Equal(t, catalog.KindBundle, custom.Connected[0].Kind)
	require.Equal(t, catalog.KindDeposit, custom.Connected[1].Kind)
}

func TestIngestConnectedWithoutStockIsAvailable(t *testing.T) {
	var rec catalog.Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "A", "name": "Opener", "price": 4.5, "currentStock": 3,
		"category": {"name": "Haushalt"},
		"connectedProducts": [
			{"id": "X", "name": "Kapsel", "price": 1, "category": {"name": "Zubehoer"}},
			{"id": "P", "name": "Pfand", "price": 0.25, "category": {"name": "Pfand"}}
		]
	}`), &rec))

	p := catalog.Ingest(rec, "")
	require.Len(t, p.Connected, 2)
	require.Nil(t, p.Connected[0].Stock)
	require.True(t, p.Connected[0].Available())
	require.Equal(t, catalog.KindDeposit, p.Connected[1].Kind)
	require.True(t, p.Connected[1].Available())
}

func TestIngestDiscountFields(t *testing.T) {
	p := catalog.Ingest(catalog.Record{
		ID:                 "B",
		Price:              100,
		HasDiscount:        true,
		OriginalPrice:      floatPtr(100),
		DiscountedPrice:    floatPtr(80),
		DiscountPercentage: floatPtr(20),
	}, "Pfand")
	require.True(t, p.HasDiscount)
	require.Equal(t, 100.0, p.OriginalPrice)
	require.Equal(t, 80.0, p.DiscountedPrice)
	require.Equal(t, 20.0, p.DiscountPercentage)
}

func TestIngestDropsIncompleteDiscount(t *testing.T) {
	cases := map[string]catalog.Record{
		"no prices":         {ID: "C", Price: 20, HasDiscount: true},
		"no original":       {ID: "C", Price: 20, HasDiscount: true, DiscountedPrice: floatPtr(15)},
		"no discounted":     {ID: "C", Price: 20, HasDiscount: true, OriginalPrice: floatPtr(20)},
		"zero discounted":   {ID: "C", Price: 20, HasDiscount: true, OriginalPrice: floatPtr(20), DiscountedPrice: floatPtr(0)},
		"negative original": {ID: "C", Price: 20, HasDiscount: true, OriginalPrice: floatPtr(-1), DiscountedPrice: floatPtr(5)},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			p := catalog.Ingest(rec, "")
			require.False(t, p.HasDiscount)
			require.False(t, p.ClampDiscount())
			require.Zero(t, p.OriginalPrice)
			require.Zero(t, p.DiscountedPrice)
			require.Equal(t, 20.0, p.Price)
		})
	}
}

func TestClampDiscount(t *testing.T) {
	p := catalog.Product{ID: "B", Price: 100, HasDiscount: true, OriginalPrice: 100, DiscountedPrice: 40, DiscountPercentage: 60}
	require.True(t, p.ClampDiscount())
	require.Equal(t, 50.0, p.DiscountedPrice)
	require.Equal(t, 50.0, p.DiscountPercentage)
	require.False(t, p.ClampDiscount())

	fair := catalog.Product{HasDiscount: true, OriginalPrice: 10, DiscountedPrice: 8, DiscountPercentage: 20}
	require.False(t, fair.ClampDiscount())
	require.Equal(t, 8.0, fair.DiscountedPrice)

	broken := catalog.Product{HasDiscount: true, OriginalPrice: 0, DiscountedPrice: -5}
	require.False(t, broken.ClampDiscount())

	missing := catalog.Product{Price: 20, HasDiscount: true, OriginalPrice: 20}
	require.False(t, missing.ClampDiscount())
	require.Zero(t, missing.DiscountedPrice)

	var nilProduct *catalog.Product
	require.False(t, nilProduct.ClampDiscount())
}

type countingSource struct {
	calls    int
	products map[string]catalog.Product
}

func (s *countingSource) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.calls++
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestServiceCachesProducts(t *testing.T) {
	mr, client := newRedis(t)
	src := &countingSource{products: map[string]catalog.Product{"A": {ID: "A", Name: "Wasser", Price: 10, Stock: 5}}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src, Cache: catalog.NewCache(client, time.Minute), Logger: zerolog.Nop()})
	require.NoError(t, err)
	ctx := context.Background()

	p, err := svc.GetProduct(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "Wasser", p.Name)
	require.True(t, mr.Exists("catalog:product:A"))

	_, err = svc.GetProduct(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	_, err = svc.GetFresh(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)

	mr.FastForward(2 * time.Minute)
	_, err = svc.GetProduct(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 3, src.calls)

	_, err = svc.GetProduct(ctx, "missing")
	require.True(t, errors.Is(err, catalog.ErrNotFound))

	_, err = svc.GetProduct(ctx, "  ")
	require.True(t, errors.Is(err, catalog.ErrInvalidInput))
}

func TestServiceFallsThroughOnCacheFailure(t *testing.T) {
	mr, client := newRedis(t)
	src := &countingSource{products: map[string]catalog.Product{"A": {ID: "A", Stock: 1}}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src, Cache: catalog.NewCache(client, time.Minute), Logger: zerolog.Nop()})
	require.NoError(t, err)

	mr.Close()
	p, err := svc.GetProduct(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, "A", p.ID)
}

func TestNewServiceRequiresSource(t *testing.T) {
	_, err := catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}

func TestProductHandler(t *testing.T) {
	src := &countingSource{products: map[string]catalog.Product{
		"B": {ID: "B", Price: 100, HasDiscount: true, OriginalPrice: 100, DiscountedPrice: 40},
	}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src})
	require.NoError(t, err)
	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	r := chi.NewRouter()
	r.Get("/api/v1/products/{id}", h.Product)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/B", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"discountedPrice":50`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PRODUCT_NOT_FOUND")
}
