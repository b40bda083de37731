package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom.org/internal/auth"
	"stockroom.org/internal/httpapi"
	"stockroom.org/internal/inventory"
	"stockroom.org/internal/store/memstore"
)

func TestSmokeAgainstInMemoryAPI(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc, err := inventory.New(st, nil)
	require.NoError(t, err)
	_, err = svc.EnsureAdmin(ctx, "ops@example.com", "smoke-password")
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("smoke-secret", "", time.Hour)
	require.NoError(t, err)
	api, err := httpapi.New(httpapi.Deps{Inventory: svc, Tokens: tokens, Store: st}, httpapi.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	c := &smokeClient{base: srv.URL, http: srv.Client()}
	catalog, err := runSmoke(ctx, c, "ops@example.com", "smoke-password")
	require.NoError(t, err)

	admin, err := auth.Directory{Store: st}.Login(ctx, "ops@example.com", "smoke-password")
	require.NoError(t, err)
	stock, err := svc.GetStockBalance(ctx, admin.Principal(), catalog)
	require.NoError(t, err)
	assert.Zero(t, stock, "smoke entries are removed afterwards")
}

func TestSmokeRequiresCredentials(t *testing.T) {
	_, err := runSmoke(context.Background(), &smokeClient{base: "http://127.0.0.1:0"}, "", "")
	require.Error(t, err)
}
