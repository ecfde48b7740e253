package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"stablecore/core/token"
	"stablecore/crypto"
	"stablecore/native/stable"
)

type testFixture struct {
	server *Server
	engine *stable.Engine
	user   crypto.Address
	weth   crypto.Address
	ledger *token.Ledger
	owner  crypto.Address
	module crypto.Address
}

func wei(n int64) *big.Int {
	amount := big.NewInt(n)
	return amount.Mul(amount, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func makeAddress(fill byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	module := makeAddress(0x10)
	owner := makeAddress(0x11)
	user := makeAddress(0x20)
	weth := makeAddress(0x30)

	wethLedger := token.NewLedger("Wrapped Ether", "WETH", owner)
	dsc := token.NewLedger("Decentralized Stable Coin", "DSC", module)
	feed := stable.NewStaticFeed(big.NewInt(200_000_000_000), 8) // $2000

	engine, err := stable.NewEngine(module, dsc,
		[]crypto.Address{weth},
		[]stable.CollateralToken{wethLedger},
		[]stable.PriceFeed{feed},
	)
	require.NoError(t, err)
	engine.SetState(stable.NewMemoryState())

	if _, err := wethLedger.Mint(owner, user, wei(100)); err != nil {
		t.Fatalf("fund user: %v", err)
	}
	if err := wethLedger.Approve(user, module, wei(100)); err != nil {
		t.Fatalf("approve module: %v", err)
	}

	return &testFixture{
		server: NewServer(engine, map[string]crypto.Address{"WETH": weth}, nil),
		engine: engine,
		user:   user,
		weth:   weth,
		ledger: wethLedger,
		owner:  owner,
		module: module,
	}
}

func (f *testFixture) post(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDepositCollateralRoute(t *testing.T) {
	f := newTestFixture(t)
	rec := f.post(t, "/v1/collateral/deposit", depositRequest{
		User:   f.user.String(),
		Asset:  "weth",
		Amount: wei(10).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	balance, err := f.engine.CollateralBalanceOf(f.user, f.weth)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(wei(10)))
}

func TestDepositAndMintRoute(t *testing.T) {
	f := newTestFixture(t)
	rec := f.post(t, "/v1/collateral/deposit-and-mint", depositAndMintRequest{
		User:             f.user.String(),
		Asset:            "WETH",
		CollateralAmount: wei(10).String(),
		MintAmount:       wei(100).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	debt, _, err := f.engine.AccountInformation(f.user)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(wei(100)))
}

func TestMintBeyondLimitReturnsUnprocessable(t *testing.T) {
	f := newTestFixture(t)
	rec := f.post(t, "/v1/collateral/deposit", depositRequest{
		User:   f.user.String(),
		Asset:  "WETH",
		Amount: wei(1).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// 1 WETH at $2000 backs at most $1000 of debt.
	rec = f.post(t, "/v1/debt/mint", mintRequest{
		User:   f.user.String(),
		Amount: wei(1500).String(),
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Error, "health factor")
}

func TestUnknownAssetRejected(t *testing.T) {
	f := newTestFixture(t)
	rec := f.post(t, "/v1/collateral/deposit", depositRequest{
		User:   f.user.String(),
		Asset:  "DOGE",
		Amount: wei(1).String(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidPayloadsRejected(t *testing.T) {
	f := newTestFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/debt/mint", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, "empty body")

	rec = f.post(t, "/v1/debt/mint", mintRequest{User: f.user.String(), Amount: "not-a-number"})
	require.Equal(t, http.StatusBadRequest, rec.Code, "bad amount")

	rec = f.post(t, "/v1/debt/mint", mintRequest{User: "nonsense", Amount: wei(1).String()})
	require.Equal(t, http.StatusBadRequest, rec.Code, "bad address")
}

func TestPositionAndHealthRoutes(t *testing.T) {
	f := newTestFixture(t)
	rec := f.post(t, "/v1/collateral/deposit-and-mint", depositAndMintRequest{
		User:             f.user.String(),
		Asset:            "WETH",
		CollateralAmount: wei(10).String(),
		MintAmount:       wei(1000).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.get(t, "/v1/position/"+f.user.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var pos positionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.Equal(t, wei(1000).String(), pos.DebtMinted)
	require.Equal(t, wei(20_000).String(), pos.CollateralValueUsd)
	require.Equal(t, wei(10).String(), pos.CollateralBySymbol["WETH"])
	// $10,000 adjusted collateral against $1,000 debt.
	require.Equal(t, wei(10).String(), pos.HealthFactor)

	rec = f.get(t, "/v1/health/"+f.user.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, wei(10).String(), health.HealthFactor)

	rec = f.get(t, "/v1/collateral/"+f.user.String()+"/WETH")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	require.Equal(t, wei(10).String(), balance.Amount)
}

func TestHealthz(t *testing.T) {
	f := newTestFixture(t)
	rec := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
