package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablecore/crypto"
	nativecommon "stablecore/native/common"
	"stablecore/native/stable"
	"stablecore/observability/metrics"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the stable engine over HTTP. Collateral assets are addressed
// by their configured symbol.
type Server struct {
	engine *stable.Engine
	assets map[string]crypto.Address
	log    *slog.Logger
}

func NewServer(engine *stable.Engine, assets map[string]crypto.Address, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	normalized := make(map[string]crypto.Address, len(assets))
	for symbol, addr := range assets {
		normalized[strings.ToUpper(strings.TrimSpace(symbol))] = addr
	}
	return &Server{engine: engine, assets: normalized, log: log}
}

// Handler builds the router with all engine routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/collateral/deposit", s.depositCollateral)
		v1.Post("/collateral/redeem", s.redeemCollateral)
		v1.Post("/collateral/redeem-for-dsc", s.redeemCollateralForDsc)
		v1.Post("/collateral/deposit-and-mint", s.depositCollateralAndMint)
		v1.Post("/debt/mint", s.mintDsc)
		v1.Post("/debt/burn", s.burnDsc)
		v1.Post("/liquidate", s.liquidate)
		v1.Get("/position/{address}", s.accountInformation)
		v1.Get("/health/{address}", s.accountHealth)
		v1.Get("/collateral/{address}/{asset}", s.collateralBalance)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		metrics.Stable().ObserveRequestDuration(routePattern(r), elapsed.Seconds())
		s.log.Info("rpc request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type depositRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type depositAndMintRequest struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	MintAmount       string `json:"mintAmount"`
}

type redeemForDscRequest struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Debtor      string `json:"debtor"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Address      string `json:"address"`
	HealthFactor string `json:"healthFactor"`
}

type positionResponse struct {
	Address            string            `json:"address"`
	DebtMinted         string            `json:"debtMinted"`
	CollateralValueUsd string            `json:"collateralValueUsd"`
	HealthFactor       string            `json:"healthFactor"`
	CollateralBySymbol map[string]string `json:"collateral"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) depositCollateral(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, asset, err := s.resolveUserAsset(req.User, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "deposit_collateral", req.Asset, func() error {
		return s.engine.DepositCollateral(user, asset, amount)
	})
}

func (s *Server) redeemCollateral(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, asset, err := s.resolveUserAsset(req.User, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "redeem_collateral", req.Asset, func() error {
		return s.engine.RedeemCollateral(user, asset, amount)
	})
}

func (s *Server) mintDsc(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := crypto.DecodeAddress(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid user address: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "mint_dsc", "", func() error {
		return s.engine.MintDsc(user, amount)
	})
}

func (s *Server) burnDsc(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := crypto.DecodeAddress(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid user address: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "burn_dsc", "", func() error {
		return s.engine.BurnDsc(user, amount)
	})
}

func (s *Server) depositCollateralAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, asset, err := s.resolveUserAsset(req.User, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collateralAmount, err := parseAmount(req.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mintAmount, err := parseAmount(req.MintAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "deposit_and_mint", req.Asset, func() error {
		return s.engine.DepositCollateralAndMintDsc(user, asset, collateralAmount, mintAmount)
	})
}

func (s *Server) redeemCollateralForDsc(w http.ResponseWriter, r *http.Request) {
	var req redeemForDscRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, asset, err := s.resolveUserAsset(req.User, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collateralAmount, err := parseAmount(req.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debtAmount, err := parseAmount(req.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "redeem_for_dsc", req.Asset, func() error {
		return s.engine.RedeemCollateralForDsc(user, asset, collateralAmount, debtAmount)
	})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	liquidator, err := crypto.DecodeAddress(req.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid liquidator address: %w", err))
		return
	}
	debtor, asset, err := s.resolveUserAsset(req.Debtor, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debtToCover, err := parseAmount(req.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.run(w, "liquidate", req.Asset, func() error {
		if err := s.engine.Liquidate(liquidator, debtor, asset, debtToCover); err != nil {
			return err
		}
		metrics.Stable().IncLiquidation()
		return nil
	})
}

func (s *Server) accountHealth(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	hf, err := s.engine.AccountHealthFactor(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Address: addr.String(), HealthFactor: hf.String()})
}

func (s *Server) accountInformation(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	debt, collateralValue, err := s.engine.AccountInformation(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	hf, err := s.engine.AccountHealthFactor(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	balances := make(map[string]string, len(s.assets))
	for symbol, asset := range s.assets {
		amount, balErr := s.engine.CollateralBalanceOf(addr, asset)
		if balErr != nil {
			writeEngineError(w, balErr)
			return
		}
		balances[symbol] = amount.String()
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Address:            addr.String(),
		DebtMinted:         debt.String(),
		CollateralValueUsd: collateralValue.String(),
		HealthFactor:       hf.String(),
		CollateralBySymbol: balances,
	})
}

func (s *Server) collateralBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "asset")))
	asset, ok := s.assets[symbol]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown collateral asset %q", symbol))
		return
	}
	amount, err := s.engine.CollateralBalanceOf(addr, asset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.String(), Asset: symbol, Amount: amount.String()})
}

// run executes an engine operation, records the outcome metrics, and writes
// the HTTP response. The asset label is used when an oracle read fails; pass
// an empty string for operations that touch every configured feed.
func (s *Server) run(w http.ResponseWriter, operation, asset string, fn func() error) {
	if err := fn(); err != nil {
		metrics.Stable().ObserveOperation(operation, "error")
		if errors.Is(err, stable.ErrHealthFactorBroken) {
			metrics.Stable().IncHealthRejection()
		}
		if errors.Is(err, stable.ErrStalePrice) || errors.Is(err, stable.ErrOracleInvalidPrice) {
			metrics.Stable().IncOracleFailure(asset)
		}
		writeEngineError(w, err)
		return
	}
	metrics.Stable().ObserveOperation(operation, "ok")
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) resolveUserAsset(user, assetSymbol string) (crypto.Address, crypto.Address, error) {
	addr, err := crypto.DecodeAddress(user)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("invalid user address: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(assetSymbol))
	asset, ok := s.assets[symbol]
	if !ok {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("unknown collateral asset %q", symbol)
	}
	return addr, asset, nil
}

func decodeRequest(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return amount, nil
}

// writeEngineError maps engine sentinel errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, stable.ErrInvalidAmount),
		errors.Is(err, stable.ErrAssetNotAllowed),
		errors.Is(err, stable.ErrDebtUnderflow):
		status = http.StatusBadRequest
	case errors.Is(err, stable.ErrHealthFactorBroken),
		errors.Is(err, stable.ErrHealthFactorOK),
		errors.Is(err, stable.ErrHealthFactorNotImproved),
		errors.Is(err, stable.ErrInsufficientCollateral),
		errors.Is(err, stable.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrReentrantCall):
		status = http.StatusConflict
	case errors.Is(err, stable.ErrStalePrice),
		errors.Is(err, stable.ErrOracleInvalidPrice):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
