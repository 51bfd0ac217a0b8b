// =============================
// File: internal/server/handlers.go
// =============================
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ektovd/soltrader/internal/engine"
	"github.com/ektovd/soltrader/internal/quote"
)

// SwapService is the engine surface the HTTP shell calls.
type SwapService interface {
	Swap(ctx context.Context, req engine.Request) ([]string, error)
	GetRoute(ctx context.Context, mint string) (*engine.RouteSummary, error)
	GetPool(ctx context.Context, pool string) (*engine.RouteSummary, error)
	TokenAccounts(ctx context.Context, mint *solana.PublicKey) ([]engine.TokenAccountInfo, error)
}

// Handlers holds the endpoint handlers and their dependencies.
type Handlers struct {
	service SwapService
	logger  *zap.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(service SwapService, logger *zap.Logger) *Handlers {
	return &Handlers{service: service, logger: logger.Named("handlers")}
}

type envelope struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func okEnvelope(data interface{}) envelope {
	return envelope{Status: "ok", Data: data}
}

func errorEnvelope(message string) envelope {
	return envelope{Status: "error", Message: message}
}

// swapRequest is the POST /api/swap body. amount and amount_pct are mutually
// exclusive; amount_pct sizes the order as a fraction of the wallet balance.
type swapRequest struct {
	Mint        string   `json:"mint"`
	Direction   string   `json:"direction"`
	Amount      *float64 `json:"amount,omitempty"`
	AmountPct   *float64 `json:"amount_pct,omitempty"`
	SlippageBPS uint64   `json:"slippage_bps,omitempty"`
	Bundle      bool     `json:"bundle,omitempty"`
}

type swapResponse struct {
	Signatures []string `json:"signatures"`
}

// Health reports process liveness.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, okEnvelope(map[string]bool{"alive": true}))
}

// Swap runs one order through the engine.
func (h *Handlers) Swap(c echo.Context) error {
	var req swapRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope("invalid json"))
	}

	if strings.TrimSpace(req.Mint) == "" {
		return c.JSON(http.StatusBadRequest, errorEnvelope("mint is required"))
	}

	var side quote.Side
	switch strings.ToLower(strings.TrimSpace(req.Direction)) {
	case "buy":
		side = quote.Buy
	case "sell":
		side = quote.Sell
	default:
		return c.JSON(http.StatusBadRequest, errorEnvelope("direction must be buy or sell"))
	}

	if req.Amount != nil && req.AmountPct != nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope("amount and amount_pct are mutually exclusive"))
	}
	if req.Amount == nil && req.AmountPct == nil {
		return c.JSON(http.StatusBadRequest, errorEnvelope("amount or amount_pct is required"))
	}

	order := engine.Request{
		Mint:        req.Mint,
		Side:        side,
		SlippageBPS: req.SlippageBPS,
		Bundle:      req.Bundle,
	}
	if req.AmountPct != nil {
		order.Amount = *req.AmountPct
		order.Sizing = quote.PercentOfBalance
	} else {
		order.Amount = *req.Amount
		order.Sizing = quote.ExactQuantity
	}

	sigs, err := h.service.Swap(c.Request().Context(), order)
	if err != nil {
		return h.serviceError(c, err)
	}
	if sigs == nil {
		sigs = []string{}
	}
	return c.JSON(http.StatusOK, okEnvelope(swapResponse{Signatures: sigs}))
}

// Route resolves a mint and returns its market summary.
func (h *Handlers) Route(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if mint == "" {
		return c.JSON(http.StatusBadRequest, errorEnvelope("mint is required"))
	}

	summary, err := h.service.GetRoute(c.Request().Context(), mint)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, okEnvelope(summary))
}

// Pool summarizes one pooled market by its address.
func (h *Handlers) Pool(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, errorEnvelope("pool id is required"))
	}

	summary, err := h.service.GetPool(c.Request().Context(), id)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, okEnvelope(summary))
}

// TokenAccounts lists the wallet's token holdings, optionally narrowed to one
// mint via the path parameter.
func (h *Handlers) TokenAccounts(c echo.Context) error {
	var mint *solana.PublicKey
	if raw := strings.TrimSpace(c.Param("mint")); raw != "" {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorEnvelope("invalid mint"))
		}
		mint = &pk
	}

	accounts, err := h.service.TokenAccounts(c.Request().Context(), mint)
	if err != nil {
		return h.serviceError(c, err)
	}
	return c.JSON(http.StatusOK, okEnvelope(map[string]interface{}{"accounts": accounts}))
}

// serviceError maps engine errors onto status codes: client mistakes get 400,
// everything else 500. The raw error text is logged, not leaked.
func (h *Handlers) serviceError(c echo.Context, err error) error {
	if engine.IsClientError(err) {
		return c.JSON(http.StatusBadRequest, errorEnvelope(err.Error()))
	}
	h.logger.Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorEnvelope("swap engine failure"))
}
