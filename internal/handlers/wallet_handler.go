package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/httputil"
	"github.com/astroveda/consult/internal/middlewares"
)

type WalletAPI interface {
	Balance(ctx context.Context, userID int64) (*dtos.WalletBalanceResponse, error)
	AddFunds(ctx context.Context, userID int64, amount float64) (*dtos.AddFundsResponse, error)
}

type WalletHandler struct {
	wallet WalletAPI
}

func NewWalletHandler(wallet WalletAPI) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// GetBalance handles GET /api/wallet/balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	balance, err := h.wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// AddFunds handles POST /api/wallet/add-funds?amount=
func (h *WalletHandler) AddFunds(c *gin.Context) {
	userID, ok := middlewares.CurrentUserID(c)
	if !ok {
		httputil.WriteError(c, apperrors.Unauthorized("Not authenticated"))
		return
	}

	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil {
		httputil.WriteError(c, apperrors.InvalidInput("amount", "must be a number"))
		return
	}

	resp, err := h.wallet.AddFunds(c.Request.Context(), userID, amount)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
