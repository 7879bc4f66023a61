package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/exchangerate"
	"storefront/internal/sanitize"
)

// RateService is the exchange rate surface the API exposes.
type RateService interface {
	Current() exchangerate.Snapshot
	EffectiveRate() float64
	Refresh(ctx context.Context) exchangerate.RefreshOutcome
	SetManual(ctx context.Context, rate *float64, use bool) (exchangerate.Snapshot, error)
}

type ManualRateRequest struct {
	ManualRate    *float64 `json:"manualRate"`
	UseManualRate *bool    `json:"useManualRate" binding:"required"`
}

/*
GET /exchange-rate
- ?usd=<amount> also returns the amount converted at the effective rate
*/
func GetExchangeRate(rates RateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /exchange-rate"
		defer handlePanic(c, route)

		snap := rates.Current()
		body := gin.H{
			"rate":          snap.EffectiveRate,
			"useManualRate": snap.UseManualRate,
			"lastUpdated":   snap.LastUpdated,
		}
		if raw := strings.TrimSpace(c.Query("usd")); raw != "" {
			if !sanitize.IsNumeric(raw) {
				respondWithError(c, http.StatusBadRequest, route, "usd must be a number")
				return
			}
			usd := sanitize.NumericOrZero(raw)
			body["usd"] = usd
			body["local"] = exchangerate.Convert(usd, snap.EffectiveRate).InexactFloat64()
		}
		c.JSON(http.StatusOK, body)
	}
}

func AdminGetExchangeRate(rates RateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/exchange-rate"
		defer handlePanic(c, route)
		c.JSON(http.StatusOK, rates.Current())
	}
}

func SetManualExchangeRate(rates RateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/exchange-rate/manual"
		defer handlePanic(c, route)

		var req ManualRateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		snap, err := rates.SetManual(c.Request.Context(), req.ManualRate, *req.UseManualRate)
		if errors.Is(err, exchangerate.ErrInvalidRate) {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// RefreshExchangeRate fetches now. Failures keep the cached rate and come back
// as a warning, not an error status.
func RefreshExchangeRate(rates RateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/exchange-rate/refresh"
		defer handlePanic(c, route)

		outcome := rates.Refresh(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"outcome": outcome,
			"current": rates.Current(),
		})
	}
}
