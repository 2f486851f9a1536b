// Package manual is an offline gateway: charges are recorded and approved locally
// and settled outside the system.
package manual

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/payment/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ProviderName = "manual"

type Gateway struct {
	log       *zap.Logger
	genID     *snowflake.Node
	maxAmount decimal.Decimal
}

// New returns a gateway that declines charges above maxAmount. A zero limit disables the check.
func New(log *zap.Logger, genID *snowflake.Node, maxAmount decimal.Decimal) *Gateway {
	return &Gateway{
		log:       log.Named("payment.manual"),
		genID:     genID,
		maxAmount: maxAmount,
	}
}

func (g *Gateway) Provider() string { return ProviderName }

func (g *Gateway) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChargeResult{}, err
	}
	if req.Amount.IsNegative() {
		return domain.ChargeResult{}, domain.ErrInvalidAmount
	}
	if len(strings.TrimSpace(req.Currency)) != 3 {
		return domain.ChargeResult{}, domain.ErrInvalidCurrency
	}

	result := domain.ChargeResult{
		Provider:  ProviderName,
		Reference: "man_" + g.genID.Generate().String(),
		Status:    domain.ChargeStatusSucceeded,
	}
	if g.maxAmount.IsPositive() && req.Amount.GreaterThan(g.maxAmount) {
		result.Status = domain.ChargeStatusDeclined
		result.DeclineReason = "amount_exceeds_limit"
	}

	g.log.Info("manual charge recorded",
		zap.String("subscription_id", req.SubscriptionID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.String("reference", result.Reference),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}
