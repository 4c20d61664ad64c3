package service

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle is the external BTC/USD price feed the collateralization
// monitor and facility state machine consume (spec §4.3: "Inputs: price
// updates (BTC/USD)"). Like the ledger, the engine never implements a price
// feed itself; production is wired to a custodian or market-data provider,
// tests use StaticPriceOracle.
type PriceOracle interface {
	CurrentBTCUSD(ctx context.Context) (decimal.Decimal, error)
}

// StaticPriceOracle returns a fixed price, for tests and for environments
// that peg collateral value administratively rather than to a live feed.
type StaticPriceOracle struct {
	Price decimal.Decimal
}

func NewStaticPriceOracle(price decimal.Decimal) *StaticPriceOracle {
	return &StaticPriceOracle{Price: price}
}

func (o *StaticPriceOracle) CurrentBTCUSD(ctx context.Context) (decimal.Decimal, error) {
	return o.Price, nil
}

var _ PriceOracle = (*StaticPriceOracle)(nil)
