package service

import (
	"errors"
	"fmt"
	"time"

	"golang-rotation/internal/dto"
)

// Portfolio invariant violations. These indicate a sequencing bug in the
// engine, not a recoverable market condition.
var (
	ErrPositionExists   = errors.New("position already exists for symbol")
	ErrPositionNotFound = errors.New("no open position for symbol")
	ErrInsufficientCash = errors.New("insufficient cash for purchase")
)

// Position is one open holding, owned exclusively by the Portfolio.
type Position struct {
	Symbol       string
	Shares       float64
	EntryPrice   float64
	EntryDate    time.Time
	HighestPrice float64
	StopPrice    float64 // 0 when no ATR stop is armed
}

// Portfolio tracks cash and open positions for one simulation run. A symbol
// appears at most once; cash never goes negative. Mutation happens only
// through Buy and Sell so those invariants hold by construction.
type Portfolio struct {
	cash      float64
	positions map[string]*Position
	lastDate  time.Time
}

func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

func (p *Portfolio) Cash() float64 {
	return p.cash
}

func (p *Portfolio) OpenPositions() int {
	return len(p.positions)
}

func (p *Portfolio) Position(symbol string) (*Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

func (p *Portfolio) Holds(symbol string) bool {
	_, ok := p.positions[symbol]
	return ok
}

// Buy opens a position, debiting shares*price + fee from cash.
func (p *Portfolio) Buy(symbol string, shares, price, fee float64, date time.Time) error {
	if _, ok := p.positions[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrPositionExists, symbol)
	}
	cost := shares*price + fee
	if cost > p.cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, p.cash)
	}

	p.cash -= cost
	p.positions[symbol] = &Position{
		Symbol:       symbol,
		Shares:       shares,
		EntryPrice:   price,
		EntryDate:    date,
		HighestPrice: price,
	}
	p.lastDate = date
	return nil
}

// Sell closes a position, crediting shares*price - fee to cash, and returns
// the closed position.
func (p *Portfolio) Sell(symbol string, price, fee float64, date time.Time) (*Position, error) {
	pos, ok := p.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	p.cash += pos.Shares*price - fee
	delete(p.positions, symbol)
	p.lastDate = date
	return pos, nil
}

// Equity marks all holdings to the last known price, falling back to the
// entry price for a symbol that has never traded since entry.
func (p *Portfolio) Equity(lastPrices map[string]float64) float64 {
	equity := p.cash
	for symbol, pos := range p.positions {
		price, ok := lastPrices[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		equity += pos.Shares * price
	}
	return equity
}

// Snapshot captures the state needed to resume or display the account
// without replaying history.
func (p *Portfolio) Snapshot(lastDate time.Time) dto.PortfolioSnapshot {
	snapshot := dto.PortfolioSnapshot{
		Cash:     p.cash,
		LastDate: lastDate,
	}
	for _, pos := range p.positions {
		snapshot.Positions = append(snapshot.Positions, dto.PositionSnapshot{
			Symbol:       pos.Symbol,
			Shares:       pos.Shares,
			EntryPrice:   pos.EntryPrice,
			EntryDate:    pos.EntryDate,
			HighestPrice: pos.HighestPrice,
			StopPrice:    pos.StopPrice,
		})
	}
	return snapshot
}
