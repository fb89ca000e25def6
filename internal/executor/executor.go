package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fxgate/internal/audit"
	"fxgate/internal/events"
	"fxgate/internal/risk"
	"fxgate/internal/signal"
	"fxgate/pkg/broker/oanda"
	"fxgate/pkg/instruments"
)

// Broker is the brokerage collaborator consumed by the orchestrator. All
// calls are blocking network I/O.
type Broker interface {
	GetQuote(ctx context.Context, instrument string) (oanda.Quote, error)
	GetBalance(ctx context.Context) (float64, error)
	GetOpenPositions(ctx context.Context) ([]oanda.Position, error)
	GetOpenPositionCount(ctx context.Context) (int, error)
	SubmitMarketOrder(ctx context.Context, instrument string, units int, stopLoss, takeProfit float64) (oanda.OrderRef, error)
	ClosePosition(ctx context.Context, instrument string) error
	GetOpenTrades(ctx context.Context) ([]oanda.Trade, error)
}

// Orchestrator turns inbound signals into sized, risk-gated broker orders.
// It holds no per-signal state of its own; the ledger is the only shared
// mutable resource and serializes its own access.
type Orchestrator struct {
	broker Broker
	ledger *risk.Ledger
	dir    *instruments.Directory
	bus    *events.Bus
	audit  *audit.Log

	defaultStopPips   float64
	defaultTargetPips float64
}

// New wires an orchestrator. Pip defaults of 0 fall back to 20/40.
func New(broker Broker, ledger *risk.Ledger, dir *instruments.Directory, bus *events.Bus, auditLog *audit.Log, defaultStopPips, defaultTargetPips float64) *Orchestrator {
	if defaultStopPips <= 0 {
		defaultStopPips = 20
	}
	if defaultTargetPips <= 0 {
		defaultTargetPips = 40
	}
	return &Orchestrator{
		broker:            broker,
		ledger:            ledger,
		dir:               dir,
		bus:               bus,
		audit:             auditLog,
		defaultStopPips:   defaultStopPips,
		defaultTargetPips: defaultTargetPips,
	}
}

// Execute runs one signal to a terminal result. No fault escapes: panics
// and unexpected errors come back as a failed result.
func (o *Orchestrator) Execute(ctx context.Context, payload map[string]any) (result Result) {
	var sig signal.Signal
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[executor] panic recovered: %v", r)
			result = failed(sig, fmt.Sprintf("internal error: %v", r))
		}
		o.record(sig, result)
	}()

	sig, err := signal.Normalize(payload)
	if err != nil {
		log.Printf("[executor] signal rejected at validation: %v", err)
		return failed(sig, err.Error())
	}

	log.Printf("[executor] executing signal: %s %s (strategy=%s)", sig.Action, sig.Instrument, sig.Strategy)
	o.publish(events.EventSignalReceived, sig)

	switch sig.Action {
	case signal.ActionBuy:
		return o.openPosition(ctx, sig, 1)
	case signal.ActionSell:
		return o.openPosition(ctx, sig, -1)
	default:
		return o.closePosition(ctx, sig)
	}
}

// openPosition runs the buy/sell pipeline. direction is +1 for buy, -1 for
// sell.
func (o *Orchestrator) openPosition(ctx context.Context, sig signal.Signal, direction int) Result {
	quote, err := o.broker.GetQuote(ctx, sig.Instrument)
	if err != nil {
		return o.brokerFailure(sig, "fetch quote", err)
	}

	entryPrice := quote.Ask
	if direction < 0 {
		entryPrice = quote.Bid
	}

	stopLoss, takeProfit := o.resolveExits(sig, entryPrice, direction)

	if dec := o.ledger.ValidateTrade(sig.Instrument, entryPrice, &stopLoss, &takeProfit, quote.Spread); !dec.Allowed {
		log.Printf("[executor] trade validation failed: %s", dec.Reason)
		o.publish(events.EventOrderRejected, dec.Reason)
		return rejected(sig, dec.Reason)
	}

	balance, err := o.broker.GetBalance(ctx)
	if err != nil {
		return o.brokerFailure(sig, "fetch balance", err)
	}

	inst := o.instrumentFor(sig.Instrument)
	size := risk.SizeByDistance(balance, o.ledger.Limits().RiskPerTrade, entryPrice, stopLoss, inst)

	openCount, err := o.broker.GetOpenPositionCount(ctx)
	if err != nil {
		return o.brokerFailure(sig, "fetch open positions", err)
	}

	proposedRisk := abs(entryPrice-stopLoss) * float64(size)
	if dec := o.ledger.CanOpen(openCount, balance, proposedRisk); !dec.Allowed {
		log.Printf("[executor] cannot open position: %s", dec.Reason)
		o.publish(events.EventOrderRejected, dec.Reason)
		o.publish(events.EventRiskAlert, dec.Reason)
		return rejected(sig, dec.Reason)
	}

	units := size * direction
	log.Printf("[executor] placing order: %s %d units @ %.5f SL %.5f TP %.5f (risk %.2f)",
		sig.Instrument, units, entryPrice, stopLoss, takeProfit, proposedRisk)

	ref, err := o.broker.SubmitMarketOrder(ctx, sig.Instrument, units, stopLoss, takeProfit)
	if err != nil {
		// Never retried: the order may already be at the broker, and a
		// duplicate submission is worse than a missed fill.
		o.publish(events.EventExecutionFailed, err.Error())
		return o.brokerFailure(sig, "submit order", err)
	}

	result := Result{
		Status:     StatusSuccess,
		Action:     sig.Action,
		Instrument: sig.Instrument,
		Units:      units,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		BrokerRef:  ref.ID,
	}
	o.publish(events.EventOrderPlaced, result)
	return result
}

// closePosition closes the whole position for the instrument. Closing never
// needs risk gating.
func (o *Orchestrator) closePosition(ctx context.Context, sig signal.Signal) Result {
	log.Printf("[executor] closing position: %s", sig.Instrument)

	if err := o.broker.ClosePosition(ctx, sig.Instrument); err != nil {
		o.publish(events.EventExecutionFailed, err.Error())
		return o.brokerFailure(sig, "close position", err)
	}

	result := Result{
		Status:     StatusSuccess,
		Action:     sig.Action,
		Instrument: sig.Instrument,
	}
	o.publish(events.EventPositionClosed, result)
	return result
}

// resolveExits returns the stop/target prices, deriving them from pip
// offsets relative to entry when the signal carries no absolute prices.
// Direction-aware: a buy stops below and targets above entry, a sell the
// opposite.
func (o *Orchestrator) resolveExits(sig signal.Signal, entryPrice float64, direction int) (stopLoss, takeProfit float64) {
	if sig.StopLoss != nil {
		stopLoss = *sig.StopLoss
	} else {
		pips := o.defaultStopPips
		if sig.StopPips != nil {
			pips = *sig.StopPips
		}
		offset := o.dir.PriceFromPips(sig.Instrument, pips)
		stopLoss = entryPrice - float64(direction)*offset
	}

	if sig.TakeProfit != nil {
		takeProfit = *sig.TakeProfit
	} else {
		pips := o.defaultTargetPips
		if sig.TargetPips != nil {
			pips = *sig.TargetPips
		}
		offset := o.dir.PriceFromPips(sig.Instrument, pips)
		takeProfit = entryPrice + float64(direction)*offset
	}
	return stopLoss, takeProfit
}

// instrumentFor returns the directory entry, or permissive defaults for
// symbols outside the directory (matching the sizing behavior for unlisted
// instruments).
func (o *Orchestrator) instrumentFor(symbol string) instruments.Instrument {
	if inst, ok := o.dir.Lookup(symbol); ok {
		return inst
	}
	return instruments.Instrument{
		Symbol:  symbol,
		PipSize: instruments.DefaultPipSize,
		MinSize: 1,
		MaxSize: 10000000,
	}
}

// brokerFailure maps a broker error onto a failed result with a human
// reason for the classified cause.
func (o *Orchestrator) brokerFailure(sig signal.Signal, step string, err error) Result {
	log.Printf("[executor] %s failed: %v", step, err)

	var reason string
	switch oanda.CauseOf(err) {
	case oanda.CauseMarketHalted:
		reason = "market is currently closed or halted"
	case oanda.CauseUnauthorized:
		reason = "insufficient authorization to trade"
	case oanda.CauseMarginCloseout:
		reason = "order would trigger margin closeout"
	default:
		reason = err.Error()
	}
	return failed(sig, reason)
}

// RecordTradeOutcome feeds a realized P/L from a broker-side trade close
// into the risk ledger.
func (o *Orchestrator) RecordTradeOutcome(pnl float64) {
	o.ledger.RecordOutcome(pnl)
	o.publish(events.EventTradeClosed, pnl)
}

// RiskStatus reports the ledger snapshot against the live account balance.
func (o *Orchestrator) RiskStatus(ctx context.Context) (risk.Status, error) {
	balance, err := o.broker.GetBalance(ctx)
	if err != nil {
		return risk.Status{}, fmt.Errorf("fetch balance: %w", err)
	}
	return o.ledger.Status(balance), nil
}

// EnableTrading flips the trading switch on.
func (o *Orchestrator) EnableTrading() {
	o.ledger.Enable()
	o.publish(events.EventRiskAlert, "trading enabled")
}

// DisableTrading flips the trading switch off.
func (o *Orchestrator) DisableTrading() {
	o.ledger.Disable()
	o.publish(events.EventRiskAlert, "trading disabled")
}

// OpenPositions passes through the broker's open positions.
func (o *Orchestrator) OpenPositions(ctx context.Context) ([]oanda.Position, error) {
	return o.broker.GetOpenPositions(ctx)
}

// OpenTrades passes through the broker's open trades.
func (o *Orchestrator) OpenTrades(ctx context.Context) ([]oanda.Trade, error) {
	return o.broker.GetOpenTrades(ctx)
}

func (o *Orchestrator) publish(e events.Event, payload any) {
	if o.bus != nil {
		o.bus.Publish(e, payload)
	}
}

func (o *Orchestrator) record(sig signal.Signal, res Result) {
	if o.audit == nil {
		return
	}
	at := sig.ReceivedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	o.audit.Record(audit.Entry{
		ID:         uuid.NewString(),
		At:         at,
		Action:     string(sig.Action),
		Instrument: sig.Instrument,
		Strategy:   sig.Strategy,
		Status:     string(res.Status),
		Reason:     res.Reason,
		Units:      res.Units,
		EntryPrice: res.EntryPrice,
		StopLoss:   res.StopLoss,
		TakeProfit: res.TakeProfit,
		BrokerRef:  res.BrokerRef,
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
