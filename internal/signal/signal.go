package signal

import (
	"fmt"
	"strings"
	"time"
)

// Action is the instruction carried by a signal.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
)

// Signal is the canonical form of an inbound trading signal. Immutable once
// normalized; optional fields are nil when the payload omitted them.
type Signal struct {
	Action     Action    `json:"action"`
	Instrument string    `json:"instrument"`
	Price      *float64  `json:"price,omitempty"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	StopPips   *float64  `json:"sl_pips,omitempty"`
	TargetPips *float64  `json:"tp_pips,omitempty"`
	Quantity   *float64  `json:"quantity,omitempty"`
	Strategy   string    `json:"strategy"`
	ReceivedAt time.Time `json:"received_at"`
}

// ValidationError reports a malformed or incomplete signal payload. It is
// terminal: signals failing validation never reach the risk logic.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid signal: " + e.Reason
}

// Normalize maps an arbitrary inbound payload into a canonical Signal.
// Recognized key aliases: sl/stop_loss, tp/take_profit.
func Normalize(payload map[string]any) (Signal, error) {
	rawAction, ok := stringField(payload, "action")
	if !ok || rawAction == "" {
		return Signal{}, &ValidationError{Reason: "missing required field: action"}
	}
	action := Action(strings.ToLower(strings.TrimSpace(rawAction)))
	switch action {
	case ActionBuy, ActionSell, ActionClose:
	default:
		return Signal{}, &ValidationError{Reason: fmt.Sprintf("unknown action: %s", rawAction)}
	}

	rawInstrument, ok := stringField(payload, "instrument")
	if !ok || rawInstrument == "" {
		return Signal{}, &ValidationError{Reason: "missing required field: instrument"}
	}

	strategy, _ := stringField(payload, "strategy")
	if strategy == "" {
		strategy = "unknown"
	}

	return Signal{
		Action:     action,
		Instrument: NormalizeSymbol(rawInstrument),
		Price:      floatField(payload, "price"),
		StopLoss:   floatField(payload, "sl", "stop_loss"),
		TakeProfit: floatField(payload, "tp", "take_profit"),
		StopPips:   floatField(payload, "sl_pips"),
		TargetPips: floatField(payload, "tp_pips"),
		Quantity:   floatField(payload, "quantity"),
		Strategy:   strategy,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// NormalizeSymbol converts the symbol formats seen in the wild into the
// canonical XXX_YYY form: EUR/USD -> EUR_USD, eurusd -> EUR_USD. Idempotent.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ReplaceAll(symbol, "/", "_"))
	if !strings.Contains(symbol, "_") && len(symbol) == 6 {
		symbol = symbol[:3] + "_" + symbol[3:]
	}
	return strings.ToUpper(symbol)
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// floatField returns the first present numeric value among the given keys.
// JSON decoding hands numbers over as float64; integers from manual callers
// are accepted too.
func floatField(payload map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return &n
		case int:
			f := float64(n)
			return &f
		case int64:
			f := float64(n)
			return &f
		}
	}
	return nil
}
