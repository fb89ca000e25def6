package executor

import (
	"fxgate/internal/signal"
)

// Status tags the terminal outcome of a signal.
type Status string

const (
	// StatusSuccess: the order reached the broker and was accepted.
	StatusSuccess Status = "success"
	// StatusRejected: a risk or trade-validity gate refused the trade.
	// Expected behavior, logged as a warning rather than an error.
	StatusRejected Status = "rejected"
	// StatusFailed: validation failure, broker error or internal fault.
	StatusFailed Status = "failed"
)

// Result is the terminal outcome of one signal. Produced once, never
// mutated.
type Result struct {
	Status     Status        `json:"status"`
	Action     signal.Action `json:"action,omitempty"`
	Instrument string        `json:"instrument,omitempty"`
	Units      int           `json:"units,omitempty"`
	EntryPrice float64       `json:"entry_price,omitempty"`
	StopLoss   float64       `json:"stop_loss,omitempty"`
	TakeProfit float64       `json:"take_profit,omitempty"`
	BrokerRef  string        `json:"broker_ref,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

func rejected(sig signal.Signal, reason string) Result {
	return Result{
		Status:     StatusRejected,
		Action:     sig.Action,
		Instrument: sig.Instrument,
		Reason:     reason,
	}
}

func failed(sig signal.Signal, reason string) Result {
	return Result{
		Status:     StatusFailed,
		Action:     sig.Action,
		Instrument: sig.Instrument,
		Reason:     reason,
	}
}
