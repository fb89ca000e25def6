package risk

// Limits defines the risk gates applied before any order reaches the
// market. Immutable after load.
type Limits struct {
	// Fraction of balance put at risk by a single trade.
	RiskPerTrade float64 `json:"risk_per_trade"`
	// Hard cap on concurrently open positions.
	MaxOpenPositions int `json:"max_open_positions"`
	// Ceiling on one trade's risk as a fraction of balance.
	MaxTotalRisk float64 `json:"max_total_risk"`
	// Loss budgets as fractions of balance.
	DailyLossLimit  float64 `json:"daily_loss_limit"`
	WeeklyLossLimit float64 `json:"weekly_loss_limit"`
	// When true, a breached loss budget flips trading off until manually
	// re-enabled.
	AutoDisableOnBreach bool `json:"auto_disable_on_breach"`
}

// DefaultLimits returns the stock risk configuration.
func DefaultLimits() Limits {
	return Limits{
		RiskPerTrade:        0.02,
		MaxOpenPositions:    5,
		MaxTotalRisk:        0.06,
		DailyLossLimit:      0.05,
		WeeklyLossLimit:     0.10,
		AutoDisableOnBreach: true,
	}
}

// Decision is the outcome of a risk or trade-validity check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true, Reason: "OK"}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Status is the risk snapshot exposed to the dashboard.
type Status struct {
	TradingEnabled        bool    `json:"trading_enabled"`
	DailyPnL              float64 `json:"daily_pnl"`
	WeeklyPnL             float64 `json:"weekly_pnl"`
	DailyLossPercent      float64 `json:"daily_loss_percent"`
	WeeklyLossPercent     float64 `json:"weekly_loss_percent"`
	DailyLimitRemaining   float64 `json:"daily_limit_remaining"`
	WeeklyLimitRemaining  float64 `json:"weekly_limit_remaining"`
	DailyLimit            float64 `json:"daily_limit"`
	WeeklyLimit           float64 `json:"weekly_limit"`
	MaxOpenPositions      int     `json:"max_open_positions"`
	RiskPerTrade          float64 `json:"risk_per_trade"`
	MaxTotalRisk          float64 `json:"max_total_risk"`
	AutoDisableOnBreach   bool    `json:"auto_disable_on_breach"`
}
