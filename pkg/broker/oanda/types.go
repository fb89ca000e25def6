package oanda

// Quote is the current pricing snapshot for one instrument.
type Quote struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Spread float64 `json:"spread"`
}

// OrderRef identifies a placed order at the broker. ID comes from the fill
// transaction when the order filled immediately, otherwise from the create
// transaction.
type OrderRef struct {
	ID     string `json:"id"`
	Filled bool   `json:"filled"`
}

// Position summarizes one open position as reported by the broker.
type Position struct {
	Instrument string  `json:"instrument"`
	LongUnits  float64 `json:"long_units"`
	ShortUnits float64 `json:"short_units"`
	PL         float64 `json:"pl"`
}

// Trade is one open trade as reported by the broker.
type Trade struct {
	ID           string  `json:"id"`
	Instrument   string  `json:"instrument"`
	Units        float64 `json:"units"`
	Price        float64 `json:"price"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}
