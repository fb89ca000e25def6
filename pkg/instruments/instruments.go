package instruments

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPipSize is returned for unknown symbols so that pip math on
// unlisted instruments keeps working instead of erroring out.
const DefaultPipSize = 0.0001

const (
	defaultMinSize = 1
	defaultMaxSize = 10000000
)

// AssetClass groups instruments by market type.
type AssetClass string

const (
	ClassForex   AssetClass = "forex"
	ClassFutures AssetClass = "futures"
)

// Instrument describes the trading metadata of one symbol.
type Instrument struct {
	Symbol      string     `json:"symbol"`
	Class       AssetClass `json:"class"`
	PipSize     float64    `json:"pip_size"`
	MinSize     int        `json:"min_size"`
	MaxSize     int        `json:"max_size"`
	Description string     `json:"description"`
}

// Gate carries the per-instrument trade admission settings. Instruments
// without an overlay entry stay disabled for trading; pip math still works
// for them.
type Gate struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MaxSpread     float64 `yaml:"max_spread" json:"max_spread"`
	MinRiskReward float64 `yaml:"min_risk_reward_ratio" json:"min_risk_reward_ratio"`
}

// Directory is the static symbol lookup table. It is built once at startup
// and read-only afterwards, so no locking is needed.
type Directory struct {
	instruments map[string]Instrument
	gates       map[string]Gate
}

type overlayEntry struct {
	Enabled       bool     `yaml:"enabled"`
	MaxSpread     float64  `yaml:"max_spread"`
	MinRiskReward float64  `yaml:"min_risk_reward_ratio"`
	PipSize       *float64 `yaml:"pip_size"`
	MinTradeSize  *int     `yaml:"min_trade_size"`
	MaxTradeSize  *int     `yaml:"max_trade_size"`
}

var forexPairs = map[string]struct {
	pip  float64
	desc string
}{
	"EUR_USD": {0.0001, "Euro / US Dollar"},
	"GBP_USD": {0.0001, "British Pound / US Dollar"},
	"USD_JPY": {0.01, "US Dollar / Japanese Yen"},
	"USD_CHF": {0.0001, "US Dollar / Swiss Franc"},
	"AUD_USD": {0.0001, "Australian Dollar / US Dollar"},
	"USD_CAD": {0.0001, "US Dollar / Canadian Dollar"},
	"NZD_USD": {0.0001, "New Zealand Dollar / US Dollar"},
	"EUR_GBP": {0.0001, "Euro / British Pound"},
	"EUR_JPY": {0.01, "Euro / Japanese Yen"},
	"GBP_JPY": {0.01, "British Pound / Japanese Yen"},
}

var futuresContracts = map[string]struct {
	pip  float64
	desc string
}{
	"ES":  {12.5, "E-mini S&P 500 Futures"},
	"NQ":  {5.0, "E-mini NASDAQ-100 Futures"},
	"YM":  {5.0, "E-mini Dow Futures"},
	"RTY": {5.0, "E-mini Russell 2000 Futures"},
	"CL":  {10.0, "Crude Oil Futures"},
	"GC":  {10.0, "Gold Futures"},
	"SI":  {50.0, "Silver Futures"},
	"6E":  {12.5, "Euro FX Futures"},
	"6B":  {6.25, "British Pound Futures"},
	"6J":  {12.5, "Japanese Yen Futures"},
}

// NewDirectory builds the directory from the built-in tables.
func NewDirectory() *Directory {
	d := &Directory{
		instruments: make(map[string]Instrument),
		gates:       make(map[string]Gate),
	}
	for sym, meta := range forexPairs {
		d.instruments[sym] = Instrument{
			Symbol:      sym,
			Class:       ClassForex,
			PipSize:     meta.pip,
			MinSize:     defaultMinSize,
			MaxSize:     defaultMaxSize,
			Description: meta.desc,
		}
	}
	for sym, meta := range futuresContracts {
		d.instruments[sym] = Instrument{
			Symbol:      sym,
			Class:       ClassFutures,
			PipSize:     meta.pip,
			MinSize:     defaultMinSize,
			MaxSize:     defaultMaxSize,
			Description: meta.desc,
		}
	}
	log.Printf("[instruments] loaded %d built-in instruments", len(d.instruments))
	return d
}

// LoadOverlay merges the per-instrument YAML overlay at path into the
// directory. Must be called before the directory is shared.
func (d *Directory) LoadOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read instruments overlay: %w", err)
	}
	var entries map[string]overlayEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse instruments overlay: %w", err)
	}

	for sym, e := range entries {
		sym = strings.ToUpper(sym)
		inst, ok := d.instruments[sym]
		if !ok {
			inst = Instrument{
				Symbol:  sym,
				Class:   ClassForex,
				PipSize: DefaultPipSize,
				MinSize: defaultMinSize,
				MaxSize: defaultMaxSize,
			}
		}
		if e.PipSize != nil {
			inst.PipSize = *e.PipSize
		}
		if e.MinTradeSize != nil {
			inst.MinSize = *e.MinTradeSize
		}
		if e.MaxTradeSize != nil {
			inst.MaxSize = *e.MaxTradeSize
		}
		d.instruments[sym] = inst
		d.gates[sym] = Gate{
			Enabled:       e.Enabled,
			MaxSpread:     e.MaxSpread,
			MinRiskReward: e.MinRiskReward,
		}
	}
	log.Printf("[instruments] overlay applied from %s (%d entries)", path, len(entries))
	return nil
}

// EnableAll opens the trade gate for every known instrument. Intended for
// tests and dry runs where no overlay file is configured.
func (d *Directory) EnableAll() {
	for sym := range d.instruments {
		g := d.gates[sym]
		g.Enabled = true
		d.gates[sym] = g
	}
}

// Lookup returns the instrument for a symbol.
func (d *Directory) Lookup(symbol string) (Instrument, bool) {
	inst, ok := d.instruments[symbol]
	return inst, ok
}

// Gate returns the trade gate for a symbol. Unknown symbols get a closed
// gate.
func (d *Directory) Gate(symbol string) Gate {
	return d.gates[symbol]
}

// PipSize returns the configured pip size, or DefaultPipSize for unknown
// symbols.
func (d *Directory) PipSize(symbol string) float64 {
	if inst, ok := d.instruments[symbol]; ok {
		return inst.PipSize
	}
	return DefaultPipSize
}

// PipsFromPrice converts a price difference into pips.
func (d *Directory) PipsFromPrice(symbol string, priceDiff float64) float64 {
	return math.Abs(priceDiff) / d.PipSize(symbol)
}

// PriceFromPips converts a pip distance into a price difference.
func (d *Directory) PriceFromPips(symbol string, pips float64) float64 {
	return pips * d.PipSize(symbol)
}

// Symbols returns all known symbols, sorted.
func (d *Directory) Symbols() []string {
	out := make([]string, 0, len(d.instruments))
	for sym := range d.instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// List returns all instruments, sorted by symbol.
func (d *Directory) List() []Instrument {
	out := make([]Instrument, 0, len(d.instruments))
	for _, sym := range d.Symbols() {
		out = append(out, d.instruments[sym])
	}
	return out
}
