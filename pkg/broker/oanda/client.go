package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client wraps REST access to the OANDA v20 API for a single account.
type Client struct {
	AccountID  string
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client; environment selects the practice or live
// host.
func NewClient(accountID, token, environment string) *Client {
	base := "https://api-fxpractice.oanda.com"
	if environment == "live" {
		base = "https://api-fxtrade.oanda.com"
	}
	return &Client{
		AccountID:  accountID,
		Token:      token,
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var payload struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
			RejectReason string `json:"rejectReason"`
		}
		_ = json.NewDecoder(res.Body).Decode(&payload)
		code := payload.ErrorCode
		if code == "" {
			code = payload.RejectReason
		}
		return newAPIError(res.StatusCode, code, payload.ErrorMessage)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// GetQuote fetches the current bid/ask for an instrument.
func (c *Client) GetQuote(ctx context.Context, instrument string) (Quote, error) {
	params := url.Values{}
	params.Set("instruments", instrument)
	path := fmt.Sprintf("/v3/accounts/%s/pricing?%s", c.AccountID, params.Encode())

	var resp struct {
		Prices []struct {
			Bids []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
		} `json:"prices"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return Quote{}, fmt.Errorf("get quote %s: %w", instrument, err)
	}
	if len(resp.Prices) == 0 || len(resp.Prices[0].Bids) == 0 || len(resp.Prices[0].Asks) == 0 {
		return Quote{}, fmt.Errorf("get quote %s: empty pricing response", instrument)
	}

	bid := toFloat(resp.Prices[0].Bids[0].Price)
	ask := toFloat(resp.Prices[0].Asks[0].Price)
	return Quote{Bid: bid, Ask: ask, Spread: ask - bid}, nil
}

// GetBalance fetches the current account balance.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	path := fmt.Sprintf("/v3/accounts/%s/summary", c.AccountID)

	var resp struct {
		Account struct {
			Balance string `json:"balance"`
		} `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return toFloat(resp.Account.Balance), nil
}

// GetOpenPositions fetches all open positions.
func (c *Client) GetOpenPositions(ctx context.Context) ([]Position, error) {
	path := fmt.Sprintf("/v3/accounts/%s/openPositions", c.AccountID)

	var resp struct {
		Positions []struct {
			Instrument string `json:"instrument"`
			PL         string `json:"pl"`
			Long       struct {
				Units string `json:"units"`
			} `json:"long"`
			Short struct {
				Units string `json:"units"`
			} `json:"short"`
		} `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get open positions: %w", err)
	}

	out := make([]Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, Position{
			Instrument: p.Instrument,
			LongUnits:  toFloat(p.Long.Units),
			ShortUnits: toFloat(p.Short.Units),
			PL:         toFloat(p.PL),
		})
	}
	return out, nil
}

// GetOpenPositionCount returns the number of positions with nonzero units.
func (c *Client) GetOpenPositionCount(ctx context.Context) (int, error) {
	positions, err := c.GetOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range positions {
		if p.LongUnits != 0 || p.ShortUnits != 0 {
			count++
		}
	}
	return count, nil
}

// SubmitMarketOrder places a market order. Units are signed (negative for
// sell). Zero stopLoss/takeProfit means no attached exit order.
func (c *Client) SubmitMarketOrder(ctx context.Context, instrument string, units int, stopLoss, takeProfit float64) (OrderRef, error) {
	order := map[string]any{
		"type":       "MARKET",
		"instrument": instrument,
		"units":      strconv.Itoa(units),
	}
	if stopLoss != 0 {
		order["stopLossOnFill"] = map[string]string{"price": formatPrice(stopLoss)}
	}
	if takeProfit != 0 {
		order["takeProfitOnFill"] = map[string]string{"price": formatPrice(takeProfit)}
	}

	path := fmt.Sprintf("/v3/accounts/%s/orders", c.AccountID)
	var resp struct {
		OrderFillTransaction *struct {
			ID string `json:"id"`
		} `json:"orderFillTransaction"`
		OrderCreateTransaction *struct {
			ID string `json:"id"`
		} `json:"orderCreateTransaction"`
	}
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"order": order}, &resp); err != nil {
		return OrderRef{}, fmt.Errorf("submit market order %s %d: %w", instrument, units, err)
	}

	ref := OrderRef{}
	if resp.OrderFillTransaction != nil {
		ref.ID = resp.OrderFillTransaction.ID
		ref.Filled = true
	} else if resp.OrderCreateTransaction != nil {
		ref.ID = resp.OrderCreateTransaction.ID
	}
	log.Printf("[oanda] market order placed: %s %d units (ref=%s)", instrument, units, ref.ID)
	return ref, nil
}

// ClosePosition closes the whole position for an instrument. The long side
// is tried first and the short side on reject, matching the account having
// at most one direction open per instrument.
func (c *Client) ClosePosition(ctx context.Context, instrument string) error {
	path := fmt.Sprintf("/v3/accounts/%s/positions/%s/close", c.AccountID, instrument)

	longErr := c.do(ctx, http.MethodPut, path, map[string]string{"longUnits": "ALL"}, nil)
	if longErr == nil {
		log.Printf("[oanda] position closed: %s (long)", instrument)
		return nil
	}
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"shortUnits": "ALL"}, nil); err != nil {
		return fmt.Errorf("close position %s: %w", instrument, err)
	}
	log.Printf("[oanda] position closed: %s (short)", instrument)
	return nil
}

// GetOpenTrades fetches all open trades.
func (c *Client) GetOpenTrades(ctx context.Context) ([]Trade, error) {
	path := fmt.Sprintf("/v3/accounts/%s/openTrades", c.AccountID)

	var resp struct {
		Trades []struct {
			ID           string `json:"id"`
			Instrument   string `json:"instrument"`
			CurrentUnits string `json:"currentUnits"`
			Price        string `json:"price"`
			UnrealizedPL string `json:"unrealizedPL"`
		} `json:"trades"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get open trades: %w", err)
	}

	out := make([]Trade, 0, len(resp.Trades))
	for _, tr := range resp.Trades {
		out = append(out, Trade{
			ID:           tr.ID,
			Instrument:   tr.Instrument,
			Units:        toFloat(tr.CurrentUnits),
			Price:        toFloat(tr.Price),
			UnrealizedPL: toFloat(tr.UnrealizedPL),
		})
	}
	return out, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
