package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Numeric handles Polymarket numbers that may arrive as strings or numbers.
type Numeric float64

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || strings.EqualFold(string(data), "null") {
		*n = 0
		return nil
	}

	// Handle quoted numbers.
	if data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Numeric(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Numeric(f)
	return nil
}

func (n Numeric) Float64() float64 {
	return float64(n)
}

func (n Numeric) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// DataTrade represents a trade from the data API.
type DataTrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Type            string  `json:"type"` // TRADE, REDEEM, SPLIT, MERGE, etc.
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            Numeric `json:"size"`
	UsdcSize        Numeric `json:"usdcSize"`
	Price           Numeric `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Name            string  `json:"name"`
	Pseudonym       string  `json:"pseudonym"`
	TransactionHash string  `json:"transactionHash"`
}

// GammaMarket represents a market returned by the gamma API.
type GammaMarket struct {
	ID           string  `json:"id"`
	Question     string  `json:"question"`
	ConditionID  string  `json:"conditionId"`
	Slug         string  `json:"slug"`
	Category     string  `json:"category"`
	Volume       Numeric `json:"volumeNum"`
	Liquidity    Numeric `json:"liquidityNum"`
	Closed       *bool   `json:"closed"`
	EndDateISO   string  `json:"endDateIso"`
	ClobTokenIds string  `json:"clobTokenIds"` // Comma-separated token IDs
	Outcomes     string  `json:"outcomes"`     // JSON array as string e.g. "[\"Yes\",\"No\"]"
}

// APIError carries the HTTP status of a failed Polymarket request so
// callers can decide between retrying and failing outright.
type APIError struct {
	StatusCode int
	Body       string
	Endpoint   string
}

func (e *APIError) Error() string {
	return "polymarket api " + e.Endpoint + ": " + strconv.Itoa(e.StatusCode) + " " + e.Body
}

// Transient reports whether the failure is worth retrying:
// rate limits, server errors and gateway timeouts. 4xx responses
// other than 429 indicate a request the exchange will never accept.
func (e *APIError) Transient() bool {
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}
