package alphavantage

import "time"

// StockQuote is a real-time quote from GLOBAL_QUOTE.
type StockQuote struct {
	Symbol           string    `json:"symbol"`
	Price            string    `json:"price"`
	Change           string    `json:"change"`
	ChangePercent    string    `json:"change_percent"`
	Volume           string    `json:"volume"`
	LatestTradingDay string    `json:"latest_trading_day"`
	PreviousClose    string    `json:"previous_close"`
	Open             string    `json:"open"`
	High             string    `json:"high"`
	Low              string    `json:"low"`
	RetrievedAt      time.Time `json:"retrieved_at"`
}

// DailyPrice is one day of TIME_SERIES_DAILY, keyed the way Alpha Vantage keys it.
type DailyPrice struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// DailyPrices holds the most recent days of a daily series.
type DailyPrices struct {
	Symbol             string                `json:"symbol"`
	RecentDays         map[string]DailyPrice `json:"recent_days"`
	TotalDaysAvailable int                   `json:"total_days_available"`
	RetrievedAt        time.Time             `json:"retrieved_at"`
}

// SymbolMatch is one SYMBOL_SEARCH result.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
}

// SymbolSearchResult wraps the matches for a query.
type SymbolSearchResult struct {
	Query       string        `json:"query"`
	Matches     []SymbolMatch `json:"matches"`
	Count       int           `json:"count"`
	RetrievedAt time.Time     `json:"retrieved_at"`
}

// NewSymbolSearchResult builds a result whose Count matches its Matches.
func NewSymbolSearchResult(query string, matches []SymbolMatch, at time.Time) *SymbolSearchResult {
	if matches == nil {
		matches = []SymbolMatch{}
	}
	return &SymbolSearchResult{
		Query:       query,
		Matches:     matches,
		Count:       len(matches),
		RetrievedAt: at.UTC(),
	}
}

// ErrorResponse is the payload returned to tool callers on failure.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Symbol    *string   `json:"symbol"`
	Query     *string   `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSymbolError builds an ErrorResponse for a symbol-based request.
func NewSymbolError(msg, symbol string, at time.Time) *ErrorResponse {
	return &ErrorResponse{Error: msg, Symbol: &symbol, Timestamp: at.UTC()}
}

// NewQueryError builds an ErrorResponse for a search request.
func NewQueryError(msg, query string, at time.Time) *ErrorResponse {
	return &ErrorResponse{Error: msg, Query: &query, Timestamp: at.UTC()}
}

// HealthResponse is returned by the HTTP health check.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}
