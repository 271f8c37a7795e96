package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"avmcp/internal/alphavantage"
	"avmcp/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

func parseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatHuman, "":
		return FormatHuman, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use human or json)", s)
	}
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *alphavantage.StockQuote:
		return formatQuoteHuman(v), nil
	case *alphavantage.DailyPrices:
		return formatDailyHuman(v), nil
	case *alphavantage.SymbolSearchResult:
		return formatSearchHuman(v), nil
	case *storage.CacheStats:
		return formatCacheStatsHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatQuoteHuman(q *alphavantage.StockQuote) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s  %s  %s (%s)\n", q.Symbol, q.Price, q.Change, q.ChangePercent))
	b.WriteString(strings.Repeat("=", 40) + "\n")
	b.WriteString(fmt.Sprintf("  Open:            %s\n", q.Open))
	b.WriteString(fmt.Sprintf("  High:            %s\n", q.High))
	b.WriteString(fmt.Sprintf("  Low:             %s\n", q.Low))
	b.WriteString(fmt.Sprintf("  Previous close:  %s\n", q.PreviousClose))
	b.WriteString(fmt.Sprintf("  Volume:          %s\n", q.Volume))
	b.WriteString(fmt.Sprintf("  Trading day:     %s\n", q.LatestTradingDay))

	return b.String()
}

func formatDailyHuman(d *alphavantage.DailyPrices) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s daily prices (%d days available)\n", d.Symbol, d.TotalDaysAvailable))
	b.WriteString(strings.Repeat("=", 64) + "\n")
	b.WriteString(fmt.Sprintf("%-12s %10s %10s %10s %10s %12s\n", "Date", "Open", "High", "Low", "Close", "Volume"))

	dates := make([]string, 0, len(d.RecentDays))
	for date := range d.RecentDays {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	for _, date := range dates {
		p := d.RecentDays[date]
		b.WriteString(fmt.Sprintf("%-12s %10s %10s %10s %10s %12s\n", date, p.Open, p.High, p.Low, p.Close, p.Volume))
	}

	return b.String()
}

func formatSearchHuman(r *alphavantage.SymbolSearchResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Search Results for: %s\n", r.Query))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("Found %d matches\n\n", r.Count))

	for i, m := range r.Matches {
		b.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, m.Symbol, m.Name))
		b.WriteString(fmt.Sprintf("   %s, %s, %s\n", m.Type, m.Region, m.Currency))
	}

	return b.String()
}

func formatCacheStatsHuman(s *storage.CacheStats) string {
	var b strings.Builder

	b.WriteString("Response Cache\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	b.WriteString(fmt.Sprintf("  Path:     %s\n", s.Path))
	b.WriteString(fmt.Sprintf("  Entries:  %d (%d expired)\n", s.Entries, s.Expired))
	b.WriteString(fmt.Sprintf("  Size:     %s stored, %s raw\n", formatBytes(s.StoredBytes), formatBytes(s.RawBytes)))
	b.WriteString(fmt.Sprintf("  Hits:     %d\n", s.Hits))

	if len(s.ByFunction) > 0 {
		functions := make([]string, 0, len(s.ByFunction))
		for fn := range s.ByFunction {
			functions = append(functions, fn)
		}
		sort.Strings(functions)

		b.WriteString("  By function:\n")
		for _, fn := range functions {
			b.WriteString(fmt.Sprintf("    %-18s %d\n", fn, s.ByFunction[fn]))
		}
	}

	return b.String()
}

// formatBytes formats byte size in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
