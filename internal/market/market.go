// Package market loads historical quote files into per-timestamp frames
// and implements the platform's symbol grammar: OCC <-> platform option
// symbol conversion, chain keys, and combo/underlying symbol routing.
// Grounded on the teacher's gocsv-based candle ingestion
// (cmd/import_ticks/main.go, eventmodels.CsvCandleDTO).
package market

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
)

// Row is one quote line of a historical data file, keyed by ts_recv and
// an OCC-style option symbol, per spec §6.
type Row struct {
	TsRecv          string  `csv:"ts_recv"`
	Symbol          string  `csv:"symbol"`
	BidPx           float64 `csv:"bid_px"`
	AskPx           float64 `csv:"ask_px"`
	BidSz           float64 `csv:"bid_sz"`
	AskSz           float64 `csv:"ask_sz"`
	UnderlyingBidPx float64 `csv:"underlying_bid_px"`
	UnderlyingAskPx float64 `csv:"underlying_ask_px"`
}

// Quote is one option's BBO within a Frame.
type Quote struct {
	Symbol string // OCC symbol, as read from the file
	Bid    float64
	Ask    float64
	BidSz  float64
	AskSz  float64
}

// Frame is every option quote recorded at one ts_recv, plus the
// underlying BBO repeated on every row of that timestamp in the source
// file (each row with a positive value overwrites the previous one, so
// the last such row's value is kept).
type Frame struct {
	Timestamp     time.Time
	UnderlyingBid float64
	UnderlyingAsk float64
	Quotes        []Quote
}

// LoadFrames reads a historical data file and groups its rows by
// ts_recv. When rows arrive in non-decreasing timestamp order (the
// common case for a single exported file) this is a single left-to-
// right pass; out-of-order input falls back to hash-grouping by
// timestamp followed by a sort of the resulting frames.
func LoadFrames(r io.Reader) ([]Frame, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("market: unmarshal historical data: %w", err)
	}
	return GroupRows(rows)
}

// GroupRows groups already-parsed rows into frames ordered by
// timestamp. Non-decreasing input is detected and handled in one pass;
// otherwise rows are grouped by timestamp key and the resulting frames
// are sorted.
func GroupRows(rows []Row) ([]Frame, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	parsed := make([]time.Time, len(rows))
	nonDecreasing := true
	for i, row := range rows {
		t, err := parseTsRecv(row.TsRecv)
		if err != nil {
			return nil, fmt.Errorf("market: row %d: %w", i, err)
		}
		parsed[i] = t
		if i > 0 && t.Before(parsed[i-1]) {
			nonDecreasing = false
		}
	}

	if nonDecreasing {
		return groupSinglePass(rows, parsed), nil
	}
	return groupHashAndSort(rows, parsed), nil
}

func groupSinglePass(rows []Row, ts []time.Time) []Frame {
	var frames []Frame
	var cur *Frame
	for i, row := range rows {
		if cur == nil || !ts[i].Equal(cur.Timestamp) {
			frames = append(frames, Frame{Timestamp: ts[i]})
			cur = &frames[len(frames)-1]
		}
		applyRow(cur, row)
	}
	return frames
}

func groupHashAndSort(rows []Row, ts []time.Time) []Frame {
	byTime := make(map[int64]*Frame)
	for i, row := range rows {
		key := ts[i].UnixNano()
		f, ok := byTime[key]
		if !ok {
			f = &Frame{Timestamp: ts[i]}
			byTime[key] = f
		}
		applyRow(f, row)
	}
	frames := make([]Frame, 0, len(byTime))
	for _, f := range byTime {
		frames = append(frames, *f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Timestamp.Before(frames[j].Timestamp) })
	return frames
}

func applyRow(f *Frame, row Row) {
	if row.UnderlyingBidPx > 0 {
		f.UnderlyingBid = row.UnderlyingBidPx
	}
	if row.UnderlyingAskPx > 0 {
		f.UnderlyingAsk = row.UnderlyingAskPx
	}
	f.Quotes = append(f.Quotes, Quote{
		Symbol: row.Symbol,
		Bid:    row.BidPx,
		Ask:    row.AskPx,
		BidSz:  row.BidSz,
		AskSz:  row.AskSz,
	})
}

func parseTsRecv(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable ts_recv %q", s)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// OCCSymbol is a parsed OCC-style option symbol: ROOT + YYMMDD +
// C|P + 8-digit strike*1000.
type OCCSymbol struct {
	Root   string
	Expiry time.Time
	Type   constant.OptionType
	Strike float64
}

// ParseOCC parses an OCC symbol such as "SPXW260302C02800000". The
// fixed-width tail is the last 15 characters, YYMMDD (6) + C|P (1) +
// strike*1000 (8); the root is everything before it, with padding
// spaces trimmed.
func ParseOCC(symbol string) (OCCSymbol, error) {
	if len(symbol) < 15 {
		return OCCSymbol{}, fmt.Errorf("market: %q too short for an OCC symbol", symbol)
	}
	tail := symbol[len(symbol)-15:]
	root := strings.TrimSpace(symbol[:len(symbol)-15])
	if root == "" {
		return OCCSymbol{}, fmt.Errorf("market: %q has no root", symbol)
	}

	dateStr := tail[0:6]
	typeChar := tail[6:7]
	strikeStr := tail[7:15]

	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return OCCSymbol{}, fmt.Errorf("market: %q bad expiry %q: %w", symbol, dateStr, err)
	}

	var optType constant.OptionType
	switch typeChar {
	case "C":
		optType = constant.Call
	case "P":
		optType = constant.Put
	default:
		return OCCSymbol{}, fmt.Errorf("market: %q bad option type %q", symbol, typeChar)
	}

	strikeMilli, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return OCCSymbol{}, fmt.Errorf("market: %q bad strike %q: %w", symbol, strikeStr, err)
	}

	return OCCSymbol{
		Root:   root,
		Expiry: expiry,
		Type:   optType,
		Strike: float64(strikeMilli) / 1000.0,
	}, nil
}

// PlatformSymbol renders the platform option grammar:
// UNDERLYING-YYYYMMDD-C|P-STRIKE-MULTIPLIER.
func PlatformSymbol(underlying string, expiry time.Time, optType constant.OptionType, strike float64, multiplier float64) string {
	return strings.Join([]string{
		underlying,
		expiry.Format("20060102"),
		optType.String(),
		formatStrike(strike),
		formatStrike(multiplier),
	}, constant.JoinSymbol)
}

// PlatformSymbolFromOCC converts an OCC symbol directly to its platform
// form, per spec §6's symbol-grammar mapping.
func PlatformSymbolFromOCC(occ string, multiplier float64) (string, error) {
	parsed, err := ParseOCC(occ)
	if err != nil {
		return "", err
	}
	return PlatformSymbol(parsed.Root, parsed.Expiry, parsed.Type, parsed.Strike, multiplier), nil
}

func formatStrike(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ChainKey renders the "UNDERLYING_YYYYMMDD" chain key.
func ChainKey(underlying string, expiry time.Time) string {
	return underlying + "_" + expiry.Format("20060102")
}

// ComboSymbol renders the platform combo symbol: "combo_" + signature.
func ComboSymbol(signature string) string {
	return "combo_" + signature
}

// IsComboSymbol reports whether symbol names a combo position.
func IsComboSymbol(symbol string) bool {
	return strings.HasPrefix(symbol, "combo_")
}

// IsUnderlyingSymbol reports whether symbol names an underlying rather
// than an option or combo: either the bare root, or broker-feed
// extended forms "UNDERLYING-USD-STK" / "UNDERLYING-USD-IND", or any
// symbol ending in the broker ".STK" suffix.
func IsUnderlyingSymbol(symbol, underlyingRoot string) bool {
	if symbol == underlyingRoot {
		return true
	}
	if strings.HasSuffix(symbol, ".STK") {
		return true
	}
	parts := strings.Split(symbol, constant.JoinSymbol)
	if len(parts) == 3 && parts[0] == underlyingRoot && parts[1] == "USD" && (parts[2] == "STK" || parts[2] == "IND") {
		return true
	}
	return false
}

// ContractsInFrame converts every OCC-keyed quote in frame into a
// platform option contract, deduplicated by platform symbol. A caller
// registers the result with a portfolio (AddOption) before the first
// ApplyFrame of a run; later frames introducing strikes/expiries not
// yet seen must be registered the same way before being applied. A
// non-parseable OCC symbol is a spec §7 "Data" error: logged at WARNING
// and skipped rather than returned as a hard error.
func ContractsInFrame(frame Frame, underlyingRoot string, multiplier float64) ([]object.ContractData, []object.LogData, error) {
	seen := make(map[string]bool)
	var contracts []object.ContractData
	var logs []object.LogData
	for _, q := range frame.Quotes {
		parsed, err := ParseOCC(q.Symbol)
		if err != nil {
			logs = append(logs, object.LogData{
				BaseData: object.BaseData{GatewayName: "Market"},
				Msg:      fmt.Sprintf("non-parseable OCC symbol %q, skipped: %v", q.Symbol, err),
				Level:    object.LogWarn,
				Time:     frame.Timestamp,
			})
			continue
		}
		platformSymbol := PlatformSymbol(underlyingRoot, parsed.Expiry, parsed.Type, parsed.Strike, multiplier)
		if seen[platformSymbol] {
			continue
		}
		seen[platformSymbol] = true

		strike := parsed.Strike
		optType := parsed.Type
		expiry := parsed.Expiry
		contracts = append(contracts, object.ContractData{
			Symbol:           platformSymbol,
			Size:             multiplier,
			Product:          constant.Option,
			OptionStrike:     &strike,
			OptionType:       &optType,
			OptionExpiry:     &expiry,
			OptionUnderlying: underlyingRoot,
			OptionIndex:      formatStrike(strike),
		})
	}
	return contracts, logs, nil
}

// BuildSnapshot converts a Frame into the positional PortfolioSnapshot a
// portfolio's ApplyFrame expects, aligning each quote against
// applyOrder (the platform symbols in a portfolio's fixed apply order,
// per spec §4.2). A symbol present in applyOrder but missing from the
// frame is left at zero bid/ask, which ApplyFrame's per-option IV/Greeks
// guard then skips. A non-parseable OCC symbol in the frame is a spec
// §7 "Data" error: logged at WARNING and skipped.
func BuildSnapshot(portfolioName string, applyOrder []string, frame Frame, underlyingRoot string, multiplier float64) (object.PortfolioSnapshot, []object.LogData) {
	var logs []object.LogData
	byPlatformSymbol := make(map[string]Quote, len(frame.Quotes))
	for _, q := range frame.Quotes {
		parsed, err := ParseOCC(q.Symbol)
		if err != nil {
			logs = append(logs, object.LogData{
				BaseData: object.BaseData{GatewayName: "Market"},
				Msg:      fmt.Sprintf("non-parseable OCC symbol %q, skipped: %v", q.Symbol, err),
				Level:    object.LogWarn,
				Time:     frame.Timestamp,
			})
			continue
		}
		platformSymbol := PlatformSymbol(underlyingRoot, parsed.Expiry, parsed.Type, parsed.Strike, multiplier)
		byPlatformSymbol[platformSymbol] = q
	}

	snapshot := object.PortfolioSnapshot{
		PortfolioName:  portfolioName,
		DateTime:       frame.Timestamp,
		UnderlyingBid:  frame.UnderlyingBid,
		UnderlyingAsk:  frame.UnderlyingAsk,
		UnderlyingLast: 0.5 * (frame.UnderlyingBid + frame.UnderlyingAsk),
		Bid:            make([]float64, len(applyOrder)),
		Ask:            make([]float64, len(applyOrder)),
		Last:           make([]float64, len(applyOrder)),
	}
	for i, symbol := range applyOrder {
		q, ok := byPlatformSymbol[symbol]
		if !ok {
			continue
		}
		if q.Bid <= 0 && q.Ask <= 0 {
			logs = append(logs, object.LogData{
				BaseData: object.BaseData{GatewayName: "Market"},
				Msg:      fmt.Sprintf("missing BBO for %s, skipped", symbol),
				Level:    object.LogWarn,
				Time:     frame.Timestamp,
			})
			continue
		}
		snapshot.Bid[i] = q.Bid
		snapshot.Ask[i] = q.Ask
		snapshot.Last[i] = 0.5 * (q.Bid + q.Ask)
	}
	return snapshot, logs
}
