// Package object holds the base wire/domain structs shared by every engine
// package: contracts, orders, trades, legs, positions, and strategy
// holdings. It mirrors the shape of the teacher's
// backtester-api/models order/trade types, generalized to the full
// multi-leg combo and live-gateway contract this runtime specifies.
package object

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/otrader/engine/internal/constant"
)

// BaseData carries the originating gateway name, present on every
// market-data and order/trade record.
type BaseData struct {
	GatewayName string
}

// LogLevel mirrors the five severities the dispatcher and engines log at.
type LogLevel int

const (
	LogDebug LogLevel = 10
	LogInfo  LogLevel = 20
	LogWarn  LogLevel = 30
	LogError LogLevel = 40
	LogFatal LogLevel = 50
)

// LogData is one emitted log intent; handlers append these rather than
// writing to a sink directly, per spec §4.1's intent-out-parameter design.
type LogData struct {
	BaseData
	Msg   string
	Level LogLevel
	Time  time.Time
}

// ContractData is the immutable descriptor of a tradable instrument.
type ContractData struct {
	BaseData
	Symbol     string
	Exchange   constant.Exchange
	Name       string
	Product    constant.Product
	Size       float64 // multiplier
	PriceTick  float64
	MinVolume  float64
	MaxVolume  *float64
	ConID      int
	TradingClass string

	OptionStrike     *float64
	OptionUnderlying string
	OptionType       *constant.OptionType
	OptionExpiry     *time.Time
	OptionPortfolio  string
	OptionIndex      string // chain index string form of the strike
}

// Leg is one constituent of a combo order/position.
type Leg struct {
	BaseData
	ConID        int
	Exchange     constant.Exchange
	Ratio        int
	Direction    constant.Direction
	Price        *float64
	Symbol       string
	TradingClass string
}

// OrderRequest is a strategy's submit intent.
type OrderRequest struct {
	Symbol       string
	Exchange     constant.Exchange
	Direction    constant.Direction
	Type         constant.OrderType
	Volume       float64
	Price        float64
	Reference    string
	TradingClass string
	IsCombo      bool
	Legs         []Leg
	ComboType    *constant.ComboType
}

// CreateOrderData materializes an OrderData from this request, assigning
// the given orderid and gateway name, status Submitting.
func (r OrderRequest) CreateOrderData(orderID, gatewayName string) OrderData {
	return OrderData{
		BaseData:     BaseData{GatewayName: gatewayName},
		Symbol:       r.Symbol,
		Exchange:     r.Exchange,
		OrderID:      orderID,
		TradingClass: r.TradingClass,
		Type:         r.Type,
		Direction:    r.Direction,
		Price:        r.Price,
		Volume:       r.Volume,
		Status:       constant.Submitting,
		Reference:    r.Reference,
		IsCombo:      r.IsCombo,
		Legs:         r.Legs,
		ComboType:    r.ComboType,
	}
}

// OrderData is the execution engine's view of a live order.
type OrderData struct {
	BaseData
	Symbol       string
	Exchange     constant.Exchange
	OrderID      string
	TradingClass string

	Type      constant.OrderType
	Direction constant.Direction
	Price     float64
	Volume    float64
	Traded    float64
	Status    constant.Status
	DateTime  time.Time
	Reference string

	IsCombo   bool
	Legs      []Leg
	ComboType *constant.ComboType
}

// IsActive reports whether the order can still receive fills/cancels.
func (o OrderData) IsActive() bool {
	return constant.IsActiveStatus(o.Status)
}

// CreateCancelRequest builds the cancel intent for this order.
func (o OrderData) CreateCancelRequest() CancelRequest {
	return CancelRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Exchange: o.Exchange,
		IsCombo:  o.IsCombo,
		Legs:     o.Legs,
	}
}

// CancelRequest is a strategy/engine's cancel intent.
type CancelRequest struct {
	OrderID  string
	Symbol   string
	Exchange constant.Exchange
	IsCombo  bool
	Legs     []Leg
}

// TradeData is one immutable execution record.
type TradeData struct {
	BaseData
	Symbol    string
	Exchange  constant.Exchange
	OrderID   string
	TradeID   string
	Direction constant.Direction
	Price     float64
	Volume    float64
	DateTime  time.Time
}

// NewOrderID generates a fresh order id (teacher convention: google/uuid
// throughout backtester-api/services).
func NewOrderID() string { return uuid.NewString() }

// NewTradeID generates a fresh trade id.
func NewTradeID() string { return uuid.NewString() }

// LegTradeID builds the leg-trade id convention from spec §3:
// "{root}_leg_{i}".
func LegTradeID(root string, legIndex int) string {
	return root + "_leg_" + strconv.Itoa(legIndex)
}

// ---------------------------- Positions ----------------------------

// BasePosition is the common shape shared by underlying, single-leg
// option, and combo positions.
type BasePosition struct {
	Symbol      string
	Quantity    int
	AvgCost     float64
	CostValue   float64
	RealizedPnl float64
	MidPrice    float64
	Delta       float64
	Gamma       float64
	Theta       float64
	Vega        float64
	Multiplier  float64
}

// CurrentValue is quantity * mid_price * multiplier.
func (p BasePosition) CurrentValue() float64 {
	return float64(p.Quantity) * p.MidPrice * p.Multiplier
}

// ClearFields zeroes avg cost/cost value/per-unit Greeks, preserving
// realized_pnl, per spec §3's invariant on zero-quantity positions.
func (p *BasePosition) ClearFields() {
	p.AvgCost = 0
	p.CostValue = 0
	p.MidPrice = 0
	p.Delta = 0
	p.Gamma = 0
	p.Theta = 0
	p.Vega = 0
}

// OptionPositionData is a single-leg option position; multiplier
// defaults to 100 (standard US equity option contract size).
type OptionPositionData struct {
	BasePosition
}

func NewOptionPositionData(symbol string) OptionPositionData {
	return OptionPositionData{BasePosition{Symbol: symbol, Multiplier: 100.0}}
}

// UnderlyingPositionData is the stock-hedge leg; delta defaults to 1.
type UnderlyingPositionData struct {
	BasePosition
}

func NewUnderlyingPositionData() UnderlyingPositionData {
	return UnderlyingPositionData{BasePosition{Symbol: "Underlying", Multiplier: 1.0, Delta: 1.0}}
}

// ComboPositionData aggregates a multi-leg position plus its per-leg
// option positions. Legs is a slice, not a map, matching the original's
// vector<OptionPositionData> and the order legs were first traded in.
type ComboPositionData struct {
	BasePosition
	ComboType constant.ComboType
	Legs      []OptionPositionData
}

func NewComboPositionData(symbol string, comboType constant.ComboType) ComboPositionData {
	return ComboPositionData{
		BasePosition: BasePosition{Symbol: symbol, Multiplier: 100.0},
		ComboType:    comboType,
	}
}

// ClearFields clears the combo's own fields; leg positions are cleared
// independently by the position engine when their own quantity is zero.
func (c *ComboPositionData) ClearFields() {
	c.BasePosition.ClearFields()
}

// PortfolioSummary is the per-strategy rolled-up metric set.
type PortfolioSummary struct {
	TotalCost      float64
	CurrentValue   float64
	UnrealizedPnl  float64
	RealizedPnl    float64
	Pnl            float64
	Delta          float64
	Gamma          float64
	Theta          float64
	Vega           float64
}

// StrategyHolding is one strategy's full position state.
type StrategyHolding struct {
	UnderlyingPosition UnderlyingPositionData
	OptionPositions    map[string]*OptionPositionData
	ComboPositions     map[string]*ComboPositionData
	Summary            PortfolioSummary
}

func NewStrategyHolding() StrategyHolding {
	return StrategyHolding{
		UnderlyingPosition: NewUnderlyingPositionData(),
		OptionPositions:    make(map[string]*OptionPositionData),
		ComboPositions:     make(map[string]*ComboPositionData),
	}
}

// ---------------------------- Market data ----------------------------

// TickData is one raw underlying/instrument quote.
type TickData struct {
	BaseData
	Symbol     string
	Exchange   constant.Exchange
	DateTime   time.Time
	LastPrice  float64
	BidPrice1  float64
	AskPrice1  float64
}

// OptionMarketData is one option's live quote plus computed Greeks,
// used by the live market-data gateway before it is folded into a
// PortfolioSnapshot.
type OptionMarketData struct {
	BaseData
	Symbol    string
	Exchange  constant.Exchange
	DateTime  time.Time
	BidPrice  float64
	AskPrice  float64
	LastPrice float64
	Delta     float64
	Gamma     float64
	Theta     float64
	Vega      float64
	MidIV     float64
}

// ChainMarketData is a per-expiry bundle of option quotes.
type ChainMarketData struct {
	BaseData
	ChainSymbol       string
	DateTime          time.Time
	UnderlyingSymbol  string
	UnderlyingBid     float64
	UnderlyingAsk     float64
	UnderlyingLast    float64
	Options           map[string]OptionMarketData
}

func (c *ChainMarketData) AddOption(o OptionMarketData) {
	if c.Options == nil {
		c.Options = make(map[string]OptionMarketData)
	}
	c.Options[o.Symbol] = o
}

// PortfolioSnapshot is the compact, positional market frame from spec §3:
// parallel vectors aligned against the portfolio's fixed apply order.
type PortfolioSnapshot struct {
	PortfolioName  string
	DateTime       time.Time
	UnderlyingBid  float64
	UnderlyingAsk  float64
	UnderlyingLast float64

	Bid   []float64
	Ask   []float64
	Last  []float64
	Delta []float64 // optional precomputed; nil if producer did not supply
	Gamma []float64
	Theta []float64
	Vega  []float64
	IV    []float64
}
