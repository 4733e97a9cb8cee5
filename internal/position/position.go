// Package position implements the per-strategy position/holding engine:
// order/trade application, weighted-average cost netting, combo/leg
// bucket routing, and the per-timer metrics rollup. Grounded on the
// original system's core/engine_position.{hpp,cpp}.
package position

import (
	"bytes"
	"encoding/gob"
	"math"
	"strings"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

// GetPortfolioFunc resolves a portfolio by name for the timer rollup.
type GetPortfolioFunc func(portfolioName string) *portfolio.PortfolioData

// orderMeta mirrors the order context captured at process_order time and
// consulted when its trades later arrive.
type orderMeta struct {
	isCombo   bool
	symbol    string
	comboType *constant.ComboType
	legSyms   []string
}

// Engine is the position/holding tracker for every strategy.
type Engine struct {
	holdings  map[string]object.StrategyHolding
	orderMeta map[string]orderMeta
	tradeSeen map[string]struct{}
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{
		holdings:  make(map[string]object.StrategyHolding),
		orderMeta: make(map[string]orderMeta),
		tradeSeen: make(map[string]struct{}),
	}
}

// ProcessTimerEvent recomputes metrics for every strategy whose holding
// key carries an underscore-delimited portfolio name suffix
// ("<strategy>_<portfolio>"), consulting getPortfolio for that name.
// Errors from UpdateMetrics become log lines rather than propagating,
// matching the original's per-strategy try/catch isolation.
func (e *Engine) ProcessTimerEvent(getPortfolio GetPortfolioFunc) []object.LogData {
	if getPortfolio == nil {
		return nil
	}
	var logs []object.LogData
	for holdingKey := range e.holdings {
		pf := getPortfolio(PortfolioNameForStrategy(holdingKey))
		if pf == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logs = append(logs, object.LogData{
						BaseData: object.BaseData{GatewayName: "Position"},
						Msg:      "metrics update error",
						Level:    object.LogError,
					})
				}
			}()
			e.UpdateMetrics(holdingKey, pf)
		}()
	}
	return logs
}

// PortfolioNameForStrategy derives the portfolio a strategy trades from
// its holding key, by the "<strategy>_<portfolio>" naming convention:
// everything after the first underscore. A key with no underscore names
// its own portfolio.
func PortfolioNameForStrategy(strategyName string) string {
	if idx := strings.IndexByte(strategyName, '_'); idx >= 0 && idx+1 < len(strategyName) {
		return strategyName[idx+1:]
	}
	return strategyName
}

// ProcessOrder records the order-meta context later consulted by
// ProcessTrade to route combo-aggregate vs combo-leg vs single-leg
// option vs underlying trades.
func (e *Engine) ProcessOrder(order object.OrderData) {
	meta := orderMeta{isCombo: order.IsCombo, symbol: order.Symbol, comboType: order.ComboType}
	if order.IsCombo {
		for _, leg := range order.Legs {
			meta.legSyms = append(meta.legSyms, leg.Symbol)
		}
	}
	e.orderMeta[order.OrderID] = meta
}

// ProcessTrade is idempotent on TradeID and routes the fill into the
// combo aggregate, a combo leg, the underlying bucket (".STK"-suffixed
// symbols), or a single-leg option bucket, per spec §4.5.
func (e *Engine) ProcessTrade(strategyName string, trade object.TradeData) {
	if _, seen := e.tradeSeen[trade.TradeID]; seen {
		return
	}
	e.tradeSeen[trade.TradeID] = struct{}{}

	e.getCreateStrategyHolding(strategyName)
	holding := e.holdings[strategyName]

	if meta, ok := e.orderMeta[trade.OrderID]; ok && meta.isCombo {
		comboType := constant.ComboCustom
		if meta.comboType != nil {
			comboType = *meta.comboType
		}
		combo := getOrCreateComboPosition(&holding, meta.symbol, comboType, meta.legSyms)
		if trade.Symbol == meta.symbol {
			applyComboPositionChange(combo, trade)
		} else {
			leg := getOrCreateOptionPosition(combo, trade)
			applyPositionChange(&leg.BasePosition, trade)
		}
		e.holdings[strategyName] = holding
		return
	}

	if strings.HasSuffix(trade.Symbol, ".STK") {
		applyUnderlyingTrade(&holding, trade)
		e.holdings[strategyName] = holding
		return
	}

	applySingleLegOptionTrade(&holding, trade)
	e.holdings[strategyName] = holding
}

func (e *Engine) getCreateStrategyHolding(strategyName string) {
	if _, ok := e.holdings[strategyName]; !ok {
		e.holdings[strategyName] = object.NewStrategyHolding()
	}
}

// RemoveStrategyHolding drops strategyName's holding entirely.
func (e *Engine) RemoveStrategyHolding(strategyName string) {
	delete(e.holdings, strategyName)
}

// GetHolding returns the holding and whether it exists.
func (e *Engine) GetHolding(strategyName string) (object.StrategyHolding, bool) {
	h, ok := e.holdings[strategyName]
	return h, ok
}

func applyUnderlyingTrade(holding *object.StrategyHolding, trade object.TradeData) {
	pos := &holding.UnderlyingPosition
	// "Underlying" is the placeholder NewUnderlyingPositionData sets
	// before the first trade names the actual symbol.
	if pos.Symbol == "" || pos.Symbol == "Underlying" {
		pos.Symbol = trade.Symbol
	}
	applyPositionChange(&pos.BasePosition, trade)
}

func applySingleLegOptionTrade(holding *object.StrategyHolding, trade object.TradeData) {
	pos, ok := holding.OptionPositions[trade.Symbol]
	if !ok {
		p := object.NewOptionPositionData(trade.Symbol)
		pos = &p
		holding.OptionPositions[trade.Symbol] = pos
	}
	applyPositionChange(&pos.BasePosition, trade)
}

func getOrCreateComboPosition(holding *object.StrategyHolding, symbol string, comboType constant.ComboType, legSyms []string) *object.ComboPositionData {
	if c, ok := holding.ComboPositions[symbol]; ok {
		return c
	}
	norm := normalizeComboSymbol(symbol)
	for existingSym, c := range holding.ComboPositions {
		if normalizeComboSymbol(existingSym) == norm {
			return c
		}
	}
	combo := object.NewComboPositionData(symbol, comboType)
	for _, sym := range legSyms {
		combo.Legs = append(combo.Legs, object.NewOptionPositionData(sym))
	}
	holding.ComboPositions[symbol] = &combo
	return holding.ComboPositions[symbol]
}

func getOrCreateOptionPosition(combo *object.ComboPositionData, trade object.TradeData) *object.OptionPositionData {
	for i := range combo.Legs {
		if combo.Legs[i].Symbol == trade.Symbol {
			return &combo.Legs[i]
		}
	}
	combo.Legs = append(combo.Legs, object.NewOptionPositionData(trade.Symbol))
	return &combo.Legs[len(combo.Legs)-1]
}

// applyComboPositionChange shifts a combo's own aggregate quantity and
// recomputes its cost_value from the existing avg_cost; avg_cost itself
// is only ever set by the metrics rollup (accumulateComboPosition).
func applyComboPositionChange(pos *object.ComboPositionData, trade object.TradeData) {
	qty := int(math.Abs(trade.Volume))
	signedQty := qty
	if trade.Direction != constant.Long {
		signedQty = -qty
	}
	pos.Quantity += signedQty
	pos.CostValue = roundDigits(pos.AvgCost*math.Abs(float64(pos.Quantity))*pos.Multiplier, 2)
}

// applyPositionChange is the weighted-average-cost netting update shared
// by underlying, single-leg option, and combo-leg positions.
func applyPositionChange(pos *object.BasePosition, trade object.TradeData) {
	qty := int(math.Abs(trade.Volume))
	signedQty := qty
	if trade.Direction != constant.Long {
		signedQty = -qty
	}
	prevQty := pos.Quantity
	multiplier := pos.Multiplier

	sameDirection := prevQty == 0 || (prevQty > 0 && signedQty > 0) || (prevQty < 0 && signedQty < 0)
	if sameDirection {
		totalQty := abs(prevQty) + qty
		if prevQty == 0 {
			pos.AvgCost = roundDigits(trade.Price, 2)
		} else {
			pos.AvgCost = roundDigits((pos.AvgCost*float64(abs(prevQty))+trade.Price*float64(qty))/float64(totalQty), 2)
		}
		pos.Quantity += signedQty
		pos.CostValue = roundDigits(pos.AvgCost*float64(abs(pos.Quantity))*multiplier, 2)
		return
	}

	closeQty := minInt(abs(prevQty), qty)
	var pnl float64
	if prevQty > 0 {
		pnl = (trade.Price - pos.AvgCost) * float64(closeQty)
	} else {
		pnl = (pos.AvgCost - trade.Price) * float64(closeQty)
	}
	pos.RealizedPnl += roundDigits(pnl*multiplier, 2)

	newQty := abs(prevQty) - closeQty
	if newQty == 0 {
		pos.Quantity = 0
		pos.AvgCost = 0
		pos.CostValue = 0
	} else {
		sign := 1
		if prevQty < 0 {
			sign = -1
		}
		pos.Quantity = sign * newQty
		pos.CostValue = roundDigits(pos.AvgCost*float64(abs(pos.Quantity))*multiplier, 2)
	}

	extra := qty - closeQty
	if extra > 0 {
		pos.AvgCost = roundDigits(trade.Price, 2)
		sign := 1
		if signedQty < 0 {
			sign = -1
		}
		pos.Quantity = sign * extra
		pos.CostValue = roundDigits(pos.AvgCost*float64(abs(pos.Quantity))*multiplier, 2)
	}
}

type metricTotals struct {
	cv, tc, rlz, delta, gamma, theta, vega float64
}

func (t *metricTotals) add(o metricTotals) {
	t.cv += o.cv
	t.tc += o.tc
	t.rlz += o.rlz
	t.delta += o.delta
	t.gamma += o.gamma
	t.theta += o.theta
	t.vega += o.vega
}

// accumulateOptionPosition folds an option's live Greeks/mid into pos,
// returning the per-position metric contribution.
func accumulateOptionPosition(pos *object.BasePosition, opt *portfolio.OptionData) metricTotals {
	var delta, gamma, theta, vega, mid float64
	if opt != nil {
		delta, gamma, theta, vega, mid = opt.Delta, opt.Gamma, opt.Theta, opt.Vega, opt.MidPrice
	}
	pos.Delta = roundDigits(delta, 4)
	pos.Gamma = roundDigits(gamma, 4)
	pos.Theta = roundDigits(theta, 4)
	pos.Vega = roundDigits(vega, 4)
	pos.MidPrice = roundDigits(mid, 2)
	qty := float64(pos.Quantity)
	return metricTotals{
		cv:    roundDigits(pos.CurrentValue(), 2),
		tc:    roundDigits(pos.CostValue, 2),
		rlz:   roundDigits(pos.RealizedPnl, 2),
		delta: roundDigits(qty*pos.Delta, 4),
		gamma: roundDigits(qty*pos.Gamma, 4),
		theta: roundDigits(qty*pos.Theta, 4),
		vega:  roundDigits(qty*pos.Vega, 4),
	}
}

// accumulateUnderlyingPosition folds the underlying's theo-delta/mid
// into pos; absent a live snapshot, delta defaults to 1.
func accumulateUnderlyingPosition(pos *object.BasePosition, underlying *portfolio.UnderlyingData) metricTotals {
	delta := 1.0
	var mid float64
	if underlying != nil {
		delta = underlying.TheoDelta
		mid = underlying.MidPrice
	}
	pos.Delta = roundDigits(delta, 4)
	pos.MidPrice = roundDigits(mid, 2)
	qty := float64(pos.Quantity)
	return metricTotals{
		cv:    roundDigits(pos.CurrentValue(), 2),
		tc:    roundDigits(pos.CostValue, 2),
		rlz:   roundDigits(pos.RealizedPnl, 2),
		delta: roundDigits(qty*pos.Delta, 4),
		gamma: roundDigits(qty*pos.Gamma, 4),
		theta: roundDigits(qty*pos.Theta, 4),
		vega:  roundDigits(qty*pos.Vega, 4),
	}
}

// accumulateComboPosition resets the combo's own Greeks/cost/realized,
// then sums every leg's contribution (looked up live from pf.Options),
// and finally recomputes the combo's own mid_price/avg_cost from the
// aggregate current-value/cost-value when its quantity is nonzero.
func accumulateComboPosition(combo *object.ComboPositionData, pf *portfolio.PortfolioData) metricTotals {
	combo.Delta, combo.Gamma, combo.Theta, combo.Vega = 0, 0, 0, 0
	combo.CostValue = 0
	combo.RealizedPnl = 0
	var currentValue float64

	for i := range combo.Legs {
		leg := &combo.Legs[i]
		var inst *portfolio.OptionData
		if pf != nil {
			if o, ok := pf.Options[leg.Symbol]; ok {
				inst = o
			}
		}
		acc := accumulateOptionPosition(&leg.BasePosition, inst)
		currentValue += acc.cv
		combo.CostValue += acc.tc
		combo.RealizedPnl += acc.rlz
		combo.Delta += acc.delta
		combo.Gamma += acc.gamma
		combo.Theta += acc.theta
		combo.Vega += acc.vega
	}

	if combo.Quantity != 0 {
		combo.MidPrice = roundDigits(currentValue/(math.Abs(float64(combo.Quantity))*combo.Multiplier), 2)
		if combo.CostValue > 0 {
			combo.AvgCost = roundDigits(combo.CostValue/(math.Abs(float64(combo.Quantity))*combo.Multiplier), 2)
		}
	}

	return metricTotals{
		cv:    roundDigits(currentValue, 2),
		tc:    roundDigits(combo.CostValue, 2),
		rlz:   roundDigits(combo.RealizedPnl, 2),
		delta: roundDigits(combo.Delta, 4),
		gamma: roundDigits(combo.Gamma, 4),
		theta: roundDigits(combo.Theta, 4),
		vega:  roundDigits(combo.Vega, 4),
	}
}

// normalizeComboSymbol reconciles alternate combo-symbol encodings by
// dropping everything between the first and second '_': "A_B_C" -> "A_C".
func normalizeComboSymbol(symbol string) string {
	i1 := strings.IndexByte(symbol, '_')
	if i1 < 0 {
		return symbol
	}
	i2 := strings.IndexByte(symbol[i1+1:], '_')
	if i2 < 0 {
		return symbol
	}
	i2 += i1 + 1
	return symbol[:i1] + "_" + symbol[i2+1:]
}

// UpdateMetrics rolls up a strategy's full unrealized/realized/Greek
// exposure into its summary, then clears the per-tick fields
// (avg_cost/cost_value/mid_price/Greeks) of every zero-quantity
// position, preserving realized_pnl; open positions keep theirs.
func (e *Engine) UpdateMetrics(strategyName string, pf *portfolio.PortfolioData) {
	if pf == nil {
		return
	}
	holding, ok := e.holdings[strategyName]
	if !ok {
		return
	}

	var totals metricTotals

	for _, pos := range holding.OptionPositions {
		var opt *portfolio.OptionData
		if o, ok := pf.Options[pos.Symbol]; ok {
			opt = o
		}
		totals.add(accumulateOptionPosition(&pos.BasePosition, opt))
	}

	if holding.UnderlyingPosition.Quantity != 0 || holding.UnderlyingPosition.RealizedPnl != 0 {
		totals.add(accumulateUnderlyingPosition(&holding.UnderlyingPosition.BasePosition, pf.Underlying))
	}

	for _, combo := range holding.ComboPositions {
		totals.add(accumulateComboPosition(combo, pf))
	}

	unreal := totals.cv - totals.tc
	holding.Summary.CurrentValue = roundDigits(totals.cv, 2)
	holding.Summary.TotalCost = roundDigits(totals.tc, 2)
	holding.Summary.UnrealizedPnl = roundDigits(unreal, 2)
	holding.Summary.RealizedPnl = roundDigits(totals.rlz, 2)
	holding.Summary.Pnl = holding.Summary.UnrealizedPnl + holding.Summary.RealizedPnl
	holding.Summary.Delta = roundDigits(totals.delta, 4)
	holding.Summary.Gamma = roundDigits(totals.gamma, 4)
	holding.Summary.Theta = roundDigits(totals.theta, 4)
	holding.Summary.Vega = roundDigits(totals.vega, 4)

	for _, pos := range holding.OptionPositions {
		if pos.Quantity == 0 {
			pos.ClearFields()
		}
	}
	if holding.UnderlyingPosition.Quantity == 0 {
		holding.UnderlyingPosition.ClearFields()
	}
	for _, combo := range holding.ComboPositions {
		if combo.Quantity == 0 {
			combo.ClearFields()
		}
	}

	e.holdings[strategyName] = holding
}

// serializedHolding is the gob-friendly snapshot of a StrategyHolding.
// The original serializes via a protobuf StrategyHoldingMsg; no
// generated Go code for that message exists in this repo's reference
// material, so this substitutes encoding/gob as the Go-to-Go checkpoint
// format (see DESIGN.md).
type serializedHolding struct {
	Underlying      object.UnderlyingPositionData
	OptionPositions map[string]object.OptionPositionData
	ComboPositions  map[string]object.ComboPositionData
	Summary         object.PortfolioSummary
}

// SerializeHolding gob-encodes strategyName's holding, or returns nil if
// the strategy has no holding.
func (e *Engine) SerializeHolding(strategyName string) ([]byte, error) {
	holding, ok := e.holdings[strategyName]
	if !ok {
		return nil, nil
	}
	snap := serializedHolding{
		Underlying:      holding.UnderlyingPosition,
		OptionPositions: make(map[string]object.OptionPositionData, len(holding.OptionPositions)),
		ComboPositions:  make(map[string]object.ComboPositionData, len(holding.ComboPositions)),
		Summary:         holding.Summary,
	}
	for sym, pos := range holding.OptionPositions {
		snap.OptionPositions[sym] = *pos
	}
	for sym, combo := range holding.ComboPositions {
		snap.ComboPositions[sym] = *combo
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadSerializedHolding replaces strategyName's holding with the decoded
// contents of data. A nil/empty data is a no-op.
func (e *Engine) LoadSerializedHolding(strategyName string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var snap serializedHolding
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	e.getCreateStrategyHolding(strategyName)
	holding := object.NewStrategyHolding()
	holding.UnderlyingPosition = snap.Underlying
	for sym, pos := range snap.OptionPositions {
		p := pos
		holding.OptionPositions[sym] = &p
	}
	for sym, combo := range snap.ComboPositions {
		c := combo
		holding.ComboPositions[sym] = &c
	}
	holding.Summary = snap.Summary
	e.holdings[strategyName] = holding
	return nil
}

func roundDigits(value float64, digits int) float64 {
	return roundHalfUp(value, digits)
}

func roundHalfUp(value float64, digits int) float64 {
	factor := math.Pow(10, float64(digits))
	scaled := value * factor
	var rounded float64
	if scaled >= 0 {
		rounded = math.Floor(scaled + 0.5)
	} else {
		rounded = math.Ceil(scaled - 0.5)
	}
	return rounded / factor
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
