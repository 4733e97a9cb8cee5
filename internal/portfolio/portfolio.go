// Package portfolio implements the option-chain data model and the
// snapshot-apply hot path: per-option IV and BS Greeks recomputation
// parallelized across the portfolio's fixed apply order. Grounded on
// the original system's utilities/portfolio.{hpp,cpp}.
package portfolio

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/pricing"
)

const annualDays = 365.25

// OptionData is a per-symbol mutable option record. Back-references to
// its chain/portfolio/underlying are non-owning, per spec §9's ownership
// design note; the portfolio owns the value in Options by key, and
// OptionApplyOrder holds pointers into that map established once at
// FinalizeChains.
type OptionData struct {
	Symbol   string
	Exchange constant.Exchange
	Size     float64 // contract multiplier

	BidPrice float64
	AskPrice float64
	MidPrice float64

	StrikePrice *float64
	ChainIndex  string
	OptionType  int // +1 call, -1 put
	OptionExpiry *time.Time

	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	MidIV float64

	Portfolio  *PortfolioData
	Chain      *ChainData
	Underlying *UnderlyingData
}

func newOptionData(contract object.ContractData) OptionData {
	optType := 1
	if contract.OptionType != nil && *contract.OptionType == constant.Put {
		optType = -1
	}
	return OptionData{
		Symbol:       contract.Symbol,
		Exchange:     contract.Exchange,
		Size:         contract.Size,
		StrikePrice:  contract.OptionStrike,
		ChainIndex:   contract.OptionIndex,
		OptionType:   optType,
		OptionExpiry: contract.OptionExpiry,
	}
}

// Moneyness is spot/strike (or log(spot/strike) if useLog), nil if the
// underlying or strike is unavailable.
func (o *OptionData) Moneyness(useLog bool) *float64 {
	if o.Underlying == nil || o.StrikePrice == nil || *o.StrikePrice == 0 {
		return nil
	}
	ratio := o.Underlying.MidPrice / *o.StrikePrice
	if useLog {
		if ratio <= 0 {
			return nil
		}
		v := logSafe(ratio)
		return &v
	}
	return &ratio
}

// IsOTM reports whether the option is currently out-of-the-money.
func (o *OptionData) IsOTM() bool {
	if o.Underlying == nil || o.StrikePrice == nil {
		return false
	}
	s := o.Underlying.MidPrice
	k := *o.StrikePrice
	if o.OptionType > 0 {
		return k > s
	}
	return k < s
}

// UnderlyingData is the bid/ask/mid/theo-delta state of the chain's
// underlying instrument.
type UnderlyingData struct {
	Symbol    string
	Exchange  constant.Exchange
	Size      float64
	BidPrice  float64
	AskPrice  float64
	MidPrice  float64
	TheoDelta float64

	Portfolio *PortfolioData
	Chains    map[string]*ChainData
}

func newUnderlyingData(contract object.ContractData) *UnderlyingData {
	return &UnderlyingData{
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Size:      contract.Size,
		TheoDelta: contract.Size,
		Chains:    make(map[string]*ChainData),
	}
}

func (u *UnderlyingData) addChain(c *ChainData) { u.Chains[c.ChainSymbol] = c }

// UpdateUnderlyingTick folds a raw tick into bid/ask/mid.
func (u *UnderlyingData) UpdateUnderlyingTick(tick object.TickData) {
	u.BidPrice = tick.BidPrice1
	u.AskPrice = tick.AskPrice1
	u.MidPrice = (tick.BidPrice1 + tick.AskPrice1) / 2.0
}

// ChainData is all options sharing one expiry under one underlying.
type ChainData struct {
	ChainSymbol string
	Underlying  *UnderlyingData
	Portfolio   *PortfolioData

	Options map[string]*OptionData
	Calls   map[string]*OptionData
	Puts    map[string]*OptionData

	Indexes       []string
	indexSeen     map[string]bool
	ATMPrice      float64
	ATMIndex      string
	DaysToExpiry  int
	TimeToExpiry  float64
}

func newChainData(chainSymbol string) *ChainData {
	return &ChainData{
		ChainSymbol: chainSymbol,
		Options:     make(map[string]*OptionData),
		Calls:       make(map[string]*OptionData),
		Puts:        make(map[string]*OptionData),
		indexSeen:   make(map[string]bool),
	}
}

// AddOption registers an option under this chain, updating the call/put
// maps, the strike-index list, and the chain's days-to-expiry (set once,
// from the first option with a known expiry).
func (c *ChainData) AddOption(opt *OptionData) {
	c.Options[opt.Symbol] = opt
	if opt.ChainIndex != "" {
		if opt.OptionType > 0 {
			c.Calls[opt.ChainIndex] = opt
		} else {
			c.Puts[opt.ChainIndex] = opt
		}
	}
	opt.Chain = c
	if opt.ChainIndex != "" && !c.indexSeen[opt.ChainIndex] {
		c.indexSeen[opt.ChainIndex] = true
		c.Indexes = append(c.Indexes, opt.ChainIndex)
	}
	if c.DaysToExpiry == 0 && opt.OptionExpiry != nil {
		refNow := time.Now()
		if c.Portfolio != nil {
			refNow = c.Portfolio.DTERef()
		}
		diffHours := opt.OptionExpiry.Sub(refNow).Hours()
		if diffHours > 0 {
			c.DaysToExpiry = int(diffHours / 24)
		}
		c.TimeToExpiry = float64(c.DaysToExpiry) / annualDays
	}
}

// SortIndexes sorts the chain's strike-index strings numerically
// ascending, falling back to lexicographic sort if any index fails to
// parse as a float.
func (c *ChainData) SortIndexes() {
	if len(c.Indexes) == 0 {
		return
	}
	type entry struct {
		v   float64
		idx string
	}
	entries := make([]entry, 0, len(c.Indexes))
	ok := true
	for _, s := range c.Indexes {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			ok = false
			break
		}
		entries = append(entries, entry{v, s})
	}
	if !ok {
		sort.Strings(c.Indexes)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].v < entries[j].v })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.idx
	}
	c.Indexes = out
}

// SetUnderlying wires this chain (and every option within it) to u.
func (c *ChainData) SetUnderlying(u *UnderlyingData) {
	u.addChain(c)
	c.Underlying = u
	for _, opt := range c.Options {
		opt.Underlying = u
	}
}

// CalculateATMPrice picks the strike-index nearest the underlying mid
// (first-wins on tie, in ascending strike order, so the lower strike
// wins), or the median index if the underlying mid is
// unknown/zero, per spec §4.2.
func (c *ChainData) CalculateATMPrice() {
	type entry struct {
		strike float64
		idx    string
	}
	seen := make(map[string]bool)
	var entries []entry
	for idx, opt := range c.Calls {
		if opt.StrikePrice != nil && !seen[idx] {
			seen[idx] = true
			entries = append(entries, entry{*opt.StrikePrice, idx})
		}
	}
	for idx, opt := range c.Puts {
		if opt.StrikePrice != nil && !seen[idx] {
			seen[idx] = true
			entries = append(entries, entry{*opt.StrikePrice, idx})
		}
	}
	if len(entries) == 0 {
		c.ATMPrice = 0
		c.ATMIndex = ""
		return
	}
	underlyingPrice := 0.0
	if c.Underlying != nil {
		underlyingPrice = c.Underlying.MidPrice
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].strike != entries[j].strike {
			return entries[i].strike < entries[j].strike
		}
		return entries[i].idx < entries[j].idx
	})
	var selStrike float64
	var selIdx string
	if underlyingPrice > 0 {
		bestDiff := -1.0
		for _, e := range entries {
			d := absf(e.strike - underlyingPrice)
			if bestDiff < 0 || d < bestDiff {
				bestDiff = d
				selStrike = e.strike
				selIdx = e.idx
			}
		}
	} else {
		mid := len(entries) / 2
		selStrike = entries[mid].strike
		selIdx = entries[mid].idx
	}
	c.ATMPrice = selStrike
	c.ATMIndex = selIdx
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func logSafe(x float64) float64 {
	return math.Log(x)
}

// PortfolioData is the named container of chains and an underlying; its
// fixed apply order is established once at FinalizeChains.
type PortfolioData struct {
	Name       string
	Options    map[string]*OptionData
	Chains     map[string]*ChainData
	Underlying *UnderlyingData

	applyOrder []*OptionData

	riskFreeRate float64
	ivPriceMode  string
	dteRef       time.Time
}

// NewPortfolioData constructs an empty, named portfolio with the
// original's defaults (5% risk-free rate, mid IV price mode, dte_ref=now).
func NewPortfolioData(name string) *PortfolioData {
	return &PortfolioData{
		Name:         name,
		Options:      make(map[string]*OptionData),
		Chains:       make(map[string]*ChainData),
		riskFreeRate: 0.05,
		ivPriceMode:  "mid",
		dteRef:       time.Now(),
	}
}

func (p *PortfolioData) SetRiskFreeRate(rate float64) {
	if !isFinite(rate) {
		return
	}
	p.riskFreeRate = rate
}

func (p *PortfolioData) SetIVPriceMode(mode string) {
	m := strings.ToLower(mode)
	if m == "mid" || m == "bid" || m == "ask" {
		p.ivPriceMode = m
	}
}

func (p *PortfolioData) SetDTERef(ref time.Time) { p.dteRef = ref }
func (p *PortfolioData) DTERef() time.Time       { return p.dteRef }

// ApplyOrder returns the fixed, positional option order snapshots are
// aligned against.
func (p *PortfolioData) ApplyOrder() []*OptionData { return p.applyOrder }

// SetUnderlying installs the portfolio's underlying and wires every
// existing chain to it.
func (p *PortfolioData) SetUnderlying(contract object.ContractData) {
	u := newUnderlyingData(contract)
	u.Portfolio = p
	p.Underlying = u
	for _, chain := range p.Chains {
		chain.SetUnderlying(u)
	}
}

// GetChain returns (creating if absent) the chain keyed by chainSymbol.
func (p *PortfolioData) GetChain(chainSymbol string) *ChainData {
	if c, ok := p.Chains[chainSymbol]; ok {
		return c
	}
	c := newChainData(chainSymbol)
	c.Portfolio = p
	p.Chains[chainSymbol] = c
	return c
}

// AddOption inserts/replaces an option by contract, deriving its chain
// key as "UNDERLYING_YYYYMMDD" from the platform symbol's first two
// tokens, per spec §3.
func (p *PortfolioData) AddOption(contract object.ContractData) {
	opt := newOptionData(contract)
	opt.Portfolio = p
	p.Options[contract.Symbol] = &opt
	ptr := p.Options[contract.Symbol]

	parts := strings.SplitN(contract.Symbol, constant.JoinSymbol, 3)
	underlyingName := ""
	expiryStr := ""
	if len(parts) > 0 {
		underlyingName = parts[0]
	}
	if len(parts) > 1 {
		expiryStr = parts[1]
	}
	chainSymbol := underlyingName + "_" + expiryStr

	chain := p.GetChain(chainSymbol)
	chain.AddOption(ptr)
	if p.Underlying != nil {
		ptr.Underlying = p.Underlying
	}
}

// FinalizeChains sorts every chain's strike indexes and rebuilds the
// fixed apply order: chains sorted lexicographically by chain symbol,
// options within each chain sorted lexicographically by option symbol.
// Per spec §3/§9, this is a one-shot step; AddOption calls after this
// point require re-finalization before the next ApplyFrame.
func (p *PortfolioData) FinalizeChains() {
	for _, chain := range p.Chains {
		chain.SortIndexes()
	}
	p.applyOrder = p.applyOrder[:0]

	chainSymbols := make([]string, 0, len(p.Chains))
	for sym := range p.Chains {
		chainSymbols = append(chainSymbols, sym)
	}
	sort.Strings(chainSymbols)

	for _, csym := range chainSymbols {
		chain := p.Chains[csym]
		opts := make([]*OptionData, 0, len(chain.Options))
		for _, o := range chain.Options {
			opts = append(opts, o)
		}
		sort.Slice(opts, func(i, j int) bool { return opts[i].Symbol < opts[j].Symbol })
		p.applyOrder = append(p.applyOrder, opts...)
	}
}

// CalculateATMPrice recomputes ATM selection on every chain.
func (p *PortfolioData) CalculateATMPrice() {
	for _, chain := range p.Chains {
		chain.CalculateATMPrice()
	}
}

// ApplyFrame is the snapshot-apply hot path (spec §4.2): it updates the
// underlying and every option's bid/ask/mid, and recomputes IV/Greeks for
// every option with a valid price, strike, and positive time-to-expiry.
// The option loop is partitioned across runtime.NumCPU() goroutines
// writing into disjoint result slots (the Go-idiomatic equivalent of the
// original's hardware_concurrency() thread partition), followed by a
// single-goroutine pass that writes option state and recomputes every
// chain's ATM strike. A length-mismatched snapshot or a symbol missing
// both bid and ask is a spec §7 "Data" error: logged at WARNING and
// skipped rather than returned as a hard error.
func (p *PortfolioData) ApplyFrame(snapshot object.PortfolioSnapshot) []object.LogData {
	var logs []object.LogData

	if p.Underlying != nil {
		p.Underlying.BidPrice = snapshot.UnderlyingBid
		p.Underlying.AskPrice = snapshot.UnderlyingAsk
		p.Underlying.MidPrice = snapshot.UnderlyingLast
	}

	n := len(p.applyOrder)
	if n != len(snapshot.Bid) {
		logs = append(logs, object.LogData{
			BaseData: object.BaseData{GatewayName: "Portfolio"},
			Msg:      fmt.Sprintf("snapshot length mismatch: portfolio has %d options, snapshot has %d", n, len(snapshot.Bid)),
			Level:    object.LogWarn,
			Time:     snapshot.DateTime,
		})
		return logs
	}

	spot := 0.0
	switch {
	case snapshot.UnderlyingBid > 0 && snapshot.UnderlyingAsk > 0:
		spot = 0.5 * (snapshot.UnderlyingBid + snapshot.UnderlyingAsk)
	case snapshot.UnderlyingBid > 0:
		spot = snapshot.UnderlyingBid
	case snapshot.UnderlyingAsk > 0:
		spot = snapshot.UnderlyingAsk
	default:
		spot = snapshot.UnderlyingLast
	}

	ivVec := make([]float64, n)
	deltaVec := make([]float64, n)
	gammaVec := make([]float64, n)
	thetaVec := make([]float64, n)
	vegaVec := make([]float64, n)

	nWorkers := runtime.NumCPU()
	if nWorkers < 1 {
		nWorkers = 1
	}
	chunk := (n + nWorkers - 1) / nWorkers
	if chunk < 1 {
		chunk = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				opt := p.applyOrder[i]
				if opt == nil {
					continue
				}
				bid := snapshot.Bid[i]
				ask := snapshot.Ask[i]
				var k float64
				if opt.StrikePrice != nil {
					k = *opt.StrikePrice
				}
				t := yearsToExpiry(snapshot.DateTime, opt.OptionExpiry)
				isCall := opt.OptionType > 0

				if spot <= 0 || k <= 0 || t <= 0 {
					continue
				}
				px := pricing.PickIVInputPrice(bid, ask, p.ivPriceMode)
				if px <= 0 {
					continue
				}
				iv := pricing.ImpliedVolatilityFromPrice(px, spot, k, t, isCall, p.riskFreeRate)
				g := pricing.ComputeGreeks(isCall, spot, k, t, p.riskFreeRate, iv)
				ivVec[i] = iv
				deltaVec[i] = g.Delta
				gammaVec[i] = g.Gamma
				thetaVec[i] = g.Theta
				vegaVec[i] = g.Vega
			}
		}(start, end)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		opt := p.applyOrder[i]
		if opt == nil {
			continue
		}
		bid := snapshot.Bid[i]
		ask := snapshot.Ask[i]
		last := snapshot.Last[i]
		if bid <= 0 && ask <= 0 {
			logs = append(logs, object.LogData{
				BaseData: object.BaseData{GatewayName: "Portfolio"},
				Msg:      fmt.Sprintf("missing BBO for %s, skipped", opt.Symbol),
				Level:    object.LogWarn,
				Time:     snapshot.DateTime,
			})
			continue
		}
		opt.BidPrice = bid
		opt.AskPrice = ask
		switch {
		case bid > 0 && ask > 0:
			opt.MidPrice = 0.5 * (bid + ask)
		case bid > 0:
			opt.MidPrice = bid
		default:
			opt.MidPrice = last
		}
		sz := opt.Size
		if sz == 0 {
			sz = 1
		}
		opt.Delta = deltaVec[i] * sz
		opt.Gamma = gammaVec[i] * sz
		opt.Theta = thetaVec[i] * sz
		opt.Vega = vegaVec[i] * sz
		opt.MidIV = ivVec[i]
	}

	for _, chain := range p.Chains {
		chain.CalculateATMPrice()
	}
	return logs
}

func yearsToExpiry(now time.Time, expiry *time.Time) float64 {
	if expiry == nil {
		return 0
	}
	secs := expiry.Sub(now).Seconds()
	return pricing.YearsToExpirySeconds(secs)
}

func isFinite(x float64) bool {
	return x == x && x < 1e308 && x > -1e308
}
