// Command backtester drives one strategy class through a single-
// threaded, synchronous replay of historical option-chain quote files
// and emits a JSON performance summary plus a console table. Grounded
// on the teacher's cmd/fetch_market_data/main.go cobra idiom and the
// original system's runtime/backtest/engine_backtest.{hpp,cpp} bar loop.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/otrader/engine/algos"
	"github.com/otrader/engine/internal/backtestfill"
	"github.com/otrader/engine/internal/combo"
	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/dispatcher"
	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/hedge"
	"github.com/otrader/engine/internal/market"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/position"
	"github.com/otrader/engine/internal/strategy"
)

var runCmd = &cobra.Command{
	Use:   "backtester <file> <strategy_class> [k=v ...]",
	Short: "Replay historical option quotes through one strategy class",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, posArgs []string) {
		args, err := parseRunArgs(cmd, posArgs)
		if err != nil {
			log.Fatalf("backtester: %v", err)
		}

		result, err := Run(args)
		if err != nil {
			log.Fatalf("backtester: %v", err)
		}

		printSummaryTable(result.Summary)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("backtester: marshal result: %v", err)
		}
		fmt.Println(string(out))
	},
}

func init() {
	runCmd.Flags().StringSlice("files", nil, "historical quote files, in replay order (overrides the first positional arg)")
	runCmd.Flags().String("underlying", "", "underlying root symbol (required)")
	runCmd.Flags().Float64("multiplier", 100, "option contract multiplier")
	runCmd.Flags().Float64("fee-rate", 0, "flat per-contract fee")
	runCmd.Flags().Float64("slippage-bps", 0, "market-order slippage, in basis points")
	runCmd.Flags().Float64("risk-free-rate", 0.05, "annualized risk-free rate used for IV/Greeks")
	runCmd.Flags().String("iv-price-mode", "mid", "option price used for IV inversion: mid, bid, or ask")
	runCmd.Flags().Int("lttb-threshold", 300, "max points kept per downsampled time series (0 disables)")
	runCmd.Flags().Bool("log", false, "sink handler log intents through logrus while replaying")
}

func main() {
	if err := runCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// RunArgs is the parsed, validated input to one backtest run.
type RunArgs struct {
	Files         []string
	StrategyClass string
	Settings      strategy.Settings
	Underlying    string
	Multiplier    float64
	FeeRate       float64
	SlippageBps   float64
	RiskFreeRate  float64
	IVPriceMode   string
	LTTBThreshold int
	Log           bool
}

func parseRunArgs(cmd *cobra.Command, posArgs []string) (RunArgs, error) {
	files, _ := cmd.Flags().GetStringSlice("files")
	underlying, _ := cmd.Flags().GetString("underlying")
	multiplier, _ := cmd.Flags().GetFloat64("multiplier")
	feeRate, _ := cmd.Flags().GetFloat64("fee-rate")
	slippageBps, _ := cmd.Flags().GetFloat64("slippage-bps")
	riskFreeRate, _ := cmd.Flags().GetFloat64("risk-free-rate")
	ivPriceMode, _ := cmd.Flags().GetString("iv-price-mode")
	lttbThreshold, _ := cmd.Flags().GetInt("lttb-threshold")
	doLog, _ := cmd.Flags().GetBool("log")

	if len(files) == 0 {
		if len(posArgs) == 0 {
			return RunArgs{}, fmt.Errorf("no input file given: pass a positional file or --files")
		}
		files = []string{posArgs[0]}
		posArgs = posArgs[1:]
	}
	if underlying == "" {
		return RunArgs{}, fmt.Errorf("--underlying is required")
	}
	if len(posArgs) == 0 {
		return RunArgs{}, fmt.Errorf("no strategy_class given")
	}

	className := posArgs[0]
	settings := strategy.Settings{}
	for _, kv := range posArgs[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return RunArgs{}, fmt.Errorf("bad setting %q: expected key=value", kv)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return RunArgs{}, fmt.Errorf("bad setting %q: %w", kv, err)
		}
		settings[k] = f
	}

	return RunArgs{
		Files:         files,
		StrategyClass: className,
		Settings:      settings,
		Underlying:    underlying,
		Multiplier:    multiplier,
		FeeRate:       feeRate,
		SlippageBps:   slippageBps,
		RiskFreeRate:  riskFreeRate,
		IVPriceMode:   ivPriceMode,
		LTTBThreshold: lttbThreshold,
		Log:           doLog,
	}, nil
}

// RunResult is the JSON-serializable outcome of one backtest.
type RunResult struct {
	StrategyClass string                   `json:"strategy_class"`
	Underlying    string                   `json:"underlying"`
	Frames        int                      `json:"frames"`
	Summary       object.PortfolioSummary  `json:"summary"`
	TotalFees     float64                  `json:"total_fees"`
	DailyStats    []DailyStats             `json:"daily_stats"`
	Series        TimeSeries               `json:"series"`
}

// DailyStats is one calendar day's PnL distribution across the frames
// recorded that day, per spec §6's per-day breakdown.
type DailyStats struct {
	Date      string  `json:"date"`
	Frames    int     `json:"frames"`
	MeanPnl   float64 `json:"mean_pnl"`
	MedianPnl float64 `json:"median_pnl"`
	StdDevPnl float64 `json:"stddev_pnl"`
	EndPnl    float64 `json:"end_pnl"`
}

// TimeSeries is the LTTB-downsampled equity curve, per spec §6.
type TimeSeries struct {
	Timestamps []string  `json:"timestamps"`
	Pnl        []float64 `json:"pnl"`
	Delta      []float64 `json:"delta"`
}

// Run wires every engine package into one portfolio and strategy
// instance, replays args.Files frame by frame through a
// BacktestScheduler, and rolls up the resulting PnL/Greeks series.
func Run(args RunArgs) (RunResult, error) {
	if args.FeeRate < 0 {
		return RunResult{}, fmt.Errorf("negative fee rate %v", args.FeeRate)
	}
	frames, err := loadAllFrames(args.Files)
	if err != nil {
		return RunResult{}, err
	}
	if len(frames) == 0 {
		return RunResult{}, fmt.Errorf("no frames loaded from %v", args.Files)
	}

	pf := portfolio.NewPortfolioData(args.StrategyClass)
	pf.SetRiskFreeRate(args.RiskFreeRate)
	pf.SetIVPriceMode(args.IVPriceMode)
	pf.SetDTERef(frames[0].Timestamp)
	pf.SetUnderlying(object.ContractData{
		Symbol:  args.Underlying,
		Product: constant.Equity,
		Size:    1,
	})

	seen := make(map[string]bool)
	for _, f := range frames {
		contracts, logs, err := market.ContractsInFrame(f, args.Underlying, args.Multiplier)
		if err != nil {
			return RunResult{}, err
		}
		if args.Log {
			dispatcher.SinkLogs(logs)
		}
		for _, c := range contracts {
			if seen[c.Symbol] {
				continue
			}
			seen[c.Symbol] = true
			pf.AddOption(c)
		}
	}
	pf.FinalizeChains()

	contractsBySymbol := make(map[string]*object.ContractData, len(seen))
	for sym, opt := range pf.Options {
		contractsBySymbol[sym] = &object.ContractData{
			Symbol:           sym,
			Product:          constant.Option,
			Size:             opt.Size,
			OptionUnderlying: args.Underlying,
		}
	}
	getContract := func(symbol string) *object.ContractData {
		if c, ok := contractsBySymbol[symbol]; ok {
			return c
		}
		if market.IsUnderlyingSymbol(symbol, args.Underlying) {
			return &object.ContractData{Symbol: symbol, Product: constant.Equity, Size: 1}
		}
		return nil
	}

	portfolioName := args.StrategyClass
	portfolios := map[string]*portfolio.PortfolioData{portfolioName: pf}
	getPortfolio := func(name string) *portfolio.PortfolioData { return portfolios[name] }

	posEngine := position.New()
	hedgeEngine := hedge.New()
	comboEngine := combo.New()
	classes := strategy.NewClassRegistry()
	registry := strategy.NewRegistry()

	var fees float64
	filler := backtestfill.NewFiller(args.FeeRate, args.SlippageBps)
	scheduler := dispatcher.NewBacktestScheduler(portfolioName, filler)
	scheduler.FeeSink = func(fee float64) { fees += fee }

	execEngine := execution.New(scheduler.AcceptOrder, nil)

	d := dispatcher.New(getPortfolio, execEngine, posEngine, hedgeEngine, registry)
	d.GetContract = getContract
	scheduler.Dispatcher = d

	algos.RegisterBuiltins(classes, pf, execEngine, comboEngine, getContract)

	inst, err := classes.Build(args.StrategyClass, args.StrategyClass, args.Settings)
	if err != nil {
		return RunResult{}, err
	}
	registry.Register(inst)

	inst.Init()
	inst.Start()

	applyOrderSymbols := make([]string, len(pf.ApplyOrder()))
	for i, o := range pf.ApplyOrder() {
		applyOrderSymbols[i] = o.Symbol
	}

	dayBuckets := make(map[string][]float64)
	dayOrder := []string{}
	series := TimeSeries{}

	for _, f := range frames {
		snapshot, snapshotLogs := market.BuildSnapshot(portfolioName, applyOrderSymbols, f, args.Underlying, args.Multiplier)
		logs := append(snapshotLogs, scheduler.Tick(snapshot)...)
		if args.Log {
			dispatcher.SinkLogs(logs)
		}

		summary := currentSummary(posEngine, portfolioName)
		day := f.Timestamp.Format("2006-01-02")
		if _, ok := dayBuckets[day]; !ok {
			dayOrder = append(dayOrder, day)
		}
		dayBuckets[day] = append(dayBuckets[day], summary.Pnl)

		series.Timestamps = append(series.Timestamps, f.Timestamp.Format(time.RFC3339))
		series.Pnl = append(series.Pnl, summary.Pnl)
		series.Delta = append(series.Delta, summary.Delta)
	}

	finalSummary := currentSummary(posEngine, portfolioName)

	dailyStats := make([]DailyStats, 0, len(dayOrder))
	for _, day := range dayOrder {
		pnls := dayBuckets[day]
		dailyStats = append(dailyStats, buildDailyStats(day, pnls))
	}

	if args.LTTBThreshold > 0 {
		idx := lttbIndices(series.Pnl, args.LTTBThreshold)
		series = TimeSeries{
			Timestamps: selectStrings(series.Timestamps, idx),
			Pnl:        lttbSelect(series.Pnl, idx),
			Delta:      lttbSelect(series.Delta, idx),
		}
	}

	return RunResult{
		StrategyClass: args.StrategyClass,
		Underlying:    args.Underlying,
		Frames:        len(frames),
		Summary:       finalSummary,
		TotalFees:     fees,
		DailyStats:    dailyStats,
		Series:        series,
	}, nil
}

// currentSummary reads the strategy's rolled-up PortfolioSummary, which
// UpdateMetrics only populates once the holding exists (after its first
// trade); an untraded strategy reports a zero summary.
func currentSummary(posEngine *position.Engine, strategyName string) object.PortfolioSummary {
	holding, ok := posEngine.GetHolding(strategyName)
	if !ok {
		return object.PortfolioSummary{}
	}
	return holding.Summary
}

func loadAllFrames(files []string) ([]market.Frame, error) {
	var all []market.Frame
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		frames, err := market.LoadFrames(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		all = append(all, frames...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func buildDailyStats(day string, pnls []float64) DailyStats {
	d := DailyStats{Date: day, Frames: len(pnls)}
	if len(pnls) == 0 {
		return d
	}
	d.EndPnl = pnls[len(pnls)-1]
	if mean, err := stats.Mean(pnls); err == nil {
		d.MeanPnl = mean
	}
	if median, err := stats.Median(pnls); err == nil {
		d.MedianPnl = median
	}
	if sd, err := stats.StandardDeviation(pnls); err == nil {
		d.StdDevPnl = sd
	}
	return d
}

func selectStrings(s []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = s[idx]
	}
	return out
}

func printSummaryTable(s object.PortfolioSummary) {
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total Cost", fmt.Sprintf("%.2f", s.TotalCost)})
	table.Append([]string{"Current Value", fmt.Sprintf("%.2f", s.CurrentValue)})
	table.Append([]string{"Unrealized PnL", fmt.Sprintf("%.2f", s.UnrealizedPnl)})
	table.Append([]string{"Realized PnL", fmt.Sprintf("%.2f", s.RealizedPnl)})
	table.Append([]string{"PnL", fmt.Sprintf("%.2f", s.Pnl)})
	table.Append([]string{"Delta", fmt.Sprintf("%.4f", s.Delta)})
	table.Append([]string{"Gamma", fmt.Sprintf("%.4f", s.Gamma)})
	table.Append([]string{"Theta", fmt.Sprintf("%.4f", s.Theta)})
	table.Append([]string{"Vega", fmt.Sprintf("%.4f", s.Vega)})
	table.Render()
}
