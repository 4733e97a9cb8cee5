// Package combo builds the leg list and canonical signature for every
// supported multi-leg option structure. Grounded on the original
// system's core/engine_combo_builder.{hpp,cpp}.
package combo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

// GetContractFunc resolves a tradable contract by option symbol.
type GetContractFunc func(symbol string) *object.ContractData

// Engine builds combo leg sets keyed by role name ("call", "put",
// "long_leg", "body", ...), per spec §4.8's per-ComboType recipes.
type Engine struct{}

// New constructs a combo builder engine; it is stateless.
func New() *Engine { return &Engine{} }

// Build dispatches to the recipe for comboType and returns its legs plus
// the canonical signature derived from them. roleToOption maps each
// recipe role (e.g. "call", "long_leg", "body") to the option filling it.
func (e *Engine) Build(roleToOption map[string]*portfolio.OptionData, comboType constant.ComboType, direction constant.Direction, volume int, getContract GetContractFunc, logFn func(object.LogData)) ([]object.Leg, string, error) {
	switch comboType {
	case constant.ComboStraddle:
		return buildTwoLeg(roleToOption, "call", direction, "put", direction, volume, getContract)
	case constant.ComboStrangle:
		return buildTwoLeg(roleToOption, "call", direction, "put", direction, volume, getContract)
	case constant.ComboIronCondor:
		return buildIronCondor(roleToOption, direction, volume, getContract)
	case constant.ComboRiskReversal:
		return buildSignedPair(roleToOption, "long_leg", "short_leg", direction, volume, getContract)
	case constant.ComboSpread:
		return buildSignedPairLongFlip(roleToOption, "long_leg", "short_leg", direction, volume, getContract)
	case constant.ComboDiagonalSpread:
		return buildSignedPairLongFlip(roleToOption, "long_leg", "short_leg", direction, volume, getContract)
	case constant.ComboRatioSpread:
		return buildRatioSpread(roleToOption, direction, volume, getContract)
	case constant.ComboButterfly:
		return buildButterfly(roleToOption, direction, volume, getContract)
	case constant.ComboInverseButterfly:
		return buildInverseButterfly(roleToOption, direction, volume, getContract)
	case constant.ComboIronButterfly:
		return buildIronButterfly(roleToOption, direction, volume, getContract)
	case constant.ComboCondor:
		return buildCondor(roleToOption, direction, volume, getContract)
	case constant.ComboBoxSpread:
		return buildBoxSpread(roleToOption, direction, volume, getContract)
	case constant.ComboCustom:
		return buildCustom(roleToOption, direction, volume, getContract, logFn)
	default:
		return nil, "", fmt.Errorf("unsupported combo type: %v", comboType)
	}
}

func createLeg(opt *portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) (object.Leg, error) {
	contract := getContract(opt.Symbol)
	if contract == nil {
		return object.Leg{}, fmt.Errorf("contract not found for option: %s", opt.Symbol)
	}
	return object.Leg{
		BaseData:     object.BaseData{GatewayName: "IB"},
		ConID:        contract.ConID,
		Symbol:       contract.Symbol,
		Exchange:     contract.Exchange,
		Direction:    direction,
		Ratio:        volume,
		TradingClass: contract.TradingClass,
	}, nil
}

func requireRole(roles map[string]*portfolio.OptionData, name string) (*portfolio.OptionData, error) {
	opt, ok := roles[name]
	if !ok || opt == nil {
		return nil, fmt.Errorf("combo requires role %q", name)
	}
	return opt, nil
}

func buildTwoLeg(roles map[string]*portfolio.OptionData, role1 string, dir1 constant.Direction, role2 string, dir2 constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	o1, err := requireRole(roles, role1)
	if err != nil {
		return nil, "", err
	}
	o2, err := requireRole(roles, role2)
	if err != nil {
		return nil, "", err
	}
	l1, err := createLeg(o1, dir1, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(o2, dir2, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

// buildSignedPair implements risk_reversal's sign convention: SHORT
// direction flips long_leg/short_leg to LONG/SHORT (sign=+1), LONG
// direction keeps them SHORT/LONG (sign=-1).
func buildSignedPair(roles map[string]*portfolio.OptionData, longRole, shortRole string, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := -1
	if direction == constant.Short {
		sign = 1
	}
	ll, err := requireRole(roles, longRole)
	if err != nil {
		return nil, "", err
	}
	sl, err := requireRole(roles, shortRole)
	if err != nil {
		return nil, "", err
	}
	longDir, shortDir := constant.Long, constant.Short
	if sign <= 0 {
		longDir, shortDir = constant.Short, constant.Long
	}
	l1, err := createLeg(ll, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(sl, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

// buildSignedPairLongFlip implements spread/diagonal_spread's sign
// convention: LONG direction keeps long_leg/short_leg LONG/SHORT
// (sign=+1), SHORT direction flips them (sign=-1).
func buildSignedPairLongFlip(roles map[string]*portfolio.OptionData, longRole, shortRole string, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	ll, err := requireRole(roles, longRole)
	if err != nil {
		return nil, "", err
	}
	sl, err := requireRole(roles, shortRole)
	if err != nil {
		return nil, "", err
	}
	longDir, shortDir := constant.Long, constant.Short
	if sign <= 0 {
		longDir, shortDir = constant.Short, constant.Long
	}
	l1, err := createLeg(ll, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(sl, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

func buildRatioSpread(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	const ratio = 2 // default 1:2 ratio
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	ll, err := requireRole(roles, "long_leg")
	if err != nil {
		return nil, "", err
	}
	sl, err := requireRole(roles, "short_leg")
	if err != nil {
		return nil, "", err
	}
	longDir, shortDir := constant.Long, constant.Short
	if sign <= 0 {
		longDir, shortDir = constant.Short, constant.Long
	}
	l1, err := createLeg(ll, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(sl, shortDir, volume*ratio, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

func buildButterfly(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	body, err := requireRole(roles, "body")
	if err != nil {
		return nil, "", err
	}
	w1, err := requireRole(roles, "wing1")
	if err != nil {
		return nil, "", err
	}
	w2, err := requireRole(roles, "wing2")
	if err != nil {
		return nil, "", err
	}
	bodyDir, wingDir := constant.Long, constant.Short
	if sign <= 0 {
		bodyDir, wingDir = constant.Short, constant.Long
	}
	lb, err := createLeg(body, bodyDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l1, err := createLeg(w1, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(w2, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{lb, l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

func buildInverseButterfly(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	body, err := requireRole(roles, "body")
	if err != nil {
		return nil, "", err
	}
	w1, err := requireRole(roles, "wing1")
	if err != nil {
		return nil, "", err
	}
	w2, err := requireRole(roles, "wing2")
	if err != nil {
		return nil, "", err
	}
	bodyDir, wingDir := constant.Short, constant.Long
	if sign <= 0 {
		bodyDir, wingDir = constant.Long, constant.Short
	}
	lb, err := createLeg(body, bodyDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l1, err := createLeg(w1, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	l2, err := createLeg(w2, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{lb, l1, l2}
	return legs, GenerateComboSignature(legs), nil
}

func buildIronButterfly(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	pw, err := requireRole(roles, "put_wing")
	if err != nil {
		return nil, "", err
	}
	body, err := requireRole(roles, "body")
	if err != nil {
		return nil, "", err
	}
	cw, err := requireRole(roles, "call_wing")
	if err != nil {
		return nil, "", err
	}
	wingDir, bodyDir := constant.Long, constant.Short
	if sign <= 0 {
		wingDir, bodyDir = constant.Short, constant.Long
	}
	lpw, err := createLeg(pw, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lbody, err := createLeg(body, bodyDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lcw, err := createLeg(cw, wingDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{lpw, lbody, lcw}
	return legs, GenerateComboSignature(legs), nil
}

func buildIronCondor(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	pl, err := requireRole(roles, "put_lower")
	if err != nil {
		return nil, "", err
	}
	pu, err := requireRole(roles, "put_upper")
	if err != nil {
		return nil, "", err
	}
	cl, err := requireRole(roles, "call_lower")
	if err != nil {
		return nil, "", err
	}
	cu, err := requireRole(roles, "call_upper")
	if err != nil {
		return nil, "", err
	}
	innerDir, outerDir := constant.Long, constant.Short
	if sign <= 0 {
		innerDir, outerDir = constant.Short, constant.Long
	}
	lpl, err := createLeg(pl, innerDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lpu, err := createLeg(pu, outerDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lcl, err := createLeg(cl, outerDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lcu, err := createLeg(cu, innerDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{lpl, lpu, lcl, lcu}
	return legs, GenerateComboSignature(legs), nil
}

func buildCondor(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	lp, err := requireRole(roles, "long_put")
	if err != nil {
		return nil, "", err
	}
	sp, err := requireRole(roles, "short_put")
	if err != nil {
		return nil, "", err
	}
	sc, err := requireRole(roles, "short_call")
	if err != nil {
		return nil, "", err
	}
	lc, err := requireRole(roles, "long_call")
	if err != nil {
		return nil, "", err
	}
	longDir, shortDir := constant.Long, constant.Short
	if sign <= 0 {
		longDir, shortDir = constant.Short, constant.Long
	}
	llp, err := createLeg(lp, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lsp, err := createLeg(sp, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lsc, err := createLeg(sc, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	llc, err := createLeg(lc, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{llp, lsp, lsc, llc}
	return legs, GenerateComboSignature(legs), nil
}

func buildBoxSpread(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc) ([]object.Leg, string, error) {
	sign := 1
	if direction == constant.Short {
		sign = -1
	}
	lc, err := requireRole(roles, "long_call")
	if err != nil {
		return nil, "", err
	}
	sc, err := requireRole(roles, "short_call")
	if err != nil {
		return nil, "", err
	}
	sp, err := requireRole(roles, "short_put")
	if err != nil {
		return nil, "", err
	}
	lp, err := requireRole(roles, "long_put")
	if err != nil {
		return nil, "", err
	}
	longDir, shortDir := constant.Long, constant.Short
	if sign <= 0 {
		longDir, shortDir = constant.Short, constant.Long
	}
	llc, err := createLeg(lc, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lsc, err := createLeg(sc, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	lsp, err := createLeg(sp, shortDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	llp, err := createLeg(lp, longDir, volume, getContract)
	if err != nil {
		return nil, "", err
	}
	legs := []object.Leg{llc, lsc, lsp, llp}
	return legs, GenerateComboSignature(legs), nil
}

// buildCustom builds one leg per role in an unspecified order (matching
// the original's unordered_map iteration), logging each leg it creates.
func buildCustom(roles map[string]*portfolio.OptionData, direction constant.Direction, volume int, getContract GetContractFunc, logFn func(object.LogData)) ([]object.Leg, string, error) {
	var legs []object.Leg
	for _, opt := range roles {
		leg, err := createLeg(opt, direction, volume, getContract)
		if err != nil {
			return nil, "", err
		}
		legs = append(legs, leg)
		if logFn != nil {
			logFn(object.LogData{
				BaseData: object.BaseData{GatewayName: "Combo"},
				Msg:      fmt.Sprintf("custom combo leg: %s | direction: %d | volume: %d", leg.Symbol, leg.Direction, leg.Ratio),
				Level:    object.LogDebug,
			})
		}
	}
	return legs, GenerateComboSignature(legs), nil
}

// GenerateComboSignature builds the canonical multi-leg signature: for
// every leg symbol with at least 4 '-'-delimited tokens, concatenate
// tokens[1]+tokens[2]+tokens[3]; sort the resulting fragments
// lexicographically and join with '-'.
func GenerateComboSignature(legs []object.Leg) string {
	var parts []string
	for _, leg := range legs {
		if leg.Symbol == "" {
			continue
		}
		var tokens []string
		for _, tok := range strings.Split(leg.Symbol, constant.JoinSymbol) {
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
		if len(tokens) >= 4 {
			parts = append(parts, tokens[1]+tokens[2]+tokens[3])
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "-")
}
