package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"subledger/crypto"
	"subledger/indexer"
	"subledger/native/market"
)

// ProviderResult is the RPC view of a provider.
type ProviderResult struct {
	ID                  string `json:"id"`
	Owner               string `json:"owner"`
	FeePerPeriod        string `json:"feePerPeriod"`
	Balance             string `json:"balance"`
	Plan                string `json:"plan"`
	Active              bool   `json:"active"`
	PausedAt            uint64 `json:"pausedAt,omitempty"`
	ActiveSubscriptions uint64 `json:"activeSubscriptions"`
	RegisteredAt        uint64 `json:"registeredAt"`
}

// SubscriberResult is the RPC view of a subscriber.
type SubscriberResult struct {
	ID            string   `json:"id"`
	Owner         string   `json:"owner"`
	Balance       string   `json:"balance"`
	Subscriptions []string `json:"subscriptions"`
}

// SubscriptionResult is the RPC view of a subscription.
type SubscriptionResult struct {
	Key           string `json:"key"`
	Provider      string `json:"provider"`
	Subscriber    string `json:"subscriber"`
	Status        string `json:"status"`
	SubscribedAt  uint64 `json:"subscribedAt"`
	PausedAt      uint64 `json:"pausedAt,omitempty"`
	LastSettledAt uint64 `json:"lastSettledAt"`
	DebtPaid      string `json:"debtPaid"`
	AccrualCarry  string `json:"accrualCarry"`
}

type EstimateResult struct {
	Key         string `json:"key"`
	RatePerTick string `json:"ratePerTick"`
	Owed        string `json:"owed"`
	Elapsed     uint64 `json:"elapsed"`
}

type ParamsResult struct {
	Admin          string `json:"admin"`
	Vault          string `json:"vault"`
	Asset          string `json:"asset"`
	MinimumFee     string `json:"minimumFee"`
	MinimumDeposit string `json:"minimumDeposit"`
	MaxProviders   uint64 `json:"maxProviders"`
	PeriodLength   uint64 `json:"periodLength"`
}

type TotalsResult struct {
	Deposited     string `json:"deposited"`
	DebtPaidIn    string `json:"debtPaidIn"`
	FlatBilled    string `json:"flatBilled"`
	Withdrawn     string `json:"withdrawn"`
	Uncollectible string `json:"uncollectible"`
}

type StatusResult struct {
	Tick      uint64 `json:"tick"`
	Height    uint64 `json:"height"`
	Paused    bool   `json:"paused"`
	Providers uint64 `json:"providers"`
	Capacity  uint64 `json:"capacity"`
}

type EventResult struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

type AmountResult struct {
	Amount string `json:"amount"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr [20]byte) string {
	return crypto.FromArray(addr).String()
}

func formatProvider(p *market.Provider) ProviderResult {
	return ProviderResult{
		ID:                  p.ID.String(),
		Owner:               addressString(p.Owner),
		FeePerPeriod:        amountString(p.FeePerPeriod),
		Balance:             amountString(p.Balance),
		Plan:                p.Plan.String(),
		Active:              p.Active(),
		PausedAt:            p.PausedAt,
		ActiveSubscriptions: p.ActiveSubscriptions,
		RegisteredAt:        p.RegisteredAt,
	}
}

func formatSubscriber(s *market.Subscriber) SubscriberResult {
	return SubscriberResult{
		ID:            s.ID.String(),
		Owner:         addressString(s.Owner),
		Balance:       amountString(s.Balance),
		Subscriptions: formatKeys(s.Subscriptions),
	}
}

func formatSubscription(s *market.Subscription) SubscriptionResult {
	return SubscriptionResult{
		Key:           s.Key.String(),
		Provider:      s.ProviderID.String(),
		Subscriber:    s.SubscriberID.String(),
		Status:        s.Status.String(),
		SubscribedAt:  s.SubscribedAt,
		PausedAt:      s.PausedAt,
		LastSettledAt: s.LastSettledAt,
		DebtPaid:      amountString(s.DebtPaid),
		AccrualCarry:  amountString(s.AccrualCarry),
	}
}

func formatKeys(keys []market.SubscriptionKey) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.String())
	}
	return out
}

func formatParams(p market.Params) ParamsResult {
	return ParamsResult{
		Admin:          addressString(p.Admin),
		Vault:          addressString(p.Vault),
		Asset:          p.Asset.Hex(),
		MinimumFee:     amountString(p.MinimumFee),
		MinimumDeposit: amountString(p.MinimumDeposit),
		MaxProviders:   p.MaxProviders,
		PeriodLength:   p.PeriodLength,
	}
}

func formatTotals(t *market.Totals) TotalsResult {
	return TotalsResult{
		Deposited:     amountString(t.Deposited),
		DebtPaidIn:    amountString(t.DebtPaidIn),
		FlatBilled:    amountString(t.FlatBilled),
		Withdrawn:     amountString(t.Withdrawn),
		Uncollectible: amountString(t.Uncollectible),
	}
}

func formatEvent(record indexer.EventRecord) (EventResult, error) {
	evt, err := record.Decoded()
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{
		Seq:        record.Seq,
		ID:         record.EventID.String(),
		Type:       record.Type,
		Height:     record.Height,
		Attributes: evt.Attributes,
	}, nil
}

// decodeParams unmarshals the single object parameter into out. A missing
// parameter leaves out untouched.
func decodeParams(params []json.RawMessage, out interface{}) error {
	switch len(params) {
	case 0:
		return nil
	case 1:
		if err := json.Unmarshal(params[0], out); err != nil {
			return invalidParams("invalid parameter object", err)
		}
		return nil
	default:
		return invalidParams("expected a single parameter object", nil)
	}
}

func invalidParams(message string, cause error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message}
	if cause != nil {
		rpcErr.Data = cause.Error()
	}
	return rpcErr
}

func parseBytes32(field, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil {
		return out, invalidParams(fmt.Sprintf("invalid %s", field), err)
	}
	if len(raw) != len(out) {
		return out, invalidParams(fmt.Sprintf("invalid %s", field), fmt.Errorf("expected 32 bytes, got %d", len(raw)))
	}
	copy(out[:], raw)
	return out, nil
}

func parseProviderID(value string) (market.ProviderID, error) {
	id, err := parseBytes32("provider", value)
	return market.ProviderID(id), err
}

func parseSubscriberID(value string) (market.SubscriberID, error) {
	id, err := parseBytes32("subscriber", value)
	return market.SubscriberID(id), err
}

func parseKey(value string) (market.SubscriptionKey, error) {
	key, err := parseBytes32("key", value)
	return market.SubscriptionKey(key), err
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, invalidParams(fmt.Sprintf("invalid %s", field), err)
	}
	return addr.Array(), nil
}

// parseAmount accepts a decimal string or a 0x-prefixed quantity.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams(fmt.Sprintf("%s required", field), nil)
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		amount, err := hexutil.DecodeBig(strings.ToLower(trimmed))
		if err != nil {
			return nil, invalidParams(fmt.Sprintf("invalid %s", field), err)
		}
		return amount, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(fmt.Sprintf("invalid %s", field), fmt.Errorf("not a decimal integer: %q", trimmed))
	}
	return amount, nil
}

func parsePlan(value string) (market.Plan, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "basic":
		return market.PlanBasic, nil
	case "standard":
		return market.PlanStandard, nil
	case "premium":
		return market.PlanPremium, nil
	default:
		return 0, invalidParams("invalid plan", fmt.Errorf("unknown plan %q", value))
	}
}
