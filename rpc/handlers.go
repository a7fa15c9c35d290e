package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subledger/indexer"
)

func methodTable() map[string]method {
	return map[string]method{
		"market_registerProvider":    {write: true, handler: handleRegisterProvider},
		"market_removeProvider":      {write: true, handler: handleRemoveProvider},
		"market_setProviderStatus":   {write: true, handler: handleSetProviderStatus},
		"market_registerSubscriber":  {write: true, handler: handleRegisterSubscriber},
		"market_deposit":             {write: true, handler: handleDeposit},
		"market_subscribe":           {write: true, handler: handleSubscribe},
		"market_pause":               {write: true, handler: handlePause},
		"market_settle":              {write: true, handler: handleSettle},
		"market_payDebt":             {write: true, handler: handlePayDebt},
		"market_withdrawEarnings":    {write: true, handler: handleWithdrawEarnings},
		"market_processBillingCycle": {write: true, handler: handleProcessBillingCycle},
		"market_setMinimumFee":       {write: true, handler: handleSetMinimumFee},
		"market_setMinimumDeposit":   {write: true, handler: handleSetMinimumDeposit},
		"market_setProviderCapacity": {write: true, handler: handleSetProviderCapacity},
		"market_setPeriodLength":     {write: true, handler: handleSetPeriodLength},
		"market_transferAdmin":       {write: true, handler: handleTransferAdmin},
		"market_setPaused":           {write: true, handler: handleSetPaused},

		"market_getProvider":           {handler: handleGetProvider},
		"market_getSubscriber":         {handler: handleGetSubscriber},
		"market_getSubscription":       {handler: handleGetSubscription},
		"market_subscriptionKey":       {handler: handleSubscriptionKey},
		"market_estimateCost":          {handler: handleEstimateCost},
		"market_canWithdraw":           {handler: handleCanWithdraw},
		"market_providerSubscriptions": {handler: handleProviderSubscriptions},
		"market_stableBalance":         {handler: handleStableBalance},
		"market_assetBalance":          {handler: handleAssetBalance},
		"market_params":                {handler: handleParams},
		"market_totals":                {handler: handleTotals},
		"market_status":                {handler: handleStatus},
		"market_listEvents":            {handler: handleListEvents},
	}
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (p callerParams) caller() ([20]byte, error) {
	return parseAddress("caller", p.Caller)
}

type providerParams struct {
	callerParams
	Provider string `json:"provider"`
	Fee      string `json:"fee,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Active   *bool  `json:"active,omitempty"`
}

type subscriberParams struct {
	callerParams
	Subscriber string `json:"subscriber"`
	Provider   string `json:"provider,omitempty"`
	Amount     string `json:"amount,omitempty"`
}

type keyParams struct {
	callerParams
	Key    string `json:"key"`
	Amount string `json:"amount,omitempty"`
}

type adminParams struct {
	callerParams
	Amount string  `json:"amount,omitempty"`
	Value  *uint64 `json:"value,omitempty"`
	Admin  string  `json:"admin,omitempty"`
	Paused *bool   `json:"paused,omitempty"`
}

func handleRegisterProvider(ctx context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount("fee", p.Fee)
	if err != nil {
		return nil, err
	}
	plan, err := parsePlan(p.Plan)
	if err != nil {
		return nil, err
	}
	provider, err := s.ledger.RegisterProvider(ctx, caller, id, fee, plan)
	if err != nil {
		return nil, err
	}
	return formatProvider(provider), nil
}

func handleRemoveProvider(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	paid, err := s.ledger.RemoveProvider(caller, id)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(paid)}, nil
}

func handleSetProviderStatus(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	if p.Active == nil {
		return nil, invalidParams("active required", nil)
	}
	provider, err := s.ledger.SetProviderStatus(caller, id, *p.Active)
	if err != nil {
		return nil, err
	}
	return formatProvider(provider), nil
}

func handleRegisterSubscriber(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	subscriber, err := s.ledger.RegisterSubscriber(caller, id)
	if err != nil {
		return nil, err
	}
	return formatSubscriber(subscriber), nil
}

func handleDeposit(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	subscriber, err := s.ledger.Deposit(caller, id, amount)
	if err != nil {
		return nil, err
	}
	return formatSubscriber(subscriber), nil
}

func handleSubscribe(ctx context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	subscriberID, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	providerID, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger.Subscribe(ctx, caller, subscriberID, providerID)
	if err != nil {
		return nil, err
	}
	return formatSubscription(sub), nil
}

func handlePause(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p keyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	key, err := parseKey(p.Key)
	if err != nil {
		return nil, err
	}
	settled, err := s.ledger.Pause(caller, key)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(settled)}, nil
}

func handleSettle(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p keyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	key, err := parseKey(p.Key)
	if err != nil {
		return nil, err
	}
	settled, err := s.ledger.Settle(key)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(settled)}, nil
}

func handlePayDebt(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p keyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	key, err := parseKey(p.Key)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger.PayDebt(caller, key, amount)
	if err != nil {
		return nil, err
	}
	return formatSubscription(sub), nil
}

func handleWithdrawEarnings(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	paid, err := s.ledger.WithdrawEarnings(caller, id)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(paid)}, nil
}

func handleProcessBillingCycle(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	credited, err := s.ledger.ProcessBillingCycle(caller, id)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(credited)}, nil
}

func handleSetMinimumFee(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	params, err := s.ledger.SetMinimumFee(caller, amount)
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleSetMinimumDeposit(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	params, err := s.ledger.SetMinimumDeposit(caller, amount)
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleSetProviderCapacity(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	if p.Value == nil {
		return nil, invalidParams("value required", nil)
	}
	params, err := s.ledger.SetProviderCapacity(caller, *p.Value)
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleSetPeriodLength(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	if p.Value == nil {
		return nil, invalidParams("value required", nil)
	}
	params, err := s.ledger.SetPeriodLength(caller, *p.Value)
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleTransferAdmin(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	next, err := parseAddress("admin", p.Admin)
	if err != nil {
		return nil, err
	}
	params, err := s.ledger.TransferAdmin(caller, next)
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleSetPaused(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p adminParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := p.caller()
	if err != nil {
		return nil, err
	}
	if p.Paused == nil {
		return nil, invalidParams("paused required", nil)
	}
	if err := s.ledger.SetModulePaused(caller, *p.Paused); err != nil {
		return nil, err
	}
	return map[string]bool{"paused": *p.Paused}, nil
}

func handleGetProvider(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := s.ledger.Provider(id)
	if err != nil {
		return nil, err
	}
	return formatProvider(provider), nil
}

func handleGetSubscriber(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	subscriber, err := s.ledger.Subscriber(id)
	if err != nil {
		return nil, err
	}
	return formatSubscriber(subscriber), nil
}

func handleGetSubscription(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p keyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	key, err := parseKey(p.Key)
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger.Subscription(key)
	if err != nil {
		return nil, err
	}
	return formatSubscription(sub), nil
}

func handleSubscriptionKey(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	subscriberID, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	providerID, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	return map[string]string{"key": s.ledger.SubscriptionKey(subscriberID, providerID).String()}, nil
}

func handleEstimateCost(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p keyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	key, err := parseKey(p.Key)
	if err != nil {
		return nil, err
	}
	estimate, err := s.ledger.EstimateCost(key)
	if err != nil {
		return nil, err
	}
	return EstimateResult{
		Key:         key.String(),
		RatePerTick: amountString(estimate.RatePerTick),
		Owed:        amountString(estimate.Owed),
		Elapsed:     estimate.Elapsed,
	}, nil
}

func handleCanWithdraw(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	ok, err := s.ledger.CanWithdraw(id)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"canWithdraw": ok}, nil
}

func handleProviderSubscriptions(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p providerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := parseProviderID(p.Provider)
	if err != nil {
		return nil, err
	}
	keys, err := s.ledger.ProviderSubscriptions(id)
	if err != nil {
		return nil, err
	}
	return formatKeys(keys), nil
}

func handleStableBalance(ctx context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p subscriberParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	id, err := parseSubscriberID(p.Subscriber)
	if err != nil {
		return nil, err
	}
	value, err := s.ledger.StableBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(value)}, nil
}

func handleAssetBalance(_ context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	var p struct {
		Address string `json:"address"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	bal, err := s.ledger.AssetBalance(addr)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(bal)}, nil
}

func handleParams(_ context.Context, s *Server, _ []json.RawMessage) (interface{}, error) {
	params, err := s.ledger.Params()
	if err != nil {
		return nil, err
	}
	return formatParams(params), nil
}

func handleTotals(_ context.Context, s *Server, _ []json.RawMessage) (interface{}, error) {
	totals, err := s.ledger.Totals()
	if err != nil {
		return nil, err
	}
	return formatTotals(totals), nil
}

func handleStatus(_ context.Context, s *Server, _ []json.RawMessage) (interface{}, error) {
	count, capacity, err := s.ledger.ProviderCount()
	if err != nil {
		return nil, err
	}
	return StatusResult{
		Tick:      s.ledger.Tick(),
		Height:    s.ledger.Height(),
		Paused:    s.ledger.Paused(),
		Providers: count,
		Capacity:  capacity,
	}, nil
}

type listEventsParams struct {
	Type         string `json:"type,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Subscriber   string `json:"subscriber,omitempty"`
	Subscription string `json:"key,omitempty"`
	FromHeight   uint64 `json:"fromHeight,omitempty"`
	ToHeight     uint64 `json:"toHeight,omitempty"`
	AfterSeq     uint64 `json:"afterSeq,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

func handleListEvents(ctx context.Context, s *Server, raw []json.RawMessage) (interface{}, error) {
	if s.journal == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event journal not configured"}
	}
	var p listEventsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, invalidParams("limit must not be negative", nil)
	}
	records, err := s.journal.List(ctx, indexer.Filter{
		Type:         p.Type,
		Provider:     strings.ToLower(strings.TrimSpace(p.Provider)),
		Subscriber:   strings.ToLower(strings.TrimSpace(p.Subscriber)),
		Subscription: strings.ToLower(strings.TrimSpace(p.Subscription)),
		FromHeight:   p.FromHeight,
		ToHeight:     p.ToHeight,
		AfterSeq:     p.AfterSeq,
		Limit:        p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]EventResult, 0, len(records))
	for _, record := range records {
		evt, err := formatEvent(record)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}
