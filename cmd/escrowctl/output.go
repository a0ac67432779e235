package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"smartescrow/core/types"
	"smartescrow/crypto"
	"smartescrow/native/escrow"
)

type eventResult struct {
	Sequence   int               `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type commandOutput struct {
	Result any           `json:"result,omitempty"`
	Events []eventResult `json:"events"`
}

type balanceResult struct {
	Token   string `json:"token"`
	Holder  string `json:"holder"`
	Balance string `json:"balance"`
}

type keyResult struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Bech32  string `json:"bech32"`
}

type signatureResult struct {
	Signer    string `json:"signer"`
	Hash      string `json:"hash"`
	Milestone uint64 `json:"milestone"`
	RefundBPS uint32 `json:"refundBps"`
	Signature string `json:"signature"`
}

type resolutionResult struct {
	Kind                 string  `json:"kind"`
	Resolver             *string `json:"resolver,omitempty"`
	ResolutionRateBPS    *uint32 `json:"resolutionRateBps,omitempty"`
	MaxResolutionRateBPS *uint32 `json:"maxResolutionRateBps,omitempty"`
	Arbitrator           *string `json:"arbitrator,omitempty"`
	ExtraData            *string `json:"extraData,omitempty"`
	DisputeID            *uint64 `json:"disputeId,omitempty"`
}

type engagementResult struct {
	ID                  string           `json:"id"`
	Address             string           `json:"address"`
	Client              string           `json:"client"`
	ClientBech32        string           `json:"clientBech32"`
	Provider            string           `json:"provider"`
	ProviderBech32      string           `json:"providerBech32"`
	ClientReceiver      string           `json:"clientReceiver"`
	ProviderReceiver    string           `json:"providerReceiver"`
	Token               string           `json:"token"`
	Amounts             []string         `json:"amounts"`
	Total               string           `json:"total"`
	Milestone           uint64           `json:"milestone"`
	Released            string           `json:"released"`
	Balance             string           `json:"balance,omitempty"`
	TerminationTime     int64            `json:"terminationTime"`
	Details             string           `json:"details,omitempty"`
	RequireVerification bool             `json:"requireVerification"`
	Verified            bool             `json:"verified"`
	FeeBPS              uint32           `json:"feeBps"`
	Treasury            string           `json:"treasury,omitempty"`
	Payout              string           `json:"payout"`
	Resolution          resolutionResult `json:"resolution"`
	Locked              bool             `json:"locked"`
	CreatedAt           int64            `json:"createdAt"`
}

func engagementView(eng *escrow.Engagement, balance *big.Int) engagementResult {
	amounts := make([]string, len(eng.Amounts))
	for i, amount := range eng.Amounts {
		amounts[i] = amount.String()
	}
	view := engagementResult{
		ID:                  common.Hash(eng.ID).Hex(),
		Address:             eng.Address.Hex(),
		Client:              eng.Client.Hex(),
		ClientBech32:        crypto.NewAddress(crypto.EscrowPrefix, eng.Client).String(),
		Provider:            eng.Provider.Hex(),
		ProviderBech32:      crypto.NewAddress(crypto.EscrowPrefix, eng.Provider).String(),
		ClientReceiver:      eng.ClientPayee().Hex(),
		ProviderReceiver:    eng.ProviderPayee().Hex(),
		Token:               eng.Token.Hex(),
		Amounts:             amounts,
		Total:               eng.Total().String(),
		Milestone:           eng.Milestone,
		Released:            eng.Released.String(),
		TerminationTime:     eng.TerminationTime,
		Details:             eng.Details,
		RequireVerification: eng.RequireVerification,
		Verified:            eng.Verified,
		FeeBPS:              eng.FeeBPS,
		Payout:              eng.Payout.String(),
		Resolution:          resolutionResult{Kind: eng.Resolution.String()},
		Locked:              eng.Locked,
		CreatedAt:           eng.CreatedAt,
	}
	if balance != nil {
		view.Balance = balance.String()
	}
	if eng.Treasury != (common.Address{}) {
		view.Treasury = eng.Treasury.Hex()
	}
	switch eng.Resolution {
	case escrow.ResolutionIndividual:
		resolver := eng.Resolver.Resolver.Hex()
		rate := eng.Resolver.ResolutionRateBPS
		maxRate := eng.Resolver.MaxResolutionRateBPS
		view.Resolution.Resolver = &resolver
		view.Resolution.ResolutionRateBPS = &rate
		view.Resolution.MaxResolutionRateBPS = &maxRate
	case escrow.ResolutionArbitration:
		arbitrator := eng.Arbitration.Arbitrator.Hex()
		extra := hexutil.Encode(eng.Arbitration.ExtraData)
		view.Resolution.Arbitrator = &arbitrator
		view.Resolution.ExtraData = &extra
		if eng.HasDispute {
			disputeID := eng.DisputeID
			view.Resolution.DisputeID = &disputeID
		}
	}
	return view
}

func eventsOf(evts []*types.Event) []eventResult {
	out := make([]eventResult, 0, len(evts))
	for i, evt := range evts {
		out = append(out, eventResult{Sequence: i + 1, Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
