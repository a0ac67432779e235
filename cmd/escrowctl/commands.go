package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"smartescrow/cmd/internal/passphrase"
	"smartescrow/crypto"
	"smartescrow/native/arbitration"
	"smartescrow/native/escrow"
	"smartescrow/observability/logging"
	escrowotel "smartescrow/observability/otel"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	return nil
}

func required(flagName, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: --%s is required", errUsage, flagName)
	}
	return trimmed, nil
}

func requiredAddress(flagName, value string) (common.Address, error) {
	trimmed, err := required(flagName, value)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}

func optionalAddress(flagName, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	return requiredAddress(flagName, value)
}

func parseAmount(flagName, value string) (*big.Int, error) {
	trimmed, err := required(flagName, value)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("--%s: %q is not a base-10 integer", flagName, trimmed)
	}
	return amount, nil
}

func parseAmounts(flagName, value string) ([]*big.Int, error) {
	trimmed, err := required(flagName, value)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(trimmed, ",")
	out := make([]*big.Int, 0, len(parts))
	for _, part := range parts {
		amount, err := parseAmount(flagName, part)
		if err != nil {
			return nil, err
		}
		out = append(out, amount)
	}
	return out, nil
}

func parseEngagementID(value string) ([32]byte, error) {
	var id [32]byte
	trimmed, err := required("id", value)
	if err != nil {
		return id, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("--id: %q is not a 32-byte hex identifier", trimmed)
	}
	copy(id[:], raw)
	return id, nil
}

func parseSignature(flagName, value string) ([]byte, error) {
	trimmed, err := required(flagName, value)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flagName, err)
	}
	return sig, nil
}

// emitted wraps a command result with the events the engine emitted.
func (a *app) emitted(out io.Writer, result any) error {
	return printJSON(out, commandOutput{Result: result, Events: eventsOf(a.recorder.Events())})
}

func runKeygen(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("keygen")
	name := fs.String("name", "", "key name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	keyName, err := required("name", *name)
	if err != nil {
		return err
	}
	pass, err := passphrase.NewSource(passphrase.DefaultEnvVar, keyName).Get()
	if err != nil {
		return err
	}
	key, err := a.keys.Generate(keyName, pass)
	if err != nil {
		return err
	}
	a.logger.Info("key generated", logging.MaskField("keystore", a.keys.Path(keyName)))
	return printJSON(out, keyResult{Name: keyName, Address: key.Address().Hex(), Bech32: key.Bech32().String()})
}

func runKeys(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("keys")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	names, err := a.keys.Names()
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	return printJSON(out, names)
}

func runMint(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("mint")
	token := fs.String("token", "", "token address (0x0 for the native asset)")
	to := fs.String("to", "", "recipient")
	amount := fs.String("amount", "", "amount in base units")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	tokenAddr, err := optionalAddress("token", *token)
	if err != nil {
		return err
	}
	recipient, err := requiredAddress("to", *to)
	if err != nil {
		return err
	}
	value, err := parseAmount("amount", *amount)
	if err != nil {
		return err
	}
	if err := a.ledger.Mint(tokenAddr, recipient, value); err != nil {
		return err
	}
	balance, err := a.ledger.BalanceOf(tokenAddr, recipient)
	if err != nil {
		return err
	}
	return printJSON(out, balanceResult{Token: tokenAddr.Hex(), Holder: recipient.Hex(), Balance: balance.String()})
}

func runBalance(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("balance")
	token := fs.String("token", "", "token address (0x0 for the native asset)")
	holder := fs.String("holder", "", "holder address")
	id := fs.String("id", "", "engagement identifier")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) != "" {
		engID, err := parseEngagementID(*id)
		if err != nil {
			return err
		}
		eng, err := a.engine.Get(engID)
		if err != nil {
			return err
		}
		balance, err := a.engine.Balance(engID)
		if err != nil {
			return err
		}
		return printJSON(out, balanceResult{Token: eng.Token.Hex(), Holder: eng.Address.Hex(), Balance: balance.String()})
	}
	tokenAddr, err := optionalAddress("token", *token)
	if err != nil {
		return err
	}
	holderAddr, err := requiredAddress("holder", *holder)
	if err != nil {
		return err
	}
	balance, err := a.ledger.BalanceOf(tokenAddr, holderAddr)
	if err != nil {
		return err
	}
	return printJSON(out, balanceResult{Token: tokenAddr.Hex(), Holder: holderAddr.Hex(), Balance: balance.String()})
}

func runCreate(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("create")
	client := fs.String("client", "", "client address")
	provider := fs.String("provider", "", "provider address")
	clientReceiver := fs.String("client-receiver", "", "optional client payout address")
	providerReceiver := fs.String("provider-receiver", "", "optional provider payout address")
	token := fs.String("token", "", "token address")
	amounts := fs.String("amounts", "", "comma-separated milestone amounts")
	termination := fs.Int64("termination", 0, "termination time as unix timestamp")
	duration := fs.Duration("duration", 30*24*time.Hour, "termination relative to now when --termination is unset")
	details := fs.String("details", "", "engagement details URI")
	nonce := fs.Uint64("nonce", 0, "creation nonce; defaults to the current unix time in nanoseconds")
	requireVerification := fs.Bool("require-verification", false, "reject third-party deposits until the client verifies")
	feeBPS := fs.Uint("fee-bps", uint(a.cfg.FeeBPS), "payout fee in basis points")
	treasury := fs.String("treasury", a.cfg.Treasury, "fee treasury")
	pull := fs.Bool("pull", false, "credit payouts to the splits warehouse instead of pushing them")
	resolver := fs.String("resolver", "", "individual resolver address")
	maxRate := fs.Uint("max-rate-bps", escrow.BPSDenominator, "highest resolver rate accepted")
	arbitrated := fs.Bool("arbitration", false, "route disputes to the configured court")
	jurors := fs.Uint64("jurors", 1, "jurors requested from the court")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	params := escrow.CreateParams{
		Details:             strings.TrimSpace(*details),
		Nonce:               *nonce,
		RequireVerification: *requireVerification,
		FeeBPS:              uint32(*feeBPS),
	}
	var err error
	if params.Client, err = requiredAddress("client", *client); err != nil {
		return err
	}
	if params.Provider, err = requiredAddress("provider", *provider); err != nil {
		return err
	}
	if params.ClientReceiver, err = optionalAddress("client-receiver", *clientReceiver); err != nil {
		return err
	}
	if params.ProviderReceiver, err = optionalAddress("provider-receiver", *providerReceiver); err != nil {
		return err
	}
	if params.Token, err = requiredAddress("token", *token); err != nil {
		return err
	}
	if params.Amounts, err = parseAmounts("amounts", *amounts); err != nil {
		return err
	}
	if params.Treasury, err = optionalAddress("treasury", *treasury); err != nil {
		return err
	}
	params.TerminationTime = *termination
	if params.TerminationTime == 0 {
		params.TerminationTime = time.Now().Add(*duration).Unix()
	}
	if params.Nonce == 0 {
		params.Nonce = uint64(time.Now().UnixNano())
	}
	if *pull {
		params.Payout = escrow.PayoutPull
	}
	switch {
	case strings.TrimSpace(*resolver) != "" && *arbitrated:
		return fmt.Errorf("%w: --resolver and --arbitration are mutually exclusive", errUsage)
	case strings.TrimSpace(*resolver) != "":
		params.Resolution = escrow.ResolutionIndividual
		if params.Resolver, err = requiredAddress("resolver", *resolver); err != nil {
			return err
		}
		params.MaxResolutionRateBPS = uint32(*maxRate)
	case *arbitrated:
		params.Resolution = escrow.ResolutionArbitration
		params.Arbitrator = a.court.Address()
		params.ArbitrationExtraData = arbitration.EncodeJurors(*jurors)
	}

	eng, err := a.engine.Create(params)
	if err != nil {
		return err
	}
	return a.emitted(out, engagementView(eng, nil))
}

func runShow(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	id := fs.String("id", "", "engagement identifier")
	all := fs.Bool("all", false, "list every engagement")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *all {
		ids, err := a.state.EngagementIDs()
		if err != nil {
			return err
		}
		views := make([]engagementResult, 0, len(ids))
		for _, engID := range ids {
			view, err := a.show(engID)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return printJSON(out, views)
	}
	engID, err := parseEngagementID(*id)
	if err != nil {
		return err
	}
	view, err := a.show(engID)
	if err != nil {
		return err
	}
	return printJSON(out, view)
}

func (a *app) show(id [32]byte) (engagementResult, error) {
	eng, err := a.engine.Get(id)
	if err != nil {
		return engagementResult{}, err
	}
	balance, err := a.engine.Balance(id)
	if err != nil {
		return engagementResult{}, err
	}
	return engagementView(eng, balance), nil
}

// engagementCommand parses the flags shared by single-engagement mutations
// and returns the identifier and caller.
func engagementCommand(ctx context.Context, fs *flag.FlagSet, args []string, id, from *string) ([32]byte, common.Address, error) {
	if err := parseFlags(fs, args); err != nil {
		return [32]byte{}, common.Address{}, err
	}
	engID, err := parseEngagementID(*id)
	if err != nil {
		return engID, common.Address{}, err
	}
	if from == nil {
		escrowotel.AnnotateEngagement(ctx, fs.Name(), common.Hash(engID).Hex(), "")
		return engID, common.Address{}, nil
	}
	caller, err := requiredAddress("from", *from)
	if err != nil {
		return engID, caller, err
	}
	escrowotel.AnnotateEngagement(ctx, fs.Name(), common.Hash(engID).Hex(), caller.Hex())
	return engID, caller, nil
}

func runDeposit(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("deposit")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "depositor")
	amount := fs.String("amount", "", "amount in base units")
	native := fs.Bool("native", false, "deposit native value wrapped into the engagement token")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	value, err := parseAmount("amount", *amount)
	if err != nil {
		return err
	}
	if *native {
		err = a.engine.DepositNative(engID, caller, value)
	} else {
		err = a.engine.Deposit(engID, caller, value)
	}
	if err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runWrapStray(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("wrap-stray")
	id := fs.String("id", "", "engagement identifier")
	engID, _, err := engagementCommand(ctx, fs, args, id, nil)
	if err != nil {
		return err
	}
	if err := a.engine.WrapStrayNative(engID); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runRelease(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("release")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "client address")
	milestone := fs.Int64("milestone", -1, "release every milestone up to and including this index")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	if *milestone >= 0 {
		err = a.engine.ReleaseMilestone(engID, caller, uint64(*milestone))
	} else {
		err = a.engine.Release(engID, caller)
	}
	if err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runReleaseTokens(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("release-tokens")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "client address")
	token := fs.String("token", "", "stray token to release")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	tokenAddr, err := optionalAddress("token", *token)
	if err != nil {
		return err
	}
	if err := a.engine.ReleaseTokens(engID, caller, tokenAddr); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runWithdraw(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("withdraw")
	id := fs.String("id", "", "engagement identifier")
	token := fs.String("token", "", "withdraw a stray token instead of the engagement token")
	engID, _, err := engagementCommand(ctx, fs, args, id, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*token) != "" {
		tokenAddr, err := requiredAddress("token", *token)
		if err != nil {
			return err
		}
		err = a.engine.WithdrawTokens(engID, tokenAddr)
		if err != nil {
			return err
		}
		return a.emitted(out, nil)
	}
	if err := a.engine.Withdraw(engID); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runVerify(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("verify")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "client address")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	if err := a.engine.Verify(engID, caller); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runAddMilestones(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("add-milestones")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "client address")
	amounts := fs.String("amounts", "", "comma-separated milestone amounts")
	details := fs.String("details", "", "details URI")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	values, err := parseAmounts("amounts", *amounts)
	if err != nil {
		return err
	}
	if err := a.engine.AddMilestones(engID, caller, values, *details); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runUpdate(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("update")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "party address")
	client := fs.String("client", "", "new client")
	provider := fs.String("provider", "", "new provider")
	clientReceiver := fs.String("client-receiver", "", "new client payout address")
	providerReceiver := fs.String("provider-receiver", "", "new provider payout address")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	updates := []struct {
		flag  string
		value string
		apply func([32]byte, common.Address, common.Address) error
	}{
		{"client", *client, a.engine.UpdateClient},
		{"provider", *provider, a.engine.UpdateProvider},
		{"client-receiver", *clientReceiver, a.engine.UpdateClientReceiver},
		{"provider-receiver", *providerReceiver, a.engine.UpdateProviderReceiver},
	}
	applied := 0
	for _, update := range updates {
		if strings.TrimSpace(update.value) == "" {
			continue
		}
		next, err := requiredAddress(update.flag, update.value)
		if err != nil {
			return err
		}
		if err := update.apply(engID, caller, next); err != nil {
			return err
		}
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("%w: update needs at least one of --client, --provider, --client-receiver, --provider-receiver", errUsage)
	}
	return a.emitted(out, nil)
}

func runSetRate(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("set-rate")
	resolver := fs.String("resolver", "", "resolver address")
	bps := fs.Uint("bps", escrow.DefaultResolutionRateBPS, "resolution fee in basis points")
	details := fs.String("details", "", "details URI")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	resolverAddr, err := requiredAddress("resolver", *resolver)
	if err != nil {
		return err
	}
	if err := a.engine.SetResolutionRate(resolverAddr, uint32(*bps), *details); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runLock(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("lock")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "party address")
	details := fs.String("details", "", "dispute details URI")
	fee := fs.String("fee", "", "native arbitration fee; defaults to the court's quote")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	var value *big.Int
	if strings.TrimSpace(*fee) != "" {
		if value, err = parseAmount("fee", *fee); err != nil {
			return err
		}
	} else {
		eng, err := a.engine.Get(engID)
		if err != nil {
			return err
		}
		if eng.Resolution == escrow.ResolutionArbitration {
			if value, err = a.court.ArbitrationCost(eng.Arbitration.ExtraData); err != nil {
				return err
			}
		}
	}
	if err := a.engine.Lock(engID, caller, *details, value); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runResolve(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("resolve")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "resolver address")
	award := fs.Uint("client-award-bps", 0, "share of the post-fee balance awarded to the client")
	details := fs.String("details", "", "resolution details URI")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	if err := a.engine.Resolve(engID, caller, uint32(*award), *details); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runRule(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("rule")
	dispute := fs.Uint64("dispute", 0, "court case identifier")
	ruling := fs.Uint64("ruling", 0, "0 splits evenly, 1 favours the client, 2 the provider")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dispute == 0 {
		return fmt.Errorf("%w: --dispute is required", errUsage)
	}
	if err := a.court.GiveRuling(*dispute, *ruling); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runEvidence(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("evidence")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "party address")
	evidence := fs.String("evidence", "", "evidence URI")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	uri, err := required("evidence", *evidence)
	if err != nil {
		return err
	}
	if err := a.engine.SubmitEvidence(engID, caller, uri); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

// unlockData resolves the unlock payload, defaulting the milestone to the
// engagement's current position.
func (a *app) unlockData(id [32]byte, milestone int64, refundBPS uint, uri string) (escrow.UnlockData, error) {
	data := escrow.UnlockData{RefundBPS: uint32(refundBPS), UnlockURI: uri}
	if milestone >= 0 {
		data.Milestone = uint64(milestone)
		return data, nil
	}
	eng, err := a.engine.Get(id)
	if err != nil {
		return data, err
	}
	data.Milestone = eng.Milestone
	return data, nil
}

func runUnlockSign(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("unlock-sign")
	id := fs.String("id", "", "engagement identifier")
	keyName := fs.String("key", "", "keystore key to sign with")
	refund := fs.Uint("refund-bps", 0, "share of the balance refunded to the client")
	uri := fs.String("uri", "", "settlement URI")
	milestone := fs.Int64("milestone", -1, "milestone the agreement is pinned to; defaults to the current one")
	engID, _, err := engagementCommand(ctx, fs, args, id, nil)
	if err != nil {
		return err
	}
	name, err := required("key", *keyName)
	if err != nil {
		return err
	}
	data, err := a.unlockData(engID, *milestone, *refund, *uri)
	if err != nil {
		return err
	}
	hash, err := a.engine.UnlockHash(engID, data)
	if err != nil {
		return err
	}
	pass, err := passphrase.NewSource(passphrase.DefaultEnvVar, name).Get()
	if err != nil {
		return err
	}
	key, err := a.keys.Load(name, pass)
	if err != nil {
		return err
	}
	sig, err := escrow.SignUnlock(hash, key.PrivateKey)
	if err != nil {
		return err
	}
	a.logger.Debug("unlock signed", "engagement", common.Hash(engID).Hex(), logging.MaskField("signature", hexutil.Encode(sig)))
	return printJSON(out, signatureResult{
		Signer:    key.Address().Hex(),
		Hash:      hexutil.Encode(hash[:]),
		Milestone: data.Milestone,
		RefundBPS: data.RefundBPS,
		Signature: hexutil.Encode(sig),
	})
}

func runUnlock(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("unlock")
	id := fs.String("id", "", "engagement identifier")
	from := fs.String("from", "", "submitter address")
	refund := fs.Uint("refund-bps", 0, "share of the balance refunded to the client")
	uri := fs.String("uri", "", "settlement URI")
	milestone := fs.Int64("milestone", -1, "milestone the agreement is pinned to; defaults to the current one")
	clientSig := fs.String("client-sig", "", "client signature")
	providerSig := fs.String("provider-sig", "", "provider signature")
	engID, caller, err := engagementCommand(ctx, fs, args, id, from)
	if err != nil {
		return err
	}
	clientBytes, err := parseSignature("client-sig", *clientSig)
	if err != nil {
		return err
	}
	providerBytes, err := parseSignature("provider-sig", *providerSig)
	if err != nil {
		return err
	}
	data, err := a.unlockData(engID, *milestone, *refund, *uri)
	if err != nil {
		return err
	}
	if err := a.engine.Unlock(engID, caller, data, escrow.PackUnlockSignatures(clientBytes, providerBytes)); err != nil {
		return err
	}
	return a.emitted(out, nil)
}

func runClaim(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("claim")
	recipient := fs.String("recipient", "", "recipient address")
	token := fs.String("token", "", "token address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	recipientAddr, err := requiredAddress("recipient", *recipient)
	if err != nil {
		return err
	}
	tokenAddr, err := requiredAddress("token", *token)
	if err != nil {
		return err
	}
	paid, err := a.warehouse.Withdraw(recipientAddr, tokenAddr)
	if err != nil {
		return err
	}
	return a.emitted(out, balanceResult{Token: tokenAddr.Hex(), Holder: recipientAddr.Hex(), Balance: paid.String()})
}
