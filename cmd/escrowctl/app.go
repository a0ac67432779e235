package main

import (
	"fmt"
	"log/slog"

	"smartescrow/config"
	"smartescrow/core/events"
	"smartescrow/core/state"
	"smartescrow/crypto"
	"smartescrow/native/arbitration"
	"smartescrow/native/bank"
	"smartescrow/native/escrow"
	"smartescrow/native/splits"
	"smartescrow/observability"
	"smartescrow/storage"
)

var newKeyring = crypto.NewKeyring

// app wires one engine instance over the data directory for the duration of
// a single command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        storage.Database
	state     *state.Manager
	ledger    *bank.Ledger
	warehouse *splits.Warehouse
	court     *arbitration.Court
	engine    *escrow.Engine
	recorder  *events.Recorder
	keys      *crypto.Keyring
}

func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	splitsAddr, err := cfg.SplitsAddress()
	if err != nil {
		return nil, err
	}
	courtAddr, err := cfg.ArbitratorAddress()
	if err != nil {
		return nil, err
	}
	caseFee, err := cfg.CaseFee()
	if err != nil {
		return nil, err
	}
	wrapped, err := cfg.WrappedNative()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}

	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)
	recorder := &events.Recorder{}

	warehouse := splits.NewWarehouse(splitsAddr, ledger)
	warehouse.SetEmitter(recorder)
	court := arbitration.NewCourt(courtAddr, manager, caseFee)
	court.SetEmitter(recorder)

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetPayoutBackend(warehouse)
	engine.SetWrappedNative(wrapped)
	engine.SetUnlockDomain(escrow.UnlockDomain{
		Name:    cfg.DomainName,
		Version: cfg.DomainVersion,
		ChainID: cfg.ChainIDBig(),
	})
	engine.SetLogger(logger.With("component", "escrow"))
	engine.SetMetrics(observability.Escrow())
	engine.SetEmitter(recorder)
	engine.RegisterArbitrator(court.Address(), court)
	court.SetRulingHandler(engine)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		state:     manager,
		ledger:    ledger,
		warehouse: warehouse,
		court:     court,
		engine:    engine,
		recorder:  recorder,
		keys:      newKeyring(cfg.KeystoreDir),
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
