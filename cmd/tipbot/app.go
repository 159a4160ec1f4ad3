package main

import (
	"fmt"

	"tipbot/engine/actors"
	"tipbot/engine/custody"
	"tipbot/engine/library"
	"tipbot/messaging/chain"
	"tipbot/messaging/social"
	"tipbot/state/accounts"
	"tipbot/state/accounts/sqlite"
	"tipbot/state/claims"
	"tipbot/state/poller"
	"tipbot/state/tips"
	"tipbot/state/transfers"
)

// simulatedEndpoint as chain.rpcEndpoint runs against an in-process ledger instead of a node.
const simulatedEndpoint = "simulated"

// app holds every wired component. Commands build it once and close it on the way out.
type app struct {
	settings   actors.Settings
	secrets    actors.Secrets
	store      *sqlite.Store
	keys       *custody.Keyring
	chain      chain.Chain
	resolver   *accounts.Resolver
	exec       *transfers.Executor
	claims     *claims.Ledger
	reconciler *transfers.Reconciler
}

func openApp() (*app, error) {
	settings, err := actors.LoadSettings(actors.MakeOrGetConfig())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	secrets, err := actors.ParseSecrets()
	if err != nil {
		return nil, err
	}
	keys, err := custody.NewKeyring(secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("TIPBOT_ENCRYPTION_KEY: %w", err)
	}
	library.LogCLI(fmt.Sprintf("custody key fingerprint %s", keys.Fingerprint()), 3)

	store, err := sqlite.Open(settings.DatabasePath)
	if err != nil {
		return nil, err
	}

	var c chain.Chain
	if settings.RPCEndpoint == simulatedEndpoint {
		library.LogCLI("using the simulated chain, nothing leaves this process", 2)
		c = chain.NewSimulated()
	} else {
		c = chain.NewSolana(settings.RPCEndpoint)
	}

	exec := transfers.NewExecutor(c, store, keys, store, transfers.Config{
		NativeCurrency:  settings.NativeCurrency,
		Decimals:        settings.NativeDecimals,
		FeeMargin:       settings.FeeMargin,
		ConfirmInterval: settings.ConfirmInterval,
		ConfirmTimeout:  settings.ConfirmTimeout,
	})
	return &app{
		settings:   settings,
		secrets:    secrets,
		store:      store,
		keys:       keys,
		chain:      c,
		resolver:   accounts.NewResolver(store, keys),
		exec:       exec,
		claims:     claims.New(store, exec, store),
		reconciler: transfers.NewReconciler(exec, settings.ReconcileMaxAge),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		library.LogCLI(err.Error(), 1)
	}
}

// poller connects to the relays as the bot identity. Only the polling commands need it.
func (a *app) poller() (*poller.Poller, error) {
	wallet, err := actors.BotWallet(a.settings.RootDir, a.secrets.NostrSecret)
	if err != nil {
		return nil, err
	}
	parser, err := tips.NewParser(a.settings.BotHandle, a.settings.Currencies, a.settings.NativeCurrency)
	if err != nil {
		return nil, err
	}
	s := social.NewNostr(a.settings.Relays, wallet, a.settings.BotHandle, a.settings.FetchTimeout, a.settings.MaxMentions)
	return poller.New(s, parser, a.resolver, a.exec, a.claims, a.store, a.store, poller.Config{
		BotHandle:     a.settings.BotHandle,
		Query:         a.settings.BotQuery,
		ExplorerTxURL: a.settings.ExplorerTxURL,
	}), nil
}
