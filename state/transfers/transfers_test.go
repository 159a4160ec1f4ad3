package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"tipbot/engine/custody"
	"tipbot/messaging/chain"
	"tipbot/state/accounts"
	"tipbot/state/tips"
)

const lamportsPerSOL = 1_000_000_000

type testEnv struct {
	exec     *Executor
	store    *accounts.MemoryStore
	resolver *accounts.Resolver
	chain    *chain.Simulated
	ledger   *MemoryLedger
}

func setupTestExecutor(t *testing.T) *testEnv {
	t.Helper()
	key, err := custody.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	keys, err := custody.NewKeyring(key)
	if err != nil {
		t.Fatalf("NewKeyring() error = %v", err)
	}
	store := accounts.NewMemoryStore()
	sim := chain.NewSimulated()
	ledger := NewMemoryLedger()
	cfg := Config{
		NativeCurrency:  "SOL",
		Decimals:        9,
		FeeMargin:       5000,
		ConfirmInterval: time.Millisecond,
		ConfirmTimeout:  20 * time.Millisecond,
	}
	return &testEnv{
		exec:     NewExecutor(sim, store, keys, ledger, cfg),
		store:    store,
		resolver: accounts.NewResolver(store, keys),
		chain:    sim,
		ledger:   ledger,
	}
}

func (env *testEnv) account(t *testing.T, handle string) *accounts.Account {
	t.Helper()
	a, err := env.resolver.EnsureCustodialAccount(context.Background(), handle, "")
	if err != nil {
		t.Fatalf("EnsureCustodialAccount(%s) error = %v", handle, err)
	}
	return a
}

func (env *testEnv) reload(t *testing.T, handle string) *accounts.Account {
	t.Helper()
	a, err := env.resolver.Lookup(context.Background(), handle)
	if err != nil {
		t.Fatalf("Lookup(%s) error = %v", handle, err)
	}
	return a
}

func batch(sender, recipient, currency string, amounts ...string) *tips.Batch {
	var in []tips.TipIntent
	for i, a := range amounts {
		in = append(in, tips.TipIntent{
			Sender:          sender,
			Recipient:       recipient,
			Amount:          decimal.RequireFromString(a),
			Currency:        currency,
			OriginReference: "post-" + string(rune('a'+i)),
		})
	}
	return tips.Aggregate(in)[0]
}

func TestExecuteConfirmed(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)

	bob.AddClaim(accounts.PendingClaim{OriginReference: "post-a", Sender: "@alice", Amount: decimal.RequireFromString("0.3"), Currency: "SOL"})
	if err := env.store.SaveAccount(ctx, bob); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	b := batch("@alice", "@bob", "SOL", "0.3", "0.2")
	res := env.exec.Execute(ctx, b, alice, bob)
	if res.Outcome != Confirmed {
		t.Fatalf("Outcome = %s (%v), want confirmed", res.Outcome, res.Err)
	}
	if n := env.chain.SubmitCount(); n != 1 {
		t.Fatalf("submits = %d, want 1", n)
	}
	if got := env.chain.Submits[0].Amount; got != 500_000_000 {
		t.Errorf("submitted %d lamports, want 500000000", got)
	}

	bob = env.reload(t, "@bob")
	if len(bob.History) != 1 || bob.History[0].Direction != accounts.Credit {
		t.Fatalf("bob history = %+v, want one credit", bob.History)
	}
	if !bob.History[0].Amount.Equal(b.Total) || bob.History[0].ChainTxID != res.TxID {
		t.Errorf("credit = %+v, want %s in %s", bob.History[0], b.Total, res.TxID)
	}
	if len(bob.PendingClaims) != 0 {
		t.Errorf("claims left after confirmed credit: %+v", bob.PendingClaims)
	}
	alice = env.reload(t, "@alice")
	if len(alice.History) != 1 || alice.History[0].Direction != accounts.Debit {
		t.Errorf("alice history = %+v, want one debit", alice.History)
	}
}

func TestExecuteRecordsAmountMovedOnChain(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)

	res := env.exec.Execute(ctx, batch("@alice", "@bob", "SOL", "0.0000000015"), alice, bob)
	if res.Outcome != Confirmed {
		t.Fatalf("Outcome = %s (%v), want confirmed", res.Outcome, res.Err)
	}
	if got := env.chain.Submits[0].Amount; got != 1 {
		t.Fatalf("submitted %d lamports, want 1", got)
	}
	want := decimal.RequireFromString("0.000000001")
	bob = env.reload(t, "@bob")
	if len(bob.History) != 1 || !bob.History[0].Amount.Equal(want) {
		t.Errorf("bob history = %+v, want a credit of %s", bob.History, want)
	}
	alice = env.reload(t, "@alice")
	if len(alice.History) != 1 || !alice.History[0].Amount.Equal(want) {
		t.Errorf("alice history = %+v, want a debit of %s", alice.History, want)
	}
}

func TestExecuteInsufficientFundsNeverSubmits(t *testing.T) {
	env := setupTestExecutor(t)
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	// exactly the amount, nothing left for the fee
	env.chain.Fund(alice.PublicAddress, 500_000_000)

	res := env.exec.Execute(context.Background(), batch("@alice", "@bob", "SOL", "0.5"), alice, bob)
	if res.Outcome != InsufficientFunds {
		t.Fatalf("Outcome = %s, want insufficient funds", res.Outcome)
	}
	if n := env.chain.SubmitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}
}

func TestExecuteNotEligible(t *testing.T) {
	env := setupTestExecutor(t)
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	ownAddr, _, _ := custody.NewKeypair()
	selfManaged := &accounts.Account{Handle: "@carol", PublicAddress: ownAddr, CustodyMode: accounts.SelfManaged}

	tests := []struct {
		name      string
		b         *tips.Batch
		sender    *accounts.Account
		recipient *accounts.Account
		wantErr   error
	}{
		{"self-managed sender", batch("@carol", "@bob", "SOL", "0.1"), selfManaged, bob, ErrNotCustodial},
		{"no recipient address", batch("@alice", "@dan", "SOL", "0.1"), alice, &accounts.Account{Handle: "@dan"}, ErrNoAddress},
		{"non-native currency", batch("@alice", "@bob", "USDC", "1"), alice, bob, ErrNotNative},
		{"zero amount", batch("@alice", "@bob", "SOL", "0"), alice, bob, ErrInvalidAmount},
		{"below one lamport", batch("@alice", "@bob", "SOL", "0.0000000001"), alice, bob, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.exec.Execute(context.Background(), tt.b, tt.sender, tt.recipient)
			if res.Outcome != NotEligible || !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Execute() = %s %v, want not eligible %v", res.Outcome, res.Err, tt.wantErr)
			}
		})
	}
	if n := env.chain.SubmitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}
}

func TestExecuteDecryptionFailure(t *testing.T) {
	env := setupTestExecutor(t)
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	alice.Secret = "00ff"

	res := env.exec.Execute(context.Background(), batch("@alice", "@bob", "SOL", "0.1"), alice, bob)
	if res.Outcome != DecryptionFailed || !errors.Is(res.Err, custody.ErrDecrypt) {
		t.Fatalf("Execute() = %s %v, want decryption failed", res.Outcome, res.Err)
	}
	if n := env.chain.SubmitCount(); n != 0 {
		t.Errorf("submits = %d, want 0", n)
	}
}

func TestExecuteChainRejected(t *testing.T) {
	env := setupTestExecutor(t)
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	env.chain.Reject = true

	res := env.exec.Execute(context.Background(), batch("@alice", "@bob", "SOL", "0.1"), alice, bob)
	if res.Outcome != ChainRejected || !res.Submitted() {
		t.Fatalf("Execute() = %s %q, want rejected with a tx id", res.Outcome, res.TxID)
	}
	if bob = env.reload(t, "@bob"); len(bob.History) != 0 {
		t.Errorf("rejected transfer credited bob: %+v", bob.History)
	}
}

func TestExecuteSubmitFailed(t *testing.T) {
	env := setupTestExecutor(t)
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	env.chain.SubmitErr = errors.New("rpc unavailable")

	res := env.exec.Execute(context.Background(), batch("@alice", "@bob", "SOL", "0.1"), alice, bob)
	if res.Outcome != SubmitFailed || res.Submitted() {
		t.Fatalf("Execute() = %s %q, want submit failed without tx id", res.Outcome, res.TxID)
	}
}

func TestTimedOutTransferIsReconciled(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	env.chain.Hold = true

	res := env.exec.Execute(ctx, batch("@alice", "@bob", "SOL", "0.25"), alice, bob)
	if res.Outcome != TimedOut {
		t.Fatalf("Outcome = %s, want timed out", res.Outcome)
	}
	if inFlight, _ := InFlight(ctx, env.ledger, "post-a", "@ALICE"); !inFlight {
		t.Error("InFlight() = false for the timed out origin")
	}

	r := NewReconciler(env.exec, time.Hour)
	rep, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if rep.Pending != 1 || rep.Settled != 0 {
		t.Fatalf("Sweep() = %+v, want one pending", rep)
	}

	env.chain.Resolve(res.TxID, chain.Confirmed)
	if rep, _ = r.Sweep(ctx); rep.Settled != 1 {
		t.Fatalf("Sweep() = %+v, want one settled", rep)
	}
	if rep, _ = r.Sweep(ctx); rep != (SweepReport{}) {
		t.Errorf("second Sweep() = %+v, want nothing to do", rep)
	}
	bob = env.reload(t, "@bob")
	if len(bob.History) != 1 || bob.History[0].ChainTxID != res.TxID {
		t.Errorf("bob history = %+v, want the late credit", bob.History)
	}
}

func TestSweepDropsRejectedAndStale(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	bob := env.account(t, "@bob")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	env.chain.Hold = true

	first := env.exec.Execute(ctx, batch("@alice", "@bob", "SOL", "0.1"), alice, bob)
	second := env.exec.Execute(ctx, batch("@alice", "@bob", "SOL", "0.2"), alice, bob)
	env.chain.Resolve(first.TxID, chain.Rejected)

	r := NewReconciler(env.exec, time.Hour)
	env.exec.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	rep, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if rep.Dropped != 2 {
		t.Errorf("Sweep() = %+v, want both dropped", rep)
	}
	if list, _ := env.ledger.ListUnsettled(ctx); len(list) != 0 {
		t.Errorf("unsettled = %+v, want empty (second was %s)", list, second.TxID)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	env.account(t, "@alice")
	env.account(t, "@bob")
	tr := Transfer{
		ChainTxID: "tx-1",
		Sender:    "@alice",
		Recipient: "@bob",
		Amount:    decimal.RequireFromString("1"),
		Currency:  "SOL",
		Origins:   []string{"post-a"},
	}
	for i := 0; i < 2; i++ {
		if err := env.exec.Settle(ctx, tr); err != nil {
			t.Fatalf("Settle() error = %v", err)
		}
	}
	if bob := env.reload(t, "@bob"); len(bob.History) != 1 {
		t.Errorf("bob history has %d events, want 1", len(bob.History))
	}
	if alice := env.reload(t, "@alice"); len(alice.History) != 1 {
		t.Errorf("alice history has %d events, want 1", len(alice.History))
	}
}

func TestWithdraw(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	env.chain.Fund(alice.PublicAddress, lamportsPerSOL)
	dest, _, _ := custody.NewKeypair()

	if res := env.exec.Withdraw(ctx, "@alice", "nope", decimal.RequireFromString("0.1")); res.Outcome != NotEligible {
		t.Errorf("Withdraw(bad address) = %s, want not eligible", res.Outcome)
	}
	if res := env.exec.Withdraw(ctx, "@alice", dest, decimal.Zero); !errors.Is(res.Err, ErrInvalidAmount) {
		t.Errorf("Withdraw(0) error = %v, want ErrInvalidAmount", res.Err)
	}
	res := env.exec.Withdraw(ctx, "@alice", dest, decimal.RequireFromString("0.4"))
	if res.Outcome != Confirmed {
		t.Fatalf("Withdraw() = %s %v, want confirmed", res.Outcome, res.Err)
	}
	if b, _ := env.chain.GetBalance(ctx, dest); b != 400_000_000 {
		t.Errorf("destination balance = %d, want 400000000", b)
	}
	alice = env.reload(t, "@alice")
	if len(alice.History) != 1 || alice.History[0].CounterpartyHandle != dest {
		t.Errorf("alice history = %+v, want a debit to %s", alice.History, dest)
	}
}

func TestBaseUnits(t *testing.T) {
	cfg := Config{Decimals: 9}
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 1_000_000_000, false},
		{"0.5", 500_000_000, false},
		{"0.000000001", 1, false},
		{"0.0000000019", 1, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"0.0000000001", 0, true},
	}
	for _, tt := range tests {
		got, err := cfg.BaseUnits(decimal.RequireFromString(tt.in))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("BaseUnits(%s) = %d, %v, want %d, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
	if got := cfg.DisplayUnits(1_500_000_000); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("DisplayUnits() = %s, want 1.5", got)
	}
}

func TestBalance(t *testing.T) {
	env := setupTestExecutor(t)
	ctx := context.Background()
	alice := env.account(t, "@alice")
	env.chain.Fund(alice.PublicAddress, 1_500_000_000)

	got, err := env.exec.Balance(ctx, "@ALICE")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if want := decimal.RequireFromString("1.5"); !got.Equal(want) {
		t.Errorf("Balance() = %s, want %s", got, want)
	}
	if _, err := env.exec.Balance(ctx, "@nobody"); !errors.Is(err, accounts.ErrNotFound) {
		t.Errorf("Balance(@nobody) error = %v, want ErrNotFound", err)
	}
}
