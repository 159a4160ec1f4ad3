package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"tipbot/engine/custody"
	"tipbot/messaging/social"
	"tipbot/state/accounts"
	"tipbot/state/transfers"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tipbot.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAddress(t *testing.T) string {
	t.Helper()
	addr, _, err := custody.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	return addr
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tipbot.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	a := &accounts.Account{Handle: "@alice", ExternalID: "ext-1", CustodyMode: accounts.SelfManaged}
	if err := s.SaveAccount(context.Background(), a); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if _, err := s.FindAccountByHandle(context.Background(), "@alice"); err != nil {
		t.Errorf("FindAccountByHandle() after reopen error = %v", err)
	}
}

func TestSaveAndFind(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	addr := newAddress(t)

	ph := &accounts.Account{
		Handle:        "@Bob",
		ExternalID:    accounts.PlaceholderPrefix + "1",
		PublicAddress: addr,
		Secret:        "sealed",
		CustodyMode:   accounts.Custodial,
	}
	if err := s.SaveAccount(ctx, ph); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	if ph.ID == 0 {
		t.Fatal("SaveAccount() did not assign an id")
	}
	if _, err := s.FindAccountByHandle(ctx, "@bob"); !errors.Is(err, accounts.ErrNotFound) {
		t.Errorf("FindAccountByHandle() on a placeholder error = %v, want ErrNotFound", err)
	}
	got, err := s.FindPlaceholderByHandle(ctx, "@BOB")
	if err != nil {
		t.Fatalf("FindPlaceholderByHandle() error = %v", err)
	}
	if got.Handle != "@Bob" || got.PublicAddress != addr || got.Secret != "sealed" || got.CustodyMode != accounts.Custodial {
		t.Errorf("FindPlaceholderByHandle() = %+v", got)
	}
	byAddr, err := s.FindAccountByAddress(ctx, addr)
	if err != nil || byAddr.ID != ph.ID {
		t.Errorf("FindAccountByAddress() = %v, %v", byAddr, err)
	}

	got.ExternalID = "ext-bob"
	if err := s.SaveAccount(ctx, got); err != nil {
		t.Fatalf("upgrade SaveAccount() error = %v", err)
	}
	up, err := s.FindAccountByHandle(ctx, "@bob")
	if err != nil {
		t.Fatalf("FindAccountByHandle() after upgrade error = %v", err)
	}
	if up.PublicAddress != addr {
		t.Errorf("address after upgrade = %s, want %s", up.PublicAddress, addr)
	}
}

func TestUniqueViolations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	addr := newAddress(t)

	first := &accounts.Account{Handle: "@carol", ExternalID: "ext-1", PublicAddress: addr, CustodyMode: accounts.SelfManaged}
	if err := s.SaveAccount(ctx, first); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	tests := []struct {
		name string
		a    *accounts.Account
	}{
		{"same handle other case", &accounts.Account{Handle: "@CAROL", ExternalID: "ext-2", CustodyMode: accounts.SelfManaged}},
		{"same address", &accounts.Account{Handle: "@dave", ExternalID: "ext-3", PublicAddress: addr, CustodyMode: accounts.SelfManaged}},
		{"same external id", &accounts.Account{Handle: "@erin", ExternalID: "ext-1", CustodyMode: accounts.SelfManaged}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SaveAccount(ctx, tt.a); !errors.Is(err, accounts.ErrUniqueViolation) {
				t.Errorf("SaveAccount() error = %v, want ErrUniqueViolation", err)
			}
			if tt.a.ID != 0 {
				t.Errorf("failed insert assigned id %d", tt.a.ID)
			}
		})
	}
	// accounts without an address do not collide with each other
	for _, h := range []string{"@frank", "@gina"} {
		if err := s.SaveAccount(ctx, &accounts.Account{Handle: h, ExternalID: "ext-" + h, CustodyMode: accounts.SelfManaged}); err != nil {
			t.Errorf("SaveAccount(%s) error = %v", h, err)
		}
	}
}

func TestAddressIsImmutable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := &accounts.Account{Handle: "@hank", ExternalID: "ext-h", PublicAddress: newAddress(t), CustodyMode: accounts.SelfManaged}
	if err := s.SaveAccount(ctx, a); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	a.PublicAddress = newAddress(t)
	if err := s.SaveAccount(ctx, a); err == nil {
		t.Error("SaveAccount() replaced an address")
	}
}

func TestHistoryAndClaims(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	at := time.UnixMilli(1700000000123).UTC()
	a := &accounts.Account{Handle: "@ivy", ExternalID: "ext-ivy", PublicAddress: newAddress(t), CustodyMode: accounts.Custodial, Secret: "x"}
	a.AddClaim(accounts.PendingClaim{Amount: decimal.RequireFromString("0.1"), Currency: "SOL", OriginReference: "p1", Sender: "@a", CreatedAt: at})
	a.AddClaim(accounts.PendingClaim{Amount: decimal.RequireFromString("0.2"), Currency: "SOL", OriginReference: "p2", Sender: "@a", CreatedAt: at})
	if err := s.SaveAccount(ctx, a); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	a.RemoveClaim("p1", "@a")
	a.AppendEvent(accounts.LedgerEvent{
		Direction:          accounts.Credit,
		Amount:             decimal.RequireFromString("0.1"),
		Currency:           "SOL",
		CounterpartyHandle: "@a",
		ChainTxID:          "tx-1",
		OriginReferences:   []string{"p1"},
		Timestamp:          at,
	})
	if err := s.SaveAccount(ctx, a); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	// saving again must not duplicate history
	if err := s.SaveAccount(ctx, a); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	got, err := s.FindAccountByHandle(ctx, "@ivy")
	if err != nil {
		t.Fatalf("FindAccountByHandle() error = %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("History = %+v, want one event", got.History)
	}
	e := got.History[0]
	if !e.Amount.Equal(decimal.RequireFromString("0.1")) || e.ChainTxID != "tx-1" || !e.Timestamp.Equal(at) {
		t.Errorf("event = %+v", e)
	}
	if len(e.OriginReferences) != 1 || e.OriginReferences[0] != "p1" {
		t.Errorf("origins = %v, want [p1]", e.OriginReferences)
	}
	if len(got.PendingClaims) != 1 || got.PendingClaims[0].OriginReference != "p2" {
		t.Errorf("claims = %+v, want only p2", got.PendingClaims)
	}

	got.History = nil
	if err := s.SaveAccount(ctx, got); err == nil {
		t.Error("SaveAccount() dropped history without error")
	}
}

func TestListAccounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, h := range []string{"@a", "@b", "@c"} {
		if err := s.SaveAccount(ctx, &accounts.Account{Handle: h, ExternalID: "ext" + h, CustodyMode: accounts.SelfManaged}); err != nil {
			t.Fatalf("SaveAccount() error = %v", err)
		}
	}
	all, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(all) != 3 || all[0].Handle != "@a" || all[2].Handle != "@c" {
		t.Errorf("ListAccounts() = %v", all)
	}
}

func TestCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	c, err := s.LoadCursor(ctx, "mentions")
	if err != nil || !c.IsZero() {
		t.Fatalf("LoadCursor() = %+v, %v, want zero", c, err)
	}
	want := social.Cursor{SinceID: "abc", SinceAt: time.Unix(1700000000, 0).UTC()}
	for i := 0; i < 2; i++ {
		if err := s.SaveCursor(ctx, "mentions", want); err != nil {
			t.Fatalf("SaveCursor() error = %v", err)
		}
	}
	c, err = s.LoadCursor(ctx, "mentions")
	if err != nil {
		t.Fatalf("LoadCursor() error = %v", err)
	}
	if c.SinceID != want.SinceID || !c.SinceAt.Equal(want.SinceAt) {
		t.Errorf("LoadCursor() = %+v, want %+v", c, want)
	}
}

func TestUnsettled(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	tr := transfers.Transfer{
		ChainTxID:   "tx-9",
		Sender:      "@a",
		Recipient:   "@b",
		ToAddress:   "addr",
		Amount:      decimal.RequireFromString("1.25"),
		Currency:    "SOL",
		Origins:     []string{"p1", "p2"},
		SubmittedAt: time.UnixMilli(1700000000000).UTC(),
	}
	if err := s.SaveUnsettled(ctx, tr); err != nil {
		t.Fatalf("SaveUnsettled() error = %v", err)
	}
	if inFlight, err := transfers.InFlight(ctx, s, "p2", "@A"); err != nil || !inFlight {
		t.Errorf("InFlight() = %v, %v, want true", inFlight, err)
	}
	list, err := s.ListUnsettled(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListUnsettled() = %v, %v", list, err)
	}
	got := list[0]
	if !got.Amount.Equal(tr.Amount) || len(got.Origins) != 2 || !got.SubmittedAt.Equal(tr.SubmittedAt) {
		t.Errorf("ListUnsettled()[0] = %+v", got)
	}
	if err := s.DeleteUnsettled(ctx, "tx-9"); err != nil {
		t.Fatalf("DeleteUnsettled() error = %v", err)
	}
	if list, _ := s.ListUnsettled(ctx); len(list) != 0 {
		t.Errorf("ListUnsettled() after delete = %v", list)
	}
}

func TestResolverOverSQLite(t *testing.T) {
	s := setupTestStore(t)
	key, _ := custody.GenerateKey()
	keys, err := custody.NewKeyring(key)
	if err != nil {
		t.Fatalf("NewKeyring() error = %v", err)
	}
	r := accounts.NewResolver(s, keys)
	ctx := context.Background()

	ph, err := r.EnsureCustodialAccount(ctx, "jane", "")
	if err != nil {
		t.Fatalf("EnsureCustodialAccount() error = %v", err)
	}
	again, err := r.EnsureCustodialAccount(ctx, "JANE", "")
	if err != nil || again.PublicAddress != ph.PublicAddress {
		t.Fatalf("second EnsureCustodialAccount() = %v, %v", again, err)
	}
	up, err := r.EnsureCustodialAccount(ctx, "jane", "ext-jane")
	if err != nil {
		t.Fatalf("upgrade error = %v", err)
	}
	if up.PublicAddress != ph.PublicAddress || up.IsPlaceholder() {
		t.Errorf("upgrade = %+v, want registered at %s", up, ph.PublicAddress)
	}
}
