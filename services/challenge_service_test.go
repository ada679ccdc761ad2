package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arenaworks/wager-arena/models"
)

type challengeHarness struct {
	store *fakeStore
	svc   *challengeService
	clock *time.Time
}

func newChallengeHarness() *challengeHarness {
	store := newFakeStore()
	accountRepo := &fakeAccountRepo{store: store}
	challengeRepo := &fakeChallengeRepo{store: store}
	svc := NewChallengeService(
		&fakeTxRunner{store: store},
		challengeRepo,
		accountRepo,
		NewLedger(accountRepo),
		NopNotifier{},
		nil,
		discardLogger(),
	).(*challengeService)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := &challengeHarness{store: store, svc: svc, clock: &now}
	svc.now = func() time.Time { return *h.clock }
	return h
}

func (h *challengeHarness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

func (h *challengeHarness) balance(t *testing.T, userID int) int64 {
	t.Helper()
	account, ok := h.store.accounts[userID]
	if !ok {
		t.Fatalf("account %d not found", userID)
	}
	return account.Balance
}

func TestChallengeSettlesOnMatchingReports(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 1000)
	h.store.seedAccount(2, 1000)
	initialTotal := h.store.totalBalance()

	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := h.balance(t, 1); got != 900 {
		t.Fatalf("creator balance after escrow = %d, want 900", got)
	}

	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if got := h.balance(t, 2); got != 900 {
		t.Fatalf("opponent balance after escrow = %d, want 900", got)
	}

	updated, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 1})
	if err != nil {
		t.Fatalf("first report: %v", err)
	}
	if updated.Status != models.ChallengeAccepted {
		t.Fatalf("status after one report = %s, want accepted", updated.Status)
	}
	if got := h.balance(t, 1); got != 900 {
		t.Fatalf("balance moved on a single report: %d", got)
	}

	updated, err = h.svc.SubmitReport(ctx, challenge.ID, 2, SubmitReportInput{ClaimedWinner: 1})
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if updated.Status != models.ChallengeCompleted {
		t.Fatalf("status after matching reports = %s, want completed", updated.Status)
	}
	if updated.WinnerID == nil || *updated.WinnerID != 1 {
		t.Fatalf("winner = %v, want 1", updated.WinnerID)
	}
	if got := h.balance(t, 1); got != 1100 {
		t.Fatalf("winner balance = %d, want 1100", got)
	}
	if got := h.balance(t, 2); got != 900 {
		t.Fatalf("loser balance = %d, want 900", got)
	}
	if h.store.totalBalance() != initialTotal {
		t.Fatalf("coin supply changed: %d -> %d", initialTotal, h.store.totalBalance())
	}
	if h.store.accounts[1].WinCount != 1 || h.store.accounts[2].LossCount != 1 {
		t.Fatalf("win/loss counters not updated")
	}
}

func TestChallengeDisagreementDisputesAndAdminResolves(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)
	initialTotal := h.store.totalBalance()

	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 50})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 1}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	updated, err := h.svc.SubmitReport(ctx, challenge.ID, 2, SubmitReportInput{ClaimedWinner: 2})
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if updated.Status != models.ChallengeDisputed {
		t.Fatalf("status = %s, want disputed", updated.Status)
	}
	// No coins move on a dispute.
	if h.balance(t, 1) != 450 || h.balance(t, 2) != 450 {
		t.Fatalf("escrow released on dispute")
	}

	// Nothing but an admin ruling leaves the disputed state.
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("report on disputed challenge: err = %v, want ErrInvalidTransition", err)
	}

	resolved, err := h.svc.ResolveDispute(ctx, challenge.ID, 2)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.ChallengeCompleted || *resolved.WinnerID != 2 {
		t.Fatalf("resolution: status=%s winner=%v", resolved.Status, resolved.WinnerID)
	}
	if h.balance(t, 2) != 550 || h.balance(t, 1) != 450 {
		t.Fatalf("payout wrong after resolution: p1=%d p2=%d", h.balance(t, 1), h.balance(t, 2))
	}
	if h.store.totalBalance() != initialTotal {
		t.Fatalf("coin supply changed across dispute resolution")
	}

	// Settlement happens at most once.
	if _, err := h.svc.ResolveDispute(ctx, challenge.ID, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second resolution: err = %v, want ErrInvalidTransition", err)
	}
	if h.balance(t, 2) != 550 {
		t.Fatalf("second resolution moved coins")
	}
}

func TestChallengeDuplicateReportRejected(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 200)
	h.store.seedAccount(2, 200)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "fifa", Platform: "ps5", BetAmount: 10})
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 1}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 2}); !errors.Is(err, ErrDuplicateReport) {
		t.Fatalf("duplicate report: err = %v, want ErrDuplicateReport", err)
	}
}

func TestChallengeReportByOutsiderRejected(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 200)
	h.store.seedAccount(2, 200)
	h.store.seedAccount(3, 200)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "fifa", Platform: "ps5", BetAmount: 10})
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 3, SubmitReportInput{ClaimedWinner: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider report: err = %v, want ErrForbidden", err)
	}
}

func TestAcceptWithInsufficientFundsMovesNoCoins(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 1000)
	h.store.seedAccount(2, 30)

	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Accept: err = %v, want ErrInsufficientFunds", err)
	}

	stored := h.store.challenges[challenge.ID]
	if stored.Status != models.ChallengeOpen || stored.OpponentID != nil {
		t.Fatalf("challenge mutated by failed accept: status=%s opponent=%v", stored.Status, stored.OpponentID)
	}
	if h.balance(t, 2) != 30 {
		t.Fatalf("acceptor balance changed on failure")
	}
	if h.balance(t, 1) != 900 {
		t.Fatalf("creator escrow disturbed")
	}
}

func TestCreateChallengeInsufficientFunds(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 50)

	if _, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Create: err = %v, want ErrInsufficientFunds", err)
	}
	if h.balance(t, 1) != 50 {
		t.Fatalf("balance changed on rejected create")
	}
	if len(h.store.challenges) != 0 {
		t.Fatalf("challenge persisted despite failed escrow")
	}
}

func TestAcceptOwnChallengeRejected(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 20})
	if _, err := h.svc.Accept(ctx, challenge.ID, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("self accept: err = %v, want ErrInvalidTransition", err)
	}
}

func TestPrivateChallengeOnlyTargetCanAccept(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)
	h.store.seedAccount(3, 500)

	target := 2
	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 20, OpponentID: &target})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !challenge.Private {
		t.Fatalf("targeted challenge not marked private")
	}
	if _, err := h.svc.Accept(ctx, challenge.ID, 3); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger accept: err = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("target accept: %v", err)
	}
}

func TestBlockedUsersCannotWager(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)
	h.store.blocks[[2]int{2, 1}] = true

	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 20})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("blocked accept: err = %v, want ErrForbidden", err)
	}

	target := 1
	if _, err := h.svc.Create(ctx, 2, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 20, OpponentID: &target}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("private challenge to blocker: err = %v, want ErrForbidden", err)
	}
}

func TestOpenChallengeExpiryRefundsOnce(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 1000)
	h.store.seedAccount(2, 1000)

	challenge, err := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.advance(models.OpenChallengeTTL + time.Second)

	expired, err := h.svc.ExpireOpenChallenges(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired count = %d, want 1", expired)
	}
	if got := h.balance(t, 1); got != 1000 {
		t.Fatalf("creator balance after expiry = %d, want 1000", got)
	}
	if h.store.challenges[challenge.ID].Status != models.ChallengeCancelled {
		t.Fatalf("expired challenge not cancelled")
	}

	// Second sweep must not refund again.
	if expired, _ = h.svc.ExpireOpenChallenges(ctx); expired != 0 {
		t.Fatalf("second sweep expired %d challenges", expired)
	}
	if got := h.balance(t, 1); got != 1000 {
		t.Fatalf("double refund: balance = %d", got)
	}

	if _, err := h.svc.Accept(ctx, challenge.ID, 2); !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("accept after expiry: err = %v", err)
	}
}

func TestLazyExpiryOnAccept(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 1000)
	h.store.seedAccount(2, 1000)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100})
	h.advance(models.OpenChallengeTTL + time.Minute)

	if _, err := h.svc.Accept(ctx, challenge.ID, 2); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("accept expired: err = %v, want ErrChallengeNotFound", err)
	}
	if got := h.balance(t, 1); got != 1000 {
		t.Fatalf("lazy expiry did not refund: %d", got)
	}
	if h.balance(t, 2) != 1000 {
		t.Fatalf("acceptor charged for expired challenge")
	}
}

func TestCancelOpenAndAcceptedChallenges(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)
	h.store.seedAccount(3, 500)

	open, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 50})
	if err := h.svc.Cancel(ctx, open.ID, 3, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cancel by outsider: err = %v, want ErrForbidden", err)
	}
	if err := h.svc.Cancel(ctx, open.ID, 1, false); err != nil {
		t.Fatalf("creator cancel: %v", err)
	}
	if h.balance(t, 1) != 500 {
		t.Fatalf("open cancel refund missing")
	}

	accepted, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 50})
	if _, err := h.svc.Accept(ctx, accepted.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := h.svc.Cancel(ctx, accepted.ID, 2, false); err != nil {
		t.Fatalf("mutual cancel: %v", err)
	}
	if h.balance(t, 1) != 500 || h.balance(t, 2) != 500 {
		t.Fatalf("accepted cancel refunds wrong: p1=%d p2=%d", h.balance(t, 1), h.balance(t, 2))
	}

	if err := h.svc.Cancel(ctx, accepted.ID, 1, false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel terminal challenge: err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdminVoidsDisputedChallenge(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 100})
	if _, err := h.svc.Accept(ctx, challenge.ID, 2); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 1, SubmitReportInput{ClaimedWinner: 1}); err != nil {
		t.Fatalf("report 1: %v", err)
	}
	if _, err := h.svc.SubmitReport(ctx, challenge.ID, 2, SubmitReportInput{ClaimedWinner: 2}); err != nil {
		t.Fatalf("report 2: %v", err)
	}

	if err := h.svc.Cancel(ctx, challenge.ID, 1, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("participant voiding a dispute: err = %v, want ErrForbidden", err)
	}
	if err := h.svc.Cancel(ctx, challenge.ID, 99, true); err != nil {
		t.Fatalf("admin void: %v", err)
	}
	if h.balance(t, 1) != 500 || h.balance(t, 2) != 500 {
		t.Fatalf("void refunds wrong: p1=%d p2=%d", h.balance(t, 1), h.balance(t, 2))
	}
	if got := h.store.totalBalance(); got != 1000 {
		t.Fatalf("coins not conserved: total = %d", got)
	}
}

func TestArchiveRequiresTerminalState(t *testing.T) {
	h := newChallengeHarness()
	ctx := context.Background()
	h.store.seedAccount(1, 500)
	h.store.seedAccount(2, 500)

	challenge, _ := h.svc.Create(ctx, 1, CreateChallengeInput{Game: "chess", Platform: "pc", BetAmount: 50})
	if err := h.svc.Archive(ctx, challenge.ID, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("archive open challenge: err = %v, want ErrInvalidTransition", err)
	}

	if err := h.svc.Cancel(ctx, challenge.ID, 1, false); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := h.svc.Archive(ctx, challenge.ID, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("archive by non-participant: err = %v, want ErrForbidden", err)
	}
	if err := h.svc.Archive(ctx, challenge.ID, 1); err != nil {
		t.Fatalf("archive: %v", err)
	}

	listed, err := h.svc.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("archived challenge still listed: %d entries", len(listed))
	}
}
