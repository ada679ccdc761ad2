package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/arenaworks/wager-arena/models"
	"github.com/arenaworks/wager-arena/repositories"
)

// In-memory doubles for the postgres repositories. The fake runner
// snapshots the whole store before each transaction and restores it on
// error, mirroring rollback semantics so coin-conservation assertions
// hold on failure paths too.

type fakeStore struct {
	accounts     map[int]*models.Account
	challenges   map[string]*models.Challenge
	tournaments  map[int]*models.Tournament
	participants map[int][]models.Participant
	matches      map[int]*models.Match
	blocks       map[[2]int]bool
	archives     map[string]map[int]bool

	nextAccountID     int
	nextTournamentID  int
	nextParticipantID int
	nextMatchID       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:     make(map[int]*models.Account),
		challenges:   make(map[string]*models.Challenge),
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int][]models.Participant),
		matches:      make(map[int]*models.Match),
		blocks:       make(map[[2]int]bool),
		archives:     make(map[string]map[int]bool),
	}
}

func (s *fakeStore) seedAccount(id int, balance int64) *models.Account {
	account := &models.Account{
		ID:       id,
		Nickname: "player",
		Role:     models.RolePlayer,
		Balance:  balance,
		IsActive: true,
	}
	s.accounts[id] = account
	if id > s.nextAccountID {
		s.nextAccountID = id
	}
	return account
}

func (s *fakeStore) totalBalance() int64 {
	var total int64
	for _, a := range s.accounts {
		total += a.Balance
	}
	return total
}

func intPtrCopy(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyChallenge(c *models.Challenge) *models.Challenge {
	cp := *c
	cp.OpponentID = intPtrCopy(c.OpponentID)
	cp.WinnerID = intPtrCopy(c.WinnerID)
	cp.Results = append([]models.ResultReport(nil), c.Results...)
	return &cp
}

func copyMatch(m *models.Match) *models.Match {
	cp := *m
	cp.Player1 = intPtrCopy(m.Player1)
	cp.Player2 = intPtrCopy(m.Player2)
	cp.WinnerID = intPtrCopy(m.WinnerID)
	cp.NextMatchID = intPtrCopy(m.NextMatchID)
	cp.NextMatchSlot = intPtrCopy(m.NextMatchSlot)
	cp.Results = append([]models.ResultReport(nil), m.Results...)
	return &cp
}

func copyTournament(t *models.Tournament) *models.Tournament {
	cp := *t
	cp.WinnerID = intPtrCopy(t.WinnerID)
	cp.Participants = nil
	cp.Bracket = nil
	return &cp
}

func (s *fakeStore) clone() *fakeStore {
	cp := newFakeStore()
	cp.nextAccountID = s.nextAccountID
	cp.nextTournamentID = s.nextTournamentID
	cp.nextParticipantID = s.nextParticipantID
	cp.nextMatchID = s.nextMatchID

	for id, a := range s.accounts {
		ac := *a
		cp.accounts[id] = &ac
	}
	for id, c := range s.challenges {
		cp.challenges[id] = copyChallenge(c)
	}
	for id, t := range s.tournaments {
		cp.tournaments[id] = copyTournament(t)
	}
	for id, ps := range s.participants {
		cp.participants[id] = append([]models.Participant(nil), ps...)
	}
	for id, m := range s.matches {
		cp.matches[id] = copyMatch(m)
	}
	for k, v := range s.blocks {
		cp.blocks[k] = v
	}
	for id, users := range s.archives {
		u := make(map[int]bool, len(users))
		for k, v := range users {
			u[k] = v
		}
		cp.archives[id] = u
	}
	return cp
}

func (s *fakeStore) restore(snapshot *fakeStore) {
	*s = *snapshot
}

// fakeTxRunner applies all-or-nothing semantics over the fake store.
type fakeTxRunner struct {
	store *fakeStore
}

func (r *fakeTxRunner) RunInTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	snapshot := r.store.clone()
	if err := fn(nil); err != nil {
		r.store.restore(snapshot)
		return err
	}
	return nil
}

type fakeAccountRepo struct {
	store *fakeStore
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	for _, a := range r.store.accounts {
		if a.Email == account.Email {
			return repositories.ErrAccountEmailConflict
		}
	}
	r.store.nextAccountID++
	account.ID = r.store.nextAccountID
	account.IsActive = true
	account.CreatedAt = time.Now()
	cp := *account
	r.store.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Account, error) {
	a, ok := r.store.accounts[id]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range r.store.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repositories.ErrAccountNotFound
}

func (r *fakeAccountRepo) Credit(_ context.Context, _ repositories.SQLExecutor, id int, amount int64) error {
	a, ok := r.store.accounts[id]
	if !ok {
		return repositories.ErrAccountNotFound
	}
	a.Balance += amount
	return nil
}

func (r *fakeAccountRepo) Debit(_ context.Context, _ repositories.SQLExecutor, id int, amount int64) error {
	a, ok := r.store.accounts[id]
	if !ok {
		return repositories.ErrAccountNotFound
	}
	if !a.IsActive || a.Balance < amount {
		return repositories.ErrInsufficientBalance
	}
	a.Balance -= amount
	return nil
}

func (r *fakeAccountRepo) RecordResult(_ context.Context, _ repositories.SQLExecutor, winnerID, loserID int) error {
	winner, ok := r.store.accounts[winnerID]
	if !ok {
		return repositories.ErrAccountNotFound
	}
	loser, ok := r.store.accounts[loserID]
	if !ok {
		return repositories.ErrAccountNotFound
	}
	winner.WinCount++
	loser.LossCount++
	return nil
}

func (r *fakeAccountRepo) Deactivate(_ context.Context, id int) error {
	a, ok := r.store.accounts[id]
	if !ok {
		return repositories.ErrAccountNotFound
	}
	a.IsActive = false
	return nil
}

func (r *fakeAccountRepo) Block(_ context.Context, userID, blockedUserID int) error {
	key := [2]int{userID, blockedUserID}
	if r.store.blocks[key] {
		return repositories.ErrAlreadyBlocked
	}
	r.store.blocks[key] = true
	return nil
}

func (r *fakeAccountRepo) Unblock(_ context.Context, userID, blockedUserID int) error {
	delete(r.store.blocks, [2]int{userID, blockedUserID})
	return nil
}

func (r *fakeAccountRepo) EitherBlocked(_ context.Context, _ repositories.SQLExecutor, userA, userB int) (bool, error) {
	return r.store.blocks[[2]int{userA, userB}] || r.store.blocks[[2]int{userB, userA}], nil
}

type fakeChallengeRepo struct {
	store *fakeStore
}

func (r *fakeChallengeRepo) Create(_ context.Context, _ repositories.SQLExecutor, challenge *models.Challenge) error {
	r.store.challenges[challenge.ID] = copyChallenge(challenge)
	return nil
}

func (r *fakeChallengeRepo) get(id string) (*models.Challenge, error) {
	c, ok := r.store.challenges[id]
	if !ok {
		return nil, repositories.ErrChallengeNotFound
	}
	return copyChallenge(c), nil
}

func (r *fakeChallengeRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id string) (*models.Challenge, error) {
	return r.get(id)
}

func (r *fakeChallengeRepo) GetByIDForUpdate(_ context.Context, _ repositories.SQLExecutor, id string) (*models.Challenge, error) {
	return r.get(id)
}

func (r *fakeChallengeRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id string, from, to models.ChallengeStatus) error {
	c, ok := r.store.challenges[id]
	if !ok || c.Status != from {
		return repositories.ErrChallengeStatusConflict
	}
	c.Status = to
	return nil
}

func (r *fakeChallengeRepo) SetOpponent(_ context.Context, _ repositories.SQLExecutor, id string, opponentID int) error {
	c, ok := r.store.challenges[id]
	if !ok {
		return repositories.ErrChallengeNotFound
	}
	c.OpponentID = &opponentID
	return nil
}

func (r *fakeChallengeRepo) SetWinner(_ context.Context, _ repositories.SQLExecutor, id string, winnerID int, status models.ChallengeStatus) error {
	c, ok := r.store.challenges[id]
	if !ok {
		return repositories.ErrChallengeNotFound
	}
	c.WinnerID = &winnerID
	c.Status = status
	return nil
}

func (r *fakeChallengeRepo) AddReport(_ context.Context, _ repositories.SQLExecutor, id string, report models.ResultReport) error {
	c, ok := r.store.challenges[id]
	if !ok {
		return repositories.ErrChallengeNotFound
	}
	for _, rep := range c.Results {
		if rep.ReportedBy == report.ReportedBy {
			return repositories.ErrDuplicateResultReport
		}
	}
	c.Results = append(c.Results, report)
	return nil
}

func (r *fakeChallengeRepo) Archive(_ context.Context, id string, userID int) error {
	if _, ok := r.store.challenges[id]; !ok {
		return repositories.ErrChallengeNotFound
	}
	if r.store.archives[id] == nil {
		r.store.archives[id] = make(map[int]bool)
	}
	r.store.archives[id][userID] = true
	return nil
}

func (r *fakeChallengeRepo) ListOpen(_ context.Context, now time.Time) ([]*models.Challenge, error) {
	var open []*models.Challenge
	for _, c := range r.store.challenges {
		if c.Status == models.ChallengeOpen && !c.Private && now.Before(c.ExpiresAt) {
			open = append(open, copyChallenge(c))
		}
	}
	return open, nil
}

func (r *fakeChallengeRepo) ListForUser(_ context.Context, userID int) ([]*models.Challenge, error) {
	var out []*models.Challenge
	for _, c := range r.store.challenges {
		if c.IsParticipant(userID) && !r.store.archives[c.ID][userID] {
			out = append(out, copyChallenge(c))
		}
	}
	return out, nil
}

func (r *fakeChallengeRepo) ListExpiredOpenIDs(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for _, c := range r.store.challenges {
		if c.Expired(now) {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeTournamentRepo struct {
	store *fakeStore
}

func (r *fakeTournamentRepo) Create(_ context.Context, tournament *models.Tournament) error {
	r.store.nextTournamentID++
	tournament.ID = r.store.nextTournamentID
	tournament.CreatedAt = time.Now()
	r.store.tournaments[tournament.ID] = copyTournament(tournament)
	return nil
}

func (r *fakeTournamentRepo) get(id int) (*models.Tournament, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return copyTournament(t), nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(id)
}

func (r *fakeTournamentRepo) GetByIDForUpdate(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(id)
}

func (r *fakeTournamentRepo) List(_ context.Context, status *models.TournamentStatus) ([]*models.Tournament, error) {
	var out []*models.Tournament
	for _, t := range r.store.tournaments {
		if status == nil || t.Status == *status {
			out = append(out, copyTournament(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	t, ok := r.store.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) SetWinner(_ context.Context, _ repositories.SQLExecutor, id int, winnerID int, status models.TournamentStatus) error {
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.WinnerID = &winnerID
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) AddParticipant(_ context.Context, _ repositories.SQLExecutor, participant *models.Participant) error {
	for _, p := range r.store.participants[participant.TournamentID] {
		if p.UserID == participant.UserID {
			return repositories.ErrRegistrationConflict
		}
	}
	r.store.nextParticipantID++
	participant.ID = r.store.nextParticipantID
	participant.RegisteredAt = time.Now()
	r.store.participants[participant.TournamentID] = append(
		r.store.participants[participant.TournamentID], *participant)
	return nil
}

func (r *fakeTournamentRepo) RemoveParticipant(_ context.Context, _ repositories.SQLExecutor, tournamentID, userID int) error {
	ps := r.store.participants[tournamentID]
	for i, p := range ps {
		if p.UserID == userID {
			r.store.participants[tournamentID] = append(ps[:i], ps[i+1:]...)
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

func (r *fakeTournamentRepo) ListParticipants(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.Participant, error) {
	out := append([]models.Participant(nil), r.store.participants[tournamentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	return out, nil
}

type fakeMatchRepo struct {
	store *fakeStore
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.store.nextMatchID++
	match.ID = r.store.nextMatchID
	match.CreatedAt = time.Now()
	r.store.matches[match.ID] = copyMatch(match)
	return nil
}

func (r *fakeMatchRepo) get(id int) (*models.Match, error) {
	m, ok := r.store.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return copyMatch(m), nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *fakeMatchRepo) GetByIDForUpdate(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.get(id)
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range r.store.matches {
		if m.TournamentID == tournamentID {
			out = append(out, copyMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].OrderInRound < out[j].OrderInRound
	})
	return out, nil
}

func (r *fakeMatchRepo) UpdateNextMatchInfo(_ context.Context, _ repositories.SQLExecutor, id int, nextMatchID, nextMatchSlot *int) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.NextMatchID = intPtrCopy(nextMatchID)
	m.NextMatchSlot = intPtrCopy(nextMatchSlot)
	return nil
}

func (r *fakeMatchRepo) SetPlayer(_ context.Context, _ repositories.SQLExecutor, id, slot, userID int, status models.MatchStatus) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	switch slot {
	case 1:
		if m.Player1 != nil {
			return repositories.ErrMatchSlotAlreadyFilled
		}
		m.Player1 = &userID
	case 2:
		if m.Player2 != nil {
			return repositories.ErrMatchSlotAlreadyFilled
		}
		m.Player2 = &userID
	default:
		return repositories.ErrMatchSlotAlreadyFilled
	}
	m.Status = status
	return nil
}

func (r *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, from, to models.MatchStatus) error {
	m, ok := r.store.matches[id]
	if !ok || m.Status != from {
		return repositories.ErrMatchStatusConflict
	}
	m.Status = to
	return nil
}

func (r *fakeMatchRepo) SetWinner(_ context.Context, _ repositories.SQLExecutor, id int, winnerID int, status models.MatchStatus) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.WinnerID = &winnerID
	m.Status = status
	return nil
}

func (r *fakeMatchRepo) AddReport(_ context.Context, _ repositories.SQLExecutor, id int, report models.ResultReport) error {
	m, ok := r.store.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	for _, rep := range m.Results {
		if rep.ReportedBy == report.ReportedBy {
			return repositories.ErrDuplicateMatchReport
		}
	}
	m.Results = append(m.Results, report)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
