// Package farming drives one account: it tracks the daily-reward and farm
// window deadlines, spends game tickets and spaces remote calls with jitter.
package farming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/adapters/blum"
	"github.com/ohmynofan/blum-farming-bot/internal/adapters/gameworker"
	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
	"github.com/ohmynofan/blum-farming-bot/pkg/utils"
)

const (
	statusWaiting  = "WAITING"
	statusDone     = "DONE"
	statusFailed   = "FAILED"
	statusFarming  = "FARMING"
	statusStarting = "NEEDS START"
	statusIdle     = "IDLE"
)

// API is the subset of the game service the scheduler calls. Every call is
// expected to be authorized by the client.
type API interface {
	Balance(ctx context.Context) (model.Balance, error)
	ClaimDaily(ctx context.Context) error
	ClaimFarming(ctx context.Context) (model.Balance, error)
	StartFarming(ctx context.Context) (model.FarmWindow, error)
	PlayGame(ctx context.Context) (string, error)
	ClaimGame(ctx context.Context, payload string) error
}

// Prover computes the proof-of-work and claim payload of a game round.
type Prover interface {
	Proof(ctx context.Context, gameID string) (gameworker.Proof, error)
	Pack(ctx context.Context, req gameworker.PackRequest) (gameworker.Packed, error)
}

// Recorder keeps a per-day history of what the scheduler did.
type Recorder interface {
	MarkDaily(account string, day time.Time) error
	AddFarmClaim(account string, day time.Time) error
	AddGame(account string, day time.Time, won bool) error
	UpdateBalance(account string, day time.Time, balance string, tickets int) error
}

type Logger interface {
	Log(msg string, durationMs ...int)
	JustLog(msg string)
}

// SleepFunc waits for d or until ctx ends. reason is shown to the operator.
type SleepFunc func(ctx context.Context, reason string, d time.Duration) error

type Options struct {
	PollInterval time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration

	GamesEnabled bool
	PlayMin      time.Duration
	PlayMax      time.Duration
	PointsMin    int
	PointsMax    int

	Location *time.Location
}

// State is a snapshot of the scheduler's deadlines and counters.
type State struct {
	NextDailyClaimAt time.Time
	Farm             model.FarmWindow
	FarmNeedsStart   bool
	Tickets          int
	Balance          string
	FarmBalance      string
	// SyncedAt is the service time of the last balance read.
	SyncedAt time.Time
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithSleep(sleep SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithRand replaces the random sources used for jitter, play time and points.
func WithRand(duration func(min, max time.Duration) time.Duration, integer func(min, max int) int) Option {
	return func(s *Scheduler) {
		s.randDuration = duration
		s.randInt = integer
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithSession mirrors the scheduler's state into a dashboard session.
func WithSession(session *model.Session) Option {
	return func(s *Scheduler) { s.session = session }
}

// WithNextDaily sets the initial daily-claim deadline. The zero time makes
// the claim due on the first tick.
func WithNextDaily(t time.Time) Option {
	return func(s *Scheduler) { s.state.NextDailyClaimAt = t }
}

type Scheduler struct {
	account  string
	api      API
	prover   Prover
	recorder Recorder
	log      Logger
	session  *model.Session
	opts     Options

	now          func() time.Time
	sleep        SleepFunc
	randDuration func(min, max time.Duration) time.Duration
	randInt      func(min, max int) int

	mu    sync.Mutex
	state State
}

func New(account string, api API, prover Prover, opts Options, options ...Option) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Scheduler{
		account:      account,
		api:          api,
		prover:       prover,
		opts:         opts,
		log:          nopLogger{},
		now:          time.Now,
		sleep:        sleepTimer,
		randDuration: utils.RandomDuration,
		randInt:      utils.RandomInt,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run ticks every PollInterval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, "Waiting for next check", s.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Tick reads the balance and then evaluates the daily, farm and ticket
// tracks in that order. Failures are logged and leave the deadline due for
// the next tick; only cancellation of ctx is returned.
func (s *Scheduler) Tick(ctx context.Context) error {
	balanceOK := s.refreshBalance(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dailyTrack(ctx); err != nil {
		return err
	}
	if err := s.farmTrack(ctx); err != nil {
		return err
	}
	if balanceOK && s.opts.GamesEnabled {
		if err := s.ticketTrack(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Scheduler) refreshBalance(ctx context.Context) bool {
	bal, err := s.api.Balance(ctx)
	if err != nil {
		s.log.Log(fmt.Sprintf("Failed to read balance: %v", err))
		return false
	}

	synced := bal.Timestamp
	if synced.IsZero() {
		synced = s.now()
	}

	s.mu.Lock()
	s.state.Balance = bal.Available
	s.state.Tickets = bal.PlayPasses
	s.state.FarmBalance = bal.FarmBalance
	s.state.SyncedAt = synced
	if bal.Farming != nil && !bal.Farming.IsZero() {
		s.state.Farm = *bal.Farming
		s.state.FarmNeedsStart = false
	} else {
		s.state.FarmNeedsStart = true
	}
	s.mu.Unlock()

	s.record(func(r Recorder, day time.Time) error {
		return r.UpdateBalance(s.account, day, bal.Available, bal.PlayPasses)
	})
	s.mirror()
	s.log.Log(fmt.Sprintf("Balance %s, %d play passes", bal.Available, bal.PlayPasses))
	return true
}

func (s *Scheduler) dailyTrack(ctx context.Context) error {
	now := s.now()
	if !now.After(s.State().NextDailyClaimAt) {
		return nil
	}
	if err := s.jitter(ctx); err != nil {
		return err
	}

	err := s.api.ClaimDaily(ctx)
	switch {
	case err == nil:
		s.log.Log("Daily reward claimed")
	case errors.Is(err, blum.ErrAlreadyClaimed):
		s.log.Log("Daily reward already claimed today")
	default:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Log(fmt.Sprintf("Failed to claim daily reward: %v", err))
		s.setStatus(func(sess *model.Session) { sess.DailyStatus = statusFailed })
		return nil
	}

	next := StartOfNextDay(s.now(), s.opts.Location)
	s.mu.Lock()
	s.state.NextDailyClaimAt = next
	s.mu.Unlock()
	s.record(func(r Recorder, day time.Time) error { return r.MarkDaily(s.account, day) })
	s.setStatus(func(sess *model.Session) { sess.DailyStatus = statusDone })
	s.mirror()
	return nil
}

func (s *Scheduler) farmTrack(ctx context.Context) error {
	st := s.State()
	if st.FarmNeedsStart {
		return s.startFarming(ctx)
	}
	if st.Farm.IsZero() || !s.now().After(st.Farm.End) {
		return nil
	}

	if err := s.jitter(ctx); err != nil {
		return err
	}
	bal, err := s.api.ClaimFarming(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Log(fmt.Sprintf("Failed to claim farming: %v", err))
		s.setStatus(func(sess *model.Session) { sess.FarmStatus = statusFailed })
		return nil
	}

	s.mu.Lock()
	s.state.Balance = bal.Available
	s.state.FarmNeedsStart = true
	s.mu.Unlock()
	s.record(func(r Recorder, day time.Time) error { return r.AddFarmClaim(s.account, day) })
	s.log.Log(fmt.Sprintf("Farming claimed, balance %s", bal.Available))

	return s.startFarming(ctx)
}

// startFarming opens a new window. A failure keeps FarmNeedsStart set so
// the next tick only retries the start.
func (s *Scheduler) startFarming(ctx context.Context) error {
	if err := s.jitter(ctx); err != nil {
		return err
	}
	window, err := s.api.StartFarming(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Log(fmt.Sprintf("Failed to start farming: %v", err))
		s.setStatus(func(sess *model.Session) { sess.FarmStatus = statusStarting })
		return nil
	}

	s.mu.Lock()
	s.state.Farm = window
	s.state.FarmNeedsStart = false
	s.mu.Unlock()
	s.mirror()
	s.log.Log(fmt.Sprintf("Farming started, ends at %s", window.End.In(s.opts.Location).Format(time.DateTime)))
	return nil
}

// ticketTrack plays one round per ticket, strictly one after another. The
// local counter drops by one per round whatever the outcome.
func (s *Scheduler) ticketTrack(ctx context.Context) error {
	total := s.State().Tickets
	for round := 1; s.State().Tickets > 0; round++ {
		err := s.playRound(ctx, round, total)

		s.mu.Lock()
		s.state.Tickets--
		s.mu.Unlock()
		s.mirror()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.log.Log(fmt.Sprintf("Game %d/%d failed: %v", round, total, err))
		}
	}
	return nil
}

func (s *Scheduler) playRound(ctx context.Context, round, total int) error {
	if err := s.jitter(ctx); err != nil {
		return err
	}
	gameID, err := s.api.PlayGame(ctx)
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}
	s.setStatus(func(sess *model.Session) {
		sess.GameStatus = fmt.Sprintf("PLAYING %d/%d", round, total)
		sess.GamesPlayed++
	})

	playFor := s.randDuration(s.opts.PlayMin, s.opts.PlayMax)
	if err := s.sleep(ctx, fmt.Sprintf("Playing game %d/%d", round, total), playFor); err != nil {
		return err
	}

	won := false
	defer func() {
		s.record(func(r Recorder, day time.Time) error { return r.AddGame(s.account, day, won) })
	}()

	proof, err := s.prover.Proof(ctx, gameID)
	if err != nil {
		return fmt.Errorf("proof for %s: %w", gameID, err)
	}
	points := s.randInt(s.opts.PointsMin, s.opts.PointsMax)
	packed, err := s.prover.Pack(ctx, gameworker.PackRequest{
		GameID:       gameID,
		Challenge:    proof,
		EarnedAssets: gameworker.Points(points),
	})
	if err != nil {
		return fmt.Errorf("pack for %s: %w", gameID, err)
	}
	if err := s.api.ClaimGame(ctx, packed.Hash); err != nil {
		return fmt.Errorf("claim %s: %w", gameID, err)
	}

	won = true
	s.setStatus(func(sess *model.Session) { sess.GamesWon++ })
	s.log.Log(fmt.Sprintf("Game %d/%d claimed with %d points", round, total, points))
	return nil
}

func (s *Scheduler) jitter(ctx context.Context) error {
	if s.opts.JitterMax <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, "Delay before next action", s.randDuration(s.opts.JitterMin, s.opts.JitterMax))
}

func (s *Scheduler) record(fn func(r Recorder, day time.Time) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder, s.now().In(s.opts.Location)); err != nil {
		s.log.JustLog(fmt.Sprintf("Failed to record claim log: %v", err))
	}
}

func (s *Scheduler) setStatus(fn func(sess *model.Session)) {
	if s.session != nil {
		fn(s.session)
	}
}

// mirror copies the deadlines and counters into the dashboard session.
func (s *Scheduler) mirror() {
	if s.session == nil {
		return
	}
	st := s.State()
	s.session.Balance = st.Balance
	s.session.FarmBalance = st.FarmBalance
	s.session.SyncedAt = st.SyncedAt
	s.session.Tickets = st.Tickets
	s.session.FarmEnd = st.Farm.End
	s.session.NextDaily = st.NextDailyClaimAt

	switch {
	case st.FarmNeedsStart:
		s.session.FarmStatus = statusStarting
	case !st.Farm.IsZero():
		s.session.FarmStatus = statusFarming
	}
	if st.Tickets == 0 && s.session.GameStatus != "" {
		s.session.GameStatus = statusIdle
	}
	if s.session.DailyStatus == "" {
		s.session.DailyStatus = statusWaiting
	}
}

func StartOfNextDay(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func sleepTimer(ctx context.Context, _ string, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopLogger struct{}

func (nopLogger) Log(string, ...int) {}
func (nopLogger) JustLog(string)     {}
