package worker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/adapters/blum"
	"github.com/ohmynofan/blum-farming-bot/internal/adapters/gameworker"
	adhttp "github.com/ohmynofan/blum-farming-bot/internal/adapters/http"
	"github.com/ohmynofan/blum-farming-bot/internal/adapters/telegram"
	"github.com/ohmynofan/blum-farming-bot/internal/app/farming"
	"github.com/ohmynofan/blum-farming-bot/internal/auth"
	"github.com/ohmynofan/blum-farming-bot/internal/config"
	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/logger"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/ui"
	"github.com/ohmynofan/blum-farming-bot/internal/storage/claimlog"
	"github.com/ohmynofan/blum-farming-bot/internal/storage/sessionstore"
)

const (
	statusWaiting    = "WAITING"
	statusInProgress = "IN PROGRESS"
	statusDone       = "DONE"
	statusFailed     = "FAILED"
	statusNeedsData  = "NEEDS WEB APP DATA"

	errorRetryDelay = 60 * time.Second
)

// Deps are shared by every account runner.
type Deps struct {
	Sessions *sessionstore.Store
	Claims   *claimlog.Store
	Proxies  []string
}

type retryLogger interface {
	Log(msg string, durationMs ...int)
	Wait(ctx context.Context, msg string, d time.Duration) error
}

var fatalErrors = []error{
	sessionstore.ErrNotFound,
}

var fatalSubstrings = []string{
	"failed to parse session",
	"unsupported proxy scheme",
	"invalid proxy url",
	"gameworker: load script",
	"gameworker: read script",
}

// handleError decides whether an account should stop. Everything that is
// not a configuration problem is retried after a fixed delay.
func handleError(ctx context.Context, session *model.Session, log retryLogger, err error) (shouldStop bool) {
	errMsg := err.Error()
	fatal := false
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			fatal = true
		}
	}
	for _, sub := range fatalSubstrings {
		if strings.Contains(errMsg, sub) {
			fatal = true
		}
	}

	if fatal {
		if session != nil {
			msg := fmt.Sprintf("FATAL: %s. Worker for account %d will stop.", errMsg, session.AccIdx+1)
			log.Log(msg, 0)
			ui.SetSpinnerError(*session, msg)
		} else {
			log.Log(fmt.Sprintf("FATAL: %s. Worker will stop.", errMsg), 0)
		}
		return true
	}

	// The session file is re-read on every login, so web app data added by
	// another tool is picked up on the next attempt.
	if errors.Is(err, telegram.ErrNoWebAppData) {
		if session != nil {
			session.AuthStatus = statusNeedsData
		}
		errMsg = "Session has no web app data, add webAppData to the session file"
	}

	if werr := log.Wait(ctx, fmt.Sprintf("%s, Retrying after 60 seconds", errMsg), errorRetryDelay); werr != nil {
		return true
	}
	return false
}

// Run drives one account until ctx is cancelled or a fatal error occurs. Only
// the fatal error is returned; cancellation is a clean stop.
func Run(ctx context.Context, phone string, index int, cfg config.Config, deps Deps) error {
	proxy := config.ProxyFor(deps.Proxies, index)
	session := model.Session{
		Account:     phone,
		AccIdx:      index,
		Username:    "-",
		Proxy:       proxy,
		DailyStatus: statusWaiting,
		FarmStatus:  statusWaiting,
		GameStatus:  statusWaiting,
		AuthStatus:  statusWaiting,
		Balance:     "0",
	}
	if session.Proxy == "" {
		session.Proxy = "-"
	}
	log := logger.NewNamed(fmt.Sprintf("Operation - Account %d", index+1), &session)

	for {
		err := runAccount(ctx, phone, proxy, cfg, deps, &session, log)
		if ctx.Err() != nil || err == nil {
			log.JustLog("Stopping account loop")
			ui.SetSpinnerSuccess(session, "Stopped")
			return nil
		}
		if handleError(ctx, &session, log, err) {
			if ctx.Err() != nil {
				ui.SetSpinnerSuccess(session, "Stopped")
				return nil
			}
			return fmt.Errorf("account %d: %w", index+1, err)
		}
	}
}

func runAccount(ctx context.Context, phone, proxy string, cfg config.Config, deps Deps, session *model.Session, log *logger.ClassLogger) error {
	rec, err := deps.Sessions.Load(phone)
	if err != nil {
		return err
	}
	if rec.Telegram.Username != "" {
		session.Username = rec.Telegram.Username
	} else if name := telegram.Username(rec.WebAppData); name != "" {
		session.Username = name
	}

	cookieFile := cookieFilePath(cfg.CookiesDir, phone)
	if err := os.MkdirAll(filepath.Dir(cookieFile), 0o755); err != nil {
		return fmt.Errorf("could not prepare cookie directory: %w", err)
	}
	apiClient, err := adhttp.NewAPIClient(cfg.Service, proxy, cookieFile, session)
	if err != nil {
		return err
	}
	client := blum.New(apiClient, cfg.DailyOffsetMinutes)

	tokens := auth.NewTokenStore(client, telegram.NewProvider(phone, deps.Sessions, log),
		auth.WithFailFast(cfg.RenewalFailFast),
		auth.WithRenewalTimeout(cfg.RefreshTimeout),
		auth.WithLogger(log),
		auth.WithLoginHook(func() {
			if err := apiClient.ClearCookies(); err != nil {
				log.JustLog(fmt.Sprintf("Failed to clear cookies: %v", err))
			}
		}),
		auth.WithCredentialHook(func(c model.Credential) {
			if err := deps.Sessions.SaveCredential(phone, c); err != nil {
				log.JustLog(fmt.Sprintf("Failed to persist credential: %v", err))
			}
		}),
	)
	if cred, ok := rec.Credential(); ok {
		tokens.SetCredential(cred)
	}
	apiClient.Authorize = auth.NewAuthorizer(tokens).Authorize

	session.AuthStatus = statusInProgress
	log.Log("Logging in to Blum")
	name, err := client.Me(ctx)
	if err != nil {
		session.AuthStatus = statusFailed
		return fmt.Errorf("login failed: %w", err)
	}
	session.AuthStatus = statusDone
	if name != "" {
		session.Username = name
	}

	solver, err := newSolver(cfg)
	if err != nil {
		return err
	}
	prover := gameworker.Start(ctx, solver,
		gameworker.WithTimeout(cfg.WorkerTimeout),
		gameworker.WithLogger(log),
	)
	defer prover.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	var nextDaily time.Time
	now := time.Now().In(loc)
	if done, err := deps.Claims.DailyDone(phone, now); err != nil {
		log.JustLog(fmt.Sprintf("Failed to read claim log: %v", err))
	} else if done {
		nextDaily = farming.StartOfNextDay(now, loc)
		session.DailyStatus = statusDone
	}

	scheduler := farming.New(phone, client, prover, farming.Options{
		PollInterval: cfg.PollInterval,
		JitterMin:    cfg.JitterMin,
		JitterMax:    cfg.JitterMax,
		GamesEnabled: cfg.GameEnabled,
		PlayMin:      cfg.GamePlayMin,
		PlayMax:      cfg.GamePlayMax,
		PointsMin:    cfg.GamePointsMin,
		PointsMax:    cfg.GamePointsMax,
		Location:     loc,
	},
		farming.WithRecorder(deps.Claims),
		farming.WithLogger(log),
		farming.WithSession(session),
		farming.WithSleep(log.Wait),
		farming.WithNextDaily(nextDaily),
	)
	return scheduler.Run(ctx)
}

func newSolver(cfg config.Config) (gameworker.Solver, error) {
	if cfg.GameScript != "" {
		return gameworker.LoadScriptSolver(cfg.GameScript)
	}
	return gameworker.NewNativeSolver(cfg.PowDifficulty), nil
}

func cookieFilePath(baseDir, phone string) string {
	hash := sha1.Sum([]byte(strings.TrimPrefix(strings.TrimSpace(phone), "+")))
	return filepath.Join(baseDir, hex.EncodeToString(hash[:])+".json")
}
