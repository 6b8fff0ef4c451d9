package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
)

var (
	multi    *pterm.MultiPrinter
	spinners = make(map[int]*pterm.SpinnerPrinter)
	mu       sync.Mutex
)

func StartUISystem() {
	m, _ := pterm.DefaultMultiPrinter.Start()
	multi = m
}

func StopUISystem() {
	if multi != nil {
		multi.Stop()
	}
}

func UpdateStatus(session model.Session, status string, remainingDelay time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	updateLocked(session, status, remainingDelay)
}

func updateLocked(session model.Session, status string, remainingDelay time.Duration) {
	if multi == nil {
		return
	}

	content := Render(session, status, remainingDelay)
	if spinner, ok := spinners[session.AccIdx]; ok {
		spinner.UpdateText(content)
		return
	}
	spinner, _ := pterm.DefaultSpinner.
		WithWriter(multi.NewWriter()).
		WithRemoveWhenDone(false).
		Start(content)
	spinners[session.AccIdx] = spinner
}

// Render builds the dashboard block for one account.
func Render(session model.Session, status string, remainingDelay time.Duration) string {
	return fmt.Sprintf(`
=============== Account %d ================
User          : %s
Proxy         : %s

Auth          : %s
Daily Reward  : %s (next %s)
Farming       : %s (ends %s, %s farmed)
Games         : %s - %d tickets, %d/%d won

Balance       : %s
Last Sync     : %s

Status   : %s
Delay    : %s
===========================================`,
		session.AccIdx+1,
		defaultString(session.Username, "-"),
		defaultString(session.Proxy, "direct"),
		defaultString(session.AuthStatus, "WAITING"),
		defaultString(session.DailyStatus, "WAITING"),
		formatClock(session.NextDaily),
		defaultString(session.FarmStatus, "WAITING"),
		formatClock(session.FarmEnd),
		defaultString(session.FarmBalance, "0"),
		defaultString(session.GameStatus, "WAITING"),
		session.Tickets,
		session.GamesWon,
		session.GamesPlayed,
		defaultString(session.Balance, "0"),
		formatClock(session.SyncedAt),
		status,
		FormatDelay(remainingDelay))
}

func SetSpinnerSuccess(session model.Session, finalMessage string) {
	mu.Lock()
	defer mu.Unlock()
	if spinner, ok := spinners[session.AccIdx]; ok {
		updateLocked(session, finalMessage, 0)
		spinner.Success()
	}
}

func SetSpinnerError(session model.Session, finalMessage string) {
	mu.Lock()
	defer mu.Unlock()
	if spinner, ok := spinners[session.AccIdx]; ok {
		updateLocked(session, finalMessage, 0)
		spinner.Fail()
	}
}

func FormatDelay(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d H %02d M %02d S", h, m, s)
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
