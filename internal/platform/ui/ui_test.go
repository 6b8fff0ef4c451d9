package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
)

func TestFormatDelay(t *testing.T) {
	assert.Equal(t, "01 H 02 M 03 S", FormatDelay(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "00 H 00 M 00 S", FormatDelay(0))
}

func TestRenderDefaults(t *testing.T) {
	out := Render(model.Session{AccIdx: 0}, "idle", 0)
	assert.True(t, strings.Contains(out, "Account 1"))
	assert.True(t, strings.Contains(out, "Proxy         : direct"))
	assert.True(t, strings.Contains(out, "Daily Reward  : WAITING (next -)"))
}

func TestRenderAccountState(t *testing.T) {
	out := Render(model.Session{
		AccIdx:      2,
		Username:    "bob",
		Balance:     "123.5",
		Tickets:     4,
		GamesPlayed: 3,
		GamesWon:    2,
		GameStatus:  "IN PROGRESS",
	}, "playing", 5*time.Second)
	assert.True(t, strings.Contains(out, "User          : bob"))
	assert.True(t, strings.Contains(out, "IN PROGRESS - 4 tickets, 2/3 won"))
	assert.True(t, strings.Contains(out, "00 H 00 M 05 S"))
}

func TestUpdateStatusWithoutUI(t *testing.T) {
	assert.NotPanics(t, func() {
		UpdateStatus(model.Session{AccIdx: 9}, "no ui", time.Second)
	})
}

func TestRenderFarmBalanceAndSync(t *testing.T) {
	synced := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	out := Render(model.Session{FarmStatus: "FARMING", FarmBalance: "0.25", SyncedAt: synced}, "ok", 0)
	assert.Contains(t, out, "0.25 farmed)")
	assert.Contains(t, out, "Last Sync     : "+synced.Local().Format("2006-01-02 15:04:05"))

	out = Render(model.Session{}, "ok", 0)
	assert.Contains(t, out, "0 farmed)")
	assert.Contains(t, out, "Last Sync     : -")
}
