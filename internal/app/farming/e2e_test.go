package farming_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmynofan/blum-farming-bot/internal/adapters/blum"
	"github.com/ohmynofan/blum-farming-bot/internal/adapters/gameworker"
	adhttp "github.com/ohmynofan/blum-farming-bot/internal/adapters/http"
	"github.com/ohmynofan/blum-farming-bot/internal/app/farming"
	"github.com/ohmynofan/blum-farming-bot/internal/auth"
	"github.com/ohmynofan/blum-farming-bot/internal/config"
)

func token(exp time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return "eyJhbGciOiJIUzI1NiJ9." + payload + ".c2ln"
}

type staticProvider string

func (p staticProvider) WebAppData(ctx context.Context) (string, error) { return string(p), nil }

type remoteLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *remoteLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, p)
}

func (l *remoteLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func (l *remoteLog) count(p string) int {
	n := 0
	for _, v := range l.snapshot() {
		if v == p {
			n++
		}
	}
	return n
}

func TestFreshAccountLogsInAndFarms(t *testing.T) {
	calls := &remoteLog{}
	access := token(time.Now().Add(time.Hour))
	refresh := token(time.Now().Add(24 * time.Hour))

	mux := http.NewServeMux()
	authorized := func(path string, h http.HandlerFunc) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			calls.add(path)
			if r.Header.Get("Authorization") != "Bearer "+access {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		})
	}
	mux.HandleFunc("/api/v1/auth/provider/PROVIDER_TELEGRAM_MINI_APP", func(w http.ResponseWriter, r *http.Request) {
		calls.add(r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "query_id=AAA&auth_date=1", body["query"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"token": map[string]string{"access": access, "refresh": refresh}})
	})
	balanceReads := 0
	authorized("/api/v1/user/balance", func(w http.ResponseWriter, r *http.Request) {
		balanceReads++
		passes := 0
		if balanceReads == 1 {
			passes = 2
		}
		_, _ = fmt.Fprintf(w, `{"availableBalance":"10","playPasses":%d,"farming":{"startTime":1000,"endTime":2000,"balance":"0.1"}}`, passes)
	})
	authorized("/api/v1/daily-reward", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	authorized("/api/v1/farming/claim", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"availableBalance":"10.1","playPasses":0}`))
	})
	authorized("/api/v1/farming/start", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"startTime":2001,"endTime":28802001,"balance":"0"}`))
	})
	rounds := 0
	authorized("/api/v2/game/play", func(w http.ResponseWriter, r *http.Request) {
		rounds++
		_, _ = fmt.Fprintf(w, `{"gameId":"round-%d"}`, rounds)
	})
	authorized("/api/v2/game/claim", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, strings.HasPrefix(body["payload"], "0x"))
		_, _ = w.Write([]byte("OK"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api, err := adhttp.NewAPIClient(config.Service{UserAPI: srv.URL, GameAPI: srv.URL}, "", filepath.Join(t.TempDir(), "jar.json"), nil)
	require.NoError(t, err)
	client := blum.New(api, -420)
	tokens := auth.NewTokenStore(client, staticProvider("query_id=AAA&auth_date=1"))
	api.Authorize = auth.NewAuthorizer(tokens).Authorize

	prover := gameworker.Start(context.Background(), gameworker.NewNativeSolver(4), gameworker.WithTimeout(10*time.Second))
	defer prover.Close()

	var mu sync.Mutex
	now := time.UnixMilli(1500)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	noSleep := func(ctx context.Context, _ string, _ time.Duration) error { return ctx.Err() }

	s := farming.New("628111", client, prover, farming.Options{
		PollInterval: time.Minute,
		GamesEnabled: true,
		PointsMin:    180,
		PointsMax:    200,
	}, farming.WithClock(clock), farming.WithSleep(noSleep))

	require.NoError(t, s.Tick(context.Background()))

	st := s.State()
	assert.Equal(t, time.UnixMilli(1000), st.Farm.Start)
	assert.Equal(t, time.UnixMilli(2000), st.Farm.End)
	assert.Equal(t, "10", st.Balance)
	assert.Equal(t, 0, st.Tickets)
	assert.Equal(t, 1, calls.count("/api/v1/auth/provider/PROVIDER_TELEGRAM_MINI_APP"))
	assert.Equal(t, "/api/v1/auth/provider/PROVIDER_TELEGRAM_MINI_APP", calls.snapshot()[0])
	assert.Equal(t, 0, calls.count("/api/v1/farming/claim"))
	assert.Equal(t, 2, calls.count("/api/v2/game/claim"))

	mu.Lock()
	now = time.UnixMilli(2001)
	mu.Unlock()
	before := len(calls.snapshot())
	require.NoError(t, s.Tick(context.Background()))

	tail := calls.snapshot()[before:]
	assert.Equal(t, []string{"/api/v1/user/balance", "/api/v1/farming/claim", "/api/v1/farming/start"}, tail)
	assert.Equal(t, time.UnixMilli(28802001), s.State().Farm.End)
	assert.Equal(t, 1, calls.count("/api/v1/auth/provider/PROVIDER_TELEGRAM_MINI_APP"), "credential reused")
}
