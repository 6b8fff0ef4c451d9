// Package telegram supplies the Telegram mini-app login artifact (WebAppData)
// used to authenticate against Blum when no refresh path is left.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/storage/sessionstore"
)

const (
	webAppDataKey = "tgWebAppData="
	staleAfter    = 24 * time.Hour
)

var ErrNoWebAppData = errors.New("telegram: no web app data in session")

type RecordSource interface {
	Load(phone string) (sessionstore.Record, error)
}

type Logger interface {
	JustLog(msg string)
}

// Provider reads the web app data stored in an account's session record.
// The record is re-read on every call so an external tool can refresh it
// while the bot runs.
type Provider struct {
	phone  string
	source RecordSource
	log    Logger
	now    func() time.Time
}

func NewProvider(phone string, source RecordSource, log Logger) *Provider {
	return &Provider{phone: phone, source: source, log: log, now: time.Now}
}

func (p *Provider) WebAppData(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec, err := p.source.Load(p.phone)
	if err != nil {
		return "", fmt.Errorf("telegram: load session: %w", err)
	}
	data, err := ExtractWebAppData(rec.WebAppData)
	if err != nil {
		return "", err
	}
	if issued, ok := AuthDate(data); ok && p.now().Sub(issued) > staleAfter && p.log != nil {
		p.log.JustLog(fmt.Sprintf("web app data for %s was issued %s ago, login may be rejected", p.phone, p.now().Sub(issued).Round(time.Minute)))
	}
	return data, nil
}

// ExtractWebAppData accepts either raw init data or a full web view URL
// carrying it in the tgWebAppData fragment parameter, and returns the
// decoded init data.
func ExtractWebAppData(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoWebAppData
	}

	if idx := strings.Index(raw, webAppDataKey); idx >= 0 {
		value := raw[idx+len(webAppDataKey):]
		if end := strings.IndexByte(value, '&'); end >= 0 {
			value = value[:end]
		}
		// The web view encodes the init data twice.
		for i := 0; i < 2; i++ {
			decoded, err := url.PathUnescape(value)
			if err != nil {
				return "", fmt.Errorf("telegram: decode web app data: %w", err)
			}
			value = decoded
		}
		if value == "" {
			return "", ErrNoWebAppData
		}
		return value, nil
	}

	if !strings.Contains(raw, "=") && strings.Contains(raw, "%3D") {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return "", fmt.Errorf("telegram: decode web app data: %w", err)
		}
		raw = decoded
	}
	return raw, nil
}

// AuthDate returns the auth_date field of init data.
func AuthDate(initData string) (time.Time, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// Username returns the Telegram username embedded in the user field of init
// data, or "" when absent.
func Username(initData string) string {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return ""
	}
	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return ""
	}
	return user.Username
}
