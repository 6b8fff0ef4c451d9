package telegram

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmynofan/blum-farming-bot/internal/storage/sessionstore"
)

const initData = `query_id=AAHdF6IQAAAAAN0XohDhrOrc&user={"id":279058397,"username":"vdkfrost"}&auth_date=1662771648&hash=c501b71e775f74ce10e377dea85a7ea24ecd640b223ea86dfe453e0eaed2e2b2`

type fakeSource struct {
	rec   sessionstore.Record
	err   error
	loads int
}

func (f *fakeSource) Load(phone string) (sessionstore.Record, error) {
	f.loads++
	return f.rec, f.err
}

type logSink struct{ lines []string }

func (l *logSink) JustLog(msg string) { l.lines = append(l.lines, msg) }

func webViewURL(data string) string {
	once := url.QueryEscape(data)
	twice := url.QueryEscape(once)
	return "https://telegram.blum.codes/#tgWebAppData=" + twice + "&tgWebAppVersion=7.10&tgWebAppPlatform=android"
}

func TestExtractFromWebViewURL(t *testing.T) {
	got, err := ExtractWebAppData(webViewURL(initData))
	require.NoError(t, err)
	assert.Equal(t, initData, got)
}

func TestExtractRawInitData(t *testing.T) {
	got, err := ExtractWebAppData("  " + initData + "\n")
	require.NoError(t, err)
	assert.Equal(t, initData, got)

	got, err = ExtractWebAppData(url.QueryEscape("query_id=1&auth_date=2"))
	require.NoError(t, err)
	assert.Equal(t, "query_id=1&auth_date=2", got)
}

func TestExtractEmpty(t *testing.T) {
	_, err := ExtractWebAppData("  ")
	assert.ErrorIs(t, err, ErrNoWebAppData)

	_, err = ExtractWebAppData("https://telegram.blum.codes/#tgWebAppData=&tgWebAppVersion=7")
	assert.ErrorIs(t, err, ErrNoWebAppData)
}

func TestAuthDateAndUsername(t *testing.T) {
	issued, ok := AuthDate(initData)
	require.True(t, ok)
	assert.Equal(t, int64(1662771648), issued.Unix())
	assert.Equal(t, "vdkfrost", Username(initData))

	_, ok = AuthDate("query_id=1")
	assert.False(t, ok)
	assert.Equal(t, "", Username("query_id=1"))
}

func TestProviderReadsRecordEachCall(t *testing.T) {
	src := &fakeSource{rec: sessionstore.Record{WebAppData: initData}}
	log := &logSink{}
	p := NewProvider("628111", src, log)
	p.now = func() time.Time { return time.Unix(1662771648, 0).Add(time.Hour) }

	got, err := p.WebAppData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, initData, got)
	assert.Empty(t, log.lines)

	src.rec.WebAppData = strings.Replace(initData, "1662771648", "1662000000", 1)
	_, err = p.WebAppData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
	assert.Len(t, log.lines, 1)
}

func TestProviderErrors(t *testing.T) {
	p := NewProvider("1", &fakeSource{}, nil)
	_, err := p.WebAppData(context.Background())
	assert.ErrorIs(t, err, ErrNoWebAppData)

	p = NewProvider("1", &fakeSource{err: sessionstore.ErrNotFound}, nil)
	_, err = p.WebAppData(context.Background())
	assert.True(t, errors.Is(err, sessionstore.ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.WebAppData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
