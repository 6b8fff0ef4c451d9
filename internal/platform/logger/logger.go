package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
	"github.com/ohmynofan/blum-farming-bot/internal/platform/ui"
	"github.com/ohmynofan/blum-farming-bot/pkg/utils"
)

var (
	fileLogger *log.Logger
	once       sync.Once
	logFile    *os.File
)

func Init(path string) error {
	var err error
	once.Do(func() {
		os.Remove(path)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		fileLogger = log.New(logFile, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	})
	return err
}

func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

type ClassLogger struct {
	class   string
	session *model.Session
}

func NewLogger(v interface{}, session *model.Session) *ClassLogger {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return &ClassLogger{class: t.Name(), session: session.LoggingSession()}
}

func NewNamed(name string, session *model.Session) *ClassLogger {
	return &ClassLogger{class: name, session: session.LoggingSession()}
}

func (l *ClassLogger) label() string {
	if l.session == nil {
		return l.class
	}
	if l.session.Username != "" {
		return fmt.Sprintf("Account %d (%s)", l.session.AccIdx+1, l.session.Username)
	}
	return fmt.Sprintf("Account %d", l.session.AccIdx+1)
}

// Log writes msg to the log file and shows it on the account's dashboard
// block, counting down durationMs (300ms when omitted) before returning.
func (l *ClassLogger) Log(msg string, durationMs ...int) {
	totalDuration := 300 * time.Millisecond
	if len(durationMs) > 0 {
		totalDuration = time.Duration(durationMs[0]) * time.Millisecond
	}
	_ = l.countdown(context.Background(), msg, totalDuration, false, 3)
}

// Wait is Log with a cancellable countdown. It returns ctx.Err() if the
// context ends before d elapses.
func (l *ClassLogger) Wait(ctx context.Context, msg string, d time.Duration) error {
	return l.countdown(ctx, msg, d, true, 3)
}

func (l *ClassLogger) countdown(ctx context.Context, msg string, total time.Duration, headless bool, skip int) error {
	if fileLogger != nil {
		fileLogger.Printf("[%s][%s] %s", l.label(), callerFunc(skip), msg)
	}

	session := l.session
	if session == nil {
		if headless {
			return sleepCtx(ctx, total)
		}
		return nil
	}

	displayMsg := shortenForDisplay(msg)
	interval := 1 * time.Second
	for remaining := total; remaining > 0; remaining -= interval {
		ui.UpdateStatus(*session, displayMsg, remaining)

		sleepTime := interval
		if remaining < interval {
			sleepTime = remaining
		}
		if err := sleepCtx(ctx, sleepTime); err != nil {
			ui.UpdateStatus(*session, displayMsg, 0)
			return err
		}
	}

	ui.UpdateStatus(*session, displayMsg, 0)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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

func (l *ClassLogger) JustLog(msg string) {
	if fileLogger != nil {
		fileLogger.Printf("[%s][%s] %s", l.label(), callerFunc(2), msg)
	}
}

func (l *ClassLogger) LogObject(msg string, obj interface{}) {
	if fileLogger != nil {
		formattedString, err := utils.FormatObject(obj)
		if err != nil {
			l.JustLog(fmt.Sprintf("Error formatting object: %v", err))
			return
		}
		l.JustLog(fmt.Sprintf("%s : \n%v", msg, formattedString))
	}
}

func callerFunc(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	parts := strings.Split(fn.Name(), ".")
	return parts[len(parts)-1]
}

func shortenForDisplay(msg string) string {
	const maxLen = 140
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen-1]) + "…"
}
