package config

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SessionsDir string
	DataPath    string
	CookiesDir  string
	ProxiesPath string
	Service     Service

	PollInterval time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration

	GameEnabled   bool
	GamePlayMin   time.Duration
	GamePlayMax   time.Duration
	GamePointsMin int
	GamePointsMax int
	GameScript    string
	PowDifficulty int

	WorkerTimeout   time.Duration
	RefreshTimeout  time.Duration
	RenewalFailFast bool

	DailyOffsetMinutes int
	Timezone           string
}

func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using default values")
	}

	jitterMin := parseIntWithDefault(os.Getenv("JITTER_MIN_SECONDS"), 5)
	jitterMax := parseIntWithDefault(os.Getenv("JITTER_MAX_SECONDS"), jitterMin+10)
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}

	playMin := parseIntWithDefault(os.Getenv("GAME_PLAY_MIN_SECONDS"), 30)
	playMax := parseIntWithDefault(os.Getenv("GAME_PLAY_MAX_SECONDS"), playMin+15)
	if playMax < playMin {
		playMax = playMin
	}

	pointsMin := parseIntWithDefault(os.Getenv("GAME_POINTS_MIN"), 180)
	pointsMax := parseIntWithDefault(os.Getenv("GAME_POINTS_MAX"), pointsMin+20)

	return Config{
		SessionsDir: stringWithDefault(os.Getenv("SESSIONS_DIR"), "sessions"),
		DataPath:    stringWithDefault(os.Getenv("DATA_DB"), "data/blum.db"),
		CookiesDir:  stringWithDefault(os.Getenv("COOKIES_DIR"), "data/cookies"),
		ProxiesPath: stringWithDefault(os.Getenv("PROXIES_FILE"), "configs/proxies.txt"),
		Service:     Blum,

		PollInterval: seconds(parseIntWithDefault(os.Getenv("POLL_INTERVAL_SECONDS"), 60)),
		JitterMin:    seconds(jitterMin),
		JitterMax:    seconds(jitterMax),

		GameEnabled:   parseBoolWithDefault(os.Getenv("GAME_ENABLED"), true),
		GamePlayMin:   seconds(playMin),
		GamePlayMax:   seconds(playMax),
		GamePointsMin: pointsMin,
		GamePointsMax: pointsMax,
		GameScript:    strings.TrimSpace(os.Getenv("GAME_SCRIPT")),
		PowDifficulty: parseIntWithDefault(os.Getenv("POW_DIFFICULTY"), 16),

		WorkerTimeout:   seconds(parseIntWithDefault(os.Getenv("WORKER_TIMEOUT_SECONDS"), 120)),
		RefreshTimeout:  seconds(parseIntWithDefault(os.Getenv("REFRESH_TIMEOUT_SECONDS"), 30)),
		RenewalFailFast: parseBoolWithDefault(os.Getenv("RENEWAL_FAIL_FAST"), false),

		DailyOffsetMinutes: parseSignedIntWithDefault(os.Getenv("DAILY_OFFSET_MINUTES"), -420),
		Timezone:           os.Getenv("TIMEZONE"),
	}
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func stringWithDefault(value, defaultVal string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	return value
}

func parseIntWithDefault(value string, defaultVal int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(value); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func parseSignedIntWithDefault(value string, defaultVal int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return defaultVal
}

func parseBoolWithDefault(value string, defaultVal bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	return defaultVal
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SessionsDir) == "" {
		return errors.New("sessions directory required (SESSIONS_DIR)")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.JitterMax < c.JitterMin {
		return fmt.Errorf("jitter range inverted (min=%s max=%s)", c.JitterMin, c.JitterMax)
	}
	if c.GamePlayMax < c.GamePlayMin {
		return fmt.Errorf("game play range inverted (min=%s max=%s)", c.GamePlayMin, c.GamePlayMax)
	}
	if c.GamePointsMax < c.GamePointsMin {
		return fmt.Errorf("game points range inverted (min=%d max=%d)", c.GamePointsMin, c.GamePointsMax)
	}
	if c.PowDifficulty > 32 {
		return fmt.Errorf("POW_DIFFICULTY too high: %d (max 32)", c.PowDifficulty)
	}
	if c.WorkerTimeout <= 0 || c.RefreshTimeout <= 0 {
		return errors.New("worker and refresh timeouts must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.GameScript != "" {
		if _, err := os.Stat(c.GameScript); err != nil {
			return fmt.Errorf("game script unavailable: %w", err)
		}
	}
	return nil
}

// Location resolves the zone used for calendar-day boundaries. Without
// TIMEZONE the day follows DAILY_OFFSET_MINUTES, which is in the
// minutes-behind-UTC convention the service expects (-420 is UTC+7).
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.FixedZone("", -c.DailyOffsetMinutes*60), nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadProxies reads one proxy URL per line. A missing file means no proxies.
func (c Config) LoadProxies() ([]string, error) {
	if strings.TrimSpace(c.ProxiesPath) == "" {
		return nil, nil
	}
	f, err := os.Open(c.ProxiesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var proxies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxies: %w", err)
	}
	return proxies, nil
}

// ProxyFor assigns proxies to accounts by index, wrapping around.
func ProxyFor(proxies []string, index int) string {
	if len(proxies) == 0 || index < 0 {
		return ""
	}
	return proxies[index%len(proxies)]
}
