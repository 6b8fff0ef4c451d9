package claimlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Day is one account's activity for one calendar day.
type Day struct {
	DailyDone   bool
	FarmClaims  int
	GamesPlayed int
	GamesWon    int
	Balance     string
	Tickets     int
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// Accounts write concurrently; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	createStmt := `CREATE TABLE IF NOT EXISTS claim_logs (
        account TEXT NOT NULL,
        claim_date TEXT NOT NULL,
        daily_done INTEGER NOT NULL DEFAULT 0,
        farm_claims INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY(account, claim_date)
    )`
	if _, err := s.db.Exec(createStmt); err != nil {
		return err
	}
	return s.ensureColumns()
}

func (s *Store) ensureColumns() error {
	columns := map[string]bool{}
	rows, err := s.db.Query(`PRAGMA table_info(claim_logs)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	alterStatements := []string{}
	addColumn := func(name, definition string) {
		if !columns[name] {
			alterStatements = append(alterStatements, definition)
		}
	}

	addColumn("games_played", `ALTER TABLE claim_logs ADD COLUMN games_played INTEGER NOT NULL DEFAULT 0`)
	addColumn("games_won", `ALTER TABLE claim_logs ADD COLUMN games_won INTEGER NOT NULL DEFAULT 0`)
	addColumn("balance", `ALTER TABLE claim_logs ADD COLUMN balance TEXT`)
	addColumn("tickets", `ALTER TABLE claim_logs ADD COLUMN tickets INTEGER NOT NULL DEFAULT 0`)

	for _, stmt := range alterStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DayStatus returns the recorded activity, or a zero Day when nothing was
// recorded yet. day is bucketed in its own location.
func (s *Store) DayStatus(account string, day time.Time) (Day, error) {
	var out Day
	var daily int
	var balance sql.NullString
	err := s.db.QueryRow(`SELECT daily_done, farm_claims, games_played, games_won, balance, tickets FROM claim_logs WHERE account = ? AND claim_date = ?`,
		normalizeAccount(account), day.Format(dateLayout)).
		Scan(&daily, &out.FarmClaims, &out.GamesPlayed, &out.GamesWon, &balance, &out.Tickets)
	if err == sql.ErrNoRows {
		return Day{}, nil
	}
	if err != nil {
		return Day{}, err
	}
	out.DailyDone = daily == 1
	if balance.Valid {
		out.Balance = balance.String
	}
	return out, nil
}

func (s *Store) DailyDone(account string, day time.Time) (bool, error) {
	d, err := s.DayStatus(account, day)
	return d.DailyDone, err
}

func (s *Store) MarkDaily(account string, day time.Time) error {
	_, err := s.db.Exec(`INSERT INTO claim_logs(account, claim_date, daily_done)
    VALUES(?, ?, 1)
    ON CONFLICT(account, claim_date) DO UPDATE SET daily_done = 1`, normalizeAccount(account), day.Format(dateLayout))
	return err
}

func (s *Store) AddFarmClaim(account string, day time.Time) error {
	_, err := s.db.Exec(`INSERT INTO claim_logs(account, claim_date, farm_claims)
    VALUES(?, ?, 1)
    ON CONFLICT(account, claim_date) DO UPDATE SET farm_claims = farm_claims + 1`, normalizeAccount(account), day.Format(dateLayout))
	return err
}

func (s *Store) AddGame(account string, day time.Time, won bool) error {
	w := 0
	if won {
		w = 1
	}
	_, err := s.db.Exec(`INSERT INTO claim_logs(account, claim_date, games_played, games_won)
    VALUES(?, ?, 1, ?)
    ON CONFLICT(account, claim_date) DO UPDATE SET games_played = games_played + 1, games_won = games_won + excluded.games_won`,
		normalizeAccount(account), day.Format(dateLayout), w)
	return err
}

func (s *Store) UpdateBalance(account string, day time.Time, balance string, tickets int) error {
	_, err := s.db.Exec(`INSERT INTO claim_logs(account, claim_date, balance, tickets)
    VALUES(?, ?, ?, ?)
    ON CONFLICT(account, claim_date) DO UPDATE SET balance = excluded.balance, tickets = excluded.tickets`,
		normalizeAccount(account), day.Format(dateLayout), balance, tickets)
	return err
}

func normalizeAccount(account string) string {
	return strings.TrimPrefix(strings.TrimSpace(account), "+")
}
