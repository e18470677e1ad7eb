package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"skysignal/internal/signal"
)

// ErrNotFound is returned when a signal or stats row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed signals and user_stats repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// UserCounts is the payload of a user_stats upsert.
type UserCounts struct {
	TotalPredictions int
	WinCount         int
	LossCount        int
	TotalEarnings    decimal.Decimal
}

const signalColumns = `id, event_id, market_title, venue, event_time, market_snapshot_hash,
	weather_json, ai_digest, confidence, odds_efficiency, side, platform, author_address,
	tx_hash, total_tips, timestamp, outcome, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (signal.Signal, error) {
	var (
		s                               signal.Signal
		confidence, efficiency, tips    string
		side, platform, txHash, outcome sql.NullString
		resolvedAt                      sql.NullInt64
	)
	err := row.Scan(
		&s.ID, &s.EventID, &s.MarketTitle, &s.Venue, &s.EventTime, &s.MarketSnapshotHash,
		&s.WeatherJSON, &s.AIDigest, &confidence, &efficiency, &side, &platform, &s.AuthorAddress,
		&txHash, &tips, &s.Timestamp, &outcome, &resolvedAt,
	)
	if err != nil {
		return signal.Signal{}, err
	}

	s.Confidence = signal.Confidence(confidence)
	s.OddsEfficiency = signal.OddsEfficiency(efficiency)
	s.Side = signal.Side(side.String)
	s.Platform = platform.String
	if txHash.Valid {
		h := txHash.String
		s.TxHash = &h
	}
	s.TotalTips = parseAmount(tips)
	if outcome.Valid {
		o := signal.Outcome(outcome.String)
		s.Outcome = &o
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Int64
		s.ResolvedAt = &ts
	}
	return s, nil
}

// parseAmount reads a string-encoded tip amount; garbage counts as zero.
func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateSignal inserts a new PENDING signal. Missing id and timestamp are
// generated; the id is written back into sig.
func (s *Store) CreateSignal(ctx context.Context, sig *signal.Signal) error {
	if sig.AuthorAddress == "" {
		return fmt.Errorf("creating signal: author address is required")
	}
	if sig.EventID == "" {
		return fmt.Errorf("creating signal: event id is required")
	}
	if _, ok := signal.ParseSide(string(sig.Side)); !ok {
		return fmt.Errorf("creating signal: invalid side %q", sig.Side)
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Timestamp == 0 {
		sig.Timestamp = s.now().Unix()
	}
	if sig.Confidence == "" {
		sig.Confidence = signal.ConfidenceMedium
	}
	if sig.OddsEfficiency == "" {
		sig.OddsEfficiency = signal.OddsEfficient
	}
	pending := signal.OutcomePending
	sig.Outcome = &pending
	sig.ResolvedAt = nil

	var txHash sql.NullString
	if sig.TxHash != nil {
		txHash = nullString(*sig.TxHash)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (`+signalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		sig.ID, sig.EventID, sig.MarketTitle, sig.Venue, sig.EventTime, sig.MarketSnapshotHash,
		sig.WeatherJSON, sig.AIDigest, string(sig.Confidence), string(sig.OddsEfficiency),
		nullString(string(sig.Side)), nullString(sig.Platform), sig.AuthorAddress,
		txHash, sig.TotalTips.String(), sig.Timestamp, string(pending),
	)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

// FindSignalByID loads one signal, returning ErrNotFound when absent.
func (s *Store) FindSignalByID(ctx context.Context, id string) (*signal.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading signal %s: %w", id, err)
	}
	return &sig, nil
}

// FindPendingSignalsByEvent returns the event's unresolved signals, oldest first.
func (s *Store) FindPendingSignalsByEvent(ctx context.Context, eventID string) ([]signal.Signal, error) {
	return s.querySignals(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE event_id = ? AND (outcome IS NULL OR outcome = 'PENDING')
		ORDER BY timestamp ASC, id ASC`, eventID)
}

// FindPendingSignals returns unresolved signals whose event time is at or
// before the given epoch second. A non-positive limit means no limit.
func (s *Store) FindPendingSignals(ctx context.Context, before int64, limit int) ([]signal.Signal, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.querySignals(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE (outcome IS NULL OR outcome = 'PENDING') AND event_time <= ?
		ORDER BY event_time ASC, id ASC
		LIMIT ?`, before, limit)
}

func (s *Store) querySignals(ctx context.Context, query string, args ...any) ([]signal.Signal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var result []signal.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		result = append(result, sig)
	}
	return result, rows.Err()
}

// UpdateSignalOutcome writes a terminal outcome only while the row is still
// PENDING or NULL. It reports whether this call performed the write; false
// means the row is missing or another writer resolved it first.
func (s *Store) UpdateSignalOutcome(ctx context.Context, id string, outcome signal.Outcome, resolvedAt int64) (bool, error) {
	if !outcome.IsTerminal() {
		return false, fmt.Errorf("updating signal %s: outcome %q is not terminal", id, outcome)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE signals SET outcome = ?, resolved_at = ?
		WHERE id = ? AND (outcome IS NULL OR outcome = 'PENDING')`,
		string(outcome), resolvedAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("updating signal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating signal %s: %w", id, err)
	}
	return n == 1, nil
}

// AddTip adds amount to the signal's accumulated tips.
func (s *Store) AddTip(ctx context.Context, id string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("tipping signal %s: negative amount %s", id, amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tip transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT total_tips FROM signals WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading tips for %s: %w", id, err)
	}

	total := parseAmount(current).Add(amount)
	if _, err := tx.ExecContext(ctx, `UPDATE signals SET total_tips = ? WHERE id = ?`, total.String(), id); err != nil {
		return fmt.Errorf("writing tips for %s: %w", id, err)
	}
	return tx.Commit()
}

// SetTxHash records the on-chain publication hash once.
func (s *Store) SetTxHash(ctx context.Context, id, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET tx_hash = ? WHERE id = ? AND tx_hash IS NULL`, hash, id)
	if err != nil {
		return false, fmt.Errorf("setting tx hash on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertUserStats writes a user_stats row. On conflict the counters are
// replaced, not incremented.
func (s *Store) UpsertUserStats(ctx context.Context, address string, c UserCounts) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_address, total_predictions, win_count, loss_count, total_earnings)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_address) DO UPDATE SET
			total_predictions = excluded.total_predictions,
			win_count = excluded.win_count,
			loss_count = excluded.loss_count,
			total_earnings = excluded.total_earnings,
			updated_at = datetime('now')`,
		address, c.TotalPredictions, c.WinCount, c.LossCount, c.TotalEarnings.String(),
	)
	if err != nil {
		return fmt.Errorf("upserting user stats for %s: %w", address, err)
	}
	return nil
}

// ReadUserStats returns the raw counters stored for address. WinRate and Tier
// are left zero; they are derived by the reputation package.
func (s *Store) ReadUserStats(ctx context.Context, address string) (*signal.UserStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_address, total_predictions, win_count, loss_count, total_earnings
		FROM user_stats WHERE user_address = ?`, address)
	u, err := scanUserStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading user stats for %s: %w", address, err)
	}
	return &u, nil
}

// ReadAllUserStats returns every stored user_stats row ordered by address.
func (s *Store) ReadAllUserStats(ctx context.Context) ([]signal.UserStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_address, total_predictions, win_count, loss_count, total_earnings
		FROM user_stats ORDER BY user_address`)
	if err != nil {
		return nil, fmt.Errorf("reading all user stats: %w", err)
	}
	defer rows.Close()

	var result []signal.UserStats
	for rows.Next() {
		u, err := scanUserStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user stats: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func scanUserStats(row rowScanner) (signal.UserStats, error) {
	var u signal.UserStats
	var earnings string
	if err := row.Scan(&u.Address, &u.TotalPredictions, &u.WinCount, &u.LossCount, &earnings); err != nil {
		return signal.UserStats{}, err
	}
	u.TotalEarnings = parseAmount(earnings)
	return u, nil
}

// AggregateSignals recomputes counters for one author from signals created
// at or after since (epoch seconds). ok is false when the author has none.
func (s *Store) AggregateSignals(ctx context.Context, address string, since int64) (signal.UserStats, bool, error) {
	all, err := s.aggregate(ctx, `
		SELECT author_address, outcome, total_tips FROM signals
		WHERE author_address = ? AND timestamp >= ?`, address, since)
	if err != nil {
		return signal.UserStats{}, false, err
	}
	if len(all) == 0 {
		return signal.UserStats{Address: address}, false, nil
	}
	return all[0], true, nil
}

// AggregateAllSignals recomputes counters for every author with signals
// created at or after since, ordered by address.
func (s *Store) AggregateAllSignals(ctx context.Context, since int64) ([]signal.UserStats, error) {
	return s.aggregate(ctx, `
		SELECT author_address, outcome, total_tips FROM signals
		WHERE timestamp >= ?`, since)
}

// Tips are summed in Go because SQLite would add the TEXT amounts as floats.
func (s *Store) aggregate(ctx context.Context, query string, args ...any) ([]signal.UserStats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating signals: %w", err)
	}
	defer rows.Close()

	byAddress := make(map[string]*signal.UserStats)
	for rows.Next() {
		var address, tips string
		var outcome sql.NullString
		if err := rows.Scan(&address, &outcome, &tips); err != nil {
			return nil, fmt.Errorf("scanning signal aggregate: %w", err)
		}
		u, ok := byAddress[address]
		if !ok {
			u = &signal.UserStats{Address: address, TotalEarnings: decimal.Zero}
			byAddress[address] = u
		}
		u.TotalPredictions++
		switch signal.Outcome(outcome.String) {
		case signal.OutcomeCorrect:
			u.WinCount++
		case signal.OutcomeIncorrect:
			u.LossCount++
		}
		u.TotalEarnings = u.TotalEarnings.Add(parseAmount(tips))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]signal.UserStats, 0, len(byAddress))
	for _, u := range byAddress {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}
