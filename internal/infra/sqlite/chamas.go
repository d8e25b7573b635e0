package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
)

// ─── Chama Repository ───────────────────────────────────────────────────────

// ChamaStore is the SQLite-backed domain.ChamaRepository.
type ChamaStore struct {
	db *DB
}

// NewChamaStore creates a chama repository over db.
func NewChamaStore(db *DB) *ChamaStore {
	return &ChamaStore{db: db}
}

// Insert stores a new chama.
func (s *ChamaStore) Insert(c *domain.Chama) error {
	members, rules, stats, err := encodeChamaJSON(c)
	if err != nil {
		return err
	}
	_, err = s.db.db.Exec(`
		INSERT INTO chamas (id, admin_user_id, admin_phone, name, description,
			min_contribution, frequency, max_members, target_kes, current_kes,
			active, created_at, updated_at, end_date, completed_at,
			members_json, rules_json, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.AdminUserID, c.AdminPhone, c.Name, c.Description,
		c.MinContribution, string(c.Frequency), c.MaxMembers, c.TargetKes, c.CurrentKes,
		boolInt(c.Active), encodeTime(c.CreatedAt), encodeTime(c.UpdatedAt),
		encodeTimePtr(c.EndDate), encodeTimePtr(c.CompletedAt),
		members, rules, stats)
	if err != nil {
		return fmt.Errorf("insert chama: %w", err)
	}
	return nil
}

// Get returns the chama for id, or (nil, nil) if unknown.
func (s *ChamaStore) Get(id uuid.UUID) (*domain.Chama, error) {
	row := s.db.db.QueryRow(chamaSelect+` WHERE id = ?`, id.String())
	c, err := scanChama(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// Update replaces a stored chama.
func (s *ChamaStore) Update(c *domain.Chama) error {
	members, rules, stats, err := encodeChamaJSON(c)
	if err != nil {
		return err
	}
	res, err := s.db.db.Exec(`
		UPDATE chamas SET
			current_kes = ?, active = ?, updated_at = ?, end_date = ?,
			completed_at = ?, members_json = ?, rules_json = ?, stats_json = ?
		WHERE id = ?
	`, c.CurrentKes, boolInt(c.Active), encodeTime(c.UpdatedAt),
		encodeTimePtr(c.EndDate), encodeTimePtr(c.CompletedAt),
		members, rules, stats, c.ID.String())
	if err != nil {
		return fmt.Errorf("update chama: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrChamaNotFound
	}
	return nil
}

// ByMember returns chamas where the user is an active member, newest first.
// Membership lives inside the JSON blob, so this filters in Go rather than
// in SQL; chama counts stay small enough that this is not a concern.
func (s *ChamaStore) ByMember(userID string) ([]*domain.Chama, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []*domain.Chama
	for _, c := range all {
		m := c.FindMember(userID)
		if m != nil && m.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// Active returns all active chamas, newest first.
func (s *ChamaStore) Active() ([]*domain.Chama, error) {
	rows, err := s.db.db.Query(chamaSelect + ` WHERE active = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query active chamas: %w", err)
	}
	defer rows.Close()
	return collectChamas(rows)
}

// All returns every chama, newest first.
func (s *ChamaStore) All() ([]*domain.Chama, error) {
	rows, err := s.db.db.Query(chamaSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query chamas: %w", err)
	}
	defer rows.Close()
	return collectChamas(rows)
}

// AddContribution appends a contribution to a chama's history.
func (s *ChamaStore) AddContribution(con *domain.Contribution) error {
	_, err := s.db.db.Exec(`
		INSERT INTO contributions (id, chama_id, user_id, phone, amount_kes,
			date, late, penalty_kes, tx_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, con.ID.String(), con.ChamaID.String(), con.UserID, con.Phone,
		con.AmountKes, encodeTime(con.Date), boolInt(con.Late),
		con.PenaltyKes, con.TxRef)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// Contributions returns a chama's full contribution history, oldest first.
func (s *ChamaStore) Contributions(chamaID uuid.UUID) ([]*domain.Contribution, error) {
	rows, err := s.db.db.Query(`
		SELECT id, chama_id, user_id, phone, amount_kes, date, late, penalty_kes, tx_ref
		FROM contributions WHERE chama_id = ? ORDER BY date
	`, chamaID.String())
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contribution
	for rows.Next() {
		var (
			con      domain.Contribution
			id, cid  string
			date     string
			late     int
		)
		if err := rows.Scan(&id, &cid, &con.UserID, &con.Phone, &con.AmountKes,
			&date, &late, &con.PenaltyKes, &con.TxRef); err != nil {
			return nil, err
		}
		if con.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse contribution id: %w", err)
		}
		if con.ChamaID, err = uuid.Parse(cid); err != nil {
			return nil, fmt.Errorf("parse chama id: %w", err)
		}
		if con.Date, err = decodeTime(date); err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		con.Late = late == 1
		out = append(out, &con)
	}
	return out, rows.Err()
}

// ─── Scanning ───────────────────────────────────────────────────────────────

const chamaSelect = `
	SELECT id, admin_user_id, admin_phone, name, description,
		min_contribution, frequency, max_members, target_kes, current_kes,
		active, created_at, updated_at, end_date, completed_at,
		members_json, rules_json, stats_json
	FROM chamas`

func encodeChamaJSON(c *domain.Chama) (members, rules, stats string, err error) {
	m, err := json.Marshal(c.Members)
	if err != nil {
		return "", "", "", fmt.Errorf("encode members: %w", err)
	}
	r, err := json.Marshal(c.Rules)
	if err != nil {
		return "", "", "", fmt.Errorf("encode rules: %w", err)
	}
	st, err := json.Marshal(c.Stats)
	if err != nil {
		return "", "", "", fmt.Errorf("encode stats: %w", err)
	}
	return string(m), string(r), string(st), nil
}

func scanChama(row rowScanner) (*domain.Chama, error) {
	var (
		c                               domain.Chama
		id, frequency, created, updated string
		active                          int
		endDate, completedAt            sql.NullString
		members, rules, stats           string
	)
	err := row.Scan(&id, &c.AdminUserID, &c.AdminPhone, &c.Name, &c.Description,
		&c.MinContribution, &frequency, &c.MaxMembers, &c.TargetKes, &c.CurrentKes,
		&active, &created, &updated, &endDate, &completedAt,
		&members, &rules, &stats)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse chama id: %w", err)
	}
	c.Frequency = domain.ContributionFrequency(frequency)
	c.Active = active == 1
	if c.CreatedAt, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = decodeTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if c.EndDate, err = decodeTimePtr(endDate); err != nil {
		return nil, fmt.Errorf("parse end_date: %w", err)
	}
	if c.CompletedAt, err = decodeTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &c.Members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &c.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &c.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &c, nil
}

func collectChamas(rows *sql.Rows) ([]*domain.Chama, error) {
	var out []*domain.Chama
	for rows.Next() {
		c, err := scanChama(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
