package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feria/internal/registration/models"
	"feria/pkg/document"
	"feria/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// SQLStore persists registrations in PostgreSQL or SQLite through sqlx.
// The unique index on nit decides duplicates, so concurrent creates for the
// same tax id cannot both succeed.
type SQLStore struct {
	db         *sqlx.DB
	sectorExpr string
	clock      func() time.Time
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithClock makes the store stamp registrations from clock instead of the
// database default.
func WithClock(clock func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSQL constructs a SQL-backed registration store. The dialect follows the
// driver the connection was opened with.
func NewSQL(db *sqlx.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:         db,
		sectorExpr: sectorExpression(db.DriverName()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sectorExpression(driverName string) string {
	if driverName == "postgres" {
		return `datos_registro #>> '{datos_registro,sector}'`
	}
	// json_extract yields 1/0 for JSON booleans
	return `CASE json_type(datos_registro, '$.datos_registro.sector')
		WHEN 'true' THEN 'true'
		WHEN 'false' THEN 'false'
		ELSE json_extract(datos_registro, '$.datos_registro.sector')
	END`
}

type registrationRow struct {
	ID              int64             `db:"id"`
	TaxID           string            `db:"nit"`
	CompanyName     string            `db:"nombre_empresa"`
	ContactEmail    string            `db:"email_contacto"`
	ContactPhone    string            `db:"telefono_contacto"`
	State           string            `db:"estado"`
	RegisteredAt    time.Time         `db:"fecha_registro"`
	SubmissionData  document.Document `db:"datos_registro"`
	CertificatePath sql.NullString    `db:"ruta_certificado"`
}

func (r registrationRow) toModel() *models.Registration {
	reg := &models.Registration{
		ID:             r.ID,
		TaxID:          r.TaxID,
		CompanyName:    r.CompanyName,
		ContactEmail:   r.ContactEmail,
		ContactPhone:   r.ContactPhone,
		State:          models.State(r.State),
		RegisteredAt:   r.RegisteredAt.UTC(),
		SubmissionData: r.SubmissionData,
	}
	if r.CertificatePath.Valid {
		path := r.CertificatePath.String
		reg.CertificatePath = &path
	}
	return reg
}

const selectColumns = `id, nit, nombre_empresa, email_contacto, telefono_contacto, estado, fecha_registro, datos_registro, ruta_certificado`

// Create inserts reg. Unless WithClock is set, fecha_registro is assigned by
// the database and read back after the insert.
func (s *SQLStore) Create(ctx context.Context, reg *models.Registration) error {
	if reg.State == "" {
		reg.State = models.StatePending
	}

	var certPath sql.NullString
	if reg.CertificatePath != nil {
		certPath = sql.NullString{String: *reg.CertificatePath, Valid: true}
	}

	columns := "nit, nombre_empresa, email_contacto, telefono_contacto, estado, datos_registro, ruta_certificado"
	args := []any{
		reg.TaxID,
		reg.CompanyName,
		reg.ContactEmail,
		reg.ContactPhone,
		string(reg.State),
		reg.SubmissionData,
		certPath,
	}
	var registeredAt time.Time
	if s.clock != nil {
		registeredAt = s.clock().UTC()
		columns += ", fecha_registro"
		args = append(args, registeredAt)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	query := s.db.Rebind(`INSERT INTO registros_feria (` + columns + `) VALUES (` + placeholders + `) RETURNING id`)

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("registration for tax id %q: %w", reg.TaxID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	if s.clock == nil {
		query := s.db.Rebind(`SELECT fecha_registro FROM registros_feria WHERE id = ?`)
		if err := s.db.GetContext(ctx, &registeredAt, query, id); err != nil {
			return fmt.Errorf("read registration timestamp: %w", err)
		}
	}

	reg.ID = id
	reg.RegisteredAt = registeredAt.UTC()
	return nil
}

func (s *SQLStore) FindByID(ctx context.Context, id int64) (*models.Registration, error) {
	var row registrationRow
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM registros_feria WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by id: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	var (
		rows  []registrationRow
		query string
		args  []any
	)
	if filter.State != "" {
		query = `SELECT ` + selectColumns + ` FROM registros_feria WHERE estado = ? ORDER BY id ASC LIMIT ? OFFSET ?`
		args = []any{filter.State, filter.Limit, filter.Skip}
	} else {
		query = `SELECT ` + selectColumns + ` FROM registros_feria ORDER BY id ASC LIMIT ? OFFSET ?`
		args = []any{filter.Limit, filter.Skip}
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	out := make([]*models.Registration, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (s *SQLStore) UpdateState(ctx context.Context, id int64, state models.State) (*models.Registration, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin state update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE registros_feria SET estado = ? WHERE id = ?`), string(state), id)
	if err != nil {
		return nil, fmt.Errorf("update registration state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update registration state: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrNotFound
	}

	var row registrationRow
	query := tx.Rebind(`SELECT ` + selectColumns + ` FROM registros_feria WHERE id = ?`)
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit state update: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM registros_feria`); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

type bucketRow struct {
	Key   sql.NullString `db:"bucket"`
	Count int            `db:"total"`
}

func (s *SQLStore) CountByState(ctx context.Context) (map[models.State]int, error) {
	var rows []bucketRow
	query := `SELECT estado AS bucket, COUNT(*) AS total FROM registros_feria GROUP BY estado`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count registrations by state: %w", err)
	}
	counts := make(map[models.State]int, len(rows))
	for _, row := range rows {
		counts[models.State(row.Key.String)] += row.Count
	}
	return counts, nil
}

func (s *SQLStore) CountBySector(ctx context.Context) (map[string]int, error) {
	var rows []bucketRow
	query := `SELECT ` + s.sectorExpr + ` AS bucket, COUNT(*) AS total FROM registros_feria GROUP BY 1`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count registrations by sector: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		key := models.SectorMissing
		if row.Key.Valid {
			key = row.Key.String
		}
		counts[key] += row.Count
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		// primary result code when extended codes are off
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}
