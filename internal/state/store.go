package state

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrEventNotFound is returned when no event matches the requested ID.
var ErrEventNotFound = errors.New("fall event not found")

// #region store-struct
// Store persists emitted fall events in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed: closing it would close the shared *sql.DB.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region save-event
// SaveEvent inserts ev and returns its ID, assigning one when ev.ID is empty.
func (s *Store) SaveEvent(ev FallEvent) (string, error) {
	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	origin := ev.Origin
	if origin == "" {
		origin = OriginDetected
	}

	var lat, lon interface{}
	if ev.Location != nil {
		lat, lon = ev.Location.Latitude, ev.Location.Longitude
	}

	_, err := s.db.Exec(
		`INSERT INTO fall_events (event_id, occurred_at, confidence, max_impact, had_rotation,
		 max_attitude_change, mode, latitude, longitude, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.Confidence, ev.MaxImpact,
		boolToInt(ev.HadRotation), ev.MaxAttitudeChange, string(ev.Mode), lat, lon,
		string(origin), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// #endregion save-event

// #region mark-delivered
// MarkDelivered records the outcome of forwarding an event downstream.
// A nil deliveryErr marks the event delivered.
func (s *Store) MarkDelivered(id string, deliveryErr error) error {
	var (
		res sql.Result
		err error
	)
	if deliveryErr == nil {
		res, err = s.db.Exec(
			`UPDATE fall_events SET delivered = 1, delivered_at = ?, delivery_error = NULL WHERE event_id = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), id,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE fall_events SET delivered = 0, delivery_error = ? WHERE event_id = ?`,
			deliveryErr.Error(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark delivered %s: %w", id, ErrEventNotFound)
	}
	return nil
}

// #endregion mark-delivered

// #region get-event
const eventColumns = `event_id, occurred_at, confidence, max_impact, had_rotation, max_attitude_change,
	mode, latitude, longitude, origin, delivered, delivered_at, delivery_error, created_at`

// GetEvent retrieves a single event by ID.
func (s *Store) GetEvent(id string) (StoredEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM fall_events WHERE event_id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEvent{}, fmt.Errorf("get event %s: %w", id, ErrEventNotFound)
	}
	if err != nil {
		return StoredEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

// #endregion get-event

// #region list-events
// ListEvents returns the most recent events, newest first.
func (s *Store) ListEvents(limit int) ([]StoredEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM fall_events ORDER BY occurred_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fall_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// #endregion list-events

// #region scan
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(sc scanner) (StoredEvent, error) {
	var (
		ev          StoredEvent
		occurredStr string
		createdStr  string
		mode        string
		origin      string
		rotation    int
		delivered   int
		lat, lon    sql.NullFloat64
		deliveredAt sql.NullString
		deliveryErr sql.NullString
	)
	err := sc.Scan(&ev.ID, &occurredStr, &ev.Confidence, &ev.MaxImpact, &rotation, &ev.MaxAttitudeChange,
		&mode, &lat, &lon, &origin, &delivered, &deliveredAt, &deliveryErr, &createdStr)
	if err != nil {
		return StoredEvent{}, err
	}

	ev.Timestamp, _ = time.Parse(time.RFC3339Nano, occurredStr)
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	ev.Mode = profile.Mode(mode)
	ev.Origin = Origin(origin)
	ev.HadRotation = rotation != 0
	ev.Delivered = delivered != 0
	if lat.Valid && lon.Valid {
		ev.Location = &motion.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if deliveredAt.Valid {
		ev.DeliveredAt, _ = time.Parse(time.RFC3339Nano, deliveredAt.String)
	}
	if deliveryErr.Valid {
		ev.DeliveryError = deliveryErr.String
	}
	return ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion scan
