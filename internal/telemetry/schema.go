package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/lumactl/internal/errors"
)

const (
	createTableSQL = `
    CREATE TABLE IF NOT EXISTS telemetry (
        timestamp      INTEGER PRIMARY KEY,
        state          TEXT NOT NULL,
        current_power  REAL NOT NULL,
        target_power   REAL NOT NULL,
        stability      REAL NOT NULL,
        operating_time REAL NOT NULL,
        wavelength     REAL NOT NULL
    )`

	insertSnapshotSQL = `
    INSERT INTO telemetry (
        timestamp, state,
        current_power, target_power,
        stability, operating_time, wavelength
    ) VALUES (?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(timestamp) DO UPDATE SET
        state = excluded.state,
        current_power = excluded.current_power,
        target_power = excluded.target_power,
        stability = excluded.stability,
        operating_time = excluded.operating_time,
        wavelength = excluded.wavelength`
)

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	if _, err := db.Exec(createTableSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}
