package store

func (s *Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR NOT NULL PRIMARY KEY,
		email VARCHAR NOT NULL UNIQUE,
		first_name VARCHAR NOT NULL DEFAULT '',
		last_name VARCHAR NOT NULL DEFAULT '',
		date_of_birth VARCHAR NOT NULL DEFAULT '',
		location VARCHAR NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS calendars (
		id VARCHAR NOT NULL PRIMARY KEY,
		title VARCHAR NOT NULL,
		owner_id VARCHAR NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_members (
		calendar_id VARCHAR NOT NULL,
		user_id VARCHAR NOT NULL,
		PRIMARY KEY (calendar_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS calendar_members_user ON calendar_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR NOT NULL,
		calendar_id VARCHAR NOT NULL,
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (calendar_id, id)
	)`,
}
