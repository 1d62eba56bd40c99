package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
)

// CreateConnection inserts a connection. The name must be unique.
func (s *Store) CreateConnection(c *Connection) error {
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO connections
			(name, dialect, host, port, database, username, password,
			 is_source, is_destination, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, string(c.Dialect), c.Host, c.Port, c.Database, c.Username, c.Password,
		c.IsSource, c.IsDestination, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("connection %q already exists", c.Name)
		}
		return err
	}
	c.ID, err = res.LastInsertId()
	c.CreatedAt = now
	c.UpdatedAt = now
	return err
}

const connectionCols = `id, name, dialect, host, port, database, username, password,
	is_source, is_destination, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*Connection, error) {
	var c Connection
	var dialectStr, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &dialectStr, &c.Host, &c.Port, &c.Database,
		&c.Username, &c.Password, &c.IsSource, &c.IsDestination, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Dialect = dialect.Type(dialectStr)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ConnectionByID fetches a connection by ID.
func (s *Store) ConnectionByID(id int64) (*Connection, error) {
	c, err := scanConnection(s.db.QueryRow(
		`SELECT `+connectionCols+` FROM connections WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection %d: %w", id, ErrNotFound)
	}
	return c, err
}

// ConnectionByName fetches a connection by its unique name.
func (s *Store) ConnectionByName(name string) (*Connection, error) {
	c, err := scanConnection(s.db.QueryRow(
		`SELECT `+connectionCols+` FROM connections WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	return c, err
}

// ListConnections returns all connections ordered by name.
func (s *Store) ListConnections() ([]*Connection, error) {
	rows, err := s.db.Query(`SELECT ` + connectionCols + ` FROM connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UpdateConnection rewrites a connection's mutable fields and bumps updated_at.
func (s *Store) UpdateConnection(c *Connection) error {
	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE connections
		SET name = ?, dialect = ?, host = ?, port = ?, database = ?,
		    username = ?, password = ?, is_source = ?, is_destination = ?,
		    updated_at = ?
		WHERE id = ?
	`, c.Name, string(c.Dialect), c.Host, c.Port, c.Database, c.Username, c.Password,
		c.IsSource, c.IsDestination, formatTime(now), c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("connection %q already exists", c.Name)
		}
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("connection %d: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = now
	return nil
}

// DeleteConnection removes a connection. Connections referenced by a sync
// cannot be deleted (restrict).
func (s *Store) DeleteConnection(id int64) error {
	res, err := s.db.Exec(`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		if isFKViolation(err) {
			return fmt.Errorf("connection %d is referenced by a sync and cannot be deleted", id)
		}
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("connection %d: %w", id, ErrNotFound)
	}
	return nil
}
