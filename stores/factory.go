package stores

import (
	"fmt"
)

// NewStore creates a store based on the configuration.
func NewStore(config *StoreConfig) (Store, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config)
	case "postgres":
		return NewPostgresStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewSQLiteStoreDefault creates a SQLite store with default settings.
func NewSQLiteStoreDefault() (Store, error) {
	return NewSQLiteStoreSimple("concierge.sqlite")
}

// NewPostgresStoreDefault creates a PostgreSQL store from discrete
// connection parameters.
func NewPostgresStoreDefault(host, user, password, dbname string, port int) (Store, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresStoreSimple(dsn)
}
