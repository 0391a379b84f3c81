package db

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the configuration for a MySQL connection pool
type MySQLConfig struct {
	// DSN format: "user:password@tcp(localhost:3306)/dbname?parseTime=true"
	DSN        string `yaml:"dsn"`
	PoolConfig `yaml:",inline"`
}

// NewMySQLWithConfig opens and pings a MySQL pool.
func NewMySQLWithConfig(config *MySQLConfig) (*SQLDatabase, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return openSQL("mysql", DriverMySQL, config.DSN, config.PoolConfig)
}
