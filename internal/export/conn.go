package export

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Credentials are what the connection form asks for.
type Credentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return errors.Newf("missing connection fields: %s", strings.Join(missing, ", "))
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port)
	}
	return nil
}

// DSN builds a go-sql-driver/mysql DSN; port 0 means 3306.
func (c Credentials) DSN() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	cfg.DBName = c.Database
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// Open connects and pings; sqlite DSNs are file paths (":memory:" works).
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty dsn")
	}
	driver := string(d)
	if d == MySQL {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// each sqlite connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connect %s", d)
	}
	return db, nil
}
