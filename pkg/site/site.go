// Package site talks to an install's MySQL datastore: it reads a handful of
// site settings and dumps the whole database.
package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/types"
)

const defaultPort = "3306"

// ConnectTimeout bounds dialing the datastore.
const ConnectTimeout = 10 * time.Second

var validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Address is where a datastore listens: a TCP host and port, or a unix socket.
type Address struct {
	Host   string
	Port   string
	Socket string
}

// ParseHost splits a DB_HOST value. It accepts "host", "host:port",
// "[v6addr]:port" and "host:/path/to/socket".
func ParseHost(value string) Address {
	if i := strings.Index(value, ":/"); i >= 0 {
		return Address{Host: value[:i], Socket: value[i+1:]}
	}
	if host, port, err := net.SplitHostPort(value); err == nil {
		return Address{Host: host, Port: port}
	}
	return Address{Host: strings.Trim(value, "[]")}
}

// DSN returns the driver data source name for cfg.
func DSN(cfg *types.DBConfig) string {
	addr := ParseHost(cfg.Host)

	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.Name
	c.Timeout = ConnectTimeout
	if addr.Socket != "" {
		c.Net = "unix"
		c.Addr = addr.Socket
	} else {
		port := addr.Port
		if port == "" {
			port = defaultPort
		}
		host := addr.Host
		if host == "" {
			host = "localhost"
		}
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(host, port)
	}
	if cfg.Charset != "" {
		c.Params = map[string]string{"charset": cfg.Charset}
	}
	return c.FormatDSN()
}

// Open connects to the datastore described by cfg.
func Open(ctx context.Context, cfg *types.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", cfg.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database %q: %w", cfg.Name, err)
	}
	return db, nil
}

// Read connects to cfg's datastore and fetches its site settings.
func Read(ctx context.Context, cfg *types.DBConfig) (types.SiteInfo, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return types.SiteInfo{}, err
	}
	defer db.Close()
	return FetchInfo(ctx, db, cfg.TablePrefix)
}

// FetchInfo reads the site settings from the <prefix>options table. A
// setting that is not set is returned as "".
func FetchInfo(ctx context.Context, db *sql.DB, prefix string) (types.SiteInfo, error) {
	var info types.SiteInfo
	if !validPrefix.MatchString(prefix) {
		return info, fmt.Errorf("invalid table prefix %q", prefix)
	}

	query := fmt.Sprintf("SELECT option_value FROM %soptions WHERE option_name = ?", prefix)
	settings := []struct {
		name string
		dst  *string
	}{
		{"siteurl", &info.SiteURL},
		{"home", &info.Home},
		{"blogname", &info.BlogName},
		{"blogdescription", &info.BlogDescription},
		{"admin_email", &info.AdminEmail},
		{"template", &info.Template},
	}

	for _, s := range settings {
		var v sql.NullString
		err := db.QueryRowContext(ctx, query, s.name).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return types.SiteInfo{}, fmt.Errorf("reading option %q: %w", s.name, err)
		}
		*s.dst = v.String
	}
	return info, nil
}
