package repository

import (
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/opensource-finance/fathom/internal/domain"
)

// postgresDSN builds a postgres:// URL. Credentials are escaped, so
// passwords may contain spaces or '@'.
func postgresDSN(cfg domain.RepositoryConfig) (string, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	db := cfg.PostgresDB
	if db == "" {
		db = "fathom"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + db,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	switch {
	case cfg.PostgresUser != "" && cfg.PostgresPassword != "":
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	case cfg.PostgresUser != "":
		u.User = url.User(cfg.PostgresUser)
	}
	return u.String(), nil
}
