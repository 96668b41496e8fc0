package database

import (
	"net/url"
	"strconv"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/config"
)

// ApplicationName is reported to the server as application_name.
const ApplicationName = "umsg-commsclient"

// BuildConnString builds a PostgreSQL connection URL from config.
// User and password are escaped; an empty password is omitted.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)
	u.RawQuery = q.Encode()

	return u.String()
}
