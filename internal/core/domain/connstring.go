package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// DialectName identifies the flavour of a target database.
type DialectName string

const (
	DialectPostgres DialectName = "postgres"
	DialectMySQL    DialectName = "mysql"
	DialectSQLite   DialectName = "sqlite"
)

// ConnectionIdentity is a stable, non-reversible id for a connection string.
// It is safe to log and to use in cache keys.
func ConnectionIdentity(connString string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(connString)))
	return hex.EncodeToString(sum[:])[:16]
}

// DialectOf infers the database flavour from the connection string scheme.
func DialectOf(connString string) (DialectName, error) {
	s := strings.TrimSpace(connString)
	if s == "" {
		return "", Errorf(KindInvalidInput, "connection string is required")
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "mysql://"):
		return DialectMySQL, nil
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"):
		return DialectSQLite, nil
	}
	return "", Errorf(KindInvalidInput, "unsupported connection string scheme, expected postgres://, mysql:// or sqlite://")
}

// RedactConnString masks the password of a URL-style connection string.
func RedactConnString(connString string) string {
	u, err := url.Parse(connString)
	if err != nil || u.User == nil {
		return connString
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// connectionToken replaces a connection string in messages that leave the
// engine.
const connectionToken = "<connection>"

// ScrubSecrets replaces every form of connString in msg with a fixed token,
// hiding user, host and database names as well as the password.
func ScrubSecrets(msg, connString string) string {
	connString = strings.TrimSpace(connString)
	if connString == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, connString, connectionToken)
	if redacted := RedactConnString(connString); redacted != connString {
		msg = strings.ReplaceAll(msg, redacted, connectionToken)
	}
	if u, err := url.Parse(connString); err == nil && u.User != nil {
		if pw, ok := u.User.Password(); ok && pw != "" {
			msg = strings.ReplaceAll(msg, pw, "xxxxx")
		}
	}
	return msg
}
