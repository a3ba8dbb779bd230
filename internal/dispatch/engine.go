package dispatch

import (
	"fmt"
	"strings"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

// Engine is a supported database engine family.
type Engine int

const (
	EngineUnknown Engine = iota
	Postgres
	MySQL
	Oracle
	SQLServer
)

func (e Engine) String() string {
	switch e {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case Oracle:
		return "oracle"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// ParseEngine maps an RDS engine name to its family.
func ParseEngine(engine string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(engine))
	switch {
	case name == "postgres", name == "aurora-postgresql":
		return Postgres, nil
	case name == "mysql", name == "mariadb", name == "aurora-mysql", name == "aurora":
		return MySQL, nil
	case strings.HasPrefix(name, "oracle-"):
		return Oracle, nil
	case strings.HasPrefix(name, "sqlserver-"):
		return SQLServer, nil
	default:
		return EngineUnknown, fmt.Errorf("%q: %w", engine, apperrors.ErrUnsupportedEngine)
	}
}
