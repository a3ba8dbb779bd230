package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

// Params are the connection coordinates handed to a client program.
type Params struct {
	Host     string
	Port     int32
	Database string
	Username string
	// IAM is set when the password is an IAM auth token. MySQL clients only
	// send such a token with the cleartext plugin enabled.
	IAM bool
}

// Invocation is a fully built client session: the image to run, its argv and
// its environment. Args are passed to the runtime as-is, never through a shell
// that interpolates them.
type Invocation struct {
	Image string
	Args  []string
	Env   []string
}

// Plan describes how one engine family is reached.
type Plan struct {
	Image       string
	PasswordEnv string

	// args builds the argv. Only the fragment guarded by ssl may differ
	// between the two values of ssl.
	args func(p Params, ssl bool) []string
	// env carries extra non-secret variables the argv refers to.
	env func(p Params) []string
}

// oracleScript is constant; every value reaches sqlplus through the
// environment, so nothing caller-controlled is parsed by the shell.
const oracleScript = `exec sqlplus -L "${ORACLE_USER}/${ORACLE_PWD}@//${ORACLE_HOST}:${ORACLE_PORT}/${ORACLE_SERVICE}"`

var plans = map[Engine]Plan{
	Postgres: {
		Image:       "postgres:alpine",
		PasswordEnv: "PGPASSWORD",
		args: func(p Params, ssl bool) []string {
			conn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s",
				quoteConnValue(p.Host), p.Port, quoteConnValue(p.Database), quoteConnValue(p.Username))
			if ssl {
				conn += " sslmode=require"
			}
			return []string{"psql", conn}
		},
	},
	MySQL: {
		Image:       "mysql:8",
		PasswordEnv: "MYSQL_PWD",
		args: func(p Params, ssl bool) []string {
			args := []string{"mysql", "-h", p.Host, "-P", port(p), "-u", p.Username, p.Database}
			if p.IAM {
				args = append(args, "--enable-cleartext-plugin")
			}
			if ssl {
				args = append(args, "--ssl-mode=REQUIRED")
			}
			return args
		},
	},
	Oracle: {
		Image:       "ghcr.io/oracle/instantclient:23",
		PasswordEnv: "ORACLE_PWD",
		args: func(Params, bool) []string {
			return []string{"sh", "-c", oracleScript}
		},
		env: func(p Params) []string {
			return []string{
				"ORACLE_USER=" + p.Username,
				"ORACLE_HOST=" + p.Host,
				"ORACLE_PORT=" + port(p),
				"ORACLE_SERVICE=" + p.Database,
			}
		},
	},
	SQLServer: {
		Image:       "mcr.microsoft.com/mssql-tools",
		PasswordEnv: "SQLCMDPASSWORD",
		args: func(p Params, ssl bool) []string {
			args := []string{"sqlcmd", "-S", p.Host + "," + port(p), "-U", p.Username, "-d", p.Database}
			if ssl {
				args = append(args, "-N")
			}
			return args
		},
	},
}

// PlanFor returns the plan of engine.
func PlanFor(engine Engine) (Plan, error) {
	plan, ok := plans[engine]
	if !ok {
		return Plan{}, fmt.Errorf("%s: %w", engine, apperrors.ErrUnsupportedEngine)
	}
	return plan, nil
}

// Build assembles the invocation for engine. The password only ever travels
// in the environment.
func Build(engine Engine, p Params, password string, ssl bool) (Invocation, error) {
	plan, err := PlanFor(engine)
	if err != nil {
		return Invocation{}, err
	}

	env := []string{plan.PasswordEnv + "=" + password}
	if plan.env != nil {
		env = append(env, plan.env(p)...)
	}

	return Invocation{
		Image: plan.Image,
		Args:  plan.args(p, ssl),
		Env:   env,
	}, nil
}

func port(p Params) string {
	return strconv.FormatInt(int64(p.Port), 10)
}

// quoteConnValue quotes a libpq keyword value when it is empty or contains
// whitespace, quotes or backslashes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
