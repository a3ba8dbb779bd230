package dispatch

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

var params = Params{
	Host:     "reports-db.xyz.us-east-2.rds.amazonaws.com",
	Port:     5432,
	Database: "reports",
	Username: "admin",
}

func TestParseEngine(t *testing.T) {
	tests := map[string]Engine{
		"postgres":          Postgres,
		"aurora-postgresql": Postgres,
		"mysql":             MySQL,
		"mariadb":           MySQL,
		"aurora-mysql":      MySQL,
		"aurora":            MySQL,
		"oracle-ee":         Oracle,
		"oracle-se2-cdb":    Oracle,
		"sqlserver-ex":      SQLServer,
		"sqlserver-se":      SQLServer,
		"Postgres":          Postgres,
	}
	for in, want := range tests {
		got, err := ParseEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "db2-se", "docdb", "oracle"} {
		_, err := ParseEngine(in)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedEngine, in)
	}
}

func TestEveryEngineHasAPlan(t *testing.T) {
	for _, e := range []Engine{Postgres, MySQL, Oracle, SQLServer} {
		plan, err := PlanFor(e)
		require.NoError(t, err, e.String())
		assert.NotEmpty(t, plan.Image)
		assert.NotEmpty(t, plan.PasswordEnv)
	}

	_, err := PlanFor(EngineUnknown)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedEngine)
}

func TestBuild_Postgres(t *testing.T) {
	inv, err := Build(Postgres, params, "s3cret", true)
	require.NoError(t, err)

	want := Invocation{
		Image: "postgres:alpine",
		Args:  []string{"psql", "host=reports-db.xyz.us-east-2.rds.amazonaws.com port=5432 dbname=reports user=admin sslmode=require"},
		Env:   []string{"PGPASSWORD=s3cret"},
	}
	if diff := cmp.Diff(want, inv); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_PostgresWithoutSSL(t *testing.T) {
	inv, err := Build(Postgres, params, "s3cret", false)
	require.NoError(t, err)

	assert.Equal(t, "host=reports-db.xyz.us-east-2.rds.amazonaws.com port=5432 dbname=reports user=admin", inv.Args[1])
	for _, arg := range inv.Args {
		assert.NotContains(t, arg, "sslmode")
	}
}

func TestBuild_SSLChangesOnlySSLFragment(t *testing.T) {
	tests := []struct {
		engine   Engine
		fragment string
	}{
		{Postgres, " sslmode=require"},
		{MySQL, "--ssl-mode=REQUIRED"},
		{SQLServer, "-N"},
		{Oracle, ""},
	}

	for _, tt := range tests {
		t.Run(tt.engine.String(), func(t *testing.T) {
			on, err := Build(tt.engine, params, "pw", true)
			require.NoError(t, err)
			off, err := Build(tt.engine, params, "pw", false)
			require.NoError(t, err)

			assert.Equal(t, on.Image, off.Image)
			assert.Equal(t, on.Env, off.Env)

			joinedOn := strings.Join(on.Args, "\x00")
			joinedOff := strings.Join(off.Args, "\x00")
			switch {
			case tt.fragment == "":
				assert.Equal(t, joinedOff, joinedOn)
			case strings.HasPrefix(tt.fragment, " "):
				assert.Equal(t, joinedOff+tt.fragment, joinedOn)
			default:
				assert.Equal(t, joinedOff+"\x00"+tt.fragment, joinedOn)
			}
		})
	}
}

func TestBuild_MySQL(t *testing.T) {
	inv, err := Build(MySQL, Params{Host: "h", Port: 3306, Database: "app", Username: "root"}, "pw", true)
	require.NoError(t, err)

	assert.Equal(t, "mysql:8", inv.Image)
	assert.Equal(t, []string{"mysql", "-h", "h", "-P", "3306", "-u", "root", "app", "--ssl-mode=REQUIRED"}, inv.Args)
	assert.Equal(t, []string{"MYSQL_PWD=pw"}, inv.Env)
}

func TestBuild_MySQLCleartextPluginOnlyForIAM(t *testing.T) {
	p := Params{Host: "h", Port: 3306, Database: "app", Username: "iam_user", IAM: true}

	inv, err := Build(MySQL, p, "token", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql", "-h", "h", "-P", "3306", "-u", "iam_user", "app",
		"--enable-cleartext-plugin", "--ssl-mode=REQUIRED"}, inv.Args)

	p.IAM = false
	inv, err = Build(MySQL, p, "pw", true)
	require.NoError(t, err)
	assert.NotContains(t, inv.Args, "--enable-cleartext-plugin")
}

func TestBuild_IAMSSLChangesOnlySSLFragment(t *testing.T) {
	p := params
	p.IAM = true

	on, err := Build(MySQL, p, "token", true)
	require.NoError(t, err)
	off, err := Build(MySQL, p, "token", false)
	require.NoError(t, err)

	assert.Equal(t, append(off.Args, "--ssl-mode=REQUIRED"), on.Args)
}

func TestBuild_SQLServer(t *testing.T) {
	inv, err := Build(SQLServer, Params{Host: "h", Port: 1433, Database: "app", Username: "sa"}, "pw", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"sqlcmd", "-S", "h,1433", "-U", "sa", "-d", "app"}, inv.Args)
	assert.Equal(t, []string{"SQLCMDPASSWORD=pw"}, inv.Env)
}

func TestBuild_OracleKeepsValuesOutOfTheScript(t *testing.T) {
	p := Params{Host: "h", Port: 1521, Database: "ORCL", Username: "admin;rm -rf /"}
	inv, err := Build(Oracle, p, "pw", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"sh", "-c", oracleScript}, inv.Args)
	assert.Equal(t, []string{
		"ORACLE_PWD=pw",
		"ORACLE_USER=admin;rm -rf /",
		"ORACLE_HOST=h",
		"ORACLE_PORT=1521",
		"ORACLE_SERVICE=ORCL",
	}, inv.Env)
}

func TestBuild_PasswordOnlyInEnv(t *testing.T) {
	for _, e := range []Engine{Postgres, MySQL, Oracle, SQLServer} {
		inv, err := Build(e, params, "very-secret-token", true)
		require.NoError(t, err)
		for _, arg := range inv.Args {
			assert.NotContains(t, arg, "very-secret-token", e.String())
		}
	}
}

func TestQuoteConnValue(t *testing.T) {
	assert.Equal(t, "reports", quoteConnValue("reports"))
	assert.Equal(t, "''", quoteConnValue(""))
	assert.Equal(t, "'my db'", quoteConnValue("my db"))
	assert.Equal(t, `'o\'brien'`, quoteConnValue("o'brien"))
	assert.Equal(t, `'a\\b'`, quoteConnValue(`a\b`))
}
