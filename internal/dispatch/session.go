package dispatch

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultSessionPrefix prefixes container names of database sessions.
const DefaultSessionPrefix = "tagconnect"

// SessionName builds "<prefix>-<pid>-<ulid>". The ULID carries the
// millisecond timestamp plus random entropy, so two invocations sharing a pid
// and a millisecond still get distinct names.
func SessionName(prefix string, pid int, now time.Time, entropy io.Reader) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, pid, strings.ToLower(id.String())), nil
}

func newSessionName(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, os.Getpid(), strings.ToLower(ulid.Make().String()))
}
