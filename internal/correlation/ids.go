package correlation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestID is an opaque correlation id for one side-channel round trip.
// Wire format: <prefix>-<unix-ms>-<random>.
type RequestID struct {
	Prefix    string
	Timestamp time.Time
	Random    string
}

var idPattern = regexp.MustCompile(`^([a-z][a-z0-9_]*)-([0-9]{10,16})-([0-9a-f]{8})$`)

// NewRequestID mints a fresh id for the given prefix. The random segment comes
// from a v4 UUID so ids stay unique even when two requests share a millisecond.
func NewRequestID(prefix string) RequestID {
	return RequestID{
		Prefix:    prefix,
		Timestamp: time.Now(),
		Random:    uuid.NewString()[:8],
	}
}

// String renders the wire format.
func (r RequestID) String() string {
	return fmt.Sprintf("%s-%d-%s", r.Prefix, r.Timestamp.UnixMilli(), r.Random)
}

// Parse validates and decomposes a wire-format request id.
func Parse(raw string) (RequestID, error) {
	m := idPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return RequestID{}, fmt.Errorf("malformed request id: %q", raw)
	}
	ms, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return RequestID{}, fmt.Errorf("malformed request id timestamp: %q", raw)
	}
	return RequestID{
		Prefix:    m[1],
		Timestamp: time.UnixMilli(ms),
		Random:    m[3],
	}, nil
}

// Valid reports whether raw is a well-formed request id.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}
