package repository

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// pageCursor is a keyset position: the last row of the previous page.
// Rows are ordered by (created_at, id) descending.
type pageCursor struct {
	CreatedAt time.Time
	ID        string
}

// encode renders "<unix nanos>.<id>" as unpadded URL-safe base64.
func (c pageCursor) encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok || id == "" {
		return pageCursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return pageCursor{}, ErrInvalidCursor
	}
	return pageCursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
