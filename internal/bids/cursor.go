package bids

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/store"
)

var ErrInvalidPageToken = errors.New("invalid page token")

func encodeToken(c store.BidCursor) string {
	raw := strconv.FormatInt(c.Timestamp.UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeToken(token string) (*store.BidCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidPageToken
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	bidID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	return &store.BidCursor{Timestamp: time.Unix(0, nanos).UTC(), ID: bidID}, nil
}
