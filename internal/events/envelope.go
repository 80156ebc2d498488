package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sales_aggregator/internal/sales"
)

const supportedVersion = 1

// Routing keys of sale record mutations.
const (
	KindCreated = "sale.created"
	KindUpdated = "sale.updated"
	KindDeleted = "sale.deleted"
)

var (
	ErrUnknownEvent       = errors.New("unknown sale event kind")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	ErrMissingUserID      = errors.New("missing user_id")
)

// SaleEnvelope carries one sale record mutation. Before is the snapshot prior
// to the change (updated, deleted) and After the one following it (created, updated).
type SaleEnvelope struct {
	Version    int              `json:"version"`
	Producer   string           `json:"producer,omitempty"`
	TraceID    string           `json:"trace_id,omitempty"`
	MessageID  string           `json:"message_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
	UserID     string           `json:"user_id"`
	SaleID     string           `json:"sale_id,omitempty"`
	Before     sales.SaleRecord `json:"before,omitempty"`
	After      sales.SaleRecord `json:"after,omitempty"`
}

// Decode parses and validates an envelope. A missing version is read as the
// current one.
func Decode(body []byte) (SaleEnvelope, error) {
	var env SaleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version == 0 {
		env.Version = supportedVersion
	}
	if env.Version != supportedVersion {
		return env, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	env.UserID = strings.TrimSpace(env.UserID)
	if env.UserID == "" {
		return env, ErrMissingUserID
	}
	return env, nil
}

// ParseKind accepts a full routing key or its short form ("created").
func ParseKind(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "sale.") {
		s = "sale." + s
	}
	switch s {
	case KindCreated, KindUpdated, KindDeleted:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}
