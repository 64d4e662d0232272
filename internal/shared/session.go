package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PrincipalKind distinguishes the two audiences of the back office.
type PrincipalKind string

const (
	// PrincipalClient is a B2B customer account.
	PrincipalClient PrincipalKind = "client"
	// PrincipalStaff is an internal operator.
	PrincipalStaff PrincipalKind = "staff"
)

// Principal identifies the caller of an operation.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   int64         `json:"id"`
}

// IsClient reports whether the principal is a client account.
func (p Principal) IsClient() bool { return p.Kind == PrincipalClient && p.ID > 0 }

// IsStaff reports whether the principal is a staff account.
func (p Principal) IsStaff() bool { return p.Kind == PrincipalStaff && p.ID > 0 }

// ClientPrincipal builds a client principal.
func ClientPrincipal(id int64) Principal { return Principal{Kind: PrincipalClient, ID: id} }

// StaffPrincipal builds a staff principal.
func StaffPrincipal(id int64) Principal { return Principal{Kind: PrincipalStaff, ID: id} }

// SessionStore resolves bearer tokens issued by the authentication service.
// Sessions live in Redis under "<prefix>:<token>" as JSON principals.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

// Issue stores a new session for the principal and returns its token.
func (s *SessionStore) Issue(ctx context.Context, p Principal) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("session store not initialised")
	}
	if p.Kind != PrincipalClient && p.Kind != PrincipalStaff {
		return "", fmt.Errorf("session: unsupported principal kind %q", p.Kind)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	return token, nil
}

// Resolve loads the principal for token, refreshing its expiry.
func (s *SessionStore) Resolve(ctx context.Context, token string) (Principal, error) {
	if s == nil || s.client == nil {
		return Principal{}, errors.New("session store not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("session: load: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return Principal{}, fmt.Errorf("session: decode: %w", err)
	}
	if !p.IsClient() && !p.IsStaff() {
		return Principal{}, ErrUnauthenticated
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	}
	return p, nil
}

// Revoke deletes the session.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (s *SessionStore) key(token string) string {
	return s.prefix + ":" + token
}
