package storage

import "context"

// CeremonyStore — хранилище webauthn-церемоний (challenge/sessionData) и
// rate limit попыток входа. Реализации: redis.Client, memory.Client (для -dev без Redis).
type CeremonyStore interface {
	SetCeremony(ctx context.Context, id string, data []byte) error
	GetCeremony(ctx context.Context, id string) ([]byte, error)
	DeleteCeremony(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string) (allowed bool, err error)
	Close() error
}
