package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"sync"

	_ "github.com/lib/pq"

	"github.com/nucleus/replication-worker/internal/objectstore"
)

// ScopeType is the level a secret persistence is configured at.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeWorkspace    ScopeType = "workspace"
)

// Persistence types understood by the default factory.
const (
	PersistencePostgres = "postgres"
	PersistenceS3       = "s3"
)

// PersistenceConfig describes an organization-owned secret store. The
// configuration map holds credentials and must never be logged.
type PersistenceConfig struct {
	ScopeType             ScopeType         `json:"scopeType"`
	ScopeID               string            `json:"scopeId"`
	SecretPersistenceType string            `json:"secretPersistenceType"`
	Configuration         map[string]string `json:"configuration"`
}

// String omits the configuration map.
func (p *PersistenceConfig) String() string {
	return fmt.Sprintf("PersistenceConfig{type=%s scope=%s/%s}", p.SecretPersistenceType, p.ScopeType, p.ScopeID)
}

// Persistence is a Store opened for one resolution and closed afterwards.
type Persistence interface {
	Store
	Close() error
}

// Opener opens a persistence from its configuration map.
type Opener func(ctx context.Context, config map[string]string) (Persistence, error)

// Factory opens runtime persistences by type.
type Factory struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewFactory returns a factory knowing the postgres and s3 persistence types.
func NewFactory() *Factory {
	f := &Factory{openers: make(map[string]Opener)}
	f.Register(PersistencePostgres, openPostgres)
	f.Register(PersistenceS3, openS3)
	return f
}

// Register adds or replaces the opener for a persistence type.
func (f *Factory) Register(persistenceType string, open Opener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openers[persistenceType] = open
}

// Open returns a persistence for cfg.
func (f *Factory) Open(ctx context.Context, cfg *PersistenceConfig) (Persistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no persistence configured", ErrUnsupportedPersistence)
	}
	f.mu.RLock()
	open, ok := f.openers[cfg.SecretPersistenceType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPersistence, cfg.SecretPersistenceType)
	}
	return open(ctx, cfg.Configuration)
}

// =============================================================================
// POSTGRES PERSISTENCE
// =============================================================================

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type sqlPersistence struct {
	db    *sql.DB
	query string
}

func openPostgres(ctx context.Context, config map[string]string) (Persistence, error) {
	dsn := config["connectionString"]
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres persistence requires connectionString", ErrUnsupportedPersistence)
	}
	table := config["table"]
	if table == "" {
		table = "secrets"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name", ErrUnsupportedPersistence)
	}

	// Driver errors may echo the connection string, credentials included.
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open postgres persistence %s", ErrStoreUnavailable, postgresTarget(dsn))
	}
	db.SetMaxOpenConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: cannot connect to postgres persistence %s", ErrStoreUnavailable, postgresTarget(dsn))
	}
	return &sqlPersistence{
		db:    db,
		query: fmt.Sprintf("SELECT payload FROM %s WHERE coordinate = $1", table),
	}, nil
}

// postgresTarget names the host and database of dsn without user info.
func postgresTarget(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "(connection string withheld)"
	}
	return u.Host + u.Path
}

func (p *sqlPersistence) Read(ctx context.Context, coordinate string) (string, error) {
	var payload string
	err := p.db.QueryRowContext(ctx, p.query, coordinate).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return payload, nil
}

func (p *sqlPersistence) Close() error {
	return p.db.Close()
}

// =============================================================================
// OBJECT STORE PERSISTENCE
// =============================================================================

type objectPersistence struct {
	store  objectstore.ObjectStore
	bucket string
	prefix string
}

func openS3(ctx context.Context, config map[string]string) (Persistence, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 persistence requires bucket", ErrUnsupportedPersistence)
	}
	useSSL, _ := strconv.ParseBool(config["useSsl"])
	store, err := objectstore.NewS3Store(objectstore.Config{
		Endpoint:        config["endpoint"],
		AccessKeyID:     config["accessKeyId"],
		SecretAccessKey: config["secretAccessKey"],
		Region:          config["region"],
		UseSSL:          useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return NewObjectPersistence(store, bucket, config["prefix"]), nil
}

// NewObjectPersistence reads each secret from the object prefix/coordinate.
func NewObjectPersistence(store objectstore.ObjectStore, bucket, prefix string) Persistence {
	return &objectPersistence{store: store, bucket: bucket, prefix: prefix}
}

func (p *objectPersistence) Read(ctx context.Context, coordinate string) (string, error) {
	data, err := p.store.GetObject(ctx, p.bucket, path.Join(p.prefix, coordinate))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return string(data), nil
}

func (p *objectPersistence) Close() error { return nil }
