// Package secrets hydrates secret placeholders in connector and mapper
// configurations. Resolved values only ever live in the returned documents.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nucleus/replication-worker/internal/catalog"
	"github.com/nucleus/replication-worker/internal/featureflag"
	"github.com/nucleus/replication-worker/internal/retry"
)

// Scope selects the persistence that resolves a document's references.
// ConnectionID and WorkspaceID only narrow flag evaluation.
type Scope struct {
	OrganizationID string
	WorkspaceID    string
	ConnectionID   string
}

// PersistenceConfigAPI fetches an organization's persistence descriptor.
type PersistenceConfigAPI interface {
	GetSecretsPersistenceConfig(ctx context.Context, scopeType ScopeType, scopeID string) (*PersistenceConfig, error)
}

// PersistenceOpener opens a runtime persistence from its descriptor.
type PersistenceOpener interface {
	Open(ctx context.Context, cfg *PersistenceConfig) (Persistence, error)
}

// Resolver substitutes secret references with values from the platform store
// or, for organizations with the runtime persistence flag, from the
// organization's own persistence. Nothing is cached between calls.
type Resolver struct {
	defaultStore Store
	api          PersistenceConfigAPI
	opener       PersistenceOpener
	flags        featureflag.Client
	policy       retry.Policy
}

// NewResolver creates a resolver. policy applies to the descriptor fetch.
func NewResolver(defaultStore Store, api PersistenceConfigAPI, opener PersistenceOpener, flags featureflag.Client, policy retry.Policy) *Resolver {
	return &Resolver{
		defaultStore: defaultStore,
		api:          api,
		opener:       opener,
		flags:        flags,
		policy:       policy,
	}
}

// UsesRuntimePersistence evaluates the runtime persistence flag for scope.
// Contexts are passed most specific first, so a connection rule overrides a
// workspace rule, which overrides an organization rule.
func (r *Resolver) UsesRuntimePersistence(scope *Scope) bool {
	if scope == nil || scope.OrganizationID == "" || r.flags == nil {
		return false
	}
	var contexts []featureflag.Context
	if scope.ConnectionID != "" {
		contexts = append(contexts, featureflag.Connection(scope.ConnectionID))
	}
	if scope.WorkspaceID != "" {
		contexts = append(contexts, featureflag.Workspace(scope.WorkspaceID))
	}
	contexts = append(contexts, featureflag.Organization(scope.OrganizationID))
	return r.flags.Enabled(featureflag.UseRuntimeSecretPersistence, contexts...)
}

// Resolve returns config with every reference replaced. Either all references
// resolve or the call fails with a *SecretResolutionError; config is not modified.
func (r *Resolver) Resolve(ctx context.Context, config json.RawMessage, scope *Scope) (json.RawMessage, error) {
	return r.ResolveWith(ctx, config, scope, r.UsesRuntimePersistence(scope))
}

// ResolveWith is Resolve with the persistence choice already made.
func (r *Resolver) ResolveWith(ctx context.Context, config json.RawMessage, scope *Scope, useRuntime bool) (json.RawMessage, error) {
	docs, err := r.resolveAll(ctx, []json.RawMessage{config}, scope, useRuntime)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// ResolveMappers hydrates the field mapper configurations of c in place. The
// catalog is only updated once every mapper has resolved.
func (r *Resolver) ResolveMappers(ctx context.Context, c *catalog.ConfiguredCatalog, scope *Scope, useRuntime bool) error {
	if c == nil {
		return nil
	}
	type slot struct{ stream, mapper int }
	var (
		slots   []slot
		configs []json.RawMessage
	)
	for i := range c.Streams {
		for j, m := range c.Streams[i].Mappers {
			if len(m.Config) == 0 {
				continue
			}
			slots = append(slots, slot{i, j})
			configs = append(configs, m.Config)
		}
	}
	if len(configs) == 0 {
		return nil
	}

	resolved, err := r.resolveAll(ctx, configs, scope, useRuntime)
	if err != nil {
		return err
	}
	for k, s := range slots {
		c.Streams[s.stream].Mappers[s.mapper].Config = resolved[k]
	}
	return nil
}

// resolveAll parses every document, reads every distinct reference once from
// a single store, then renders new documents.
func (r *Resolver) resolveAll(ctx context.Context, docs []json.RawMessage, scope *Scope, useRuntime bool) ([]json.RawMessage, error) {
	trees := make([]*Node, len(docs))
	var refs []SecretReference
	seen := make(map[string]bool)
	for i, doc := range docs {
		tree, err := Parse(doc)
		if err != nil {
			return nil, &SecretResolutionError{Err: err}
		}
		trees[i] = tree
		for _, ref := range tree.References() {
			if !seen[ref.Coordinate] {
				seen[ref.Coordinate] = true
				refs = append(refs, ref)
			}
		}
	}

	out := make([]json.RawMessage, len(docs))
	if len(refs) == 0 {
		for i, doc := range docs {
			out[i] = append(json.RawMessage(nil), doc...)
		}
		return out, nil
	}

	store, release, err := r.storeFor(ctx, scope, useRuntime)
	if err != nil {
		return nil, err
	}
	defer release()

	values := make(map[string]string, len(refs))
	for _, ref := range refs {
		v, err := store.Read(ctx, ref.Coordinate)
		if err != nil {
			var resErr *SecretResolutionError
			if errors.As(err, &resErr) {
				return nil, resErr
			}
			return nil, &SecretResolutionError{Coordinate: ref.Coordinate, Err: err}
		}
		values[ref.Coordinate] = v
	}

	for i, tree := range trees {
		hydrated, err := tree.Substitute(values)
		if err != nil {
			return nil, err
		}
		rendered, err := hydrated.Render()
		if err != nil {
			return nil, &SecretResolutionError{Err: fmt.Errorf("render config: %w", err)}
		}
		out[i] = rendered
	}
	return out, nil
}

// storeFor picks the store for this resolution. A runtime persistence is
// opened fresh and released by the returned func.
func (r *Resolver) storeFor(ctx context.Context, scope *Scope, useRuntime bool) (Store, func(), error) {
	noop := func() {}
	if !useRuntime || scope == nil || scope.OrganizationID == "" {
		if r.defaultStore == nil {
			return nil, noop, resolutionError("", ErrStoreUnavailable, "no default secret store configured")
		}
		return r.defaultStore, noop, nil
	}

	cfg, err := retry.Call(ctx, r.policy, func(ctx context.Context) (*PersistenceConfig, error) {
		return r.api.GetSecretsPersistenceConfig(ctx, ScopeOrganization, scope.OrganizationID)
	})
	if err != nil {
		return nil, noop, resolutionError("", ErrStoreUnavailable, "fetch persistence config: %v", err)
	}
	p, err := r.opener.Open(ctx, cfg)
	if err != nil {
		return nil, noop, &SecretResolutionError{Err: err}
	}
	return p, func() { _ = p.Close() }, nil
}
