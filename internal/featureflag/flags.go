// Package featureflag evaluates boolean feature flags against organization,
// workspace or connection contexts.
package featureflag

// Flag is a boolean feature flag with a default value.
type Flag struct {
	Key     string
	Default bool
}

// UseRuntimeSecretPersistence routes secret resolution for an organization to
// its own secret persistence instead of the platform store.
var UseRuntimeSecretPersistence = Flag{Key: "platform.use-runtime-secret-persistence", Default: false}

// Context kinds.
const (
	KindOrganization = "organization"
	KindWorkspace    = "workspace"
	KindConnection   = "connection"
)

// Context identifies what a flag is evaluated for.
type Context struct {
	Kind string
	Key  string
}

func Organization(id string) Context { return Context{Kind: KindOrganization, Key: id} }
func Workspace(id string) Context    { return Context{Kind: KindWorkspace, Key: id} }
func Connection(id string) Context   { return Context{Kind: KindConnection, Key: id} }

// Client evaluates flags. Implementations must be safe for concurrent use.
type Client interface {
	Enabled(flag Flag, contexts ...Context) bool
}

// Static serves fixed values by flag key and ignores contexts.
type Static map[string]bool

func (s Static) Enabled(flag Flag, _ ...Context) bool {
	if v, ok := s[flag.Key]; ok {
		return v
	}
	return flag.Default
}
