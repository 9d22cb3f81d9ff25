package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/replication-worker/internal/retry"
)

// echoStore resolves every coordinate to a value derived from it.
type echoStore struct{}

func (echoStore) Read(ctx context.Context, coordinate string) (string, error) {
	return "value-of-" + coordinate, nil
}

// genTree builds a random config tree. Coordinates are drawn from c0..c9.
func genTree(rng *rand.Rand, depth int) any {
	if depth <= 0 {
		return genLeaf(rng)
	}
	switch rng.Intn(5) {
	case 0:
		return genLeaf(rng)
	case 1:
		return genReference(rng)
	case 2:
		items := make([]any, rng.Intn(4))
		for i := range items {
			items[i] = genTree(rng, depth-1)
		}
		return items
	default:
		obj := make(map[string]any)
		for i := rng.Intn(5); i > 0; i-- {
			obj[fmt.Sprintf("k%d", rng.Intn(8))] = genTree(rng, depth-1)
		}
		return obj
	}
}

func genLeaf(rng *rand.Rand) any {
	switch rng.Intn(5) {
	case 0:
		return nil
	case 1:
		return rng.Intn(2) == 0
	case 2:
		return rng.Intn(1000)
	case 3:
		return "_secret"
	default:
		return fmt.Sprintf("s%d", rng.Intn(100))
	}
}

func genReference(rng *rand.Rand) map[string]any {
	ref := map[string]any{secretKey: fmt.Sprintf("c%d", rng.Intn(10))}
	if rng.Intn(3) == 0 {
		ref[secretStorageKey] = "storage-1"
	}
	return ref
}

func TestResolveGeneratedTrees(t *testing.T) {
	store := MemoryStore{}
	for i := 0; i < 8; i++ {
		store[fmt.Sprintf("c%d", i)] = fmt.Sprintf("v%d", i)
	}
	r := NewResolver(store, nil, NewFactory(), nil, retry.Policy{})
	rng := rand.New(rand.NewSource(20240501))

	resolved, failed := 0, 0
	for i := 0; i < 500; i++ {
		doc, err := json.Marshal(genTree(rng, 5))
		require.NoError(t, err)

		tree, err := Parse(doc)
		require.NoError(t, err)
		missing := false
		for _, ref := range tree.References() {
			if _, ok := store[ref.Coordinate]; !ok {
				missing = true
			}
		}

		out, err := r.Resolve(context.Background(), doc, nil)
		if err != nil {
			failed++
			assert.Nil(t, out, "doc %s", doc)
			assert.True(t, missing, "unexpected failure for %s: %v", doc, err)
			var resErr *SecretResolutionError
			assert.True(t, errors.As(err, &resErr))
			continue
		}
		resolved++
		assert.False(t, missing, "doc %s resolved with a missing coordinate", doc)
		assert.False(t, HasReferences(out), "placeholder left in %s", out)
		for _, ref := range tree.References() {
			assert.True(t, strings.Contains(string(out), `"`+store[ref.Coordinate]+`"`), "value of %s missing from %s", ref.Coordinate, out)
		}
	}
	assert.NotZero(t, resolved)
	assert.NotZero(t, failed)
}

func FuzzResolve(f *testing.F) {
	for _, seed := range []string{
		`{}`,
		`null`,
		`{"password":{"_secret":"c1"}}`,
		`{"a":[{"_secret":"c1","_secret_storage_id":"s"},{"b":{"_secret":"c2"}}]}`,
		`{"_secret":""}`,
		`{"_secret":"c1","extra":true}`,
		`[{"_secret":1}]`,
		`{"_secret":"c3"}`,
		`{"a":"_secret"}`,
		`{"a": 1} {"_secret":"c1"}`,
	} {
		f.Add([]byte(seed))
	}
	r := NewResolver(echoStore{}, nil, NewFactory(), nil, retry.Policy{})

	f.Fuzz(func(t *testing.T, doc []byte) {
		out, err := r.Resolve(context.Background(), doc, nil)
		if err != nil {
			if out != nil {
				t.Fatalf("error %v returned with output %s", err, out)
			}
			return
		}
		if HasReferences(out) {
			t.Fatalf("placeholder left in output %s for input %s", out, doc)
		}
	})
}
