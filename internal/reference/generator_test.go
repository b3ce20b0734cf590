package reference

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

type fakeChecker struct {
	mu       sync.Mutex
	existing map[string]bool
	calls    int
	err      error
}

func (f *fakeChecker) ReferenceExists(reference string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.existing[reference], nil
}

func TestGenerate_Format(t *testing.T) {
	gen := NewGenerator(&fakeChecker{})

	ref, err := gen.Generate(uuid.New())
	require.NoError(t, err)

	parts := strings.Split(ref, "-")
	require.Len(t, parts, 4)
	require.Equal(t, "PAY", parts[0])
	require.Len(t, parts[1], 4)
	require.Len(t, parts[3], 6)
	require.Equal(t, ref, strings.ToUpper(ref))
}

func TestGenerate_ConcurrentCallsNeverCollide(t *testing.T) {
	gen := NewGenerator(&fakeChecker{})

	const n = 50
	refs := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := gen.Generate(uuid.New())
			require.NoError(t, err)
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool, n)
	for ref := range refs {
		require.False(t, seen[ref], "duplicate reference: %s", ref)
		seen[ref] = true
	}
	require.Len(t, seen, n)
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	// First two candidates collide, third is free.
	collider := &collidingChecker{failures: 2}
	gen := NewGenerator(collider)

	ref, err := gen.Generate(uuid.New())
	require.NoError(t, err)
	require.NotEmpty(t, ref)
	require.Equal(t, 3, collider.calls)
}

type collidingChecker struct {
	failures int
	calls    int
}

func (c *collidingChecker) ReferenceExists(string) (bool, error) {
	c.calls++
	return c.calls <= c.failures, nil
}

func TestGenerate_ExhaustsAfterFiveAttempts(t *testing.T) {
	collider := &collidingChecker{failures: 100}
	gen := NewGenerator(collider)

	_, err := gen.Generate(uuid.New())
	require.ErrorIs(t, err, domain.ErrReferenceExhausted)
	require.Equal(t, 5, collider.calls)
}

func TestGenerate_PropagatesStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	gen := NewGenerator(&fakeChecker{err: storeErr})

	_, err := gen.Generate(uuid.New())
	require.ErrorIs(t, err, storeErr)
}
