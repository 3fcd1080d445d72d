package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// CredentialBucket maps a partition-key range (e.g. "a-m") to one credential
// set within a pair.
type CredentialBucket struct {
	Range  string
	User   string
	Secret string
}

// CredentialPair is one pool resource: a named pair of bucketed credential
// sets held by at most one run at a time.
type CredentialPair struct {
	Name    string
	Buckets []CredentialBucket
}

// Credential is the resolved login material for one partition key.
type Credential struct {
	User   string
	Secret string

	// BucketKey identifies the bucket the credential came from. The runner
	// performs a login switch only when this changes between items.
	BucketKey string
}

// bucket is a parsed CredentialBucket with its range bounds resolved.
type bucket struct {
	lo, hi rune
	user   string
	secret string
	key    string
}

// pair is the pool's bookkeeping for one CredentialPair.
type pair struct {
	name    string
	buckets []bucket
	heldBy  string // owner key, empty when free
}

// CredentialPool allocates credential pairs to runs. Acquire fails fast
// when the pool is exhausted; it never blocks. A single mutex guards the
// allocation table; acquire/release are rare relative to step execution.
type CredentialPool struct {
	mu    sync.Mutex
	pairs []*pair
}

// NewCredentialPool builds a pool from static configuration. Bucket ranges
// must be single-letter spans like "a-m"; construction fails on malformed
// ranges so a bad config never surfaces mid-run.
func NewCredentialPool(pairs []CredentialPair) (*CredentialPool, error) {
	p := &CredentialPool{}

	for _, cp := range pairs {
		if cp.Name == "" {
			return nil, fmt.Errorf("credential pair requires a name")
		}
		if len(cp.Buckets) == 0 {
			return nil, fmt.Errorf("credential pair %q has no buckets", cp.Name)
		}

		entry := &pair{name: cp.Name}
		for _, b := range cp.Buckets {
			lo, hi, err := parseRange(b.Range)
			if err != nil {
				return nil, fmt.Errorf("credential pair %q: %w", cp.Name, err)
			}
			entry.buckets = append(entry.buckets, bucket{
				lo:     lo,
				hi:     hi,
				user:   b.User,
				secret: b.Secret,
				key:    cp.Name + "/" + b.Range,
			})
		}
		p.pairs = append(p.pairs, entry)
	}

	return p, nil
}

// Acquire reserves a free pair for the owner and returns its name.
// Re-acquiring under the same owner returns the already-held pair. Returns
// ErrNoCredentialAvailable when every pair is held.
func (p *CredentialPool) Acquire(owner string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.pairs {
		if entry.heldBy == owner {
			return entry.name, nil
		}
	}
	for _, entry := range p.pairs {
		if entry.heldBy == "" {
			entry.heldBy = owner
			return entry.name, nil
		}
	}
	return "", ErrNoCredentialAvailable
}

// Release frees the pair held by the owner. Releasing without holding is a
// no-op.
func (p *CredentialPool) Release(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.pairs {
		if entry.heldBy == owner {
			entry.heldBy = ""
			return
		}
	}
}

// Select resolves the credential for a partition key from the owner's held
// pair. The key's first letter picks the bucket.
func (p *CredentialPool) Select(owner, partitionKey string) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var held *pair
	for _, entry := range p.pairs {
		if entry.heldBy == owner {
			held = entry
			break
		}
	}
	if held == nil {
		return Credential{}, fmt.Errorf("%w: owner %q holds no pair", ErrNoCredentialAvailable, owner)
	}

	r := partitionRune(partitionKey)
	for _, b := range held.buckets {
		if r >= b.lo && r <= b.hi {
			return Credential{User: b.user, Secret: b.secret, BucketKey: b.key}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w: no bucket covers partition key %q in pair %q",
		ErrNoCredentialAvailable, partitionKey, held.name)
}

// Free returns the number of unheld pairs.
func (p *CredentialPool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, entry := range p.pairs {
		if entry.heldBy == "" {
			n++
		}
	}
	return n
}

// parseRange parses a bucket range of the form "a-m" or a single letter.
func parseRange(s string) (lo, hi rune, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	parts := strings.SplitN(s, "-", 2)

	runeOf := func(part string) (rune, error) {
		r := []rune(part)
		if len(r) != 1 || r[0] < 'a' || r[0] > 'z' {
			return 0, fmt.Errorf("invalid bucket range %q", s)
		}
		return r[0], nil
	}

	if lo, err = runeOf(parts[0]); err != nil {
		return 0, 0, err
	}
	hi = lo
	if len(parts) == 2 {
		if hi, err = runeOf(parts[1]); err != nil {
			return 0, 0, err
		}
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("inverted bucket range %q", s)
	}
	return lo, hi, nil
}

// partitionRune lowercases the first letter of a partition key.
func partitionRune(key string) rune {
	for _, r := range key {
		return unicode.ToLower(r)
	}
	return 0
}
