package enclave

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/ruteri/tee-randomness-service/cryptoutils"
)

// AttestationTTL is how long a cached attestation document is handed out
// before a fresh one is requested. Nitro documents expire five minutes after
// issuance; refreshing slightly earlier keeps served documents verifiable.
const AttestationTTL = 4*time.Minute + 50*time.Second

// attestationCache serves a recent attestation document binding the signer's
// public key, requesting a new one from the platform when the cached copy
// approaches the end of its validity window.
type attestationCache struct {
	provider  cryptoutils.AttestationProvider
	publicKey []byte

	mu        sync.RWMutex
	document  []byte
	fetchedAt time.Time
}

func newAttestationCache(provider cryptoutils.AttestationProvider, publicKey []byte) *attestationCache {
	return &attestationCache{provider: provider, publicKey: publicKey}
}

// Document returns the cached attestation document, refreshing it first if
// it is missing or older than AttestationTTL.
func (c *attestationCache) Document() ([]byte, error) {
	c.mu.RLock()
	if c.document != nil && time.Since(c.fetchedAt) < AttestationTTL {
		doc := c.document
		c.mu.RUnlock()
		return doc, nil
	}
	c.mu.RUnlock()

	return c.refresh()
}

func (c *attestationCache) refresh() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.document != nil && time.Since(c.fetchedAt) < AttestationTTL {
		return c.document, nil
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating attestation nonce: %w", err)
	}

	doc, err := c.provider.Attest(cryptoutils.AttestationRequest{
		PublicKey: c.publicKey,
		Nonce:     nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting attestation document: %w", err)
	}

	c.document = doc
	c.fetchedAt = time.Now()
	return doc, nil
}
