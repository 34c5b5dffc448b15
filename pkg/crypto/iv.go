package crypto

import (
	"crypto/subtle"
	"errors"
	"sync"
)

const (
	// IVCounterSize is the number of low-order nonce bytes carrying the counter.
	IVCounterSize = 3

	// MaxIVCounter is the largest value a 3-byte counter can hold.
	MaxIVCounter = 1<<(8*IVCounterSize) - 1

	// PolicyIVCounter is reserved for encrypting an embedded policy.
	PolicyIVCounter = 0

	// BindingIVCounter is reserved for the GMAC policy binding.
	BindingIVCounter = MaxIVCounter

	// FirstPayloadIVCounter is the first counter value handed out for payloads.
	FirstPayloadIVCounter = 1
)

// ErrIVExhausted is returned when a key has used every payload counter value.
// Issuing another IV would reuse a nonce under the same key.
var ErrIVExhausted = errors.New("aead: IV counter exhausted for this key")

// IVCounter hands out 12-byte GCM nonces whose upper 9 bytes are zero and
// whose lower 3 bytes carry a strictly increasing counter. One counter must
// be used per content key; values never repeat and never reach the reserved
// binding counter.
type IVCounter struct {
	mu   sync.Mutex
	next uint32
}

// NewIVCounter returns a counter starting at FirstPayloadIVCounter.
func NewIVCounter() *IVCounter {
	return &IVCounter{next: FirstPayloadIVCounter}
}

// Next returns the next unused nonce.
func (c *IVCounter) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= BindingIVCounter {
		return nil, ErrIVExhausted
	}
	nonce := NonceFromCounter(c.next)
	c.next++
	return nonce, nil
}

// Issued reports how many nonces have been handed out.
func (c *IVCounter) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.next - FirstPayloadIVCounter)
}

// NonceFromCounter builds the 12-byte nonce for a counter value.
func NonceFromCounter(counter uint32) []byte {
	nonce := make([]byte, AESGCMNonceSize)
	nonce[9] = byte(counter >> 16)
	nonce[10] = byte(counter >> 8)
	nonce[11] = byte(counter)
	return nonce
}

// ExpandIV zero-pads a short wire IV into a 12-byte GCM nonce. A 12-byte IV
// is returned as a copy.
func ExpandIV(iv []byte) ([]byte, error) {
	if len(iv) == 0 || len(iv) > AESGCMNonceSize {
		return nil, ErrInvalidNonceSize
	}
	nonce := make([]byte, AESGCMNonceSize)
	copy(nonce[AESGCMNonceSize-len(iv):], iv)
	return nonce, nil
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
