package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer stores one secret encrypted at rest in memory. It wraps
// memguard.Enclave behind an idempotent Destroy.
type Buffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy calls and prevents use after
	// destroy
	destroyed bool
}

// NewBuffer copies secret bytes into a protected memory region. The
// caller keeps ownership of data and should zero it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// Open decrypts the secret into a locked buffer. The caller MUST call
// Destroy() on the returned LockedBuffer to wipe the plaintext.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return b.enclave.Open()
}

// String decrypts the secret and returns it as a string. The plaintext
// copy is wiped before returning; only the returned string escapes.
func (b *Buffer) String() (string, error) {
	locked, err := b.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// Destroy marks the buffer as destroyed. After Destroy, Open returns an
// empty buffer. Idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}
