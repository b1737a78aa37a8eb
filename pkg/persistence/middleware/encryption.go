package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

const envelopeField = "__encrypted__"

type envelope struct {
	Encrypted string `json:"__encrypted__"`
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals checkpoint state and
// node writes with AES-GCM. Thread id, sequence, next nodes and writer names
// stay in clear so history listings keep working.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) seal(plain json.RawMessage) (json.RawMessage, error) {
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Encrypted: base64.StdEncoding.EncodeToString(ciphertext)})
}

func (m *encryptionMiddleware) open(sealed json.RawMessage) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil || env.Encrypted == "" {
		// Fail secure: plain checkpoints are not accepted once encryption is on.
		return nil, fmt.Errorf("checkpoint is missing %s envelope", envelopeField)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	sealed := *cp

	state, err := m.seal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}
	sealed.State = state

	sealed.Writes = make([]domain.NodeWrite, len(cp.Writes))
	for i, w := range cp.Writes {
		partial, err := m.seal(w.Partial)
		if err != nil {
			return fmt.Errorf("failed to encrypt write of %q: %w", w.Node, err)
		}
		sealed.Writes[i] = domain.NodeWrite{Node: w.Node, Partial: partial}
	}

	return m.next.Save(ctx, &sealed)
}

func (m *encryptionMiddleware) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	sealed, err := m.next.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cp := *sealed
	if cp.State, err = m.open(sealed.State); err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	cp.Writes = make([]domain.NodeWrite, len(sealed.Writes))
	for i, w := range sealed.Writes {
		partial, err := m.open(w.Partial)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt write of %q: %w", w.Node, err)
		}
		cp.Writes[i] = domain.NodeWrite{Node: w.Node, Partial: partial}
	}

	return &cp, nil
}

func (m *encryptionMiddleware) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	return m.next.History(ctx, threadID)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
