package udplink

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyNamespace = "smarthub link v1"

var ErrUnsealFailed = errors.New("failed to authenticate link payload")

type sealer struct {
	key []byte
}

// Stretches the shared link secret into a cipher key bound to the link channel,
// so nodes on different channels never accept each other's traffic
func newSealer(secret []byte, channel uint8) (s *sealer, err error) {
	if len(secret) == 0 {
		return
	}

	salt := []byte{channel}
	deriver := hkdf.New(sha512.New, secret, salt, []byte(keyNamespace))

	key := make([]byte, chacha20poly1305.KeySize)
	_, err = deriver.Read(key)
	if err != nil {
		err = fmt.Errorf("failed to derive link key: %w", err)
		return
	}
	s = &sealer{key: key}
	return
}

// Encrypts payload, authenticating header. Output is nonce || ciphertext.
func (s *sealer) seal(header, payload []byte) (sealed []byte, err error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		err = fmt.Errorf("failed creation of AEAD: %w", err)
		return
	}

	nonce := make([]byte, chacha20poly1305.NonceSize, chacha20poly1305.NonceSize+len(payload)+chacha20poly1305.Overhead)
	_, err = rand.Read(nonce)
	if err != nil {
		err = fmt.Errorf("failed to generate nonce: %w", err)
		return
	}
	if allSame(nonce) {
		err = fmt.Errorf("refusing degenerate nonce")
		return
	}

	sealed = aead.Seal(nonce, nonce, payload, header)
	return
}

func (s *sealer) open(header, sealed []byte) (payload []byte, err error) {
	if len(sealed) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		err = fmt.Errorf("%w: %d bytes is shorter than nonce and tag", ErrUnsealFailed, len(sealed))
		return
	}

	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		err = fmt.Errorf("failed creation of AEAD: %w", err)
		return
	}

	nonce, ciphertext := sealed[:chacha20poly1305.NonceSize], sealed[chacha20poly1305.NonceSize:]
	payload, err = aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	return
}

// Sealing overhead per datagram
func (s *sealer) overhead() (n int) {
	if s == nil {
		return
	}
	n = chacha20poly1305.NonceSize + chacha20poly1305.Overhead
	return
}

func allSame(b []byte) bool {
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}
