package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. Changing any of these invalidates every refresh
// token already in circulation.
const (
	jweSalt       = "salt"
	jweIterations = 100000
	jweKeyLen     = 32
)

var (
	errMalformedEnvelope = errors.New("malformed JWE envelope")
	errEnvelopeExpired   = errors.New("JWE envelope expired")
)

// jweHeader is the fixed protected header for direct AES-256-GCM encryption.
var jweHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"dir","enc":"A256GCM"}`))

// Encryptor seals signed refresh claims into a compact JWE envelope so the
// stored token column never contains a usable bearer credential. The
// symmetric key is derived once at construction and only read afterwards.
type Encryptor struct {
	aead cipher.AEAD
	ttl  time.Duration
}

// NewEncryptor derives the AES-256 key from the secret passphrase via PBKDF2
// and prepares the AEAD.
func NewEncryptor(secret string, ttl time.Duration) (*Encryptor, error) {
	if secret == "" {
		return nil, errors.New("empty JWE secret")
	}
	if ttl <= 0 {
		return nil, errors.New("invalid JWE envelope TTL")
	}

	key := pbkdf2.Key([]byte(secret), []byte(jweSalt), jweIterations, jweKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead, ttl: ttl}, nil
}

type envelopeClaims struct {
	Data string `json:"data"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
}

// Encrypt wraps the signed payload in a five-part compact JWE envelope with
// issued-at and expiration claims mirroring the refresh token lifetime.
func (e *Encryptor) Encrypt(payload string) (string, error) {
	now := time.Now()
	plaintext, err := json.Marshal(envelopeClaims{
		Data: payload,
		IAT:  now.Unix(),
		EXP:  now.Add(e.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	iv := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	// The encoded protected header doubles as additional authenticated data,
	// as compact serialization requires.
	sealed := e.aead.Seal(nil, iv, plaintext, []byte(jweHeader))
	tagAt := len(sealed) - e.aead.Overhead()
	ciphertext, tag := sealed[:tagAt], sealed[tagAt:]

	parts := []string{
		jweHeader,
		"", // no encrypted key for direct encryption
		base64.RawURLEncoding.EncodeToString(iv),
		base64.RawURLEncoding.EncodeToString(ciphertext),
		base64.RawURLEncoding.EncodeToString(tag),
	}
	return strings.Join(parts, "."), nil
}

// Decrypt authenticates and opens the envelope, returning the inner signed
// payload. Malformed, tampered, and expired envelopes all fail.
func (e *Encryptor) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ".")
	if len(parts) != 5 || parts[1] != "" {
		return "", errMalformedEnvelope
	}

	iv, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(iv) != e.aead.NonceSize() {
		return "", errMalformedEnvelope
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return "", errMalformedEnvelope
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil || len(tag) != e.aead.Overhead() {
		return "", errMalformedEnvelope
	}

	plaintext, err := e.aead.Open(nil, iv, append(ciphertext, tag...), []byte(parts[0]))
	if err != nil {
		return "", err
	}

	var claims envelopeClaims
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return "", errMalformedEnvelope
	}
	if claims.EXP != 0 && time.Now().Unix() >= claims.EXP {
		return "", errEnvelopeExpired
	}
	return claims.Data, nil
}
