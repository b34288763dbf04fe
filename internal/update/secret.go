package update

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for the shared secret.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length
)

// HashSecret hashes the update secret with Argon2id and returns it in PHC
// string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verifier checks the secret presented with an update request.
type Verifier struct {
	plain []byte
	salt  []byte
	hash  []byte
	param argonParams
}

// NewVerifier accepts either a plain secret or an Argon2id PHC hash. The
// hash wins when both are set. The hash is parsed once here so a bad
// configuration fails at boot, not on the first upload.
func NewVerifier(secret, encodedHash string) (*Verifier, error) {
	if encodedHash != "" {
		salt, hash, params, err := decodePHC(encodedHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSecretHash, err)
		}
		return &Verifier{salt: salt, hash: hash, param: params}, nil
	}
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{plain: []byte(secret)}, nil
}

// Verify reports whether candidate matches in constant time.
func (v *Verifier) Verify(candidate string) bool {
	if v.hash == nil {
		return subtle.ConstantTimeCompare(v.plain, []byte(candidate)) == 1
	}
	key := argon2.IDKey([]byte(candidate), v.salt, v.param.time, v.param.memory, v.param.threads, uint32(len(v.hash))) //nolint:gosec // G115: hash length always fits uint32
	return subtle.ConstantTimeCompare(v.hash, key) == 1
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}

	return salt, hash, params, nil
}
