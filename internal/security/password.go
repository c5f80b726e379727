package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// MaxPasswordLength caps the plaintext accepted for hashing.
const MaxPasswordLength = 1024

const saltLen = 16

// Params are the argon2id cost settings used for new hashes. Verification
// always uses the settings encoded in the stored hash.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultParams matches the cost the service shipped with.
var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 1, KeyLen: 32}

// Validate rejects settings argon2 cannot run with or that are absurdly large.
func (p Params) Validate() error {
	if p.Time == 0 || p.Time > 100 {
		return errors.New("argon2 time must be between 1 and 100")
	}
	if p.Memory < 8 || p.Memory > 2*1024*1024 {
		return errors.New("argon2 memory must be between 8 and 2097152 KiB")
	}
	if p.Threads == 0 {
		return errors.New("argon2 threads must be positive")
	}
	if p.KeyLen < 16 || p.KeyLen > 64 {
		return errors.New("argon2 key length must be between 16 and 64")
	}
	return nil
}

// Hasher hashes and verifies paste passwords with Argon2id.
type Hasher struct {
	params Params
}

// NewHasher validates p and returns a Hasher.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: p}, nil
}

// Hash returns the encoded Argon2id hash of password, or "" for an empty
// password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if len(password) > MaxPasswordLength {
		return "", errors.New("password too long")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}
	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return encodeHash(h.params, salt, hash), nil
}

// Verify checks whether password matches the stored hash. The full key
// derivation runs for every input, empty passwords included, and the final
// comparison is constant time.
func (h *Hasher) Verify(encoded, password string) (bool, error) {
	if encoded == "" {
		return password == "", nil
	}
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}

func encodeHash(p Params, salt, hash []byte) string {
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, p.Memory, p.Time, p.Threads, b64Salt, b64Hash)
}

func decodeHash(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return Params{}, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return Params{}, nil, nil, errors.New("invalid algorithm")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, errors.Wrap(err, "parse version")
	}
	if version != argon2.Version {
		return Params{}, nil, nil, errors.Errorf("unsupported argon2 version %d", version)
	}
	var memTmp, timeTmp, threadTmp int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memTmp, &timeTmp, &threadTmp); err != nil {
		return Params{}, nil, nil, errors.Wrap(err, "parse params")
	}
	if memTmp <= 0 || timeTmp <= 0 || threadTmp <= 0 {
		return Params{}, nil, nil, errors.New("invalid argon params")
	}
	if threadTmp > 255 {
		return Params{}, nil, nil, errors.New("argon threads out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, errors.Wrap(err, "decode salt")
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, errors.Wrap(err, "decode hash")
	}
	if len(hash) == 0 {
		return Params{}, nil, nil, errors.New("empty hash")
	}
	params := Params{
		Time:    uint32(timeTmp),
		Memory:  uint32(memTmp),
		Threads: uint8(threadTmp),
		KeyLen:  uint32(len(hash)),
	}
	return params, salt, hash, nil
}
