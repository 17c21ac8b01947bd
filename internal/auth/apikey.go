package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for API-key hashes. Keys are random
// uuid4 hex rather than human passwords, so a moderate cost is plenty.
const defaultCost = 10

// KeyService issues and verifies API keys. The plaintext key is returned to
// the user exactly once; only the bcrypt hash is stored.
type KeyService struct {
	cost int
}

// NewKeyService creates a KeyService with the default bcrypt cost.
func NewKeyService() *KeyService {
	return &KeyService{cost: defaultCost}
}

// NewKeyServiceForTest uses bcrypt.MinCost so tests skip the hashing delay.
func NewKeyServiceForTest() *KeyService {
	return &KeyService{cost: bcrypt.MinCost}
}

// Issue generates a fresh key and its storable hash.
func (k *KeyService) Issue() (plaintext, hash string, err error) {
	plaintext = strings.ReplaceAll(uuid.NewString(), "-", "")
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), k.cost)
	if err != nil {
		return "", "", fmt.Errorf("auth: hashing api key: %w", err)
	}
	return plaintext, string(hashed), nil
}

// Verify checks a plaintext key against a stored hash. bcrypt's comparison
// is constant-time.
func (k *KeyService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid api key")
		}
		return fmt.Errorf("auth: comparing api key hash: %w", err)
	}
	return nil
}

// ParseKeyHeader splits an "<user_id>:<plaintext>" API-key header value.
func ParseKeyHeader(value string) (userID int64, plaintext string, err error) {
	idStr, key, found := strings.Cut(value, ":")
	if !found || key == "" {
		return 0, "", fmt.Errorf("auth: malformed api key")
	}
	userID, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", fmt.Errorf("auth: malformed api key")
	}
	return userID, key, nil
}
