package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/epic1st/rtx/backend/logging"
)

// Operator is the single principal allowed to drive one account's
// engine: this service has no per-trader login, since an Engine has no
// notion of a user beyond the user_id carried on each order.
type Operator struct {
	AccountKey string `json:"account_key"`
	Role       string `json:"role"`
}

// Service issues and validates the JWTs that gate access to one
// account's engine endpoints.
type Service struct {
	accountKey   string
	operatorHash []byte
	jwtSecret    []byte
}

// NewService creates an authentication service scoped to one account.
// A blank operatorPasswordHash or jwtSecret falls back to an insecure
// development default and logs a warning, mirroring how this codebase
// has always handled missing secrets in non-production environments.
func NewService(accountKey, operatorPasswordHash, jwtSecret string) *Service {
	hash := []byte(operatorPasswordHash)
	if len(hash) == 0 {
		logging.Warn("no OPERATOR_PASSWORD_HASH provided, using insecure default password",
			logging.AccountID(accountKey))
		hash, _ = bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	}

	secret := []byte(jwtSecret)
	if len(secret) == 0 {
		logging.Warn("no JWT_SECRET provided, using insecure default secret",
			logging.AccountID(accountKey))
		secret = []byte("super_secret_dev_key_do_not_use_in_prod")
	}

	return &Service{accountKey: accountKey, operatorHash: hash, jwtSecret: secret}
}

// Login validates the operator password and issues a token scoped to
// this service's account.
func (s *Service) Login(password string) (string, *Operator, error) {
	if err := bcrypt.CompareHashAndPassword(s.operatorHash, []byte(password)); err != nil {
		logging.Warn("operator login failed", logging.AccountID(s.accountKey))
		return "", nil, errors.New("invalid credentials")
	}

	op := &Operator{AccountKey: s.accountKey, Role: "OPERATOR"}
	token, err := s.GenerateToken(op)
	if err != nil {
		logging.Error("jwt generation failed", err, logging.AccountID(s.accountKey))
		return "", nil, errors.New("system error")
	}
	return token, op, nil
}

// GenerateToken creates a JWT token for the given operator using the
// service's secret.
func (s *Service) GenerateToken(op *Operator) (string, error) {
	return GenerateJWTWithSecret(op, s.jwtSecret)
}

// ValidateToken validates a JWT token using the service's secret.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(tokenString, s.jwtSecret)
}
