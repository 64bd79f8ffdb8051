package contracts

import "github.com/google/uuid"

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	ValidateToken(token string) (uuid.UUID, error)
}
