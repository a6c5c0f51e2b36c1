package federated

import "errors"

var (
	// ErrInvalidToken covers every signature, claim or format failure.
	ErrInvalidToken = errors.New("invalid identity token")
	// ErrKeysUnavailable means the provider's signing keys could not be fetched.
	ErrKeysUnavailable = errors.New("identity provider keys unavailable")
)

// Identity is the verified subject of an external identity token.
type Identity struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// FederatedID is the stable local key for the identity. Subjects are only
// unique per issuer, so both are part of it.
func (i *Identity) FederatedID() string {
	return i.Issuer + "|" + i.Subject
}
