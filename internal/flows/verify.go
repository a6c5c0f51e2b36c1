package flows

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
)

// VerifyFailureKind classifies access-token verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureParse
	VerifyFailureLookup
	VerifyFailureUnknownUser
	VerifyFailureVersion
)

// VerifyResult carries parsed claims or failure metadata.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// VerifyDeps captures access-token verification dependencies.
type VerifyDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	// CurrentTokenVersion returns the owner's live token version and whether
	// the owner still exists.
	CurrentTokenVersion func(ctx context.Context, userID string) (uint64, bool, error)
}

// RunVerify parses tokenStr and rejects it unless its tv claim still matches
// the owner's current token version.
func RunVerify(ctx context.Context, tokenStr string, deps VerifyDeps) VerifyResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureParse, Err: err}
	}

	current, found, err := deps.CurrentTokenVersion(ctx, claims.Subject)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureLookup, Err: err, Claims: claims}
	}
	if !found {
		return VerifyResult{Failure: VerifyFailureUnknownUser, Claims: claims}
	}
	if current != claims.TokenVersion {
		return VerifyResult{Failure: VerifyFailureVersion, Claims: claims}
	}
	return VerifyResult{Claims: claims}
}
