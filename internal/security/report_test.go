package security

import (
	"testing"
	"time"
)

func strongInput() Input {
	return Input{
		SigningAlgorithm:         "ed25519",
		AccessTTL:                5 * time.Minute,
		RefreshTTL:               30 * 24 * time.Hour,
		Scrypt:                   ScryptReport{N: 32768, R: 8, P: 1, KeyLength: 64, SaltLength: 16},
		MinPasswordLength:        8,
		RevokeOnReuse:            true,
		LoginMaxAttempts:         10,
		LoginWindow:              15 * time.Minute,
		IPThrottle:               true,
		PasswordResetMaxAttempts: 5,
		PasswordResetWindow:      time.Hour,
	}
}

func TestBuildReportStrongConfigHasNoWarnings(t *testing.T) {
	r := BuildReport(strongInput())
	if len(r.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", r.Warnings)
	}
	if !r.LoginRateLimited || !r.IPThrottled || !r.ResetRateLimited || !r.RefreshReuseRevokes {
		t.Fatalf("protections missing: %+v", r)
	}
}

func TestBuildReportWarnings(t *testing.T) {
	in := strongInput()
	in.Scrypt.N = 1024
	in.MinPasswordLength = 4
	in.AccessTTL = 2 * time.Hour
	in.RevokeOnReuse = false
	in.LoginMaxAttempts = 0

	r := BuildReport(in)
	if len(r.Warnings) != 5 {
		t.Fatalf("warnings = %v", r.Warnings)
	}
	if r.IPThrottled {
		t.Fatal("ip throttle reported without a login limit")
	}
}

func TestAutoLinkRequiresFederation(t *testing.T) {
	in := strongInput()
	in.LinkVerifiedEmail = true
	if BuildReport(in).FederatedAutoLink {
		t.Fatal("auto link reported without a verifier")
	}
	in.FederatedEnabled = true
	if !BuildReport(in).FederatedAutoLink {
		t.Fatal("auto link not reported")
	}
}
