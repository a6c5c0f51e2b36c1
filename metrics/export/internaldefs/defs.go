package internaldefs

import "github.com/MrEthical07/authcore"

// Def names one exported series.
type Def struct {
	ID   authcore.MetricID
	Name string
	Help string
}

const namePrefix = "authcore_"

// AuditDroppedName is the series fed by Engine.AuditDropped.
const AuditDroppedName = namePrefix + "audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped on a full dispatcher buffer."

func counter(id authcore.MetricID, name, help string) Def {
	return Def{ID: id, Name: namePrefix + name + "_total", Help: help}
}

var Counters = []Def{
	counter(authcore.MetricRegisterSuccess, "register_success", "Accounts registered."),
	counter(authcore.MetricRegisterDuplicate, "register_duplicate", "Registrations rejected for a taken email."),
	counter(authcore.MetricLoginSuccess, "login_success", "Logins that issued a session."),
	counter(authcore.MetricLoginFailure, "login_failure", "Logins rejected for bad credentials."),
	counter(authcore.MetricLoginRateLimited, "login_rate_limited", "Logins refused by the rate limiter."),
	counter(authcore.MetricLoginNoPassword, "login_no_password", "Password logins against federated-only accounts."),
	counter(authcore.MetricTwoFactorRequired, "two_factor_required", "Logins that stopped at a second factor."),
	counter(authcore.MetricTwoFactorSuccess, "two_factor_success", "Second factor codes accepted."),
	counter(authcore.MetricTwoFactorFailure, "two_factor_failure", "Second factor codes rejected."),
	counter(authcore.MetricTwoFactorEnrolled, "two_factor_enrolled", "Two-factor enrollments confirmed."),
	counter(authcore.MetricOTPThrottled, "otp_throttled", "Code resends refused during cooldown."),
	counter(authcore.MetricSessionCreated, "session_created", "Refresh sessions created."),
	counter(authcore.MetricRefreshSuccess, "refresh_success", "Refresh tokens rotated."),
	counter(authcore.MetricRefreshFailure, "refresh_failure", "Refresh attempts rejected."),
	counter(authcore.MetricRefreshReuseDetected, "refresh_reuse_detected", "Rotated-away refresh tokens presented again."),
	counter(authcore.MetricLogout, "logout", "Single sessions revoked."),
	counter(authcore.MetricRevokeAll, "revoke_all", "Revoke-everything operations."),
	counter(authcore.MetricVerifyFailure, "verify_failure", "Access tokens rejected."),
	counter(authcore.MetricTokenVersionMismatch, "token_version_mismatch", "Access tokens rejected for a stale token version."),
	counter(authcore.MetricPasswordChangeSuccess, "password_change_success", "Passwords changed."),
	counter(authcore.MetricPasswordChangeInvalidOld, "password_change_invalid_old", "Password changes with a wrong current password."),
	counter(authcore.MetricPasswordResetRequest, "password_reset_request", "Password reset codes requested."),
	counter(authcore.MetricPasswordResetSuccess, "password_reset_success", "Passwords reset with a code."),
	counter(authcore.MetricPasswordResetFailure, "password_reset_failure", "Password reset codes rejected."),
	counter(authcore.MetricAccountStatusChange, "account_status_change", "Account status transitions."),
	counter(authcore.MetricAccountReactivated, "account_reactivated", "Inactive accounts reactivated by login."),
	counter(authcore.MetricFederatedLoginSuccess, "federated_login_success", "Federated logins accepted."),
	counter(authcore.MetricFederatedLoginFailure, "federated_login_failure", "Federated logins rejected."),
	counter(authcore.MetricFederatedConflict, "federated_conflict", "Federated logins colliding with a password account."),
	counter(authcore.MetricFederatedLinked, "federated_linked", "Federated identities linked to existing accounts."),
}

var Histograms = []Def{
	{ID: authcore.MetricVerifyLatency, Name: namePrefix + "verify_latency_seconds", Help: "Access token verification latency."},
}

// Bounds are the upper edges, in seconds, of the engine's latency buckets.
var Bounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// BoundSuffix spells Bounds in a form legal inside instrument names.
var BoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative pads raw to len(Bounds) buckets and sums it left to right.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
