// Package boxerr classifies failures returned by the Box OAuth and API
// endpoints into a closed set of kinds, and decides which of them require
// the user to sign in again.
package boxerr

// Kind is the classified form of a transport or protocol failure.
type Kind int

const (
	KindOther Kind = iota
	KindNetwork
	KindCorruptedTransfer
	KindInvalidGrant
	KindAccessDenied
	KindAccountDeactivated
	KindInvalidRequest
	KindInvalidClient
	KindPasswordResetRequired
	KindTermsOfServiceRequired
	KindTrialEnded
	KindRateLimited
	KindServiceBlocked
	KindUnauthorizedDevice
	KindGracePeriodExpired
	KindUnauthorized
	KindLocationBlocked
	KindBadRequest
	KindInternalError
)

var kindNames = map[Kind]string{
	KindOther:                  "other",
	KindNetwork:                "network_error",
	KindCorruptedTransfer:      "corrupted_transfer",
	KindInvalidGrant:           "invalid_grant",
	KindAccessDenied:           "access_denied",
	KindAccountDeactivated:     "account_deactivated",
	KindInvalidRequest:         "invalid_request",
	KindInvalidClient:          "invalid_client",
	KindPasswordResetRequired:  "password_reset_required",
	KindTermsOfServiceRequired: "terms_of_service_required",
	KindTrialEnded:             "trial_ended",
	KindRateLimited:            "rate_limited",
	KindServiceBlocked:         "service_blocked",
	KindUnauthorizedDevice:     "unauthorized_device",
	KindGracePeriodExpired:     "grace_period_expired",
	KindUnauthorized:           "unauthorized",
	KindLocationBlocked:        "location_blocked",
	KindBadRequest:             "bad_request",
	KindInternalError:          "internal_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// Fatal reports whether a refresh failing with this kind can never succeed
// without a fresh interactive login.
func (k Kind) Fatal() bool {
	switch k {
	case KindInvalidGrant,
		KindAccessDenied,
		KindTrialEnded,
		KindServiceBlocked,
		KindInvalidClient,
		KindUnauthorizedDevice,
		KindGracePeriodExpired,
		KindUnauthorized,
		KindAccountDeactivated:
		return true
	}
	return false
}

// ForcesLogout reports whether stored credentials must be purged after a
// refresh fails with this kind. It is Fatal plus the terms-of-service case,
// which needs user interaction even though it is not in the fatal set.
func (k Kind) ForcesLogout() bool {
	return k.Fatal() || k == KindTermsOfServiceRequired
}

// Transient reports whether a caller may retry with backoff.
func (k Kind) Transient() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindInternalError:
		return true
	}
	return false
}
