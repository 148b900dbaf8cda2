package boxerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// ErrCorruptedTransfer marks content transfers whose checksum did not match.
var ErrCorruptedTransfer = errors.New("corrupted file transfer")

// APIError is the error body returned by the Box content API
// (e.g. GET /users/me).
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("box api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("box api: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Outcome is the information the classifier needs about a failed call.
type Outcome struct {
	StatusCode int
	Code       string
	Network    bool
	Corrupted  bool
}

type codeStatus struct {
	code   string
	status int
}

// codeTable maps a server error code and HTTP status to a kind.
var codeTable = map[codeStatus]Kind{
	{"invalid_grant", http.StatusBadRequest}:                  KindInvalidGrant,
	{"account_deactivated", http.StatusBadRequest}:            KindAccountDeactivated,
	{"access_denied", http.StatusForbidden}:                   KindAccessDenied,
	{"invalid_request", http.StatusBadRequest}:                KindInvalidRequest,
	{"invalid_client", http.StatusBadRequest}:                 KindInvalidClient,
	{"password_reset_required", http.StatusBadRequest}:        KindPasswordResetRequired,
	{"terms_of_service_required", http.StatusBadRequest}:      KindTermsOfServiceRequired,
	{"no_credit_card_trial_ended", http.StatusBadRequest}:     KindTrialEnded,
	{"temporarily_unavailable", http.StatusTooManyRequests}:   KindRateLimited,
	{"service_blocked", http.StatusBadRequest}:                KindServiceBlocked,
	{"unauthorized_device", http.StatusBadRequest}:            KindUnauthorizedDevice,
	{"grace_period_expired", http.StatusForbidden}:            KindGracePeriodExpired,
	{"unauthorized", http.StatusUnauthorized}:                 KindUnauthorized,
	{"access_from_location_blocked", http.StatusForbidden}:    KindLocationBlocked,
	{"bad_request", http.StatusBadRequest}:                    KindBadRequest,
	{"internal_server_error", http.StatusInternalServerError}: KindInternalError,
}

// Classify maps an outcome to a kind. Network failures win over any status;
// status 500 is always an internal error; otherwise the (code, status) pair
// is looked up and unmatched pairs are KindOther.
func Classify(o Outcome) Kind {
	if o.Network {
		return KindNetwork
	}
	if o.Corrupted {
		return KindCorruptedTransfer
	}
	if o.StatusCode == http.StatusInternalServerError {
		return KindInternalError
	}
	if kind, ok := codeTable[codeStatus{o.Code, o.StatusCode}]; ok {
		return kind
	}
	return KindOther
}

// ClassifyError is Classify(FromError(err)).
func ClassifyError(err error) Kind {
	return Classify(FromError(err))
}

// FromError extracts an Outcome from an error chain produced by the
// transport, the token endpoint (*oauth2.RetrieveError) or the content API
// (*APIError).
func FromError(err error) Outcome {
	var o Outcome
	if err == nil {
		return o
	}

	if errors.Is(err, ErrCorruptedTransfer) {
		o.Corrupted = true
		return o
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			o.StatusCode = retrieveErr.Response.StatusCode
		}
		o.Code = retrieveErr.ErrorCode
		if o.Code == "" && len(retrieveErr.Body) > 0 {
			var body struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(retrieveErr.Body, &body) == nil {
				o.Code = body.Error
			}
		}
		return o
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		o.StatusCode = apiErr.StatusCode
		o.Code = apiErr.Code
		return o
	}

	o.Network = isNetworkError(err)
	return o
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
