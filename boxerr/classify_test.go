package boxerr

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    Kind
	}{
		{
			name:    "invalid grant",
			outcome: Outcome{StatusCode: 400, Code: "invalid_grant"},
			want:    KindInvalidGrant,
		},
		{
			name:    "code with unexpected status",
			outcome: Outcome{StatusCode: 401, Code: "invalid_grant"},
			want:    KindOther,
		},
		{
			name:    "rate limited",
			outcome: Outcome{StatusCode: 429, Code: "temporarily_unavailable"},
			want:    KindRateLimited,
		},
		{
			name:    "status 500 regardless of code",
			outcome: Outcome{StatusCode: 500, Code: "invalid_grant"},
			want:    KindInternalError,
		},
		{
			name:    "status 500 without code",
			outcome: Outcome{StatusCode: 500},
			want:    KindInternalError,
		},
		{
			name:    "network wins over status",
			outcome: Outcome{StatusCode: 400, Code: "invalid_grant", Network: true},
			want:    KindNetwork,
		},
		{
			name:    "terms of service",
			outcome: Outcome{StatusCode: 400, Code: "terms_of_service_required"},
			want:    KindTermsOfServiceRequired,
		},
		{
			name:    "unknown code",
			outcome: Outcome{StatusCode: 400, Code: "something_new"},
			want:    KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.outcome); got != tt.want {
				t.Errorf("Classify(%+v) = %v, want %v", tt.outcome, got, tt.want)
			}
		})
	}
}

func TestKindFatal(t *testing.T) {
	fatal := []Kind{
		KindInvalidGrant,
		KindAccessDenied,
		KindTrialEnded,
		KindServiceBlocked,
		KindInvalidClient,
		KindUnauthorizedDevice,
		KindGracePeriodExpired,
		KindUnauthorized,
		KindAccountDeactivated,
	}
	for _, k := range fatal {
		if !k.Fatal() || !k.ForcesLogout() {
			t.Errorf("%v should be fatal and force logout", k)
		}
	}

	for _, k := range []Kind{KindNetwork, KindRateLimited, KindInternalError, KindOther} {
		if k.Fatal() || k.ForcesLogout() {
			t.Errorf("%v should not be fatal", k)
		}
	}

	if KindTermsOfServiceRequired.Fatal() {
		t.Errorf("terms of service is not in the fatal set")
	}
	if !KindTermsOfServiceRequired.ForcesLogout() {
		t.Errorf("terms of service must force logout")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "retrieve error with code",
			err: fmt.Errorf("refresh: %w", &oauth2.RetrieveError{
				Response:  &http.Response{StatusCode: http.StatusBadRequest},
				ErrorCode: "invalid_grant",
			}),
			want: KindInvalidGrant,
		},
		{
			name: "retrieve error with code only in body",
			err: &oauth2.RetrieveError{
				Response: &http.Response{StatusCode: http.StatusBadRequest},
				Body:     []byte(`{"error":"invalid_client","error_description":"bad"}`),
			},
			want: KindInvalidClient,
		},
		{
			name: "api error",
			err:  &APIError{StatusCode: http.StatusUnauthorized, Code: "unauthorized"},
			want: KindUnauthorized,
		},
		{
			name: "dns failure",
			err: &url.Error{
				Op:  "Post",
				URL: "https://api.box.com/oauth2/token",
				Err: &net.DNSError{Err: "no such host", Name: "api.box.com", IsNotFound: true},
			},
			want: KindNetwork,
		},
		{
			name: "connection refused",
			err: &url.Error{
				Op:  "Post",
				URL: "https://api.box.com/oauth2/token",
				Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			},
			want: KindNetwork,
		},
		{
			name: "corrupted transfer",
			err:  fmt.Errorf("upload: %w", ErrCorruptedTransfer),
			want: KindCorruptedTransfer,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}
