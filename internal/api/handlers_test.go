package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darmiel/entitled/internal/api/presenter"
	"github.com/darmiel/entitled/internal/audit"
	"github.com/darmiel/entitled/internal/certstore"
	"github.com/darmiel/entitled/internal/codec"
	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/service"
	"github.com/darmiel/entitled/internal/store"
	"github.com/darmiel/entitled/internal/verify"
)

var (
	testNow      = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	adminKey     = []byte("test-admin-signing-key")
	latestParams = "?api-version=" + ApiVersionLatest
)

type testEnv struct {
	server  *httptest.Server
	codec   *codec.Codec
	auditor *audit.InMemoryAuditor
	handled int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cert, err := certstore.GenerateSelfSigned("api-test", 24*time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	c, err := codec.New(cert)
	if err != nil {
		t.Fatalf("codec.New() error = %v", err)
	}
	verifier, err := verify.New(c, verify.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("verify.New() error = %v", err)
	}

	env := &testEnv{codec: c, auditor: audit.NewInMemoryAuditor()}

	svc := service.NewEntitlementService(verifier, store.NewEntitlementStore(), env.auditor,
		service.WithClock(func() time.Time { return testNow }))
	apiServer := NewServer(svc, env.auditor,
		WithRequestHandledHook(func() { env.handled++ }))

	env.server = httptest.NewServer(apiServer.Routes(adminKey))
	t.Cleanup(env.server.Close)
	return env
}

// mintToken creates a token valid around testNow. An empty address list
// leaves the token unrestricted, which matches the loopback test transport.
func (e *testEnv) mintToken(t *testing.T, applications []string, addresses ...netip.Addr) string {
	t.Helper()

	raw, err := e.codec.Encode(core.EntitlementToken{
		ID:               "test-token",
		Issuer:           core.DefaultIssuer,
		Audience:         core.DefaultAudience,
		NotBefore:        testNow.Add(-time.Hour),
		NotAfter:         testNow.Add(7 * 24 * time.Hour),
		IssuedAt:         testNow.Add(-time.Hour),
		Applications:     applications,
		IPAddresses:      addresses,
		VirtualMachineID: "vm-007",
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return raw
}

func (e *testEnv) do(t *testing.T, method, path string, body any, into any) *http.Response {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, &payload)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decoding response of %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestServer_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.mintToken(t, []string{"contosoHR"})

	// acquire a one hour lease
	var acquired acquireSuccessResponse
	resp := env.do(t, http.MethodPost, EntitlementsRoute+latestParams, verificationRequestBody{
		Token:         token,
		ApplicationID: "contosoHR",
		Duration:      "PT1H",
	}, &acquired)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("acquire status = %d, want 201", resp.StatusCode)
	}
	if acquired.EntitlementID == "" {
		t.Fatal("acquire returned no entitlement id")
	}
	expiry, err := time.Parse(time.RFC3339Nano, acquired.InitialExpiryTime)
	if err != nil {
		t.Fatalf("initial expiry %q is not a timestamp: %v", acquired.InitialExpiryTime, err)
	}
	if want := testNow.Add(time.Hour); !expiry.Equal(want) {
		t.Errorf("initial expiry = %s, want %s", expiry, want)
	}

	renewPath := EntitlementsRoute + "/" + acquired.EntitlementID + "/renew" + latestParams
	releasePath := EntitlementsRoute + "/" + acquired.EntitlementID + latestParams

	// renew for two hours
	var renewed renewSuccessResponse
	resp = env.do(t, http.MethodPost, renewPath, renewRequestBody{Duration: "PT2H"}, &renewed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("renew status = %d, want 200", resp.StatusCode)
	}
	expiry, err = time.Parse(time.RFC3339Nano, renewed.ExpiryTime)
	if err != nil {
		t.Fatalf("renewed expiry %q is not a timestamp: %v", renewed.ExpiryTime, err)
	}
	if want := testNow.Add(2 * time.Hour); !expiry.Equal(want) {
		t.Errorf("renewed expiry = %s, want %s", expiry, want)
	}

	// release
	resp = env.do(t, http.MethodDelete, releasePath, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("release status = %d, want 204", resp.StatusCode)
	}

	// releasing again still succeeds
	resp = env.do(t, http.MethodDelete, releasePath, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("second release status = %d, want 204", resp.StatusCode)
	}

	// renewing a released entitlement is a conflict
	var failure presenter.FailureResponse
	resp = env.do(t, http.MethodPost, renewPath, renewRequestBody{Duration: "PT1H"}, &failure)
	if resp.StatusCode != http.StatusConflict || failure.Code != service.CodeAlreadyReleased {
		t.Errorf("renew after release = %d/%s, want 409/%s", resp.StatusCode, failure.Code, service.CodeAlreadyReleased)
	}

	// renewing an unknown entitlement is not found
	resp = env.do(t, http.MethodPost, EntitlementsRoute+"/never-issued/renew"+latestParams,
		renewRequestBody{Duration: "PT1H"}, &failure)
	if resp.StatusCode != http.StatusNotFound || failure.Code != service.CodeNotFound {
		t.Errorf("renew unknown = %d/%s, want 404/%s", resp.StatusCode, failure.Code, service.CodeNotFound)
	}
}

func TestServer_ApproveVersions(t *testing.T) {
	env := newTestEnv(t)
	token := env.mintToken(t, []string{"contosoHR"})

	t.Run("V1", func(t *testing.T) {
		var approved approveV1SuccessResponse
		resp := env.do(t, http.MethodPost, EntitlementsRoute+"?api-version="+ApiVersionMay2017,
			verificationRequestBody{Token: token, ApplicationID: "contosoHR"}, &approved)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if !strings.HasPrefix(approved.EntitlementID, "entitlement-") {
			t.Errorf("id = %q, want an entitlement- prefix", approved.EntitlementID)
		}
		if approved.VirtualMachineID != "vm-007" {
			t.Errorf("vmid = %q, want vm-007", approved.VirtualMachineID)
		}
	})

	t.Run("V2", func(t *testing.T) {
		var approved approveV2SuccessResponse
		resp := env.do(t, http.MethodPost, EntitlementsRoute+"?api-version="+ApiVersionAugust2018,
			verificationRequestBody{Token: token, ApplicationID: "contosoHR"}, &approved)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		expiry, err := time.Parse(time.RFC3339Nano, approved.Expiry)
		if err != nil {
			t.Fatalf("expiry %q is not a timestamp: %v", approved.Expiry, err)
		}
		if want := testNow.Add(7 * 24 * time.Hour); !expiry.Equal(want) {
			t.Errorf("expiry = %s, want the token expiry %s", expiry, want)
		}
	})

	// two approvals must hand out different identifiers
	var first, second approveV1SuccessResponse
	env.do(t, http.MethodPost, EntitlementsRoute+"?api-version="+ApiVersionJune2017,
		verificationRequestBody{Token: token, ApplicationID: "contosoHR"}, &first)
	env.do(t, http.MethodPost, EntitlementsRoute+"?api-version="+ApiVersionJune2017,
		verificationRequestBody{Token: token, ApplicationID: "contosoHR"}, &second)
	if first.EntitlementID == second.EntitlementID {
		t.Error("two approvals returned the same entitlement id")
	}
}

func TestServer_ApiVersionRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "Missing",
			path: EntitlementsRoute,
			want: "Missing api-version",
		},
		{
			name: "Unsupported",
			path: EntitlementsRoute + "?api-version=2025-01-01.1.0",
			want: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failure presenter.FailureResponse
			resp := env.do(t, http.MethodPost, tt.path,
				verificationRequestBody{Token: "x", ApplicationID: "contosoHR"}, &failure)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if failure.Code != service.CodeEntitlementDenied {
				t.Errorf("code = %q, want %s", failure.Code, service.CodeEntitlementDenied)
			}
			if !strings.Contains(failure.Message.Value, tt.want) {
				t.Errorf("message = %q, want it to mention %q", failure.Message.Value, tt.want)
			}
		})
	}
}

func TestServer_DeniedHidesReasons(t *testing.T) {
	env := newTestEnv(t)
	// the token only grants contosoFinance
	token := env.mintToken(t, []string{"contosoFinance"})

	var failure presenter.FailureResponse
	resp := env.do(t, http.MethodPost, EntitlementsRoute+latestParams, verificationRequestBody{
		Token:         token,
		ApplicationID: "contosoHR",
		Duration:      "PT1H",
	}, &failure)

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if failure.Code != service.CodeEntitlementDenied {
		t.Errorf("code = %q, want %s", failure.Code, service.CodeEntitlementDenied)
	}
	if failure.Message.Value != "Entitlement for contosoHR was denied." {
		t.Errorf("message = %q; the reason for a denial must not leak", failure.Message.Value)
	}
}

func TestServer_AddressRestriction(t *testing.T) {
	env := newTestEnv(t)
	// restricted to a documentation address the test client cannot have
	token := env.mintToken(t, []string{"contosoHR"}, netip.MustParseAddr("203.0.113.46"))

	var failure presenter.FailureResponse
	resp := env.do(t, http.MethodPost, EntitlementsRoute+latestParams, verificationRequestBody{
		Token:         token,
		ApplicationID: "contosoHR",
		Duration:      "PT1H",
	}, &failure)

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for a request from an unlisted address", resp.StatusCode)
	}
}

func TestServer_StructuralErrorsAreDetailed(t *testing.T) {
	env := newTestEnv(t)

	var failure presenter.FailureResponse
	resp := env.do(t, http.MethodPost, EntitlementsRoute+latestParams,
		verificationRequestBody{Duration: "an hour"}, &failure)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	for _, fragment := range []string{"Missing token", "Missing applicationId", "Unable to parse duration"} {
		if !strings.Contains(failure.Message.Value, fragment) {
			t.Errorf("message %q does not mention %q", failure.Message.Value, fragment)
		}
	}
}

func TestServer_AdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.mintToken(t, []string{"contosoHR"})

	env.do(t, http.MethodPost, EntitlementsRoute+latestParams, verificationRequestBody{
		Token:         token,
		ApplicationID: "contosoHR",
		Duration:      "PT1H",
	}, nil)

	t.Run("Requires Login", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, ListEntitlementsRoute, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401 without a session token", resp.StatusCode)
		}
	})

	t.Run("Rejects Non Admin", func(t *testing.T) {
		resp := env.doAdmin(t, http.MethodGet, ListEntitlementsRoute, mintAdminToken(t, "viewer"), nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401 without the admin role", resp.StatusCode)
		}
	})

	t.Run("Lists Entitlements", func(t *testing.T) {
		var records []core.EntitlementRecord
		resp := env.doAdmin(t, http.MethodGet, ListEntitlementsRoute, mintAdminToken(t, "admin"), &records)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if len(records) != 1 || records[0].State != core.StateActive {
			t.Errorf("records = %+v, want one active record", records)
		}
	})

	t.Run("Lists Audits", func(t *testing.T) {
		var entries []core.AuditEntry
		resp := env.doAdmin(t, http.MethodGet, ListAuditsRoute+"?limit=10", mintAdminToken(t, "admin"), &entries)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if len(entries) != 1 || entries[0].Action != core.AuditActionAcquire {
			t.Errorf("entries = %+v, want the acquire audit entry", entries)
		}
	})
}

func TestServer_RequestHandledHook(t *testing.T) {
	env := newTestEnv(t)
	token := env.mintToken(t, []string{"contosoHR"})

	env.do(t, http.MethodGet, HealthCheckRoute, nil, nil)
	if env.handled != 0 {
		t.Errorf("health checks must not count as handled entitlement requests")
	}

	env.do(t, http.MethodPost, EntitlementsRoute+latestParams, verificationRequestBody{
		Token:         token,
		ApplicationID: "contosoHR",
		Duration:      "PT1H",
	}, nil)
	if env.handled != 1 {
		t.Errorf("handled = %d, want 1 after an entitlement request", env.handled)
	}
}

func (e *testEnv) doAdmin(t *testing.T, method, path, sessionToken string, into any) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+sessionToken)

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decoding response of %s %s: %v", method, path, err)
		}
	}
	return resp
}

func mintAdminToken(t *testing.T, roles ...string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   "test-operator",
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(adminKey)
	if err != nil {
		t.Fatalf("signing admin token: %v", err)
	}
	return signed
}
