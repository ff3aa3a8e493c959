package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentscore/models"
	"rentscore/utils"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("test-secret")

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func identityHandler(got *Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := GetUserFromContext(r)
		if err != nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		*got = identity
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name     string
		header   string
		wantCode int
		wantRole models.UserRole
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer nonsense", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + signToken(t, []byte("other"), jwt.MapClaims{"user_id": 1, "exp": exp}), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, testKey, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"missing user id", "Bearer " + signToken(t, testKey, jwt.MapClaims{"email": "a@b.c", "exp": exp}), http.StatusUnauthorized, ""},
		{"tenant by default", "Bearer " + signToken(t, testKey, jwt.MapClaims{"user_id": 7, "email": "a@b.c", "exp": exp}), http.StatusOK, models.UserRoleTenant},
		{"landlord role", "Bearer " + signToken(t, testKey, jwt.MapClaims{"user_id": 7, "role": "landlord", "exp": exp}), http.StatusOK, models.UserRoleLandlord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			handler := AuthMiddleware(testKey)(identityHandler(&got))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && (got.UserID != 7 || got.Role != tt.wantRole) {
				t.Errorf("identity = %+v", got)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	var got Identity
	handler := RequireRole(models.UserRoleLandlord)(identityHandler(&got))

	tests := []struct {
		name     string
		identity *Identity
		want     int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"tenant", &Identity{UserID: 1, Role: models.UserRoleTenant}, http.StatusForbidden},
		{"landlord", &Identity{UserID: 2, Role: models.UserRoleLandlord}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/landlord/tenancies", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := utils.NewRateLimiter(2, time.Minute)
	handler := RateLimit(limiter, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/public/shares/x", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := call("203.0.113.5"); rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("first call: %d remaining %s", rr.Code, rr.Header().Get("X-RateLimit-Remaining"))
	}
	call("203.0.113.5")
	if rr := call("203.0.113.5"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third call: status %d, want 429", rr.Code)
	}
	if rr := call("198.51.100.9"); rr.Code != http.StatusOK {
		t.Errorf("other client limited: status %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("ClientIP with forwarding = %q", got)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	handler := CORS([]string{"https://app.rentscore.test"})(next)
	req := httptest.NewRequest(http.MethodOptions, "/api/score", nil)
	req.Header.Set("Origin", "https://app.rentscore.test")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.rentscore.test" {
		t.Errorf("preflight: %d origin %q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/score", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("unknown origin allowed: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	rr = httptest.NewRecorder()
	CORS(nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("empty list should allow any origin")
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
