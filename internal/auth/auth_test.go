package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/capture-core/internal/infrastructure/config"
)

const testSecret = "test-secret-key-at-least-32-chars!"

var testRequester = Requester{ProcessID: 7, FrameID: 3, RequesterID: 1, Origin: "HTTPS://Example.com:443/path"}

// ─── Tokens ──────────────────────────────────────────────────────────

func TestRequesterToken_Roundtrip(t *testing.T) {
	token, err := IssueRequesterToken(testRequester, testSecret, 15)
	if err != nil {
		t.Fatalf("IssueRequesterToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Role != RoleRequester {
		t.Errorf("Role = %q, want %q", claims.Role, RoleRequester)
	}
	if claims.Subject != "frame:7:3" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.Requester == nil || claims.Requester.Origin != "https://example.com" {
		t.Fatalf("Requester = %+v, want normalised origin", claims.Requester)
	}
	id := claims.Requester.ID(42)
	if id.ProcessID != 7 || id.FrameID != 3 || id.RequesterID != 1 || id.PageRequestID != 42 {
		t.Errorf("ID() = %+v", id)
	}
	if claims.ID == "" {
		t.Error("token has no jti")
	}
}

func TestIssueRequesterToken_Rejects(t *testing.T) {
	tests := []struct {
		name string
		r    Requester
	}{
		{"opaque origin", Requester{ProcessID: 1}},
		{"file origin", Requester{ProcessID: 1, Origin: "file:///tmp/x"}},
		{"no process", Requester{Origin: "https://a.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := IssueRequesterToken(tt.r, testSecret, 15); !errors.Is(err, ErrInvalidRequester) {
				t.Errorf("error = %v, want ErrInvalidRequester", err)
			}
		})
	}
}

func TestOperatorToken_Roundtrip(t *testing.T) {
	token, err := IssueOperatorToken("desk", testSecret, 0)
	if err != nil {
		t.Fatalf("IssueOperatorToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Role != RoleOperator || claims.Requester != nil {
		t.Errorf("claims = %+v", claims)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 59*time.Minute || ttl > time.Hour {
		t.Errorf("default ttl = %v, want about an hour", ttl)
	}
}

func signRaw(t *testing.T, c Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func TestParseToken_Rejects(t *testing.T) {
	valid, _ := IssueOperatorToken("desk", testSecret, 15)
	base := registered("operator:desk", 15)
	expired := base
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", valid},
		{"garbage", "not.a.jwt"},
		{"expired", signRaw(t, Claims{RegisteredClaims: expired, Role: RoleOperator}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"unsigned", signRaw(t, Claims{RegisteredClaims: base, Role: RoleOperator}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"unknown role", signRaw(t, Claims{RegisteredClaims: base, Role: "admin"}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"requester without identity", signRaw(t, Claims{RegisteredClaims: base, Role: RoleRequester}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"operator with identity", signRaw(t, Claims{RegisteredClaims: base, Role: RoleOperator, Requester: &testRequester}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing subject", signRaw(t, Claims{Role: RoleOperator}, jwt.SigningMethodHS256, []byte(testSecret))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := testSecret
			if tt.name == "wrong secret" {
				secret = strings.Repeat("x", 40)
			}
			if _, err := ParseToken(tt.token, secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

// ─── Permissions ─────────────────────────────────────────────────────

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleRequester, PermCapture, true},
		{RoleRequester, PermDevicesRead, true},
		{RoleRequester, PermPromptDecide, false},
		{RoleRequester, PermTokenIssue, false},
		{RoleOperator, PermPromptDecide, true},
		{RoleOperator, PermPermissionManage, true},
		{RoleOperator, PermCapture, false},
		{"nobody", PermDevicesRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}

	perms := PermissionsForRole(RoleOperator)
	perms[0] = "mutated"
	if !HasPermission(RoleOperator, PermDevicesRead) {
		t.Error("PermissionsForRole returned the shared slice")
	}
	if PermissionsForRole("nobody") != nil {
		t.Error("unknown role has permissions")
	}
}

// ─── Passwords ───────────────────────────────────────────────────────

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q", hash)
	}

	ok, err := VerifyPassword("correct-horse", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v", ok, err)
	}

	other, _ := HashPassword("correct-horse")
	if other == hash {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdA$",
	} {
		if _, err := VerifyPassword("x", bad); !errors.Is(err, errBadHash) {
			t.Errorf("VerifyPassword(%q) error = %v, want errBadHash", bad, err)
		}
	}
}

func TestOperators_Authenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	ops := NewOperators([]config.OperatorConfig{
		{Username: "desk", PasswordHash: hash},
		{Username: "broken", PasswordHash: "not-a-hash"},
	})
	if ops.Len() != 2 {
		t.Errorf("Len() = %d", ops.Len())
	}

	tests := []struct {
		user, pass string
		want       error
	}{
		{"desk", "s3cret", nil},
		{"desk", "nope", ErrInvalidCredentials},
		{"ghost", "s3cret", ErrInvalidCredentials},
		{"broken", "anything", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		if err := ops.Authenticate(tt.user, tt.pass); !errors.Is(err, tt.want) {
			t.Errorf("Authenticate(%q) = %v, want %v", tt.user, err, tt.want)
		}
	}
}

// ─── Benchmarks ──────────────────────────────────────────────────────

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("correct-horse", hash) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseToken(b *testing.B) {
	token, err := IssueRequesterToken(testRequester, testSecret, 15)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseToken(token, testSecret) //nolint:errcheck // benchmark
	}
}
