package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionManager_IssueAndVerify(t *testing.T) {
	m, err := NewSessionManager("test-secret", 0)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if m.MaxAge() != 24*time.Hour {
		t.Errorf("Expected default max age of 24h, got %v", m.MaxAge())
	}

	token, expires, err := m.Issue(&User{ID: "g-123", Email: "doctor@clinic.tw", Name: "林醫師"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if time.Until(expires) <= 23*time.Hour {
		t.Errorf("Unexpected expiry %v", expires)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	user := claims.User()
	if user.ID != "g-123" || user.Email != "doctor@clinic.tw" || user.Name != "林醫師" {
		t.Errorf("Unexpected user %+v", user)
	}
}

func TestSessionManager_Rejects(t *testing.T) {
	m, _ := NewSessionManager("test-secret", time.Hour)
	other, _ := NewSessionManager("other-secret", time.Hour)

	token, _, err := m.Issue(&User{Email: "doctor@clinic.tw"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	t.Run("different secret", func(t *testing.T) {
		if _, err := other.Verify(token); err == nil {
			t.Error("Expected signature error")
		}
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token, ".")
		parts[1] = parts[1][:len(parts[1])-2] + "xx"
		if _, err := m.Verify(strings.Join(parts, ".")); err == nil {
			t.Error("Expected tampered token to fail")
		}
	})

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		if _, err := m.Verify(token); err == nil {
			t.Error("Expected expired token to fail")
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{Email: "x@y.z"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := m.Verify(unsigned); err == nil {
			t.Error("Expected unsigned token to fail")
		}
	})

	t.Run("no email", func(t *testing.T) {
		if _, _, err := m.Issue(&User{ID: "1"}); err == nil {
			t.Error("Expected Issue to require an email")
		}
	})
}

func TestNewSessionManager_EmptySecret(t *testing.T) {
	if _, err := NewSessionManager("", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}
