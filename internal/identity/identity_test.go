package identity

import (
	"strings"
	"testing"
)

func TestBuildIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user User
		want string
		ok   bool
	}{
		{
			name: "full name and role",
			user: User{ID: 38, FirstName: "Paul", LastName: "Smith", Role: "doctor"},
			want: "38_Paul-Smith_doctor",
			ok:   true,
		},
		{
			name: "whitespace inside segments is hyphenated",
			user: User{ID: 7, FirstName: "Mary Jane", LastName: "van Dyke", Role: "head nurse"},
			want: "7_Mary-Jane-van-Dyke_head-nurse",
			ok:   true,
		},
		{
			name: "username fallback",
			user: User{ID: 12, Username: "psmith", Role: "admin"},
			want: "12_psmith_admin",
			ok:   true,
		},
		{
			name: "email fallback",
			user: User{ID: 12, Email: "p@example.com"},
			want: "12_p@example.com_user",
			ok:   true,
		},
		{
			name: "synthetic name fallback",
			user: User{ID: 99},
			want: "99_user-99_user",
			ok:   true,
		},
		{
			name: "default role",
			user: User{ID: 3, FirstName: "Ann"},
			want: "3_Ann_user",
			ok:   true,
		},
		{
			name: "first name only",
			user: User{ID: 4, FirstName: "Bo", Role: "nurse"},
			want: "4_Bo_nurse",
			ok:   true,
		},
		{
			name: "no id",
			user: User{FirstName: "Paul", LastName: "Smith", Role: "doctor"},
			ok:   false,
		},
		{
			name: "negative id",
			user: User{ID: -1, Username: "ghost"},
			ok:   false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := BuildIdentifier(tc.user)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("identifier = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		identifier string
		want       int
		ok         bool
	}{
		{"38_Paul-Smith_doctor", 38, true},
		{"1_a_b", 1, true},
		{"abc_Paul_doctor", 0, false},
		{"0_Paul_doctor", 0, false},
		{"-2_Paul_doctor", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := UserID(tc.identifier)
		if got != tc.want || ok != tc.ok {
			t.Errorf("UserID(%q) = %d, %v; want %d, %v", tc.identifier, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUserName(t *testing.T) {
	t.Parallel()

	if name, ok := UserName("38_Paul-Smith_doctor"); !ok || name != "Paul Smith" {
		t.Fatalf("UserName = %q, %v; want %q, true", name, ok, "Paul Smith")
	}
	if _, ok := UserName("38"); ok {
		t.Fatal("expected ok=false for identifier without name segment")
	}
	if _, ok := UserName("38__doctor"); ok {
		t.Fatal("expected ok=false for empty name segment")
	}
}

func TestUserRole(t *testing.T) {
	t.Parallel()

	if role, ok := UserRole("38_Paul-Smith_doctor"); !ok || role != "doctor" {
		t.Fatalf("UserRole = %q, %v; want %q, true", role, ok, "doctor")
	}
	// Roles may contain underscores.
	if role, ok := UserRole("5_Ann_super_admin"); !ok || role != "super_admin" {
		t.Fatalf("UserRole = %q, %v; want %q, true", role, ok, "super_admin")
	}
	if _, ok := UserRole("5_Ann"); ok {
		t.Fatal("expected ok=false for identifier without role segment")
	}
}

func TestIsUserOnline(t *testing.T) {
	t.Parallel()

	online := []string{"38_Paul-Smith_doctor", "7_Ann_nurse", "garbage"}
	if !IsUserOnline(38, online) {
		t.Error("user 38 should be online")
	}
	if !IsUserOnline(7, online) {
		t.Error("user 7 should be online")
	}
	if IsUserOnline(12, online) {
		t.Error("user 12 should not be online")
	}
	if IsUserOnline(38, nil) {
		t.Error("empty set should report nobody online")
	}
	if IsUserOnline(38, []string{"41_Ann-Lee_nurse"}) {
		t.Error("user 38 should not match a set holding only user 41")
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	t.Parallel()

	identifier, ok := BuildIdentifier(User{ID: 38, FirstName: "Paul", LastName: "Smith", Role: "doctor"})
	if !ok || identifier != "38_Paul-Smith_doctor" {
		t.Fatalf("identifier = %q, %v", identifier, ok)
	}
	if id, ok := UserID(identifier); !ok || id != 38 {
		t.Fatalf("UserID = %d, %v", id, ok)
	}
	if !IsUserOnline(38, []string{identifier}) {
		t.Fatal("built identifier should report its own user online")
	}
}

func TestOnlineUserIDs(t *testing.T) {
	t.Parallel()

	ids := OnlineUserIDs([]string{"38_Paul_doctor", "7_Ann_nurse", "not-an-id", "38_Paul_doctor"})
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	for _, want := range []int{38, 7} {
		if _, ok := ids[want]; !ok {
			t.Errorf("missing id %d", want)
		}
	}
}

func TestNewDeviceID(t *testing.T) {
	t.Parallel()

	a := NewDeviceID()
	b := NewDeviceID()
	if !strings.HasPrefix(a, "go-") {
		t.Fatalf("device id %q missing platform prefix", a)
	}
	if strings.ContainsAny(a, " \t") {
		t.Fatalf("device id %q contains whitespace", a)
	}
	if a == b {
		t.Fatalf("device ids should be unique, got %q twice", a)
	}
}
