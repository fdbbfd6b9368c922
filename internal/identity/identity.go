// Package identity derives and parses the opaque user-session identifiers
// exchanged with the real-time hub.
//
// An identifier has the shape "{id}_{name}_{role}", e.g.
// "38_Paul-Smith_doctor".  Whitespace inside the human-readable segments is
// normalized to hyphens so the composite stays a single unbroken token; the
// role segment may itself contain underscores.
package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// User is the subset of an authenticated user record the realtime layer
// consumes.  Zero values mean "not set".
type User struct {
	ID        int
	FirstName string
	LastName  string
	Username  string
	Email     string
	Role      string
}

// BuildIdentifier derives the user-session identifier for u.  It reports
// ok=false when the record carries no positive numeric id; without an id no
// identifier exists and no connection or registration may happen.
func BuildIdentifier(u User) (string, bool) {
	if u.ID <= 0 {
		return "", false
	}

	fullName := strings.TrimSpace(strings.Join(compact(u.FirstName, u.LastName), " "))
	name := fullName
	if name == "" {
		name = strings.TrimSpace(u.Username)
	}
	if name == "" {
		name = strings.TrimSpace(u.Email)
	}
	if name == "" {
		name = fmt.Sprintf("user-%d", u.ID)
	}

	role := strings.TrimSpace(u.Role)
	if role == "" {
		role = "user"
	}

	return fmt.Sprintf("%d_%s_%s", u.ID, hyphenate(name), hyphenate(role)), true
}

// UserID extracts the numeric user id from an identifier.  Malformed
// identifiers report ok=false, never panic.
func UserID(identifier string) (int, bool) {
	head, _, _ := strings.Cut(identifier, "_")
	id, err := strconv.Atoi(head)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// UserName extracts the display name segment, mapping hyphens back to
// spaces.
func UserName(identifier string) (string, bool) {
	parts := strings.Split(identifier, "_")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return strings.ReplaceAll(parts[1], "-", " "), true
}

// UserRole extracts the role segment.  Roles may contain underscores, so
// everything past the second separator belongs to the role.
func UserRole(identifier string) (string, bool) {
	parts := strings.SplitN(identifier, "_", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// IsUserOnline reports whether userID appears in the given set of online
// identifiers.  Identifiers that fail to parse are treated as not matching.
func IsUserOnline(userID int, online []string) bool {
	for _, identifier := range online {
		if id, ok := UserID(identifier); ok && id == userID {
			return true
		}
	}
	return false
}

// OnlineUserIDs collects the parseable numeric ids from a set of online
// identifiers.
func OnlineUserIDs(online []string) map[int]struct{} {
	ids := make(map[int]struct{}, len(online))
	for _, identifier := range online {
		if id, ok := UserID(identifier); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func hyphenate(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

func compact(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
