// Package auth implements the AuthGate contract: bearer-JWT, HTTP Basic,
// and session-cookie resolution down to a set of group memberships, plus
// the group-overlap check a Layer's access list is measured against.
// Grounded on the original source's auth.rs (User/Group/Auth) and
// services/utils.rs (validate_user_groups resolution order).
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

// User is an authenticated principal and the groups it belongs to.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Groups       []catalog.Group
}

// GroupsAsString joins the user's group names with " | ", mirroring
// catalog.Layer's equivalent display helper.
func (u *User) GroupsAsString() string {
	var s string
	for i, g := range u.Groups {
		if i > 0 {
			s += " | "
		}
		s += g.Name
	}
	return s
}

// IsAdmin reports whether the user belongs to the "admin" group.
func (u *User) IsAdmin() bool {
	for _, g := range u.Groups {
		if g.Name == "admin" {
			return true
		}
	}
	return false
}

// claims is the JWT payload minted by Provider.IssueToken and verified
// by Provider.authenticateBearer.
type claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

func newClaims(userID string, ttl time.Duration) claims {
	now := time.Now()
	return claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
