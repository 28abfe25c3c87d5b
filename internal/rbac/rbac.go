// Package rbac decides what a caller may do on a site.
package rbac

type Role string
type Action string

const (
	RoleVisitor    Role = "visitor"
	RoleCommenter  Role = "commenter"
	RoleOwner      Role = "owner"
	RoleSuperadmin Role = "superadmin"
)

const (
	ActionRead     Action = "read"
	ActionComment  Action = "comment"
	ActionLike     Action = "like"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

// Principal is the caller as seen by the HTTP layer. UserID is zero for
// anonymous callers.
type Principal struct {
	UserID       int64
	IsSuperadmin bool
	// SiteKey is set when the caller authenticated with the site's API key.
	SiteKey bool
}

// RoleOn resolves the principal's role on a site owned by ownerID.
func RoleOn(p Principal, ownerID int64) Role {
	switch {
	case p.IsSuperadmin:
		return RoleSuperadmin
	case p.SiteKey:
		return RoleOwner
	case p.UserID != 0 && p.UserID == ownerID:
		return RoleOwner
	case p.UserID != 0:
		return RoleCommenter
	default:
		return RoleVisitor
	}
}

// Can reports whether role may perform action. Guests may comment without a
// session, likes need one.
func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperadmin:
		return true
	case RoleOwner:
		return action != ActionAdmin
	case RoleCommenter:
		return action == ActionRead || action == ActionComment || action == ActionLike
	case RoleVisitor:
		return action == ActionRead || action == ActionComment
	default:
		return false
	}
}

// Trusted reports whether comments from role skip the moderation queue.
func Trusted(role Role) bool {
	return role == RoleOwner || role == RoleSuperadmin
}
