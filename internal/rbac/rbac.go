package rbac

type Role string
type Action string

const (
	RoleAnonymous   Role = "anonymous"
	RoleContributor Role = "contributor"
	RoleModerator   Role = "moderator"
)

const (
	ActionRead     Action = "read"
	ActionSuggest  Action = "suggest"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleModerator:
		return true
	case RoleContributor:
		return action == ActionRead || action == ActionSuggest
	case RoleAnonymous:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAnonymous, RoleContributor, RoleModerator:
		return Role(role)
	default:
		return RoleAnonymous
	}
}

// RoleFor derives the role from the account flags carried on a session.
func RoleFor(authenticated, moderator bool) Role {
	switch {
	case !authenticated:
		return RoleAnonymous
	case moderator:
		return RoleModerator
	default:
		return RoleContributor
	}
}
