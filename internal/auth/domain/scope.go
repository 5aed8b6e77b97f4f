package domain

// ScopeDescriptions is the registered scope catalog. Keys are the only
// scopes a client may request; values are the human-readable lines shown
// on the consent screen.
var ScopeDescriptions = map[string]string{
	"openid":             "Issue an identity token for your account",
	"profile":            "View your name and profile details",
	"email":              "View your email address",
	"phone":              "View your phone number",
	"library:read":       "View the photos in your library",
	"library:append":     "Add new photos to your library",
	"library:edit":       "Edit photos in your library",
	"library:write":      "Add, edit and delete photos in your library",
	"library:share":      "Create shared links to your photos",
	"admin.users:read":   "List the user accounts on this server",
	"admin.users:invite": "Invite new users to this server",
	"admin.users:write":  "Create, edit and disable user accounts",
}

// ScopeRegistered reports whether s is part of the catalog.
func ScopeRegistered(s string) bool {
	_, ok := ScopeDescriptions[s]
	return ok
}

// ValidateScopes returns the first unregistered scope, or "" when all
// requested scopes are known.
func ValidateScopes(scopes []string) string {
	for _, s := range scopes {
		if !ScopeRegistered(s) {
			return s
		}
	}
	return ""
}

// HasScope reports whether granted contains want. Admin users bypass this
// check at the gate, not here.
func HasScope(granted []string, want string) bool {
	for _, s := range granted {
		if s == want {
			return true
		}
	}
	return false
}
