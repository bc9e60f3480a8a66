package social

import "strings"

// Profile is the subset of provider details used to seed an account
type Profile struct {
	Email     string
	Name      string
	Username  string
	AvatarURL string
}

// ProfileFromDetails reads the common keys providers use for the same
// field, github reports "login" where OIDC reports "preferred_username".
func ProfileFromDetails(details map[string]any) Profile {
	return Profile{
		Email:     firstString(details, "email"),
		Name:      firstString(details, "name"),
		Username:  firstString(details, "username", "login", "preferred_username"),
		AvatarURL: firstString(details, "avatar_url", "picture"),
	}
}

// UsernameSource is the raw value an account username is derived from
func (p Profile) UsernameSource() string {
	if p.Username != "" {
		return p.Username
	}
	return p.Name
}

func firstString(details map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := details[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
