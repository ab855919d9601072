package auth

import (
	"fmt"
	"strings"
)

// Scopes granted on repositories, matching the actions in the
// distribution resource-scope grammar.
const (
	ScopePull = "pull"
	ScopePush = "push"
)

// Challenger builds WWW-Authenticate challenge headers for 401
// responses.
type Challenger struct {
	Realm   string
	Service string
}

// Header returns the challenge for the given repository and scopes.
// With an empty repository the challenge carries no resource scope and
// simply invites the caller to authenticate.
func (c Challenger) Header(repository string, scopes []string) string {
	challenge := fmt.Sprintf("Bearer realm=%q,service=%q", c.Realm, c.Service)
	if repository != "" {
		challenge += fmt.Sprintf(",scope=%q",
			fmt.Sprintf("repository:%s:%s", repository, strings.Join(scopes, ",")))
	}
	return challenge
}
