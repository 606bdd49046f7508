package config

import (
	"os"
	"strings"
)

// EnvValue resolves a configuration key against the process environment.
//
// Keys are written in the colon style used by application settings
// ("Mailbox:TenantId"). Hosting environments that cannot carry a colon in an
// environment variable name export the same key with a double underscore
// separator ("Mailbox__TenantId"). Precedence order:
//
//  1. the key exactly as given
//  2. the key with every ":" replaced by "__"
//
// The first variable that is set wins, even when its value is empty. When
// neither form is set, def is returned.
func EnvValue(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	if underscored := strings.ReplaceAll(key, ":", "__"); underscored != key {
		if v, ok := os.LookupEnv(underscored); ok {
			return v
		}
	}
	return def
}
