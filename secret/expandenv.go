package secret

import (
	"os"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

var envRefPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnvStrict substitutes $VAR and ${VAR} in s from the environment.
// An unset bare $VAR expands to "", an unset ${VAR} fails with ErrMissingEnv
// naming every such variable. $$ is a literal dollar sign.
func ExpandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	out := envRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "$$" {
			return "$"
		}
		if braced, ok := strings.CutPrefix(m, "${"); ok {
			name := strings.TrimSuffix(braced, "}")
			v, set := os.LookupEnv(name)
			if !set && !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return v
		}
		return os.Getenv(m[1:])
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", zerr.With(ErrMissingEnv, "vars", strings.Join(missing, ", "))
	}
	return out, nil
}
