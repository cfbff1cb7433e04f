package envutil

import (
	"fmt"
	"strings"
)

type EnvironmentError struct {
	msg string
}

func (e EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %s", e.msg)
}

// FromEnvironment converts an os.Environ() style list of KEY=VALUE strings
// into a map. Later entries override earlier ones, matching exec semantics.
func FromEnvironment(environ []string) (map[string]string, error) {
	env := map[string]string{}
	for _, entry := range environ {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			return nil, &EnvironmentError{msg: fmt.Sprintf("malformed environment entry: %s", entry)}
		}
		env[key] = value
	}
	return env, nil
}

// ToEnvironment is the inverse of FromEnvironment.
func ToEnvironment(env map[string]string) []string {
	environ := make([]string, 0, len(env))
	for key, value := range env {
		environ = append(environ, fmt.Sprintf("%s=%s", key, value))
	}
	return environ
}
