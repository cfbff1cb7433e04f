package sheets

import (
	"fmt"
)

const (
	TokenSourceFile       = "file"
	TokenSourceKubernetes = "k8s"
	TokenSourceOAuth      = "oauth"
)

type TokenSourceErr struct {
	msg string
}

func (t TokenSourceErr) Error() string {
	return fmt.Sprintf("TokenSourceErr: %s", t.msg)
}

// TokenSource interfaces implement the method to get an API access token.
type TokenSource interface {
	GetAccessToken() (string, error)
}
