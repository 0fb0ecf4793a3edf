package identity

import (
	"errors"
	"net/http"

	"github.com/wtxsocial/chatcore/internal/types"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Provider resolves the authenticated principal for a request. The chat
// core never mints credentials itself; tokens come from the platform's
// account service.
type Provider interface {
	PrincipalFromRequest(r *http.Request) (types.Principal, error)
}
