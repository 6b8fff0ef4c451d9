package auth

import (
	"context"
	"net/http"
)

// Authorizer attaches the bearer credential to outgoing requests. It is
// installed as the API client's authorize hook; the authenticate and refresh
// calls bypass it.
type Authorizer struct {
	store *TokenStore
}

func NewAuthorizer(store *TokenStore) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize renews the credential when needed and sets the Authorization
// header. Renewal failures, including ErrRenewalInProgress, fail the request
// without retrying.
func (a *Authorizer) Authorize(ctx context.Context, req *http.Request) error {
	cred, err := a.store.EnsureAuthorized(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Access)
	return nil
}
