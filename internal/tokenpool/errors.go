package tokenpool

import "errors"

// ErrNoIdentitiesAvailable is returned by Acquire when the pool is empty or
// every entry is unusable (no refresh token).
var ErrNoIdentitiesAvailable = errors.New("tokenpool: no identities available")
