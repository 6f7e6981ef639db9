// Package google holds the shared plumbing for the per-account Google
// fetchers in the gmail, calendar, contacts and drive subpackages:
//   - a service factory building authenticated Gmail, Calendar, Drive and
//     People clients for one connected account
//   - a TokenSource adapter over the token manager
//   - error classification for common Google API failures (401, 403, 404, 429)
//   - per-account, per-service rate limiting
//
// Usage:
//
//	f := google.NewFactory(tokenManager)
//	svc, err := f.Gmail(ctx, google.Account{Key: key, Email: email})
package google
