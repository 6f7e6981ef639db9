package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

// Account identifies the connected account a call is made for.
type Account struct {
	Key   string
	Email string
}

// Factory builds Google API services for connected accounts.
type Factory struct {
	tokens TokenProvider
	opts   []option.ClientOption

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewFactory creates a Factory. Extra options are appended to every
// service, which lets tests point the clients at a fake server.
func NewFactory(tokens TokenProvider, opts ...option.ClientOption) *Factory {
	return &Factory{
		tokens:   tokens,
		opts:     opts,
		limiters: make(map[string]*RateLimiter),
	}
}

func (f *Factory) options(ctx context.Context, acct Account) []option.ClientOption {
	opts := []option.ClientOption{option.WithTokenSource(NewTokenSource(ctx, f.tokens, acct.Key))}
	return append(opts, f.opts...)
}

// Gmail returns a Gmail service for acct.
func (f *Factory) Gmail(ctx context.Context, acct Account) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, f.options(ctx, acct)...)
	if err != nil {
		return nil, fmt.Errorf("gmail service for %s: %w", acct.Email, err)
	}
	return svc, nil
}

// Calendar returns a Calendar service for acct.
func (f *Factory) Calendar(ctx context.Context, acct Account) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, f.options(ctx, acct)...)
	if err != nil {
		return nil, fmt.Errorf("calendar service for %s: %w", acct.Email, err)
	}
	return svc, nil
}

// Drive returns a Drive service for acct.
func (f *Factory) Drive(ctx context.Context, acct Account) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, f.options(ctx, acct)...)
	if err != nil {
		return nil, fmt.Errorf("drive service for %s: %w", acct.Email, err)
	}
	return svc, nil
}

// People returns a People service for acct.
func (f *Factory) People(ctx context.Context, acct Account) (*people.Service, error) {
	svc, err := people.NewService(ctx, f.options(ctx, acct)...)
	if err != nil {
		return nil, fmt.Errorf("people service for %s: %w", acct.Email, err)
	}
	return svc, nil
}

// Limiter returns the rate limiter for acct on service.
func (f *Factory) Limiter(acct Account, service ServiceType) *RateLimiter {
	id := acct.Key + "/" + string(service)
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[id]
	if !ok {
		l = NewRateLimiter(service)
		f.limiters[id] = l
	}
	return l
}

// Call waits for the account's rate limiter, runs fn and classifies its
// error. A 429 backs the limiter off.
func (f *Factory) Call(ctx context.Context, acct Account, service ServiceType, fn func() error) error {
	l := f.Limiter(acct, service)
	if err := l.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if IsRateLimited(err) {
		l.RecordRateLimitError(RetryDelay(err))
	}
	return WrapError(err)
}
