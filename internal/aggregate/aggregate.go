// Package aggregate fans a per-account fetch out over every connected
// account and merges the results.
package aggregate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/pysugar/command-center/internal/google"
	"golang.org/x/sync/errgroup"
)

// Failure records one account whose fetch failed.
type Failure struct {
	Account string `json:"account"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// Result is the merged output of one fan-out.
type Result[T any] struct {
	Items    []T       `json:"items"`
	Failures []Failure `json:"failures,omitempty"`
	Accounts int       `json:"-"`
}

// Options tune a fan-out.
type Options[T any] struct {
	// Limit bounds concurrent fetches; 0 means no bound.
	Limit int
	// Tag stamps an item with its owning account.
	Tag func(item *T, acct google.Account)
	// Less orders the merged items. Nil keeps account order.
	Less func(a, b T) bool
	// Label names the fetch in log lines.
	Label string
}

// Fetch returns one account's items.
type Fetch[T any] func(ctx context.Context, acct google.Account) ([]T, error)

// Run calls fetch for every account concurrently and waits for all of
// them to settle. A failing account contributes no items and a Failure;
// it never cancels the others. Items are merged in account order and then
// stably sorted, so ties keep that order.
func Run[T any](ctx context.Context, accounts []google.Account, fetch Fetch[T], opts Options[T]) Result[T] {
	start := time.Now()
	perAccount := make([][]T, len(accounts))
	errs := make([]error, len(accounts))

	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	for i, acct := range accounts {
		g.Go(func() error {
			items, err := safeFetch(ctx, fetch, acct)
			if err != nil {
				errs[i] = err
				return nil
			}
			if opts.Tag != nil {
				for j := range items {
					opts.Tag(&items[j], acct)
				}
			}
			perAccount[i] = items
			return nil
		})
	}
	g.Wait()

	res := Result[T]{Accounts: len(accounts), Failures: []Failure{}}
	for i, acct := range accounts {
		if errs[i] != nil {
			log.Printf("⚠️ %s fetch failed for %s: %v", label(opts), acct.Email, errs[i])
			res.Failures = append(res.Failures, Failure{Account: acct.Email, Error: errs[i].Error(), Err: errs[i]})
			continue
		}
		res.Items = append(res.Items, perAccount[i]...)
	}
	if res.Items == nil {
		res.Items = []T{}
	}
	if opts.Less != nil {
		sort.SliceStable(res.Items, func(a, b int) bool { return opts.Less(res.Items[a], res.Items[b]) })
	}
	if res.AllFailed() {
		log.Printf("❌ %s: every account failed", label(opts))
	}
	log.Printf("📦 %s: %d items from %d/%d accounts in %v", label(opts), len(res.Items), len(accounts)-len(res.Failures), len(accounts), time.Since(start).Round(time.Millisecond))
	return res
}

func label[T any](opts Options[T]) string {
	if opts.Label == "" {
		return "aggregate"
	}
	return opts.Label
}

// safeFetch turns a panicking fetch into an error so one account cannot
// take the request down.
func safeFetch[T any](ctx context.Context, fetch Fetch[T], acct google.Account) (items []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fetch(ctx, acct)
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("fetch panicked: %v", p.value)
}

// ByTimeDesc orders items newest first by the time key returns.
func ByTimeDesc[T any](key func(T) time.Time) func(a, b T) bool {
	return func(a, b T) bool { return key(a).After(key(b)) }
}

// ByTimeAsc orders items oldest first by the time key returns.
func ByTimeAsc[T any](key func(T) time.Time) func(a, b T) bool {
	return func(a, b T) bool { return key(a).Before(key(b)) }
}

// AllFailed reports whether there were accounts and every one failed.
func (r Result[T]) AllFailed() bool {
	return r.Accounts > 0 && len(r.Failures) == r.Accounts
}
