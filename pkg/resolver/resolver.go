// Package resolver sorts declared packages by what the vulnerability
// database knows about them.
package resolver

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/vulnscope/vulnscope/pkg/batch"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/osv"
	"github.com/vulnscope/vulnscope/pkg/types"
)

// Result partitions the input packages. Every package lands in exactly one
// of the three lists.
type Result struct {
	Vulnerable []types.Package
	NotFound   []types.Package
	Errored    []types.Package
}

func (r Result) Total() int {
	return len(r.Vulnerable) + len(r.NotFound) + len(r.Errored)
}

// ProgressFunc is called after each lookup group settles.
type ProgressFunc func(done, total int)

type Resolver struct {
	lookup    osv.Lookup
	batchSize int
	progress  ProgressFunc
	logger    *log.Logger
}

type Option func(*Resolver)

func WithBatchSize(size int) Option {
	return func(r *Resolver) {
		r.batchSize = size
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(r *Resolver) {
		r.progress = fn
	}
}

func New(lookup osv.Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:    lookup,
		batchSize: batch.DefaultSize,
		progress:  func(int, int) {},
		logger:    log.WithPrefix("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks every package up once. A failed lookup is logged and the
// package lands in Errored; the other lookups go on. If every lookup fails
// the database is treated as unreachable.
func (r *Resolver) Resolve(ctx context.Context, pkgs []types.Package) (Result, error) {
	var res Result
	if len(pkgs) == 0 {
		return res, nil
	}

	outcomes, err := batch.Settle(ctx, pkgs, r.batchSize, r.lookup.Query, batch.WithGroupDone(r.progress))
	if err != nil {
		return Result{}, xerrors.Errorf("dependency lookup interrupted: %w", err)
	}

	var lastErr error
	for i, o := range outcomes {
		pkg := pkgs[i]
		switch {
		case o.Err != nil:
			r.logger.Error("Lookup failed", log.Package(pkg.Name, pkg.Version), log.Err(o.Err))
			res.Errored = append(res.Errored, pkg)
			lastErr = o.Err
		case len(o.Value) == 0:
			res.NotFound = append(res.NotFound, pkg)
		default:
			pkg.Vulnerabilities = o.Value
			res.Vulnerable = append(res.Vulnerable, pkg)
		}
	}

	if len(res.Errored) == len(pkgs) {
		return res, &types.ConnectorError{
			Service: "osv",
			Msg:     "every dependency lookup failed",
			Err:     lastErr,
		}
	}

	r.logger.Info("Dependencies resolved",
		log.Int("vulnerable", len(res.Vulnerable)),
		log.Int("not_found", len(res.NotFound)),
		log.Int("errored", len(res.Errored)))
	return res, nil
}
