package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNotFound is returned by repositories for unknown service names.
var ErrNotFound = errors.New("service not found")

// Repository abstracts where service descriptors are loaded from
type Repository interface {
	Init(ctx context.Context) error
	LoadAll(ctx context.Context) ([]*Service, error)
	Get(ctx context.Context, name string) (*Service, error)
	Save(ctx context.Context, s *Service) error
}

// LoadOptions bounds the startup load.
type LoadOptions struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Load reads every descriptor from repo into reg, retrying transient
// repository failures with capped exponential backoff.
func Load(ctx context.Context, repo Repository, reg *Registry, opts LoadOptions) error {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}
	b := retry.NewExponential(opts.BaseDelay)
	b = retry.WithCappedDuration(opts.MaxDelay, b)
	b = retry.WithMaxRetries(opts.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		list, err := repo.LoadAll(ctx)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("load services: %w", err))
		}
		if len(list) == 0 {
			return errors.New("load services: no services configured")
		}
		for _, s := range list {
			s.ApplyDefaults()
			if err := s.Validate(); err != nil {
				return err
			}
		}
		reg.Set(list)
		return nil
	})
}
