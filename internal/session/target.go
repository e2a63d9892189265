package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vbook-dev/vbook/internal/endpoint"
	"github.com/vbook-dev/vbook/internal/project"
	"github.com/vbook-dev/vbook/internal/statestore"
	"github.com/vbook-dev/vbook/internal/wire"
)

// resolveTarget picks the runtime app address for p: an explicit override,
// then the remembered address, then the configured default, then the
// operator. Whatever is chosen is remembered for the project.
func (o *Orchestrator) resolveTarget(ctx context.Context, p *project.Project, override string) (endpoint.Target, error) {
	if strings.TrimSpace(override) != "" {
		return o.rememberTarget(ctx, p, override)
	}

	stored, ok, err := o.store.Get(ctx, p.Identity(), statestore.TargetKey)
	if err != nil {
		return endpoint.Target{}, err
	}
	if ok {
		target, err := endpoint.Parse(stored)
		if err == nil {
			return target, nil
		}
		o.logger.Warn("ignoring invalid remembered runtime app address", "value", stored, "err", err)
	}

	if strings.TrimSpace(o.defaultTarget) != "" {
		return o.rememberTarget(ctx, p, o.defaultTarget)
	}

	if o.prompt == nil {
		return endpoint.Target{}, ErrNoTarget
	}
	var previous error
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		answer, err := o.prompt(ctx, previous)
		if err != nil {
			return endpoint.Target{}, fmt.Errorf("read runtime app address: %w", err)
		}
		target, err := o.rememberTarget(ctx, p, answer)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, endpoint.ErrInvalidAddress) {
			return endpoint.Target{}, err
		}
		previous = err
	}
	return endpoint.Target{}, previous
}

func (o *Orchestrator) rememberTarget(ctx context.Context, p *project.Project, raw string) (endpoint.Target, error) {
	target, err := endpoint.Parse(raw)
	if err != nil {
		return endpoint.Target{}, err
	}
	if err := o.store.Set(ctx, p.Identity(), statestore.TargetKey, target.String()); err != nil {
		return endpoint.Target{}, fmt.Errorf("remember runtime app address: %w", err)
	}
	return target, nil
}

// resolveInput shapes the operator input for script, falling back to the
// last input remembered for it.
func (o *Orchestrator) resolveInput(ctx context.Context, p *project.Project, script string, raw *string) (wire.Input, error) {
	key := statestore.ParamsKey(script)
	if raw == nil {
		stored, _, err := o.store.Get(ctx, p.Identity(), key)
		if err != nil {
			return wire.Input{}, err
		}
		return wire.ParseInput(stored), nil
	}
	if err := o.store.Set(ctx, p.Identity(), key, *raw); err != nil {
		return wire.Input{}, fmt.Errorf("remember input for %s: %w", script, err)
	}
	return wire.ParseInput(*raw), nil
}
