// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"

	"github.com/openchoreo/statepatch/internal/host"
	"github.com/openchoreo/statepatch/internal/store"
)

// serviceDeps is a service together with the resources it holds open.
type serviceDeps struct {
	service *host.Service
	store   *store.Store
}

func (d *serviceDeps) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

// newService builds a host service from the configuration. The initial
// document is read from state.file, else the latest stored snapshot, else
// it is empty. sinks are published to before the store sink.
func (a *app) newService(ctx context.Context, sinks ...host.ResultSink) (*serviceDeps, error) {
	coercer, err := a.coercer()
	if err != nil {
		return nil, err
	}

	deps := &serviceDeps{}
	var initial any
	if a.cfg.State.File != "" {
		if initial, err = a.readDocument(a.cfg.State.File); err != nil {
			return nil, err
		}
	}

	if a.cfg.Store.Enabled {
		st, err := store.Open(a.cfg.Store.Path, store.Options{History: a.cfg.Store.History},
			a.logger.With("component", "store"))
		if err != nil {
			return nil, err
		}
		deps.store = st
		if initial == nil {
			latest, ok, err := st.Latest(ctx)
			if err != nil {
				return nil, errors.Join(err, st.Close())
			}
			if ok {
				a.logger.Info("Restored document from the latest snapshot", "path", a.cfg.Store.Path)
				initial = latest
			}
		}
		sinks = append(sinks, store.NewSink(st))
	}

	deps.service = host.NewService(host.ServiceConfig{
		Runner:  a.runner(),
		Coercer: coercer,
		Initial: initial,
		Sinks:   sinks,
		Logger:  a.logger,
	})
	return deps, nil
}
