package main

import (
	"context"
	"errors"
)

func (c *cli) runCleanup(ctx context.Context) error {
	store, err := openStore(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.log.Error("close store", "err", err)
		}
	}()

	m, err := newRetention(c.cfg, store, c.log)
	if err != nil {
		return err
	}
	deleted, ageErr := m.RunAge(ctx)
	triggered, sizeErr := m.RunSize(ctx)
	c.log.Info("cleanup finished", "deleted", deleted, "size_triggered", triggered)
	return errors.Join(ageErr, sizeErr)
}
