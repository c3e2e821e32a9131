package refcheck

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// check is a single existence lookup.
type check struct {
	field    string
	refModel string
	target   model.Finder
	value    any
}

// checkAll runs every lookup concurrently and waits for all of them. Failures
// do not cancel siblings, so the reported error is always the first one in
// check order, independent of completion order.
func (v *Validator) checkAll(ctx context.Context, checks []check) error {
	errs := make([]error, len(checks))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, c := range checks {
		g.Go(func() error {
			errs[i] = v.checkOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkOne(ctx context.Context, c check) error {
	id, err := model.IDOf(c.value)
	if err != nil {
		return &model.StoreError{Field: c.field, Model: v.modelName, RefModel: c.refModel, Err: err}
	}

	doc, err := c.target.FindByID(ctx, id)
	if err != nil {
		return &model.StoreError{Field: c.field, Model: v.modelName, RefModel: c.refModel, ID: id, Err: err}
	}
	if doc == nil {
		return &model.MissingReferenceError{Field: c.field, Model: v.modelName, RefModel: c.refModel, ID: id}
	}

	v.logger.Debug("reference exists", "model", v.modelName, "field", c.field, "ref", c.refModel, "id", id)
	return nil
}
