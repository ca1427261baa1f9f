package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/gkeb/node4j/internal/compiler"
	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/identity"
	"github.com/gkeb/node4j/internal/model"
	"github.com/gkeb/node4j/internal/types"
)

// Create writes a new node and returns its instance. A uid is generated
// unless values carries a valid one. Declared defaults are applied, TTL
// kinds get an expiry of now plus their TTL, and soft delete kinds start
// with is_deleted false.
func (o *Objects) Create(ctx context.Context, values map[string]any) (*identity.Instance, error) {
	ctx, scope := o.enter(ctx, "create")

	props, err := o.newProps(values)
	if err != nil {
		return nil, err
	}
	if _, err := compiler.CompileCreate(o.kind, props); err != nil {
		return nil, err
	}

	var created *identity.Instance
	err = o.m.Atomic(ctx, func(ctx context.Context) error {
		inst := scope.Merge(ctx, o.kind, props[model.FieldUID].(string), "", props, false)
		if err := o.preSave(ctx, inst, true); err != nil {
			return err
		}
		fields := o.declared(inst.Fields())
		if err := o.validate(ctx, fields, false); err != nil {
			return err
		}
		stmt, err := compiler.CompileCreate(o.kind, fields)
		if err != nil {
			return err
		}
		res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
		if err != nil {
			return err
		}
		insts, err := o.hydrate(ctx, scope, res, true)
		if err != nil {
			return err
		}
		if len(insts) != 1 {
			return types.NewError(types.ErrCodeStatement, o.kind.Name+": create returned no node").WithQuery(stmt.Text)
		}
		created = insts[0]
		return o.postSave(ctx, insts, true)
	})
	if err != nil {
		return nil, err
	}

	o.m.logger.DebugContext(ctx, "node created", "kind", o.kind.Name, "uid", created.UID())
	return created, nil
}

// BulkCreate writes one node per row with a single statement and returns
// the instances in row order.
func (o *Objects) BulkCreate(ctx context.Context, rows []map[string]any) ([]*identity.Instance, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ctx, scope := o.enter(ctx, "bulk_create")

	batch := make([]map[string]any, len(rows))
	for i, row := range rows {
		props, err := o.newProps(row)
		if err != nil {
			return nil, err
		}
		batch[i] = props
	}
	if _, err := compiler.CompileBulkCreate(o.kind, batch); err != nil {
		return nil, err
	}

	var created []*identity.Instance
	err := o.m.Atomic(ctx, func(ctx context.Context) error {
		fields := make([]map[string]any, len(batch))
		for i, props := range batch {
			inst := scope.Merge(ctx, o.kind, props[model.FieldUID].(string), "", props, false)
			if err := o.preSave(ctx, inst, true); err != nil {
				return err
			}
			fields[i] = o.declared(inst.Fields())
			if err := o.validate(ctx, fields[i], false); err != nil {
				return err
			}
		}
		stmt, err := compiler.CompileBulkCreate(o.kind, fields)
		if err != nil {
			return err
		}
		res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
		if err != nil {
			return err
		}
		insts, err := o.hydrate(ctx, scope, res, true)
		if err != nil {
			return err
		}
		if len(insts) != len(batch) {
			return types.NewError(types.ErrCodeStatement,
				fmt.Sprintf("%s: bulk create returned %d of %d nodes", o.kind.Name, len(insts), len(batch))).WithQuery(stmt.Text)
		}
		created = insts
		return o.postSave(ctx, insts, true)
	})
	if err != nil {
		return nil, err
	}

	o.m.logger.DebugContext(ctx, "nodes created", "kind", o.kind.Name, "count", len(created))
	return created, nil
}

// Update merges data into every node matching pred and returns how many
// were updated. Kinds with hooks load the matches first so PreSave can see
// and amend each instance.
func (o *Objects) Update(ctx context.Context, pred filter.Predicate, data map[string]any) (int, error) {
	if pred == nil {
		return 0, types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": update requires a filter")
	}
	if len(data) == 0 {
		return 0, nil
	}
	ctx, scope := o.enter(ctx, "update")

	qo := o.options(nil)
	qo.Update = data
	stmt, err := o.m.compiler.Compile(o.kind, pred, qo)
	if err != nil {
		return 0, err
	}
	if err := o.validate(ctx, data, true); err != nil {
		return 0, err
	}

	var updated int
	err = o.m.Atomic(ctx, func(ctx context.Context) error {
		if o.kind.Hooks == nil {
			res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
			if err != nil {
				return err
			}
			insts, err := o.hydrate(ctx, scope, res, true)
			updated = len(insts)
			return err
		}

		insts, err := o.MatchAll(ctx, pred)
		if err != nil || len(insts) == 0 {
			return err
		}
		for _, inst := range insts {
			for k, v := range data {
				inst.Set(k, v)
			}
		}
		n, err := o.saveAll(ctx, scope, insts)
		updated = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Save writes the current fields of inst, running the save hooks.
func (o *Objects) Save(ctx context.Context, inst *identity.Instance) error {
	if err := o.checkInstance(inst); err != nil {
		return err
	}
	ctx, scope := o.enter(ctx, "save")
	if own := inst.Scope(); own != nil {
		scope = own
	}
	return o.m.Atomic(ctx, func(ctx context.Context) error {
		n, err := o.saveAll(ctx, scope, []*identity.Instance{inst})
		if err == nil && n == 0 {
			return types.NewNotFoundError(o.kind.Name).WithContext("uid", inst.UID())
		}
		return err
	})
}

// saveAll runs PreSave on insts, writes their declared fields in one
// statement keyed by uid and queues PostSave.
func (o *Objects) saveAll(ctx context.Context, scope *identity.Scope, insts []*identity.Instance) (int, error) {
	rows := make([]map[string]any, len(insts))
	for i, inst := range insts {
		identity.Track(ctx, inst)
		if err := o.preSave(ctx, inst, false); err != nil {
			return 0, err
		}
		row := o.declared(inst.Fields())
		if err := o.validate(ctx, row, true); err != nil {
			return 0, err
		}
		row[model.FieldUID] = inst.UID()
		rows[i] = row
	}

	stmt, err := compiler.CompileBulkUpdate(o.kind, model.FieldUID, rows, compiler.Options{IncludeDeleted: true})
	if err != nil {
		return 0, err
	}
	res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
	if err != nil {
		return 0, err
	}
	saved, err := o.hydrate(ctx, scope, res, true)
	if err != nil {
		return 0, err
	}
	return len(saved), o.postSave(ctx, saved, false)
}

// BulkUpdate updates many nodes with a single statement. Each row is
// matched on its matchOn field (uid when empty); its other keys are
// merged into the node. Rows that match nothing are skipped. It returns
// the number of updated nodes.
func (o *Objects) BulkUpdate(ctx context.Context, matchOn string, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if matchOn == "" {
		matchOn = model.FieldUID
	}
	ctx, scope := o.enter(ctx, "bulk_update")

	stmt, err := compiler.CompileBulkUpdate(o.kind, matchOn, rows, o.options(nil))
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if err := o.validate(ctx, row, true); err != nil {
			return 0, err
		}
	}

	var updated int
	err = o.m.Atomic(ctx, func(ctx context.Context) error {
		if o.kind.Hooks == nil {
			res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
			if err != nil {
				return err
			}
			insts, err := o.hydrate(ctx, scope, res, true)
			updated = len(insts)
			return err
		}

		keys := make([]any, len(rows))
		for i, row := range rows {
			keys[i] = row[matchOn]
		}
		found, err := o.MatchAll(ctx, filter.Field(matchOn, filter.In, keys))
		if err != nil {
			return err
		}
		byKey := make(map[string][]*identity.Instance, len(found))
		for _, inst := range found {
			v, _ := inst.Get(matchOn)
			k := fmt.Sprint(v)
			byKey[k] = append(byKey[k], inst)
		}

		var insts []*identity.Instance
		seen := make(map[string]bool, len(found))
		for _, row := range rows {
			group := byKey[fmt.Sprint(row[matchOn])]
			if len(group) == 0 {
				o.m.logger.WarnContext(ctx, "bulk update row matched no node",
					"kind", o.kind.Name, "match_on", matchOn, "key", row[matchOn])
				continue
			}
			for _, inst := range group {
				for k, v := range row {
					if k != matchOn {
						inst.Set(k, v)
					}
				}
				if !seen[inst.UID()] {
					seen[inst.UID()] = true
					insts = append(insts, inst)
				}
			}
		}
		if len(insts) == 0 {
			return nil
		}
		n, err := o.saveAll(ctx, scope, insts)
		updated = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Delete removes every node matching pred together with its edges and
// returns how many were removed.
func (o *Objects) Delete(ctx context.Context, pred filter.Predicate) (int, error) {
	if pred == nil {
		return 0, types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": delete requires a filter")
	}
	ctx, _ = o.enter(ctx, "delete")

	stmt, err := o.m.compiler.CompileDelete(o.kind, pred, o.options(nil))
	if err != nil {
		return 0, err
	}

	var deleted int
	err = o.m.Atomic(ctx, func(ctx context.Context) error {
		if o.kind.Hooks == nil {
			res, err := o.m.coord.Run(ctx, stmt.Text, stmt.Params)
			if err != nil {
				return err
			}
			deleted = len(res.Records)
			return nil
		}

		insts, err := o.MatchAll(ctx, pred)
		if err != nil || len(insts) == 0 {
			return err
		}
		uids := make([]string, len(insts))
		for i, inst := range insts {
			if err := o.preDelete(ctx, inst); err != nil {
				return err
			}
			uids[i] = inst.UID()
		}
		byUID := compiler.CompileDeleteByUID(o.kind, uids)
		res, err := o.m.coord.Run(ctx, byUID.Text, byUID.Params)
		if err != nil {
			return err
		}
		deleted = len(res.Records)
		return o.postDelete(ctx, insts)
	})
	if err != nil {
		return 0, err
	}

	o.m.logger.DebugContext(ctx, "nodes deleted", "kind", o.kind.Name, "count", deleted)
	return deleted, nil
}

// GetOrCreate returns the node matching lookups, creating it from the
// equality lookups and defaults when none exists. The match and the
// create run in one transaction.
func (o *Objects) GetOrCreate(ctx context.Context, lookups, defaults map[string]any) (*identity.Instance, bool, error) {
	pred := filter.Where(lookups)
	if pred == nil {
		return nil, false, types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": get_or_create requires lookups")
	}
	ctx, _ = o.enter(ctx, "get_or_create")

	var inst *identity.Instance
	var created bool
	err := o.m.Atomic(ctx, func(ctx context.Context) error {
		found, err := o.MatchOne(ctx, pred)
		if err == nil {
			inst = found
			return nil
		}
		if !types.IsNotFound(err) {
			return err
		}
		inst, err = o.Create(ctx, createData(lookups, defaults))
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return inst, created, nil
}

// UpdateOrCreate updates the node matching lookups with defaults, or
// creates it from the equality lookups and defaults when none exists.
func (o *Objects) UpdateOrCreate(ctx context.Context, lookups, defaults map[string]any) (*identity.Instance, bool, error) {
	pred := filter.Where(lookups)
	if pred == nil {
		return nil, false, types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": update_or_create requires lookups")
	}
	ctx, _ = o.enter(ctx, "update_or_create")

	var inst *identity.Instance
	var created bool
	err := o.m.Atomic(ctx, func(ctx context.Context) error {
		found, err := o.MatchOne(ctx, pred)
		switch {
		case err == nil:
			inst = found
			_, err = o.Update(ctx, filter.Field(model.FieldUID, filter.Eq, found.UID()), defaults)
			return err
		case types.IsNotFound(err):
			inst, err = o.Create(ctx, createData(lookups, defaults))
			created = err == nil
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return inst, created, nil
}

// createData keeps the plain equality lookups and overlays defaults.
func createData(lookups, defaults map[string]any) map[string]any {
	data := make(map[string]any, len(lookups)+len(defaults))
	for k, v := range lookups {
		path, op := filter.ParseLookup(k)
		if op == filter.Eq && !strings.Contains(path, ".") {
			data[path] = v
		}
	}
	for k, v := range defaults {
		data[k] = v
	}
	return data
}

// newProps copies values and fills uid, defaults and capability fields.
func (o *Objects) newProps(values map[string]any) (map[string]any, error) {
	props := make(map[string]any, len(values)+3)
	for k, v := range values {
		props[k] = v
	}

	uid := types.NewUID()
	if raw, ok := props[model.FieldUID]; ok {
		s, _ := raw.(string)
		parsed, err := types.ParseUID(s)
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInvalidArgument, o.kind.Name+": invalid uid", err)
		}
		uid = parsed
	}
	props[model.FieldUID] = uid

	o.kind.ApplyDefaults(props)
	if o.kind.SoftDelete {
		if _, ok := props[model.FieldIsDeleted]; !ok {
			props[model.FieldIsDeleted] = false
		}
	}
	if o.kind.TTL != nil {
		if _, ok := props[model.FieldTTL]; !ok {
			props[model.FieldTTL] = o.m.clock().Add(*o.kind.TTL)
		}
	}
	return props, nil
}

// declared drops keys that are not fields of the kind, such as
// properties written by other clients.
func (o *Objects) declared(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if _, ok := o.kind.Field(k); ok {
			out[k] = v
		}
	}
	return out
}

func (o *Objects) validate(ctx context.Context, values map[string]any, partial bool) error {
	if o.m.schema == nil {
		return nil
	}
	return o.m.schema.Validate(ctx, o.kind.Name, o.kind.Fields, values, partial)
}

func (o *Objects) checkInstance(inst *identity.Instance) error {
	if inst == nil || inst.UID() == "" {
		return types.NewError(types.ErrCodeInvalidArgument, o.kind.Name+": instance is not saved")
	}
	if inst.Kind().Name != o.kind.Name {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("%s: instance is a %s", o.kind.Name, inst.Kind().Name))
	}
	return nil
}
