// Package walker sanitizes nested item payloads against the caller's
// permissions. Outbound payloads lose every field the caller may not read;
// inbound payloads are rejected on the first field the caller may not write.
package walker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"datagate/internal/apperr"
	"datagate/internal/instrument"
	"datagate/internal/logger"
	"datagate/internal/matcher"
	"datagate/internal/metadata"
	"datagate/internal/metrics"
	"datagate/internal/permissions"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// deleteMarker flags an inbound object as a delete of the item it names.
const deleteMarker = "_delete"

type Options struct {
	// Action forces the action of the top-level items. Empty derives it
	// from the direction and the payload.
	Action permissions.Action
}

type Walker struct {
	Schema *metadata.SchemaOverview
	Rules  permissions.Resolver
	Access AccessChecker
	// Matcher evaluates rule filters against items without a stored row.
	Matcher *matcher.Matcher
	// Concurrency bounds the sibling permission checks in flight per node.
	Concurrency int
}

// walk is the state of one Walk call.
type walk struct {
	*Walker
	dir   Direction
	cache *Cache
	limit int
}

// Walk returns the sanitized payload. An outbound payload that sanitizes to
// nothing becomes an empty object, or nil for arrays.
func (w *Walker) Walk(ctx context.Context, payload any, collection string, dir Direction, opts Options) (out any, err error) {
	ctx, span := instrument.Start(ctx, "walker", "walker", string(dir))
	span.SetEntity(collection, "")
	defer func() {
		if err != nil {
			span.SetStatus("error")
		}
		span.End()
		metrics.Walks.WithLabelValues(string(dir), metrics.Result(err)).Inc()
	}()

	if dir != Inbound && dir != Outbound {
		return nil, apperr.UsageError(fmt.Sprintf("Unknown walk direction %q", dir))
	}
	if w.Schema.Collection(collection) == nil {
		return nil, apperr.UnknownCollectionError(collection)
	}
	wk := &walk{Walker: w, dir: dir, cache: NewCache(w.Access), limit: max(w.Concurrency, 1)}

	switch p := payload.(type) {
	case map[string]any:
		item, err := wk.object(ctx, collection, p, opts.Action)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return map[string]any{}, nil
		}
		return item, nil
	case []any:
		items, _, err := wk.items(ctx, collection, p, opts.Action)
		if err != nil {
			return nil, err
		}
		if dir == Outbound && len(items) == 0 && len(p) > 0 {
			return nil, nil
		}
		return items, nil
	}
	return nil, apperr.InvalidPayloadError(fmt.Sprintf("Payload for %q must be an object or an array", collection))
}

// items walks an array of related items. pruned reports that outbound
// sanitizing removed every element of a non-empty array.
func (w *walk) items(ctx context.Context, collection string, list []any, action permissions.Action) ([]any, bool, error) {
	out := make([]any, len(list))
	keep := make([]bool, len(list))
	err := w.fanOut(ctx, len(list), func(ctx context.Context, i int) error {
		v, ok, err := w.element(ctx, collection, list[i], action)
		out[i], keep[i] = v, ok
		return err
	})
	if err != nil {
		return nil, false, err
	}

	kept := make([]any, 0, len(list))
	for i, v := range out {
		if keep[i] {
			kept = append(kept, v)
		}
	}
	return kept, len(list) > 0 && len(kept) == 0, nil
}

// element walks one array entry: a nested item or a bare primary key.
func (w *walk) element(ctx context.Context, collection string, v any, action permissions.Action) (any, bool, error) {
	switch e := v.(type) {
	case map[string]any:
		item, err := w.object(ctx, collection, e, action)
		if err != nil || item == nil {
			return nil, false, err
		}
		return item, true, nil
	case nil:
		return nil, w.dir == Inbound, nil
	case []any:
		if w.dir == Outbound {
			return nil, false, nil
		}
		return nil, false, apperr.InvalidPayloadError(fmt.Sprintf("Nested array in %q is not a valid item", collection))
	}
	return w.reference(ctx, collection, v, action)
}

// reference checks a bare primary key. Inbound, the referenced item is
// updated to point at its new parent unless action says otherwise.
func (w *walk) reference(ctx context.Context, collection string, id any, action permissions.Action) (any, bool, error) {
	if w.Rules.IsAdmin() {
		return id, true, nil
	}
	if w.dir == Outbound {
		return id, len(w.Rules.RulesFor(collection, permissions.ActionRead)) > 0, nil
	}
	if action == "" {
		action = permissions.ActionUpdate
	}
	fields, err := w.cache.Fields(ctx, AccessKey{Collection: collection, Item: formatID(id), Action: action})
	if err != nil {
		return nil, false, err
	}
	if fields == nil {
		return nil, false, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to %s item %q in collection %q",
			action, formatID(id), collection))
	}
	return id, true, nil
}

// object walks one item. A nil result means outbound sanitizing left
// nothing of it.
func (w *walk) object(ctx context.Context, collection string, item map[string]any, forced permissions.Action) (map[string]any, error) {
	coll := w.Schema.Collection(collection)
	id, hasID := primaryKey(coll, item)
	action := w.action(item, hasID, forced)

	if action == permissions.ActionDelete {
		return w.delete(ctx, coll, item, id, hasID)
	}

	access, action, err := w.access(ctx, coll, item, id, hasID, action)
	if err != nil {
		return nil, err
	}
	if w.dir == Inbound {
		if access.Empty() {
			return nil, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to %s items in collection %q", action, collection))
		}
		if err := w.validate(collection, item, action); err != nil {
			return nil, err
		}
	}

	return w.fields(ctx, coll, item, access)
}

func (w *walk) action(item map[string]any, hasID bool, forced permissions.Action) permissions.Action {
	switch {
	case w.dir == Outbound:
		return permissions.ActionRead
	case forced != "":
		return forced
	case item[deleteMarker] == true:
		return permissions.ActionDelete
	case hasID:
		return permissions.ActionUpdate
	}
	return permissions.ActionCreate
}

// delete checks an inbound delete. The item may only name its primary key.
func (w *walk) delete(ctx context.Context, coll *metadata.Collection, item map[string]any, id string, hasID bool) (map[string]any, error) {
	if w.dir == Outbound {
		return nil, nil
	}
	for _, k := range sortedKeys(item) {
		if k != coll.PrimaryKey && k != deleteMarker {
			return nil, apperr.InvalidPayloadError(fmt.Sprintf("Delete of an item in %q cannot set field %q", coll.Name, k))
		}
	}
	if !hasID {
		return nil, apperr.InvalidPayloadError(fmt.Sprintf("Delete of an item in %q requires its primary key %q", coll.Name, coll.PrimaryKey))
	}
	if !w.Rules.IsAdmin() {
		fields, err := w.cache.Fields(ctx, AccessKey{Collection: coll.Name, Item: id, Action: permissions.ActionDelete})
		if err != nil {
			return nil, err
		}
		if fields == nil {
			return nil, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to delete item %q in collection %q", id, coll.Name))
		}
	}
	return item, nil
}

// access resolves the fields granted on item. Stored items are checked
// through the cache; items without a primary key are matched in memory.
// The returned action is the one access was granted for.
func (w *walk) access(ctx context.Context, coll *metadata.Collection, item map[string]any, id string, hasID bool, action permissions.Action) (permissions.FieldSet, permissions.Action, error) {
	if w.Rules.IsAdmin() {
		return permissions.FieldSetOf([]string{"*"}), action, nil
	}
	if !hasID {
		fs, err := w.inMemory(coll.Name, item, action)
		return fs, action, err
	}

	fields, err := w.cache.Fields(ctx, AccessKey{Collection: coll.Name, Item: id, Action: action})
	if err != nil {
		return permissions.FieldSet{}, action, err
	}
	if fields == nil && w.dir == Inbound && action == permissions.ActionUpdate {
		// Upsert: an update nobody may perform, usually of an item that
		// does not exist yet, is checked as a create.
		logger.Log.Debug("update denied, checking as create",
			zap.String("collection", coll.Name), zap.String("item", id))
		fs, err := w.inMemory(coll.Name, item, permissions.ActionCreate)
		return fs, permissions.ActionCreate, err
	}
	return permissions.FieldSetOf(fields), action, nil
}

// inMemory unions the fields of every rule whose filter matches item.
func (w *walk) inMemory(collection string, item map[string]any, action permissions.Action) (permissions.FieldSet, error) {
	metrics.AccessChecks.WithLabelValues(string(action), "memory").Inc()
	var granted permissions.FieldSet
	rules := w.Rules.RulesFor(collection, action)
	if len(rules) == 0 {
		return permissions.FieldSet{}, nil
	}
	for _, r := range rules {
		if !r.Unconditional() {
			match := w.Matcher.Match
			if w.dir == Outbound {
				// Outbound fragments may be partial.
				match = w.Matcher.MatchPresent
			}
			ok, err := match(r.Filter, item)
			if err != nil {
				return permissions.FieldSet{}, err
			}
			if !ok {
				continue
			}
		}
		granted = granted.Union(permissions.FieldSetOf(r.Fields))
	}
	return granted, nil
}

// validate checks item against the validation filters of the rules for
// action. Any rule without one, or any matching one, lets the item pass.
func (w *walk) validate(collection string, item map[string]any, action permissions.Action) error {
	if w.Rules.IsAdmin() || (action != permissions.ActionCreate && action != permissions.ActionUpdate) {
		return nil
	}
	rules := w.Rules.RulesFor(collection, action)
	if len(rules) == 0 {
		return nil
	}
	for _, r := range rules {
		if r.Validation == nil {
			return nil
		}
		ok, err := w.Matcher.Match(r.Validation, item)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperr.ForbiddenError(fmt.Sprintf("Item in collection %q failed validation for %s", collection, action))
}

type fieldTask struct {
	index int
	name  string
	value any
}

type fieldResult struct {
	value any
	keep  bool
}

// fields visits the item's fields in sorted order. Relations are walked
// concurrently; the error of the first field in order wins.
func (w *walk) fields(ctx context.Context, coll *metadata.Collection, item map[string]any, access permissions.FieldSet) (map[string]any, error) {
	names := sortedKeys(item)
	out := make(map[string]any, len(item))
	var tasks []fieldTask
	var syncErr error

	for i, name := range names {
		value := item[name]
		keep, relational, err := w.field(coll, name, value, access)
		if err != nil {
			syncErr = err
			break
		}
		if !keep {
			continue
		}
		if relational {
			tasks = append(tasks, fieldTask{index: i, name: name, value: value})
			continue
		}
		out[name] = value
	}

	results := make([]fieldResult, len(tasks))
	err := w.fanOut(ctx, len(tasks), func(ctx context.Context, i int) error {
		v, keep, err := w.relation(ctx, coll, item, tasks[i].name, tasks[i].value)
		results[i] = fieldResult{value: v, keep: keep}
		return err
	})
	if err != nil {
		return nil, err
	}
	if syncErr != nil {
		return nil, syncErr
	}

	for i, t := range tasks {
		if results[i].keep {
			out[t.name] = results[i].value
		}
	}
	if w.dir == Outbound && len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// field decides whether a field survives and whether it needs a relation
// walk. Inbound violations are errors; outbound ones drop the field.
func (w *walk) field(coll *metadata.Collection, name string, value any, access permissions.FieldSet) (keep, relational bool, err error) {
	if name == deleteMarker && w.dir == Inbound {
		if value != false {
			return false, false, apperr.InvalidPayloadError(fmt.Sprintf("%q is only valid on items to delete", deleteMarker))
		}
		return false, false, nil
	}

	f := coll.GetField(name)
	if f == nil {
		if w.dir == Inbound {
			return false, false, apperr.InvalidPayloadError(fmt.Sprintf("Unknown field %q in collection %q", name, coll.Name))
		}
		return false, false, nil
	}
	if w.dir == Outbound && f.IsConcealed() {
		return false, false, nil
	}

	// The primary key identifies an inbound item rather than writing it.
	if !access.Allows(name) && !(w.dir == Inbound && name == coll.PrimaryKey) {
		if w.dir == Inbound {
			return false, false, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to access field %q in collection %q", name, coll.Name))
		}
		return false, false, nil
	}

	_, kind := w.Schema.RelationInfo(coll.Name, name)
	if kind == "" {
		return true, false, nil
	}
	switch value.(type) {
	case map[string]any, []any:
		return true, true, nil
	}
	return true, false, nil
}

// fanOut runs fn for n indexes with at most w.limit in flight and returns
// the error of the lowest failing index.
func (w *walk) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(w.limit)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(item map[string]any) []string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func primaryKey(coll *metadata.Collection, item map[string]any) (string, bool) {
	v, ok := item[coll.PrimaryKey]
	if !ok || v == nil {
		return "", false
	}
	id := formatID(v)
	return id, id != ""
}

func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprint(v)
}
