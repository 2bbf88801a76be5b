package walker

import (
	"context"
	"fmt"
	"sort"

	"datagate/internal/apperr"
	"datagate/internal/metadata"
	"datagate/internal/permissions"
)

// Keys of the detailed one-to-many syntax and the action of their items.
var detailedActions = map[string]permissions.Action{
	"create": permissions.ActionCreate,
	"update": permissions.ActionUpdate,
	"delete": permissions.ActionDelete,
}

// relation walks the nested value of a relational field. keep is false when
// outbound sanitizing removed the whole relation.
func (w *walk) relation(ctx context.Context, coll *metadata.Collection, item map[string]any, name string, value any) (any, bool, error) {
	rel, kind := w.Schema.RelationInfo(coll.Name, name)
	switch kind {
	case metadata.KindM2O:
		return w.single(ctx, coll.Name, name, rel.RelatedCollection, value)

	case metadata.KindA2O:
		target, _ := item[rel.CollectionField()].(string)
		if target == "" || !rel.Allows(target) || w.Schema.Collection(target) == nil {
			return w.malformed(fmt.Sprintf("Field %q in collection %q needs a valid %q to name its collection",
				name, coll.Name, rel.CollectionField()))
		}
		return w.single(ctx, coll.Name, name, target, value)

	case metadata.KindO2M, metadata.KindO2A:
		return w.many(ctx, coll.Name, name, rel.Collection, value)
	}
	return value, true, nil
}

// malformed rejects an inbound payload and drops the outbound value.
func (w *walk) malformed(msg string) (any, bool, error) {
	if w.dir == Inbound {
		return nil, false, apperr.InvalidPayloadError(msg)
	}
	return nil, false, nil
}

// single walks the object behind a many-to-one field.
func (w *walk) single(ctx context.Context, collection, field, target string, value any) (any, bool, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return w.malformed(fmt.Sprintf("Field %q in collection %q takes a single item", field, collection))
	}
	out, err := w.object(ctx, target, obj, "")
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// many walks a one-to-many container: a plain array or the detailed
// {create, update, delete} object. Outbound, a container that pruning
// emptied is dropped; one that was empty already is kept.
func (w *walk) many(ctx context.Context, collection, field, child string, value any) (any, bool, error) {
	switch v := value.(type) {
	case []any:
		items, pruned, err := w.items(ctx, child, v, "")
		if err != nil || pruned {
			return nil, false, err
		}
		return items, true, nil

	case map[string]any:
		return w.detailed(ctx, collection, field, child, v)
	}
	return w.malformed(fmt.Sprintf("Field %q in collection %q takes an array of items", field, collection))
}

func (w *walk) detailed(ctx context.Context, collection, field, child string, container map[string]any) (any, bool, error) {
	keys := make([]string, 0, len(container))
	for k, v := range container {
		_, known := detailedActions[k]
		_, isList := v.([]any)
		if !known || !isList {
			if w.dir == Inbound {
				return nil, false, apperr.InvalidPayloadError(fmt.Sprintf(
					"Field %q in collection %q only accepts create, update and delete arrays, got %q", field, collection, k))
			}
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lists := make([][]any, len(keys))
	pruned := make([]bool, len(keys))
	err := w.fanOut(ctx, len(keys), func(ctx context.Context, i int) error {
		var err error
		lists[i], pruned[i], err = w.items(ctx, child, container[keys[i]].([]any), detailedActions[keys[i]])
		return err
	})
	if err != nil {
		return nil, false, err
	}

	out := make(map[string]any, len(keys))
	anyPruned, allEmpty := false, true
	for i, k := range keys {
		out[k] = lists[i]
		anyPruned = anyPruned || pruned[i]
		allEmpty = allEmpty && len(lists[i]) == 0
	}
	if w.dir == Outbound && (len(keys) == 0 || (anyPruned && allEmpty)) {
		return nil, false, nil
	}
	return out, true, nil
}
