package engine

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"datagate/internal/apperr"
	"datagate/internal/compiler"
	"datagate/internal/filter"
	"datagate/internal/instrument"
	"datagate/internal/logger"
	"datagate/internal/metadata"
	"datagate/internal/operators"
	"datagate/internal/permissions"
	"datagate/internal/store"
)

// ItemAccess answers which fields of one stored item a caller may use for
// an action. Rules is the caller's resolved rule set.
type ItemAccess struct {
	DB      store.Querier
	Dialect store.Dialect
	Schema  *metadata.SchemaOverview
	Rules   permissions.Resolver
}

// CheckFieldAccess returns the fields of item granted for action, ["*"] for
// every field, or nil when no rule grants access. An empty item asks at
// collection level and unions every rule's fields without a query.
func (a *ItemAccess) CheckFieldAccess(ctx context.Context, collection, item string, action permissions.Action) ([]string, error) {
	if a.Rules == nil {
		return nil, nil
	}
	if a.Rules.IsAdmin() {
		return []string{"*"}, nil
	}
	coll := a.Schema.Collection(collection)
	if coll == nil {
		return nil, apperr.UnknownCollectionError(collection)
	}

	rules := a.Rules.RulesFor(collection, action)
	if len(rules) == 0 {
		return nil, nil
	}
	if item == "" {
		return permissions.AllowedFields(rules).List(), nil
	}

	ctx, span := instrument.Start(ctx, "engine", "access", "check")
	defer span.End()
	span.SetEntity(collection, item)
	span.SetMetadata("action", string(action))

	pk, err := a.primaryKeyValue(coll, item)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	var granted permissions.FieldSet
	matched := false
	for _, r := range rules {
		fields := permissions.FieldSetOf(r.Fields)
		if matched && granted.Union(fields).Equal(granted) {
			continue
		}
		ok, err := a.matches(ctx, coll, pk, r)
		if err != nil {
			span.SetStatus("error")
			return nil, err
		}
		if !ok {
			continue
		}
		granted = granted.Union(fields)
		matched = true
		if granted.All() {
			break
		}
	}

	if !matched {
		return nil, nil
	}
	return granted.List(), nil
}

func (a *ItemAccess) primaryKeyValue(coll *metadata.Collection, item string) (any, error) {
	pkType := "string"
	if f := coll.PrimaryKeyField(); f != nil {
		pkType = f.Type
	}
	cmp, err := operators.Compare(pkType, "", "_eq", item)
	if err != nil {
		return nil, err
	}
	return cmp.Value, nil
}

// matches reports whether the stored item satisfies r's row filter.
func (a *ItemAccess) matches(ctx context.Context, coll *metadata.Collection, pk any, r *permissions.Rule) (bool, error) {
	cases := permissions.Access{State: permissions.Restricted, Filters: []filter.Node{r.Filter}}
	if r.Unconditional() {
		cases = permissions.Access{State: permissions.Unrestricted}
	}
	res, err := compiler.Compile(a.Schema, coll.Name, nil, cases, a.Rules)
	if err != nil {
		return false, err
	}

	pb := a.Dialect.NewParamBuilder()
	pkParam := pb.Add(pk)
	joins, where := Render(res, a.Dialect, pb)

	sql := fmt.Sprintf("SELECT 1 FROM %s", coll.Name)
	if joins != "" {
		sql += " " + joins
	}
	sql += fmt.Sprintf(" WHERE %s.%s = %s", coll.Name, coll.PrimaryKey, pkParam)
	if !compiler.IsConstant(res.Condition, true) {
		sql += " AND " + where
	}
	sql += " LIMIT 1"

	ok, err := store.Exists(ctx, a.DB, sql, pb.Params()...)
	if err != nil {
		logger.Log.Error("item access query failed",
			zap.String("collection", coll.Name), zap.String("rule", r.ID), zap.Error(err))
		return false, errors.Wrapf(err, "check %s access on %s", r.Action, coll.Name)
	}
	return ok, nil
}
