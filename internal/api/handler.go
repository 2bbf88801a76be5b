// Package api exposes the compiler, the payload walker and item access
// checks over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"datagate/internal/apperr"
	"datagate/internal/auth"
	"datagate/internal/compiler"
	"datagate/internal/engine"
	"datagate/internal/filter"
	"datagate/internal/matcher"
	"datagate/internal/metadata"
	"datagate/internal/metrics"
	"datagate/internal/permissions"
	"datagate/internal/store"
	"datagate/internal/walker"
)

type Handler struct {
	Registry *metadata.Registry
	Rules    *permissions.Store
	DB       store.Querier
	Dialect  store.Dialect
	Matcher  *matcher.Matcher
	// Concurrency bounds the item checks in flight per payload node.
	Concurrency int
	// Reload refreshes the schema and the permission rules. Nil disables
	// the reload route.
	Reload func(ctx context.Context) error
}

func NewHandler(reg *metadata.Registry, rules *permissions.Store, db *store.Store, concurrency int) *Handler {
	return &Handler{
		Registry:    reg,
		Rules:       rules,
		DB:          db.DB,
		Dialect:     db.Dialect,
		Matcher:     matcher.New(),
		Concurrency: concurrency,
	}
}

type queryRequest struct {
	Filter json.RawMessage `json:"filter"`
	Action string          `json:"action"`
	Fields []string        `json:"fields"`
	Sort   []string        `json:"sort"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// caller is the state every route resolves before doing work.
type caller struct {
	schema *metadata.SchemaOverview
	rules  *permissions.Set
}

func (h *Handler) caller(c *fiber.Ctx) (*caller, error) {
	acc := auth.GetAccountability(c)
	if acc == nil {
		return nil, apperr.UnauthorizedError("Authentication required")
	}
	return &caller{
		schema: h.Registry.Snapshot(),
		rules:  h.Rules.For(acc, time.Now()),
	}, nil
}

func (h *Handler) itemAccess(cl *caller) *engine.ItemAccess {
	return &engine.ItemAccess{DB: h.DB, Dialect: h.Dialect, Schema: cl.schema, Rules: cl.rules}
}

func (h *Handler) walker(cl *caller) *walker.Walker {
	return &walker.Walker{
		Schema:      cl.schema,
		Rules:       cl.rules,
		Access:      h.itemAccess(cl),
		Matcher:     h.Matcher,
		Concurrency: h.Concurrency,
	}
}

func parseAction(raw string, def permissions.Action) (permissions.Action, error) {
	if raw == "" {
		return def, nil
	}
	a := permissions.Action(strings.ToLower(raw))
	if !a.Valid() {
		return "", apperr.UsageError(fmt.Sprintf("Unknown action %q", raw))
	}
	return a, nil
}

// build compiles the request and renders the select and count queries.
func (h *Handler) build(cl *caller, collection string, req *queryRequest) (engine.QueryResult, engine.QueryResult, []string, error) {
	var none engine.QueryResult
	coll := cl.schema.Collection(collection)
	if coll == nil {
		return none, none, nil, apperr.UnknownCollectionError(collection)
	}
	action, err := parseAction(req.Action, permissions.ActionRead)
	if err != nil {
		return none, none, nil, err
	}

	userFilter, err := filter.Parse(req.Filter)
	if err != nil {
		return none, none, nil, err
	}

	rules := cl.rules.RulesFor(collection, action)
	res, err := compiler.Compile(cl.schema, collection, userFilter, permissions.BuildCases(rules), cl.rules)
	metrics.Compilations.WithLabelValues(collection, metrics.Result(err)).Inc()
	if err != nil {
		return none, none, nil, err
	}

	fields, err := selectFields(coll, permissions.AllowedFields(rules), req.Fields)
	if err != nil {
		return none, none, nil, err
	}
	readable := permissions.AllowedFields(cl.rules.RulesFor(collection, permissions.ActionRead))
	sort, err := parseSort(coll, readable, req.Sort)
	if err != nil {
		return none, none, nil, err
	}

	q := engine.BuildSelectSQL(res, fields, h.Dialect, engine.SelectOptions{Sort: sort, Limit: req.Limit, Offset: req.Offset})
	return q, engine.BuildCountSQL(res, h.Dialect), fields, nil
}

// selectFields returns the stored columns to select. Requested fields must
// be columns the caller may use; without a request every allowed column is
// selected.
func selectFields(coll *metadata.Collection, allowed permissions.FieldSet, requested []string) ([]string, error) {
	if len(requested) == 0 {
		var fields []string
		for _, name := range coll.ColumnNames() {
			if allowed.Allows(name) {
				fields = append(fields, name)
			}
		}
		if len(fields) == 0 {
			fields = []string{coll.PrimaryKey}
		}
		return fields, nil
	}

	for _, name := range requested {
		f := coll.GetField(name)
		if f == nil || f.IsAlias() {
			return nil, apperr.ValidationError(fmt.Sprintf("Field %q is not a column of %q", name, coll.Name))
		}
		if !allowed.Allows(name) {
			return nil, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to access field %q of %q", name, coll.Name))
		}
	}
	return requested, nil
}

// parseSort reads "field" and "-field" entries. Row order reveals values,
// so only readable, unconcealed fields sort.
func parseSort(coll *metadata.Collection, readable permissions.FieldSet, raw []string) ([]engine.OrderClause, error) {
	var out []engine.OrderClause
	for _, s := range raw {
		dir := "ASC"
		if strings.HasPrefix(s, "-") {
			dir = "DESC"
			s = s[1:]
		}
		f := coll.GetField(s)
		if f == nil || f.IsAlias() {
			return nil, apperr.ValidationError(fmt.Sprintf("Cannot sort by %q", s))
		}
		if f.IsConcealed() || !readable.Allows(s) {
			return nil, apperr.ForbiddenError(fmt.Sprintf("You don't have permission to sort by field %q of %q", s, coll.Name))
		}
		out = append(out, engine.OrderClause{Field: s, Dir: dir})
	}
	return out, nil
}

// Compile handles POST /compile/:collection and returns the SQL without
// running it.
func (h *Handler) Compile(c *fiber.Ctx) error {
	cl, err := h.caller(c)
	if err != nil {
		return err
	}
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidPayloadError("Invalid JSON body")
	}

	q, count, fields, err := h.build(cl, c.Params("collection"), &req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"sql":          q.SQL,
		"params":       q.Params,
		"count_sql":    count.SQL,
		"count_params": count.Params,
		"fields":       fields,
	}})
}

// Query handles POST /query/:collection: it runs the compiled select and
// sanitizes the rows before returning them.
func (h *Handler) Query(c *fiber.Ctx) error {
	cl, err := h.caller(c)
	if err != nil {
		return err
	}
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidPayloadError("Invalid JSON body")
	}
	collection := c.Params("collection")
	// Rows and totals are read results whatever action filtered them.
	action, err := parseAction(req.Action, permissions.ActionRead)
	if err != nil {
		return err
	}
	if action != permissions.ActionRead {
		return apperr.UsageError(fmt.Sprintf("Query runs read filters only, got action %q", action))
	}

	q, count, _, err := h.build(cl, collection, &req)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	rows, err := store.QueryRows(ctx, h.DB, q.SQL, q.Params...)
	if err != nil {
		return err
	}
	total, err := store.QueryRow(ctx, h.DB, count.SQL, count.Params...)
	if err != nil {
		return err
	}

	items := make([]any, len(rows))
	for i, r := range rows {
		items[i] = r
	}
	out, err := h.walker(cl).Walk(ctx, items, collection, walker.Outbound, walker.Options{})
	if err != nil {
		return err
	}
	if out == nil {
		out = []any{}
	}

	var totalCount any
	for _, v := range total {
		totalCount = v
	}
	return c.JSON(fiber.Map{"data": out, "meta": fiber.Map{"total": totalCount}})
}

// Sanitize handles POST /sanitize/:collection?direction=&action=.
func (h *Handler) Sanitize(c *fiber.Ctx) error {
	cl, err := h.caller(c)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return apperr.InvalidPayloadError("Invalid JSON body")
	}
	action, err := parseAction(c.Query("action"), "")
	if err != nil {
		return err
	}
	dir := walker.Direction(c.Query("direction", string(walker.Inbound)))

	out, err := h.walker(cl).Walk(c.UserContext(), payload, c.Params("collection"), dir, walker.Options{Action: action})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": out})
}

// Access handles GET /access/:collection and /access/:collection/:item.
func (h *Handler) Access(c *fiber.Ctx) error {
	cl, err := h.caller(c)
	if err != nil {
		return err
	}
	action, err := parseAction(c.Query("action"), permissions.ActionRead)
	if err != nil {
		return err
	}

	fields, err := h.itemAccess(cl).CheckFieldAccess(c.UserContext(), c.Params("collection"), c.Params("item"), action)
	if err != nil {
		return err
	}
	if fields == nil {
		fields = []string{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"action": action, "fields": fields}})
}

// ReloadMetadata handles POST /admin/reload.
func (h *Handler) ReloadMetadata(c *fiber.Ctx) error {
	if err := h.Reload(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"schema": h.Registry.Fingerprint()}})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "schema": h.Registry.Fingerprint()})
}
