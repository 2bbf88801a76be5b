// Package permissions holds the permission rules of every policy and turns
// the rules that apply to one caller into row filters ("cases") and field
// sets.
package permissions

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"datagate/internal/filter"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionShare  Action = "share"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionShare:
		return true
	}
	return false
}

// Rule grants one policy an action on a collection. Filter restricts the
// rows it applies to; a nil or empty filter applies to every row.
// Validation is checked against inbound payloads for create and update.
type Rule struct {
	ID         string
	Collection string
	Action     Action
	Policy     string
	Filter     filter.Node
	Validation filter.Node
	Fields     []string
}

// Unconditional reports whether the rule applies to every row.
func (r *Rule) Unconditional() bool {
	return filter.IsTrue(r.Filter)
}

type ruleJSON struct {
	ID          string          `json:"id,omitempty"`
	Collection  string          `json:"collection"`
	Action      Action          `json:"action"`
	Policy      string          `json:"policy"`
	Permissions json.RawMessage `json:"permissions,omitempty"`
	Validation  json.RawMessage `json:"validation,omitempty"`
	Fields      []string        `json:"fields"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return r.fromJSON(raw)
}

func (r *Rule) fromJSON(raw ruleJSON) error {
	rowFilter, err := filter.Parse(raw.Permissions)
	if err != nil {
		return errors.Wrapf(err, "permission %s.%s: filter", raw.Collection, raw.Action)
	}
	validation, err := filter.Parse(raw.Validation)
	if err != nil {
		return errors.Wrapf(err, "permission %s.%s: validation", raw.Collection, raw.Action)
	}
	*r = Rule{
		ID:         raw.ID,
		Collection: raw.Collection,
		Action:     raw.Action,
		Policy:     raw.Policy,
		Filter:     rowFilter,
		Validation: validation,
		Fields:     raw.Fields,
	}
	return nil
}

// Validate checks the fields a rule cannot work without.
func (r *Rule) Validate() error {
	if r.Collection == "" {
		return fmt.Errorf("permission %s: collection is required", r.ID)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("permission %s.%s: invalid action %q", r.Collection, r.ID, r.Action)
	}
	if r.Policy == "" {
		return fmt.Errorf("permission %s.%s: policy is required", r.Collection, r.Action)
	}
	return nil
}
