package permissions

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"datagate/internal/filter"
	"datagate/internal/metadata"
)

// Resolver returns the rules that apply to one caller.
type Resolver interface {
	RulesFor(collection string, action Action) []*Rule
	IsAdmin() bool
}

// Store holds every rule of every policy. It is safe for concurrent use;
// Load replaces the whole set.
type Store struct {
	mu    sync.RWMutex
	rules []*Rule
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(rules []*Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return errors.Wrap(err, "load permissions")
		}
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	return nil
}

// Rules returns the loaded rules. The slice must not be modified.
func (s *Store) Rules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// For selects the rules of acc's policies and resolves their dynamic
// variables. It performs no I/O.
func (s *Store) For(acc *metadata.Accountability, now time.Time) *Set {
	if acc.IsAdmin() {
		return &Set{admin: true}
	}

	set := &Set{rules: make(map[ruleKey][]*Rule)}
	for _, r := range s.Rules() {
		if !acc.HasPolicy(r.Policy) {
			continue
		}
		resolved := *r
		if r.Filter != nil {
			resolved.Filter = filter.ResolveVariables(r.Filter, acc, now)
		}
		if r.Validation != nil {
			resolved.Validation = filter.ResolveVariables(r.Validation, acc, now)
		}
		key := ruleKey{r.Collection, r.Action}
		set.rules[key] = append(set.rules[key], &resolved)
	}
	return set
}

type ruleKey struct {
	collection string
	action     Action
}

// Set is the rule set of one caller.
type Set struct {
	admin bool
	rules map[ruleKey][]*Rule
}

// NewSet builds a Set from rules that already apply to the caller.
func NewSet(rules ...*Rule) *Set {
	set := &Set{rules: make(map[ruleKey][]*Rule)}
	for _, r := range rules {
		key := ruleKey{r.Collection, r.Action}
		set.rules[key] = append(set.rules[key], r)
	}
	return set
}

// AdminSet returns a Set that allows everything.
func AdminSet() *Set {
	return &Set{admin: true}
}

func (s *Set) IsAdmin() bool { return s.admin }

// RulesFor returns the caller's rules for collection and action. Admins get
// a single unconditional rule covering all fields.
func (s *Set) RulesFor(collection string, action Action) []*Rule {
	if s.admin {
		return []*Rule{{
			Collection: collection,
			Action:     action,
			Filter:     filter.True(),
			Fields:     []string{"*"},
		}}
	}
	return s.rules[ruleKey{collection, action}]
}

// Policies lists the distinct policies contributing rules, lower-cased.
func (s *Set) Policies() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rules := range s.rules {
		for _, r := range rules {
			p := strings.ToLower(r.Policy)
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
