package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"datagate/internal/compiler"
	"datagate/internal/engine"
	"datagate/internal/filter"
	"datagate/internal/metadata"
	"datagate/internal/permissions"
	"datagate/internal/store"
)

var (
	compileSchema      string
	compilePermissions string
	compileCollection  string
	compileFilter      string
	compileAction      string
	compileDialect     string
	compileFields      []string
	compileUser        string
	compilePolicies    []string
	compileAdmin       bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the SQL for a filter as seen by one caller",
	Example: `  # Compile a filter for a caller holding the "public" policy
  datagate compile --schema schema.yaml --permissions permissions.yaml \
    --collection articles --filter '{"author":{"name":{"_eq":"ann"}}}' --policy public`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(compileSchema, cfg.Schema.File)
		permsPath := resolveString(compilePermissions, cfg.Permissions.File)
		if schemaPath == "" || permsPath == "" {
			return errors.New("--schema and --permissions are required")
		}

		reg := metadata.NewRegistry()
		s, err := metadata.LoadFile(schemaPath)
		if err != nil {
			return err
		}
		if _, err := reg.Load(s); err != nil {
			return err
		}
		rules, err := permissions.LoadFile(permsPath)
		if err != nil {
			return err
		}
		ps := permissions.NewStore()
		if err := ps.Load(rules); err != nil {
			return err
		}

		action := permissions.Action(compileAction)
		if !action.Valid() {
			return errors.Newf("unknown action %q", compileAction)
		}
		userFilter, err := filter.Parse([]byte(compileFilter))
		if err != nil {
			return err
		}

		acc := &metadata.Accountability{User: compileUser, Policies: compilePolicies, Admin: compileAdmin}
		set := ps.For(acc, time.Now())
		cases := permissions.BuildCases(set.RulesFor(compileCollection, action))
		res, err := compiler.Compile(reg.Snapshot(), compileCollection, userFilter, cases, set)
		if err != nil {
			return err
		}

		fields := compileFields
		if len(fields) == 0 {
			fields = reg.Snapshot().Collection(compileCollection).ColumnNames()
		}
		d := store.NewDialect(compileDialect)
		q := engine.BuildSelectSQL(res, fields, d, engine.SelectOptions{})

		fmt.Println(q.SQL)
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(q.Params)
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compileSchema, "schema", "", "schema file (default: schema.file from config)")
	f.StringVar(&compilePermissions, "permissions", "", "permissions file (default: permissions.file from config)")
	f.StringVar(&compileCollection, "collection", "", "root collection")
	f.StringVar(&compileFilter, "filter", "{}", "filter JSON")
	f.StringVar(&compileAction, "action", string(permissions.ActionRead), "permission action")
	f.StringVar(&compileDialect, "dialect", "postgres", "SQL dialect (postgres or sqlite)")
	f.StringSliceVar(&compileFields, "fields", nil, "columns to select (default: every column)")
	f.StringVar(&compileUser, "user", "", "caller user id for $CURRENT_USER")
	f.StringSliceVar(&compilePolicies, "policy", nil, "caller policies")
	f.BoolVar(&compileAdmin, "admin", false, "compile as an admin")
	_ = compileCmd.MarkFlagRequired("collection")
}

func resolveString(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
