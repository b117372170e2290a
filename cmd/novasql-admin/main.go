// Command novasql-admin is an offline administration tool for a NovaSQL
// data directory: create and drop relations, dump their tuples, and print
// the optimized plan for a full scan of a relation, without going through
// cmd/enginesrv.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novasql/internal"
	"github.com/tuannm99/novasql/internal/dbschema"
	"github.com/tuannm99/novasql/internal/engine"
	"github.com/tuannm99/novasql/internal/planopt"
)

var (
	dataDir    string
	cfgPath    string
	schemaFile string
)

func main() {
	root := &cobra.Command{
		Use:   "novasql-admin",
		Short: "Administer a NovaSQL data directory",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Data directory holding relation files")
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Optional novasql.yaml config; overrides --data-dir when set")

	createCmd := &cobra.Command{
		Use:   "create-relation NAME",
		Short: "Create a relation from a YAML schema file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreateRelation,
	}
	createCmd.Flags().StringVar(&schemaFile, "schema-file", "", "Path to a YAML schema file")
	_ = createCmd.MarkFlagRequired("schema-file")

	dropCmd := &cobra.Command{
		Use:   "drop-relation NAME",
		Short: "Remove a relation and its backing file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDropRelation,
	}

	scanCmd := &cobra.Command{
		Use:   "scan NAME",
		Short: "Print every tuple of a relation",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	explainCmd := &cobra.Command{
		Use:   "explain NAME",
		Short: "Print the optimized plan for a full scan of a relation",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}

	root.AddCommand(createCmd, dropCmd, scanCmd, explainCmd)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openDatabase() (*engine.Database, error) {
	cfg := engine.Config{}
	dir := dataDir

	if cfgPath != "" {
		nc, err := internal.LoadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if nc.Storage.Dir != "" {
			dir = nc.Storage.Dir
		}
		cfg.PageSize = nc.Page.Size
		cfg.PoolCapacity = nc.BufferPool.Capacity
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return engine.NewDatabase(dir, cfg)
}

func runCreateRelation(cmd *cobra.Command, args []string) error {
	name := args[0]
	schema, err := dbschema.LoadYAMLSchema(schemaFile)
	if err != nil {
		return err
	}
	schema.Name = name

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.CreateRelation(name, schema); err != nil {
		return fmt.Errorf("create relation %s: %w", name, err)
	}
	slog.Info("created relation", "name", name, "fields", len(schema.Fields))
	return nil
}

func runDropRelation(cmd *cobra.Command, args []string) error {
	name := args[0]

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.RemoveRelation(name); err != nil {
		return fmt.Errorf("drop relation %s: %w", name, err)
	}
	slog.Info("dropped relation", "name", name)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	name := args[0]

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	schema, err := db.RelationSchema(name)
	if err != nil {
		return fmt.Errorf("relation schema %s: %w", name, err)
	}

	rel, err := db.ProcessQuery(planopt.NewScanNode(name, schema))
	if err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}

	return db.Scan(rel, func(values []any) error {
		fmt.Println(values)
		return nil
	})
}

func runExplain(cmd *cobra.Command, args []string) error {
	name := args[0]

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	schema, err := db.RelationSchema(name)
	if err != nil {
		return fmt.Errorf("relation schema %s: %w", name, err)
	}

	plan := planopt.Node(planopt.NewScanNode(name, schema))
	optimized, err := db.Optimizer.Optimize(plan)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	fmt.Println(optimized.String())
	return nil
}
