package cmd

import (
	"errors"
	"fmt"
	"os"

	"batchplane/internal/logger"
	"batchplane/internal/params"
	"batchplane/internal/store"
	"batchplane/pkg/api"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var definitionFile string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new job definition",
	Long: `Create a job definition from a YAML or JSON document. Its parameters are
checked against the schema of the job it names.

Example definition:
  code: nightly_export
  job: command
  type: export
  label: Nightly export
  parameters:
    runtime: exec
    timeout: 600
    steps:
      - name: dump
        command: ./bin/export --since yesterday

  batchctl create -f nightly_export.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(definitionFile)
		if err != nil {
			return fmt.Errorf("failed to read definition: %w", err)
		}

		var doc api.JobDefinitionDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse definition: %w", err)
		}
		if doc.Code == "" {
			return errors.New("definition code is required")
		}
		if doc.Job == "" {
			return errors.New("definition job is required")
		}
		definition := doc.ToDefinition()

		cfg, st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		registry, err := newRegistry(cfg, st, logger.New(logger.Options{}))
		if err != nil {
			return err
		}
		runnable, err := registry.Get(definition.JobName)
		if err != nil {
			return err
		}

		schema := runnable.ParameterSchema()
		resolved := params.Resolve(schema, definition.RawParameters, nil)
		if err := params.NewValidator().Validate(cmd.Context(), definition, runnable.Name(), schema, resolved); err != nil {
			return err
		}

		if err := st.CreateDefinition(cmd.Context(), definition); err != nil {
			if errors.Is(err, store.ErrDuplicateCode) {
				return fmt.Errorf("job definition %q already exists", definition.Code)
			}
			return err
		}

		cmd.Printf("✓ Job definition created!\nID: %s\nCode: %s\n", definition.ID, definition.Code)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&definitionFile, "file", "f", "", "definition file (YAML or JSON)")
	_ = createCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(createCmd)
}
