package commands

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/cli/ui"
	"github.com/conduit-lang/seedling/internal/demo"
	"github.com/conduit-lang/seedling/internal/seed"
)

// confirm asks a yes/no question; replaced in tests
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// NewRunCommand creates the run command
func NewRunCommand(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed the demo fixtures into the configured store",
		Long: `Seed the demo fixtures into the store selected by the store key
(memory, sql or redis). The plan is shown and confirmed first; --yes skips
the confirmation. Everything is saved once, at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			defer s.logger.Sync()

			out := cmd.OutOrStdout()
			runner := s.runner(nil)
			steps, err := runner.Plan(demo.Fixtures()...)
			if err != nil {
				return err
			}
			renderPlan(out, flags.noColor, steps)

			if !yes {
				ok, err := confirm(fmt.Sprintf("Seed %d fixtures into the %s store?", len(steps), s.cfg.Store))
				if err != nil {
					return err
				}
				if !ok {
					ui.Warn(out, flags.noColor, "aborted, nothing was seeded")
					return nil
				}
			}

			ctx := cmd.Context()
			repo, closeStore, err := openStore(ctx, s.cfg, s.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			seeder := seed.NewSeeder(repo, seed.WithFinder(s.registry), seed.WithLogger(s.logger))
			created, err := s.runner(seeder).RunPlan(ctx, steps)
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			table := ui.NewTable(out, flags.noColor, "Entity", "Created")
			total := 0
			for _, step := range steps {
				name := step.Fixture.EntityType().Name()
				total += len(created[name])
				table.AddRow(name, strconv.Itoa(len(created[name])))
			}
			table.Render()
			ui.Success(out, flags.noColor, "seeded %d entities into the %s store", total, s.cfg.Store)

			s.logger.Info("seeding complete", zap.String("store", s.cfg.Store), zap.Int("entities", total))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
