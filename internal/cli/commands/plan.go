package commands

import (
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/cli/ui"
	"github.com/conduit-lang/seedling/internal/config"
	"github.com/conduit-lang/seedling/internal/demo"
	"github.com/conduit-lang/seedling/internal/fixtures"
	"github.com/conduit-lang/seedling/internal/logging"
	"github.com/conduit-lang/seedling/internal/seed"
	"github.com/conduit-lang/seedling/internal/seed/registry"
)

// session is what every seeding command loads before doing any work
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
}

func loadSession(flags *globalFlags) (*session, error) {
	cfg, err := config.Load(flags.dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if err := demo.Register(reg); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, registry: reg}, nil
}

func (s *session) runner(seeder *seed.Seeder) *fixtures.Runner {
	return fixtures.NewRunner(seeder,
		fixtures.WithCounts(s.cfg),
		fixtures.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
		fixtures.WithLogger(s.logger))
}

// NewPlanCommand creates the plan command
func NewPlanCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the fixture order and entity counts",
		Long: `Show the order the demo fixtures run in and how many entities each
creates. Counts come from seed:<Type> keys in seedling.yml, falling back to
each fixture's default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(flags)
			if err != nil {
				return err
			}
			defer s.logger.Sync()

			steps, err := s.runner(nil).Plan(demo.Fixtures()...)
			if err != nil {
				return err
			}
			renderPlan(cmd.OutOrStdout(), flags.noColor, steps)
			return nil
		},
	}
}

func renderPlan(w io.Writer, noColor bool, steps []fixtures.Step) {
	table := ui.NewTable(w, noColor, "#", "Entity", "Count", "Depends on")
	for i, step := range steps {
		deps := ""
		for j, d := range step.Fixture.DependsOn() {
			if j > 0 {
				deps += ", "
			}
			deps += d.Name()
		}
		table.AddRow(strconv.Itoa(i+1), step.Fixture.EntityType().Name(), strconv.Itoa(step.Count), deps)
	}
	table.Render()
}
