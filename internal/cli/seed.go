package cli

import (
	"errors"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maluguiro/examen-proctor/internal/config"
	"github.com/maluguiro/examen-proctor/internal/infra/postgres"
	"github.com/maluguiro/examen-proctor/internal/logger"
)

// NewSeedCmd loads exam fixtures into Postgres, replacing exams with the same id.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "seed [fixtures.yaml]",
		Short: "Load exam fixtures into Postgres",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Postgres.URL == "" {
				return errNoPostgres
			}
			if len(args) == 1 {
				fixtures = args[0]
			}
			if fixtures == "" {
				fixtures = cfg.Exam.Fixtures
			}
			if fixtures == "" {
				return errors.New("no fixtures file given")
			}
			exams, err := config.LoadExamFixtures(fixtures)
			if err != nil {
				return err
			}

			db := openBun(cfg.Postgres.URL)
			defer db.Close()
			if err := runMigrations(cmd.Context(), db, log); err != nil {
				return err
			}

			ids := make([]string, 0, len(exams))
			for id := range exams {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			seeder := postgres.NewExamSeeder(db)
			for _, id := range ids {
				if err := seeder.UpsertExam(cmd.Context(), exams[id]); err != nil {
					return err
				}
				log.Info("exam seeded", zap.String("exam_id", id), zap.Int("questions", len(exams[id].Questions)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "exam fixtures file (defaults to exam.fixtures)")
	return cmd
}
