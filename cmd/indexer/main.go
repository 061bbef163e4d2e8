package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/app"
	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/indexer"
	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/config"
	"github.com/ideaflow/ideaflow/pkg/logging"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ideaflow-indexer",
		Short: "Seed the database and inspect lineage chains",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("database-url", "", "Database connection URL")
	rootCmd.PersistentFlags().String("remote-url", "", "Upstream JSON-RPC endpoint")
	for key, flag := range map[string]string{"database_url": "database-url", "remote_url": "remote-url"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	rootCmd.AddCommand(seedCommand(), chainsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session holds what every subcommand needs.
type session struct {
	cfg           *config.Config
	logger        *zap.Logger
	collaborators *app.Collaborators
	shutdown      func()
}

func open() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.GetLogger()

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	collaborators, err := app.Open(cfg, logger)
	if err != nil {
		telemetryShutdown()
		return nil, err
	}
	return &session{
		cfg:           cfg,
		logger:        logger,
		collaborators: collaborators,
		shutdown: func() {
			_ = collaborators.Close()
			telemetryShutdown()
			_ = logger.Sync()
		},
	}, nil
}

// seedFile is the fixture format accepted by the seed command.
type seedFile struct {
	Users       []models.User                `json:"users"`
	Communities []models.Community           `json:"communities"`
	Posts       []models.Post                `json:"posts"`
	Ideas       []models.Idea                `json:"ideas"`
	Topics      []models.DiscussionTopic     `json:"topics"`
	Memberships []models.CommunityMembership `json:"memberships"`
}

// entities lists records parents first so references resolve on insert.
func (f seedFile) entities() []models.Entity {
	var out []models.Entity
	for _, u := range f.Users {
		out = append(out, u)
	}
	for _, c := range f.Communities {
		out = append(out, c)
	}
	for _, p := range f.Posts {
		out = append(out, p)
	}
	for _, i := range f.Ideas {
		out = append(out, i)
	}
	for _, t := range f.Topics {
		out = append(out, t)
	}
	for _, m := range f.Memberships {
		out = append(out, m)
	}
	return out
}

func readSeedFile(r io.Reader) (seedFile, error) {
	var f seedFile
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return seedFile{}, fmt.Errorf("decode seed file: %w", err)
	}
	return f, nil
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.json>",
		Short: "Load fixture users, posts, ideas and communities into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.shutdown()

			repo := s.collaborators.Repository
			if repo == nil {
				return fmt.Errorf("seed requires the database collaborator; unset remote_url")
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			fixture, err := readSeedFile(file)
			if err != nil {
				return err
			}

			entities := fixture.entities()
			if err := repo.Seed(cmd.Context(), entities...); err != nil {
				return err
			}
			s.logger.Info("Seeded database", zap.Int("entities", len(entities)))
			return nil
		},
	}
}

func chainsCommand() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Load the feed with lineage backfill and print its chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.shutdown()

			table, err := loadFeed(cmd.Context(), s, pages)
			if err != nil {
				return err
			}
			analyzer, err := lineage.NewAnalyzer(1, s.logger)
			if err != nil {
				return err
			}
			printChains(cmd.OutOrStdout(), analyzer.Chains(table.Snapshot(), models.NewIDSet()))
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of feed pages to load")
	return cmd
}

func loadFeed(ctx context.Context, s *session, pages int) (*store.Table, error) {
	table := store.New(store.WithLogger(logging.WithComponent("store")))
	syncCfg := s.cfg.Sync
	syncCfg.PrefetchRating = false
	sync, err := indexer.NewSync(indexer.Options{
		Config:   syncCfg,
		PageSize: s.cfg.Store.FeedPageSize,
		Table:    table,
		Fetcher:  s.collaborators.Fetcher,
		Lineage:  s.collaborators.Lineage,
		Logger:   logging.WithComponent("indexer"),
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < pages; i++ {
		page := collab.FeedPage{Offset: i * s.cfg.Store.FeedPageSize, Limit: s.cfg.Store.FeedPageSize}
		refs, err := sync.RefreshFeed(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(refs) < page.Limit {
			break
		}
	}
	return table, nil
}

func printChains(w io.Writer, chains []lineage.ContentChain) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOT\tNODES\tMAX SUPPORT\tLATEST\tSUMMARY")
	for _, chain := range chains {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			chain.Root.Key(),
			chain.NodeCount,
			chain.MaxSupport,
			chain.LatestActivity.Format("2006-01-02 15:04"),
			lineage.SummarizeEvolution(chain),
		)
	}
	_ = tw.Flush()
}
