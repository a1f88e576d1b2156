package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	dataFile string
	debug    bool
	logger   = zap.NewNop()
)

var errDeclined = errors.New("cancelled")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// After the first interrupt a second one kills the process as usual.
	context.AfterFunc(ctx, stop)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "moviedb [data-file]",
		Short: "Manage a personal movie collection",
		Long: `moviedb keeps a small movie catalogue in a JSON, CSV or SQLite file.

Run without a subcommand for the interactive menu. The backend is picked
from the data file extension: .json, .csv, or .sqlite/.sqlite3/.db.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runInteractive,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./moviedb.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataFile, "file", "f", "", "data file (overrides data_file)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(
		listCmd(), addCmd(), deleteCmd(), updateCmd(), statsCmd(), randomCmd(),
		searchCmd(), sortCmd(), filterCmd(), websiteCmd(), scanCmd(), exportCmd(),
	)
	return rootCmd
}

// session is everything a command needs, built from config and flags.
type session struct {
	cfg     *Config
	app     *App
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

// bootstrap loads configuration, builds the logger, opens the backend and
// the optional metadata client. overridePath, when set, wins over config.
func bootstrap(cmd *cobra.Command, overridePath string, in *lineReader) (*session, error) {
	cfg, err := LoadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if overridePath != "" {
		cfg.DataFile = overridePath
	}

	l, err := NewLogger(cfg.Logging, debug)
	if err != nil {
		return nil, err
	}
	logger = l
	s := &session{cfg: cfg}

	path := truePath(cfg.DataFile)
	if in != nil {
		ctx, out := cmd.Context(), cmd.OutOrStdout()
		ask := func(question string) bool {
			fmt.Fprintf(out, "%s (y/n): ", question)
			answer, ok := in.ReadLine(ctx)
			return ok && strings.EqualFold(strings.TrimSpace(answer), "y")
		}
		if err := ensureDataFile(path, ask); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				fmt.Fprintln(out)
				return nil, ctxErr
			}
			return nil, err
		}
	}

	store, err := OpenStorage(path, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	logger.Debug("catalogue opened", zap.String("path", path))

	var fetcher MetadataFetcher
	omdbCfg, err := LoadOMDbConfig()
	if err != nil {
		s.Close()
		return nil, err
	}
	var cache MetadataCache
	if cfg.Cache.Dir != "" {
		c, err := OpenLevelDBCache(truePath(cfg.Cache.Dir))
		if err != nil {
			logger.Warn("metadata cache disabled", zap.Error(err))
		} else {
			cache = c
			s.closers = append(s.closers, c.Close)
		}
	}
	client, err := NewOMDbClient(omdbCfg, cache, logger)
	switch {
	case err == nil:
		fetcher = client
	case errors.Is(err, ErrNoAPIKey):
		logger.Debug("metadata lookups disabled, OMDB_API_KEY is not set")
	default:
		s.Close()
		return nil, err
	}

	app := NewApp(store, fetcher, logger)
	app.out = cmd.OutOrStdout()
	if in != nil {
		app.in = in
	}
	app.site = SiteOptions{
		Title:        cfg.Website.Title,
		TemplatePath: cfg.Website.Template,
		OutputPath:   cfg.Website.Output,
	}
	app.scan = ScanOptions{
		Workers:    cfg.Scan.Workers,
		Extensions: cfg.Scan.Extensions,
	}
	s.app = app
	return s, nil
}

// ensureDataFile offers to create a missing directory and data file, the
// way a first interactive run expects.
func ensureDataFile(path string, ask func(question string) bool) error {
	var initial []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		initial, _ = encodeJSONCatalogue(NewCatalogue())
	case ".csv":
		initial, _ = encodeCSVCatalogue(NewCatalogue())
	case ".sqlite", ".sqlite3", ".db":
	default:
		return fmt.Errorf("%w %q: use %s", ErrUnsupportedFormat, filepath.Ext(path), supportedExtensions)
	}

	dir := filepath.Dir(path)
	if !fileExists(dir) {
		if !ask(fmt.Sprintf("The directory %q was not found. Do you want to create it?", dir)) {
			return fmt.Errorf("directory creation %w", errDeclined)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if fileExists(path) || initial == nil {
		return nil
	}
	if !ask(fmt.Sprintf("The file %q was not found. Do you want to create it?", path)) {
		return fmt.Errorf("file creation %w", errDeclined)
	}
	return writeFileAtomic(path, initial)
}

// withSession wraps a command body with bootstrap and cleanup.
func withSession(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := bootstrap(cmd, "", nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s, args)
	}
}

func runInteractive(cmd *cobra.Command, args []string) error {
	var override string
	if len(args) == 1 {
		override = args[0]
	}
	s, err := bootstrap(cmd, override, newLineReader(cmd.InOrStdin()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	defer s.Close()

	// Ctrl-C at a prompt leaves the menu like choosing 0.
	if err := s.app.Run(cmd.Context()); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func titleArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all movies",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, s *session, args []string) error {
			s.app.ListMovies()
			return nil
		}),
	}
}

func addCmd() *cobra.Command {
	var m Movie
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a movie, looked up on OMDb unless --year and --rating are given",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().IntVar(&m.Year, "year", 0, "release year (manual add)")
	cmd.Flags().Float64Var(&m.Rating, "rating", 0, "rating 0-10 (manual add)")
	cmd.Flags().StringVar(&m.Poster, "poster", "", "poster URL (manual add)")
	cmd.Flags().StringVar(&m.Language, "language", "", "language (manual add)")
	cmd.Flags().StringVar(&m.Country, "country", "", "country (manual add)")
	cmd.Flags().StringVar(&m.Awards, "awards", "", "awards (manual add)")
	cmd.Flags().StringVar(&m.IMDbID, "imdb-id", "", "IMDb identifier (manual add)")
	cmd.Flags().StringVar(&m.Note, "note", "", "personal note")

	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		title := titleArg(args)
		if cmd.Flags().Changed("year") || cmd.Flags().Changed("rating") {
			m.Title = title
			if err := s.app.AddManual(m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Movie %s added successfully.\n", title)
			return nil
		}

		added, err := s.app.AddMovie(ctx, title)
		if err != nil {
			return err
		}
		if m.Note != "" {
			note := m.Note
			if err := s.app.UpdateMovie(added.Title, MovieUpdate{Note: &note}); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Movie %s added successfully.\n", added.Title)
		return nil
	})
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <title>",
		Short: "Delete a movie",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(ctx context.Context, s *session, args []string) error {
			title := titleArg(args)
			if err := s.app.DeleteMovie(title); err != nil {
				return err
			}
			fmt.Fprintf(s.app.out, "Movie %s deleted successfully.\n", title)
			return nil
		}),
	}
}

func updateCmd() *cobra.Command {
	var (
		year                                            int
		rating                                          float64
		poster, language, country, awards, imdbID, note string
	)
	cmd := &cobra.Command{
		Use:   "update <title>",
		Short: "Update only the given fields of a movie",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().IntVar(&year, "year", 0, "new release year")
	cmd.Flags().Float64Var(&rating, "rating", 0, "new rating")
	cmd.Flags().StringVar(&poster, "poster", "", "new poster URL")
	cmd.Flags().StringVar(&language, "language", "", "new language")
	cmd.Flags().StringVar(&country, "country", "", "new country")
	cmd.Flags().StringVar(&awards, "awards", "", "new awards")
	cmd.Flags().StringVar(&imdbID, "imdb-id", "", "new IMDb identifier")
	cmd.Flags().StringVar(&note, "note", "", "new note (empty string clears it)")

	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		var u MovieUpdate
		changed := cmd.Flags().Changed
		if changed("year") {
			u.Year = &year
		}
		if changed("rating") {
			u.Rating = &rating
		}
		if changed("poster") {
			u.Poster = &poster
		}
		if changed("language") {
			u.Language = &language
		}
		if changed("country") {
			u.Country = &country
		}
		if changed("awards") {
			u.Awards = &awards
		}
		if changed("imdb-id") {
			u.IMDbID = &imdbID
		}
		if changed("note") {
			u.Note = &note
		}

		title := titleArg(args)
		if err := s.app.UpdateMovie(title, u); err != nil {
			return err
		}
		if u.IsEmpty() {
			fmt.Fprintln(s.app.out, "Nothing to update.")
			return nil
		}
		fmt.Fprintf(s.app.out, "Movie %s updated.\n", title)
		return nil
	})
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show rating statistics",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, s *session, args []string) error {
			return s.app.PrintStats()
		}),
	}
}

func randomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Pick a random movie",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, s *session, args []string) error {
			s.app.PrintRandom()
			return nil
		}),
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search movies",
		Long: `Search movies by title. Comma-separated terms may carry a prefix:

  $title   !language   @country   #year

Like-type terms are ORed, unlike-type terms ANDed. Plain text matches titles.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withSession(func(ctx context.Context, s *session, args []string) error {
			s.app.PrintSearch(strings.Join(args, " "))
			return nil
		}),
	}
}

func sortCmd() *cobra.Command {
	var ascending bool
	cmd := &cobra.Command{
		Use:       "sort rating|year",
		Short:     "List movies sorted by rating or year, highest first",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"rating", "year"},
	}
	cmd.Flags().BoolVar(&ascending, "asc", false, "lowest first")
	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		switch strings.ToLower(args[0]) {
		case "rating":
			s.app.PrintSorted(SortByRating, ascending)
		case "year":
			s.app.PrintSorted(SortByYear, ascending)
		default:
			return fmt.Errorf("cannot sort by %q: use rating or year", args[0])
		}
		return nil
	})
	return cmd
}

func filterCmd() *cobra.Command {
	var (
		minRating          float64
		startYear, endYear int
	)
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List movies by minimum rating and year range",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "minimum rating")
	cmd.Flags().IntVar(&startYear, "start-year", 0, "first release year")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "last release year")
	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		var f Filter
		if cmd.Flags().Changed("min-rating") {
			f.MinRating = &minRating
		}
		if cmd.Flags().Changed("start-year") {
			f.StartYear = &startYear
		}
		if cmd.Flags().Changed("end-year") {
			f.EndYear = &endYear
		}
		s.app.PrintFiltered(f)
		return nil
	})
	return cmd
}

func websiteCmd() *cobra.Command {
	var output, template, title string
	cmd := &cobra.Command{
		Use:   "website",
		Short: "Generate a static HTML page of the collection",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (overrides website.output)")
	cmd.Flags().StringVar(&template, "template", "", "template file (overrides website.template)")
	cmd.Flags().StringVar(&title, "title", "", "page title (overrides website.title)")
	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		if output != "" {
			s.app.site.OutputPath = output
		}
		if template != "" {
			s.app.site.TemplatePath = template
		}
		if title != "" {
			s.app.site.Title = title
		}
		return s.app.GenerateWebsite()
	})
	return cmd
}

func scanCmd() *cobra.Command {
	var (
		workers int
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Add the movies found in a directory of video files",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel file readers (overrides scan.workers)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report what would be added")
	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		opts := s.app.scan
		opts.Root = truePath(args[0])
		opts.DryRun = dryRun
		if workers > 0 {
			opts.Workers = workers
		}

		res, err := s.app.Scan(ctx, opts)
		if err != nil {
			return err
		}
		verb := "Added"
		if dryRun {
			verb = "Would add"
		}
		out := s.app.out
		for _, t := range res.Added {
			fmt.Fprintf(out, "%s: %s\n", verb, t)
		}
		s.app.printer.Fprintf(out, "Scanned %d files: %d new, %d already in the collection.\n",
			res.Files, len(res.Added), len(res.Skipped))
		if res.Err != nil {
			fmt.Fprintf(out, "Some files could not be added:\n%v\n", res.Err)
		}
		return nil
	})
	return cmd
}

func exportCmd() *cobra.Command {
	var format, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalogue to stdout or copy it into another data file",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, csv or yaml")
	cmd.Flags().StringVar(&to, "to", "", "copy into this data file instead (backend chosen by extension)")
	cmd.RunE = withSession(func(ctx context.Context, s *session, args []string) error {
		cat := s.app.store.List()
		if to == "" {
			return ExportCatalogue(s.app.out, cat, format)
		}

		dst, err := OpenStorage(truePath(to), logger)
		if err != nil {
			return err
		}
		defer dst.Close()
		n, err := CopyCatalogue(cat, dst)
		if err != nil {
			return err
		}
		s.app.printer.Fprintf(s.app.out, "Copied %d movies to %s\n", n, to)
		return nil
	})
	return cmd
}
