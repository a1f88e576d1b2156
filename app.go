package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrMovieExists   = errors.New("movie already exists")
	ErrMovieNotFound = errors.New("movie doesn't exist")
)

// App drives a Storage through the catalogue commands. It only ever talks
// to the backend through the Storage interface.
type App struct {
	store   Storage
	fetcher MetadataFetcher // nil when no API key is configured
	logger  *zap.Logger

	site SiteOptions
	scan ScanOptions

	in      *lineReader
	out     io.Writer
	rnd     *rand.Rand
	printer *message.Printer
}

func NewApp(store Storage, fetcher MetadataFetcher, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		site: SiteOptions{
			Title:      "My Movie Collection",
			OutputPath: "static/index.html",
		},
		scan: ScanOptions{
			Workers:    1,
			Extensions: defaultScanExtensions,
		},
		in:      newLineReader(os.Stdin),
		out:     os.Stdout,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		printer: message.NewPrinter(language.English),
	}
}

func (a *App) printMovie(m Movie) {
	fmt.Fprintf(a.out, "%s (%d): %.1f\n", m.Title, m.Year, m.Rating)
}

func (a *App) printMovies(movies []Movie) {
	for _, m := range movies {
		a.printMovie(m)
	}
}

// ListMovies prints every movie with a total count.
func (a *App) ListMovies() {
	movies := a.store.List().Movies()
	a.printer.Fprintf(a.out, "%d movies in total\n", len(movies))
	if len(movies) == 0 {
		fmt.Fprintln(a.out, "No movies found.")
		return
	}
	a.printMovies(movies)
}

// AddMovie looks title up and stores the result. The record is stored
// under the title the metadata service returns.
func (a *App) AddMovie(ctx context.Context, title string) (Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Movie{}, errors.New("title is required")
	}
	if a.store.Exists(title) {
		return Movie{}, fmt.Errorf("%w: %s", ErrMovieExists, title)
	}
	if a.fetcher == nil {
		return Movie{}, ErrNoAPIKey
	}

	m, err := a.fetcher.Fetch(ctx, title, 0)
	if err != nil {
		return Movie{}, err
	}
	if m.Title == "" {
		m.Title = title
	}
	if m.Title != title && a.store.Exists(m.Title) {
		return Movie{}, fmt.Errorf("%w: %s", ErrMovieExists, m.Title)
	}
	if err := a.store.Add(m); err != nil {
		return Movie{}, err
	}
	a.logger.Debug("movie added", zap.String("title", m.Title))
	return m, nil
}

// AddManual stores m as given, without a metadata lookup.
func (a *App) AddManual(m Movie) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return errors.New("title is required")
	}
	if a.store.Exists(m.Title) {
		return fmt.Errorf("%w: %s", ErrMovieExists, m.Title)
	}
	return a.store.Add(m)
}

func (a *App) DeleteMovie(title string) error {
	if !a.store.Exists(title) {
		return fmt.Errorf("%w: %s", ErrMovieNotFound, title)
	}
	return a.store.Delete(title)
}

func (a *App) UpdateMovie(title string, u MovieUpdate) error {
	if !a.store.Exists(title) {
		return fmt.Errorf("%w: %s", ErrMovieNotFound, title)
	}
	return a.store.Update(title, u)
}

func (a *App) PrintStats() error {
	st, err := ComputeStats(a.store.List().Movies())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Average rating: %.1f\n", st.Average)
	fmt.Fprintf(a.out, "Median rating: %.1f\n", st.Median)
	fmt.Fprintln(a.out, "Best movie(s) by rating:")
	a.printMovies(st.Best)
	fmt.Fprintln(a.out, "Worst movie(s) by rating:")
	a.printMovies(st.Worst)
	return nil
}

func (a *App) PrintRandom() {
	m, ok := pickRandom(a.store.List().Movies(), a.rnd)
	if !ok {
		fmt.Fprintln(a.out, "No movies found.")
		return
	}
	fmt.Fprintf(a.out, "Random movie: %s (%d), it's rated %.1f\n", m.Title, m.Year, m.Rating)
}

// PrintSearch prints matches for query, or fuzzy suggestions when there are
// none.
func (a *App) PrintSearch(query string) {
	movies := a.store.List().Movies()
	results := SearchMovies(movies, query)
	if len(results) > 0 {
		a.printMovies(results)
		return
	}

	fmt.Fprintln(a.out, "No matching movies found.")
	suggestions, err := SuggestTitles(movies, query)
	if err != nil {
		a.logger.Warn("title suggestions failed", zap.Error(err))
		return
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(a.out, "Did you mean:")
		for _, t := range suggestions {
			fmt.Fprintf(a.out, "  %s\n", t)
		}
	}
}

func (a *App) PrintSorted(key SortKey, ascending bool) {
	a.printMovies(SortMovies(a.store.List().Movies(), key, ascending))
}

func (a *App) PrintFiltered(f Filter) {
	movies := FilterMovies(a.store.List().Movies(), f)
	if len(movies) == 0 {
		fmt.Fprintln(a.out, "No movies match the filter.")
		return
	}
	a.printMovies(movies)
}

func (a *App) GenerateWebsite() error {
	if err := GenerateSite(a.store.List().Movies(), a.site); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Website was generated successfully: %s\n", a.site.OutputPath)
	return nil
}

const menu = `
********** My Movies Database **********

Menu:
0. Exit
1. List movies
2. Add movie
3. Delete movie
4. Update movie
5. Stats
6. Random movie
7. Search movie
8. Movies sorted by rating
9. Movies sorted by year
10. Filter movies
11. Generate website
`

// lineReader hands input lines to prompts. The scanner runs on its own
// goroutine, started on first use, so a waiting prompt can give up when its
// context is cancelled.
type lineReader struct {
	r     io.Reader
	once  sync.Once
	lines chan string
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r, lines: make(chan string)}
}

func (lr *lineReader) start() {
	go func() {
		defer close(lr.lines)
		sc := bufio.NewScanner(lr.r)
		for sc.Scan() {
			lr.lines <- sc.Text()
		}
	}()
}

// ReadLine returns the next line, or false when input ends or ctx is done.
func (lr *lineReader) ReadLine(ctx context.Context) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	lr.once.Do(lr.start)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lr.lines:
		return line, ok
	}
}

// Run is the interactive menu loop. It returns nil when the user picks 0 or
// input ends, and ctx's error when ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	for {
		fmt.Fprint(a.out, menu)
		choice, ok := a.prompt(ctx, "Enter choice (0-11): ")
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(a.out)
			return err
		}
		if !ok || choice == "0" {
			fmt.Fprintln(a.out, "Bye!")
			return nil
		}

		var err error
		switch choice {
		case "1":
			a.ListMovies()
		case "2":
			err = a.cmdAdd(ctx)
		case "3":
			err = a.cmdDelete(ctx)
		case "4":
			err = a.cmdUpdate(ctx)
		case "5":
			err = a.PrintStats()
		case "6":
			a.PrintRandom()
		case "7":
			if q, ok := a.prompt(ctx, "Enter search query: "); ok {
				a.PrintSearch(q)
			}
		case "8":
			a.PrintSorted(SortByRating, false)
		case "9":
			a.cmdSortByYear(ctx)
		case "10":
			err = a.cmdFilter(ctx)
		case "11":
			err = a.GenerateWebsite()
		default:
			fmt.Fprintln(a.out, "Invalid choice. Please enter a number between 0 and 11.")
		}
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}
}

func (a *App) prompt(ctx context.Context, question string) (string, bool) {
	fmt.Fprint(a.out, question)
	line, ok := a.in.ReadLine(ctx)
	return strings.TrimSpace(line), ok
}

func (a *App) confirm(ctx context.Context, question string) bool {
	answer, ok := a.prompt(ctx, question+" (y/n): ")
	return ok && strings.EqualFold(answer, "y")
}

func (a *App) cmdAdd(ctx context.Context) error {
	title, ok := a.prompt(ctx, "Enter new movie name: ")
	if !ok || title == "" {
		return nil
	}
	if a.fetcher == nil {
		return a.cmdAddManual(ctx, title)
	}
	m, err := a.AddMovie(ctx, title)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Movie %s added successfully.\n", m.Title)
	return nil
}

func (a *App) cmdAddManual(ctx context.Context, title string) error {
	if a.store.Exists(title) {
		return fmt.Errorf("%w: %s", ErrMovieExists, title)
	}
	m := Movie{Title: title}
	var err error
	if m.Year, err = a.promptInt(ctx, "Enter year of release: "); err != nil {
		return err
	}
	if m.Rating, err = a.promptFloat(ctx, "Enter rating (0-10): "); err != nil {
		return err
	}
	m.Poster, _ = a.prompt(ctx, "Enter poster URL (optional): ")
	m.Note, _ = a.prompt(ctx, "Enter a note (optional): ")
	if err := a.AddManual(m); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Movie %s added successfully.\n", m.Title)
	return nil
}

func (a *App) cmdDelete(ctx context.Context) error {
	title, ok := a.prompt(ctx, "Enter movie title to delete: ")
	if !ok {
		return nil
	}
	if err := a.DeleteMovie(title); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Movie %s deleted successfully.\n", title)
	return nil
}

// cmdUpdate asks for each field; a blank answer keeps the stored value.
func (a *App) cmdUpdate(ctx context.Context) error {
	title, ok := a.prompt(ctx, "Enter movie title to update: ")
	if !ok {
		return nil
	}
	current, found := a.store.List().Get(title)
	if !found {
		return fmt.Errorf("%w: %s", ErrMovieNotFound, title)
	}

	var u MovieUpdate
	if v, _ := a.prompt(ctx, fmt.Sprintf("Enter new year of release [%d]: ", current.Year)); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid year %q", v)
		}
		u.Year = &year
	}
	if v, _ := a.prompt(ctx, fmt.Sprintf("Enter new rating [%.1f]: ", current.Rating)); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid rating %q", v)
		}
		u.Rating = &rating
	}
	if v, _ := a.prompt(ctx, "Enter a note (blank keeps the current one): "); v != "" {
		u.Note = &v
	}
	if u.IsEmpty() {
		fmt.Fprintln(a.out, "Nothing to update.")
		return nil
	}
	if err := a.UpdateMovie(title, u); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Movie %s updated.\n", title)
	return nil
}

func (a *App) cmdSortByYear(ctx context.Context) {
	ascending := !a.confirm(ctx, "Latest movies first?")
	a.PrintSorted(SortByYear, ascending)
}

// cmdFilter asks for each bound; blank means no bound.
func (a *App) cmdFilter(ctx context.Context) error {
	var f Filter
	if v, _ := a.prompt(ctx, "Enter minimum rating (blank for none): "); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid rating %q", v)
		}
		f.MinRating = &r
	}
	if v, _ := a.prompt(ctx, "Enter start year (blank for none): "); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid year %q", v)
		}
		f.StartYear = &y
	}
	if v, _ := a.prompt(ctx, "Enter end year (blank for none): "); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid year %q", v)
		}
		f.EndYear = &y
	}
	a.PrintFiltered(f)
	return nil
}

func (a *App) promptInt(ctx context.Context, question string) (int, error) {
	v, _ := a.prompt(ctx, question)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return n, nil
}

func (a *App) promptFloat(ctx context.Context, question string) (float64, error) {
	v, _ := a.prompt(ctx, question)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return f, nil
}
