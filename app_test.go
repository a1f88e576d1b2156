package main

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestApp returns an App over a fresh JSON file that reads input and
// writes to the returned buffer.
func newTestApp(t *testing.T, fetcher MetadataFetcher, input string, movies ...Movie) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "movies.json"), nil)
	for _, m := range movies {
		require.NoError(t, store.Add(m))
	}

	var out bytes.Buffer
	app := NewApp(store, fetcher, zaptest.NewLogger(t))
	app.in = newLineReader(strings.NewReader(input))
	app.out = &out
	app.rnd = rand.New(rand.NewSource(1))
	app.site.OutputPath = filepath.Join(dir, "static", "index.html")
	return app, &out
}

func heat() Movie {
	return Movie{Title: "Heat", Year: 1995, Rating: 8.3, Poster: "h.jpg", Language: "English"}
}

func TestAppRunListAndExit(t *testing.T) {
	app, out := newTestApp(t, nil, "1\n0\n")
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "0 movies in total")
	assert.Contains(t, out.String(), "No movies found.")
	assert.True(t, strings.HasSuffix(out.String(), "Bye!\n"))
}

func TestAppRunEndsOnEOF(t *testing.T) {
	app, out := newTestApp(t, nil, "")
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Bye!")
}

func TestAppRunInvalidChoice(t *testing.T) {
	app, out := newTestApp(t, nil, "42\n")
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Invalid choice. Please enter a number between 0 and 11.")
}

func TestAppRunManualAdd(t *testing.T) {
	app, out := newTestApp(t, nil, "2\nHeat\n1995\n8.3\nh.jpg\nbest heist\n1\n")
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Movie Heat added successfully.")
	assert.Contains(t, out.String(), "1 movies in total")
	assert.Contains(t, out.String(), "Heat (1995): 8.3\n")

	got, ok := app.store.List().Get("Heat")
	require.True(t, ok)
	assert.Equal(t, "best heist", got.Note)
}

func TestAppRunFetchedAdd(t *testing.T) {
	fetcher := &fakeFetcher{movies: map[string]Movie{"inception": inception()}}
	app, out := newTestApp(t, fetcher, "2\ninception\n2\nInception\n2\nNope\n")
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Movie Inception added successfully.")
	assert.Contains(t, out.String(), "Error: movie already exists: Inception")
	assert.Contains(t, out.String(), "Error: movie not found")
	assert.Equal(t, []string{"Inception"}, app.store.List().Titles())
}

func TestAppRunDeleteAndUpdate(t *testing.T) {
	input := strings.Join([]string{
		"3", "Missing",
		"4", "Heat", "", "9.1", "rewatch",
		"4", "Heat", "", "", "",
		"3", "Inception",
	}, "\n") + "\n"
	app, out := newTestApp(t, nil, input, inception(), heat())
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Error: movie doesn't exist: Missing")
	assert.Contains(t, out.String(), "Movie Heat updated.")
	assert.Contains(t, out.String(), "Nothing to update.")
	assert.Contains(t, out.String(), "Movie Inception deleted successfully.")

	cat := app.store.List()
	assert.Equal(t, []string{"Heat"}, cat.Titles())
	got, _ := cat.Get("Heat")
	assert.Equal(t, 1995, got.Year)
	assert.Equal(t, 9.1, got.Rating)
	assert.Equal(t, "rewatch", got.Note)
}

func TestAppRunStats(t *testing.T) {
	app, out := newTestApp(t, nil, "5\n")
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Error: no movies in the catalogue")

	app, out = newTestApp(t, nil, "5\n", inception(), heat())
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Average rating: 8.6\n")
	assert.Contains(t, out.String(), "Median rating: 8.6\n")
	assert.Contains(t, out.String(), "Best movie(s) by rating:\nInception (2010): 8.8\n")
	assert.Contains(t, out.String(), "Worst movie(s) by rating:\nHeat (1995): 8.3\n")
}

func TestAppRunRandom(t *testing.T) {
	app, out := newTestApp(t, nil, "6\n")
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "No movies found.")

	app, out = newTestApp(t, nil, "6\n", heat())
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "Random movie: Heat (1995), it's rated 8.3\n")
}

func TestAppRunSearch(t *testing.T) {
	app, out := newTestApp(t, nil, "7\nhea\n7\nIncepton\n", inception(), heat())
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Heat (1995): 8.3\n")
	assert.Contains(t, out.String(), "No matching movies found.\nDid you mean:\n  Inception\n")
}

func TestAppRunSortAndFilter(t *testing.T) {
	input := "8\n9\nn\n10\n8.5\n\n\n10\n9.5\n\n\n"
	app, out := newTestApp(t, nil, input, heat(), inception())
	require.NoError(t, app.Run(context.Background()))

	text := out.String()
	byRating := "Inception (2010): 8.8\nHeat (1995): 8.3\n"
	oldestFirst := "Heat (1995): 8.3\nInception (2010): 8.8\n"
	assert.Contains(t, text, byRating)
	assert.Contains(t, text, "Latest movies first? (y/n): "+oldestFirst)
	assert.Contains(t, text, "Enter end year (blank for none): Inception (2010): 8.8\n")
	assert.Contains(t, text, "No movies match the filter.")
}

func TestAppRunFilterRejectsBadInput(t *testing.T) {
	app, out := newTestApp(t, nil, "10\nhigh\n", heat())
	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), `Error: invalid rating "high"`)
}

func TestAppRunWebsite(t *testing.T) {
	app, out := newTestApp(t, nil, "11\n", heat())
	require.NoError(t, app.Run(context.Background()))

	assert.Contains(t, out.String(), "Website was generated successfully: "+app.site.OutputPath)
	assert.Contains(t, readFile(t, app.site.OutputPath), `<li class="movie-title">Heat</li>`)
}

func TestAppAddMovieWithoutFetcher(t *testing.T) {
	app, _ := newTestApp(t, nil, "")
	_, err := app.AddMovie(context.Background(), "Heat")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	require.NoError(t, app.AddManual(heat()))
	assert.ErrorIs(t, app.AddManual(heat()), ErrMovieExists)
	assert.ErrorIs(t, app.UpdateMovie("Alien", MovieUpdate{}), ErrMovieNotFound)
	assert.ErrorIs(t, app.DeleteMovie("Alien"), ErrMovieNotFound)
}

func TestAppRunStopsOnCancelledContext(t *testing.T) {
	app, _ := newTestApp(t, nil, "1\n1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, app.Run(ctx), context.Canceled)
}

func TestAppRunReturnsWhenCancelledAtPrompt(t *testing.T) {
	app, out := newTestApp(t, nil, "")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	app.in = newLineReader(pr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Nothing is ever written to the pipe, so Run sits at the menu prompt.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Contains(t, out.String(), "Enter choice (0-11): ")
	assert.NotContains(t, out.String(), "Bye!")
}

func TestLineReaderCancelMidCommand(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	lr := newLineReader(pr)

	go func() { _, _ = io.WriteString(pw, "3\n") }()
	line, ok := lr.ReadLine(context.Background())
	require.True(t, ok)
	assert.Equal(t, "3", line)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok = lr.ReadLine(ctx)
	assert.False(t, ok)
}
