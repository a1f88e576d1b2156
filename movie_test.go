package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovieUpdateApply(t *testing.T) {
	year, note, empty := 2011, "again", ""
	m := Movie{Title: "Heat", Year: 1995, Rating: 8.3, Poster: "h.jpg", Note: "old"}

	assert.True(t, MovieUpdate{}.IsEmpty())
	assert.Equal(t, m, MovieUpdate{}.Apply(m))

	u := MovieUpdate{Year: &year, Note: &note}
	assert.False(t, u.IsEmpty())
	got := u.Apply(m)
	assert.Equal(t, 2011, got.Year)
	assert.Equal(t, "again", got.Note)
	assert.Equal(t, 8.3, got.Rating)
	assert.Equal(t, "h.jpg", got.Poster)

	assert.Empty(t, MovieUpdate{Note: &empty}.Apply(m).Note)
}

func TestCatalogue(t *testing.T) {
	c := NewCatalogue()
	c.Put(Movie{Title: "B", Year: 1})
	c.Put(Movie{Title: "A", Year: 2})
	c.Put(Movie{Title: "C", Year: 3})
	c.Put(Movie{Title: "B", Year: 4})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"B", "A", "C"}, c.Titles())
	b, ok := c.Get("B")
	assert.True(t, ok)
	assert.Equal(t, 4, b.Year)

	assert.True(t, c.Remove("A"))
	assert.False(t, c.Remove("A"))
	assert.False(t, c.Has("A"))
	assert.Equal(t, []string{"B", "C"}, c.Titles())

	movies := c.Movies()
	assert.Equal(t, "B", movies[0].Title)
	assert.Equal(t, "C", movies[1].Title)

	titles := c.Titles()
	titles[0] = "mutated"
	assert.Equal(t, []string{"B", "C"}, c.Titles())
}
