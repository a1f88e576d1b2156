package main

// Movie is a single catalogue record. Title is the primary key and is
// matched exactly (case-sensitive). Empty optional strings mean "absent".
type Movie struct {
	Title    string  `json:"title" yaml:"title"`
	Year     int     `json:"year" yaml:"year"`
	Rating   float64 `json:"rating" yaml:"rating"`
	Poster   string  `json:"poster" yaml:"poster"`
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Country  string  `json:"country,omitempty" yaml:"country,omitempty"`
	Awards   string  `json:"awards,omitempty" yaml:"awards,omitempty"`
	IMDbID   string  `json:"imdbID,omitempty" yaml:"imdbID,omitempty"`
	Note     string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// MovieUpdate describes a partial update. A nil field leaves the stored value
// unchanged; a non-nil field replaces it, so a pointer to "" clears a string.
type MovieUpdate struct {
	Year     *int
	Rating   *float64
	Poster   *string
	Language *string
	Country  *string
	Awards   *string
	IMDbID   *string
	Note     *string
}

// IsEmpty reports whether the update supplies no field at all.
func (u MovieUpdate) IsEmpty() bool {
	return u.Year == nil && u.Rating == nil && u.Poster == nil &&
		u.Language == nil && u.Country == nil && u.Awards == nil &&
		u.IMDbID == nil && u.Note == nil
}

// Apply returns m with the supplied fields replaced.
func (u MovieUpdate) Apply(m Movie) Movie {
	if u.Year != nil {
		m.Year = *u.Year
	}
	if u.Rating != nil {
		m.Rating = *u.Rating
	}
	if u.Poster != nil {
		m.Poster = *u.Poster
	}
	if u.Language != nil {
		m.Language = *u.Language
	}
	if u.Country != nil {
		m.Country = *u.Country
	}
	if u.Awards != nil {
		m.Awards = *u.Awards
	}
	if u.IMDbID != nil {
		m.IMDbID = *u.IMDbID
	}
	if u.Note != nil {
		m.Note = *u.Note
	}
	return m
}

// Catalogue maps titles to movies and remembers the order in which titles
// were first seen, so rewrites keep the file's existing layout.
type Catalogue struct {
	titles []string
	movies map[string]Movie
}

func NewCatalogue() *Catalogue {
	return &Catalogue{movies: make(map[string]Movie)}
}

func (c *Catalogue) Len() int { return len(c.titles) }

func (c *Catalogue) Has(title string) bool {
	_, ok := c.movies[title]
	return ok
}

func (c *Catalogue) Get(title string) (Movie, bool) {
	m, ok := c.movies[title]
	return m, ok
}

// Put inserts m or overwrites the record stored under m.Title. An overwritten
// title keeps its position.
func (c *Catalogue) Put(m Movie) {
	if _, ok := c.movies[m.Title]; !ok {
		c.titles = append(c.titles, m.Title)
	}
	c.movies[m.Title] = m
}

// Remove deletes title and reports whether it was present.
func (c *Catalogue) Remove(title string) bool {
	if _, ok := c.movies[title]; !ok {
		return false
	}
	delete(c.movies, title)
	for i, t := range c.titles {
		if t == title {
			c.titles = append(c.titles[:i], c.titles[i+1:]...)
			break
		}
	}
	return true
}

// Titles returns a copy of the titles in catalogue order.
func (c *Catalogue) Titles() []string {
	return append([]string(nil), c.titles...)
}

// Movies returns the records in catalogue order.
func (c *Catalogue) Movies() []Movie {
	out := make([]Movie, 0, len(c.titles))
	for _, t := range c.titles {
		out = append(out, c.movies[t])
	}
	return out
}
