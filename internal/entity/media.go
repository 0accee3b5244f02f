package entity

// MediaSet is the set of media types a query may return. A query is either
// movie-only, TV-only, or (when nothing narrows it) both.
type MediaSet struct {
	Movie bool
	TV    bool
}

// AllMedia returns the unrestricted set.
func AllMedia() MediaSet {
	return MediaSet{Movie: true, TV: true}
}

// Only returns a set containing m alone.
func Only(m Media) MediaSet {
	switch m {
	case MediaMovie:
		return MediaSet{Movie: true}
	case MediaTV:
		return MediaSet{TV: true}
	default:
		return AllMedia()
	}
}

// Allows reports whether results of media m fit the set. The empty media
// stands for mixed listings and fits only the unrestricted set.
func (s MediaSet) Allows(m Media) bool {
	switch m {
	case MediaMovie:
		return s.Movie
	case MediaTV:
		return s.TV
	default:
		return s.Movie && s.TV
	}
}

// Single returns the one media type of a restricted set.
func (s MediaSet) Single() (Media, bool) {
	switch {
	case s.Movie && !s.TV:
		return MediaMovie, true
	case s.TV && !s.Movie:
		return MediaTV, true
	default:
		return "", false
	}
}

// Primary returns the media used when one must be chosen: the single media
// of a restricted set, otherwise movie.
func (s MediaSet) Primary() Media {
	if m, ok := s.Single(); ok {
		return m
	}
	return MediaMovie
}

func (s MediaSet) String() string {
	switch {
	case s.Movie && s.TV:
		return "movie+tv"
	case s.Movie:
		return "movie"
	case s.TV:
		return "tv"
	default:
		return "none"
	}
}
