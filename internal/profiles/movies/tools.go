package movies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/integrations/contentapi"
	"concierge-agent/internal/tools"
)

const (
	notFound        = "not found"
	maxCastMembers  = 10
	defaultImageURL = "https://image.tmdb.org/t/p/original"
)

type toolset struct {
	api          ContentAPI
	imageBaseURL string
}

type titleArgs struct {
	TitleID string `json:"title_id"`
}

var titleSchema = tools.JSONSchema{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"title_id": map[string]any{
			"type":        "string",
			"description": "Title id returned by search_title, such as movie/27205 or tv/1399.",
			"pattern":     "^(movie|tv)/[0-9]+$",
		},
	},
	"required": []string{"title_id"},
}

func (t *toolset) get(ctx context.Context, tool, path string, params url.Values, dest any) error {
	err := t.api.Get(ctx, path, params, dest)
	if errors.Is(err, contentapi.ErrDecode) {
		return tools.Malformed(tool, "%v", err)
	}
	return err
}

// titlePath maps a title id such as movie/27205 to its API path. The id has
// already matched titleSchema.
func titlePath(id, suffix string) string {
	p := "/" + id
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func decodeTitle(tool string, raw json.RawMessage) (titleArgs, error) {
	var in titleArgs
	err := tools.DecodeArgs(tool, raw, &in)
	return in, err
}

type searchResult struct {
	ID          *int64 `json:"id"`
	MediaType   string `json:"media_type"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	FirstAir    string `json:"first_air_date"`
}

func (r searchResult) displayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r searchResult) year() string {
	d := r.ReleaseDate
	if d == "" {
		d = r.FirstAir
	}
	if len(d) >= 4 {
		return d[:4]
	}
	return ""
}

func (t *toolset) searchTitle() tools.Descriptor {
	const name = LookupTool
	return tools.Descriptor{
		Name:        name,
		Description: "Search a movie or TV show by title and return its title id.",
		InputSchema: tools.JSONSchema{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Title of the movie or TV show.",
					"minLength":   1,
				},
			},
			"required": []string{"query"},
		},
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := tools.DecodeArgs(name, raw, &in); err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Results *[]searchResult `json:"results"`
			}
			if err := t.get(ctx, name, "/search/multi", url.Values{"query": {in.Query}}, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Results == nil {
				return tools.Result{}, tools.Malformed(name, "missing results")
			}
			for i, r := range *out.Results {
				if r.MediaType != "movie" && r.MediaType != "tv" {
					continue
				}
				if r.ID == nil || r.displayName() == "" {
					return tools.Result{}, tools.Malformed(name, "results[%d] lacks id or title", i)
				}
				id := r.MediaType + "/" + strconv.FormatInt(*r.ID, 10)
				text := fmt.Sprintf("%s (%s, title id %s)", r.displayName(), r.MediaType, id)
				if y := r.year(); y != "" {
					text = fmt.Sprintf("%s (%s %s, title id %s)", r.displayName(), r.MediaType, y, id)
				}
				return tools.Result{
					Text: text,
					Data: domain.Subject{ID: id, CanonicalName: r.displayName()},
				}, nil
			}
			return tools.Result{Text: notFound}, nil
		},
	}
}

type titleDetails struct {
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	Overview    *string  `json:"overview"`
	VoteAverage *float64 `json:"vote_average"`
	VoteCount   *int     `json:"vote_count"`
	Tagline     string   `json:"tagline"`
}

func (d titleDetails) displayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

func (t *toolset) plot() tools.Descriptor {
	const name = "get_plot"
	return tools.Descriptor{
		Name:        name,
		Description: "Get the plot overview of a movie or TV show.",
		InputSchema: titleSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			in, err := decodeTitle(name, raw)
			if err != nil {
				return tools.Result{}, err
			}
			var out titleDetails
			if err := t.get(ctx, name, titlePath(in.TitleID, ""), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Overview == nil {
				return tools.Result{}, tools.Malformed(name, "missing overview")
			}
			text := fmt.Sprintf("Plot of %s: %s", out.displayName(), *out.Overview)
			if out.Tagline != "" {
				text += "\nTagline: " + out.Tagline
			}
			return tools.Result{Text: text}, nil
		},
	}
}

func (t *toolset) cast() tools.Descriptor {
	const name = "get_cast"
	return tools.Descriptor{
		Name:        name,
		Description: "Get the main cast and key crew (directors, writers) of a movie or TV show.",
		InputSchema: titleSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			in, err := decodeTitle(name, raw)
			if err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Cast *[]struct {
					Name      string `json:"name"`
					Character string `json:"character"`
				} `json:"cast"`
				Crew *[]struct {
					Name string `json:"name"`
					Job  string `json:"job"`
				} `json:"crew"`
			}
			if err := t.get(ctx, name, titlePath(in.TitleID, "credits"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Cast == nil || out.Crew == nil {
				return tools.Result{}, tools.Malformed(name, "missing cast or crew")
			}

			var b strings.Builder
			b.WriteString("Cast:")
			if len(*out.Cast) == 0 {
				b.WriteString(" unknown")
			}
			for i, c := range *out.Cast {
				if i == maxCastMembers {
					break
				}
				b.WriteString("\n- " + c.Name)
				if c.Character != "" {
					b.WriteString(" as " + c.Character)
				}
			}
			var key []string
			for _, c := range *out.Crew {
				switch c.Job {
				case "Director", "Screenplay", "Writer", "Creator", "Producer":
					key = append(key, fmt.Sprintf("%s (%s)", c.Name, c.Job))
				}
			}
			if len(key) > 0 {
				b.WriteString("\nCrew: " + strings.Join(key, ", "))
			}
			return tools.Result{Text: b.String()}, nil
		},
	}
}

func (t *toolset) rating() tools.Descriptor {
	const name = "get_rating"
	return tools.Descriptor{
		Name:        name,
		Description: "Get the audience rating of a movie or TV show.",
		InputSchema: titleSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			in, err := decodeTitle(name, raw)
			if err != nil {
				return tools.Result{}, err
			}
			var out titleDetails
			if err := t.get(ctx, name, titlePath(in.TitleID, ""), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.VoteAverage == nil || out.VoteCount == nil {
				return tools.Result{}, tools.Malformed(name, "missing vote_average or vote_count")
			}
			return tools.Result{
				Text: fmt.Sprintf("%s is rated %.1f/10 from %d votes.", out.displayName(), *out.VoteAverage, *out.VoteCount),
			}, nil
		},
	}
}

func (t *toolset) awards() tools.Descriptor {
	const name = "get_awards"
	return tools.Descriptor{
		Name:        name,
		Description: "Get the awards won and nominations received by a movie or TV show.",
		InputSchema: titleSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			in, err := decodeTitle(name, raw)
			if err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Wins        *int     `json:"wins"`
				Nominations *int     `json:"nominations"`
				Highlights  []string `json:"highlights"`
			}
			if err := t.get(ctx, name, titlePath(in.TitleID, "awards"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Wins == nil || out.Nominations == nil {
				return tools.Result{}, tools.Malformed(name, "missing wins or nominations")
			}
			text := fmt.Sprintf("Awards: %d wins and %d nominations.", *out.Wins, *out.Nominations)
			if len(out.Highlights) > 0 {
				text += "\nHighlights: " + strings.Join(out.Highlights, "; ")
			}
			return tools.Result{Text: text}, nil
		},
	}
}

func (t *toolset) poster() tools.Descriptor {
	const name = "get_poster"
	return tools.Descriptor{
		Name:        name,
		Description: "Get a poster image URL of a movie or TV show.",
		InputSchema: titleSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			in, err := decodeTitle(name, raw)
			if err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Posters *[]struct {
					FilePath string `json:"file_path"`
				} `json:"posters"`
			}
			if err := t.get(ctx, name, titlePath(in.TitleID, "images"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Posters == nil {
				return tools.Result{}, tools.Malformed(name, "missing posters")
			}
			for _, p := range *out.Posters {
				if p.FilePath == "" {
					continue
				}
				u := p.FilePath
				if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
					u = t.imageURL() + "/" + strings.TrimLeft(u, "/")
				}
				return tools.Result{Text: u, Data: u}, nil
			}
			return tools.Result{Text: notFound}, nil
		},
	}
}

func (t *toolset) imageURL() string {
	if t.imageBaseURL == "" {
		return defaultImageURL
	}
	return strings.TrimRight(t.imageBaseURL, "/")
}
