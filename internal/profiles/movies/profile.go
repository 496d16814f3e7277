// Package movies configures the assistant for movies and TV shows.
package movies

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/tools"
	"concierge-agent/internal/usecase"
)

const (
	Name       = "movies"
	LookupTool = "search_title"
)

// ContentAPI is the subset of the content API client used by the tools.
type ContentAPI interface {
	Get(ctx context.Context, path string, params url.Values, dest any) error
}

var Schema = domain.IntentSchema{
	FunctionName:       "extract_movie_intent",
	Description:        "Extract the movie or TV show and topic the user is asking about.",
	SubjectDescription: "Title of the movie or TV show that the user is asking about.",
	Topics: []domain.Topic{
		{Name: "plot", Description: "The user wants to know what the movie or show is about."},
		{Name: "cast", Description: "The user wants to know who acts in or made the movie or show."},
		{Name: "rating", Description: "The user wants to know how well the movie or show is rated."},
		{Name: "awards", Description: "The user wants to know which awards the movie or show won or was nominated for."},
	},
	DefaultTopic: "plot",
}

var prompts = usecase.Prompts{
	Tagger:            "You are a movie and TV assistant that identifies which title the user is talking about and what they want to know about it.",
	TaggerInstruction: "Extract the movie or TV show title and the topic from the following text:",
	Router:            "You are a helpful AI designed to extract information about movies and TV shows.",
	Grounding:         "I want to know about the movie or TV show with id {id} or name {name} and want to talk about the {topic}.",
	Summarizer:        "You are a knowledgeable film buff. Answer concisely and avoid spoilers unless asked.",
}

// New builds the movies profile on top of api. Relative poster paths are
// resolved against imageBaseURL.
func New(api ContentAPI, imageBaseURL string) (usecase.Profile, error) {
	if api == nil {
		return usecase.Profile{}, errors.New("movies: content api must not be nil")
	}
	t := &toolset{api: api, imageBaseURL: imageBaseURL}
	registry, err := tools.NewRegistry(
		t.searchTitle(),
		t.plot(),
		t.cast(),
		t.rating(),
		t.awards(),
		t.poster(),
	)
	if err != nil {
		return usecase.Profile{}, fmt.Errorf("movies: %w", err)
	}
	p := usecase.Profile{
		Name:       Name,
		Schema:     Schema,
		Tools:      registry,
		LookupTool: LookupTool,
		Prompts:    prompts,
	}
	if err := p.Validate(); err != nil {
		return usecase.Profile{}, fmt.Errorf("movies: %w", err)
	}
	return p, nil
}
