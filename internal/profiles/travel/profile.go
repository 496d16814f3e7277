// Package travel configures the assistant for travel destinations.
package travel

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
	Name       = "travel"
	LookupTool = "search_destination"
)

// ContentAPI is the subset of the content API client used by the tools.
type ContentAPI interface {
	Get(ctx context.Context, path string, params url.Values, dest any) error
}

// Schema is the travel intent: a destination and what the user wants to know.
var Schema = domain.IntentSchema{
	FunctionName:       "extract_travel_intent",
	Description:        "Extract the travel destination and topic the user is asking about.",
	SubjectDescription: "Name of the travel destination that the user is asking about.",
	Topics: []domain.Topic{
		{Name: "overview", Description: "The user wants to know general information about the destination."},
		{Name: "attractions", Description: "The user wants to know about attractions or places to visit."},
		{Name: "weather", Description: "The user wants to know about the weather in the destination."},
		{Name: "activities", Description: "The user wants to know about activities available in the destination."},
	},
	DefaultTopic: "overview",
}

var prompts = usecase.Prompts{
	Tagger:            "You are a travel assistant that identifies which destination the user is talking about and what they want to know about it.",
	TaggerInstruction: "Extract the travel destination and the topic from the following text:",
	Router:            "You are a helpful AI designed to extract information about travel destinations.",
	Grounding:         "I want to know about the travel destination with id {id} or name {name} and want to talk about the {topic}.",
	Summarizer:        "You are a friendly travel assistant. Answer in a few short paragraphs.",
}

// New builds the travel profile on top of api.
func New(api ContentAPI) (usecase.Profile, error) {
	if api == nil {
		return usecase.Profile{}, errors.New("travel: content api must not be nil")
	}
	t := &toolset{api: api}
	registry, err := tools.NewRegistry(
		t.searchDestination(),
		t.overview(),
		t.listing("get_attractions", "Get the top attractions and sights for a destination.", "attractions", "Attractions"),
		t.weather(),
		t.listing("get_activities", "Get tours and activities available at a destination.", "activities", "Activities"),
		t.listing("get_restaurants", "Get restaurant recommendations for a destination.", "restaurants", "Restaurants"),
		t.listing("get_accommodations", "Get hotels and other accommodation options for a destination.", "hotels", "Accommodations"),
		t.images(),
	)
	if err != nil {
		return usecase.Profile{}, fmt.Errorf("travel: %w", err)
	}
	p := usecase.Profile{
		Name:       Name,
		Schema:     Schema,
		Tools:      registry,
		LookupTool: LookupTool,
		Prompts:    prompts,
	}
	if err := p.Validate(); err != nil {
		return usecase.Profile{}, fmt.Errorf("travel: %w", err)
	}
	return p, nil
}
