package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/integrations/contentapi"
	"concierge-agent/internal/tools"
)

const notFound = "not found"

type toolset struct {
	api ContentAPI
}

type locationArgs struct {
	LocationID string `json:"location_id"`
}

var locationSchema = tools.JSONSchema{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"location_id": map[string]any{
			"type":        "string",
			"description": "Numeric location id returned by search_destination.",
			"pattern":     "^[0-9]+$",
		},
	},
	"required": []string{"location_id"},
}

func (t *toolset) get(ctx context.Context, tool, path string, params url.Values, dest any) error {
	err := t.api.Get(ctx, path, params, dest)
	if errors.Is(err, contentapi.ErrDecode) {
		return tools.Malformed(tool, "%v", err)
	}
	return err
}

func locationPath(id, suffix string) string {
	p := "/location/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

type searchResponse struct {
	Data *[]struct {
		LocationID string `json:"location_id"`
		Name       string `json:"name"`
		Address    struct {
			AddressString string `json:"address_string"`
		} `json:"address_obj"`
	} `json:"data"`
}

func (t *toolset) searchDestination() tools.Descriptor {
	const name = LookupTool
	return tools.Descriptor{
		Name:        name,
		Description: "Search a travel destination or landmark by name and return its location id.",
		InputSchema: tools.JSONSchema{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Name of the travel destination or landmark.",
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
			var out searchResponse
			if err := t.get(ctx, name, "/location/search", url.Values{"searchQuery": {in.Query}}, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Data == nil {
				return tools.Result{}, tools.Malformed(name, "missing data")
			}
			if len(*out.Data) == 0 {
				return tools.Result{Text: notFound}, nil
			}
			best := (*out.Data)[0]
			if best.LocationID == "" || best.Name == "" {
				return tools.Result{}, tools.Malformed(name, "first result lacks location_id or name")
			}
			text := fmt.Sprintf("%s (location id %s)", best.Name, best.LocationID)
			if best.Address.AddressString != "" {
				text += ", " + best.Address.AddressString
			}
			return tools.Result{
				Text: text,
				Data: domain.Subject{ID: best.LocationID, CanonicalName: best.Name},
			}, nil
		},
	}
}

func (t *toolset) overview() tools.Descriptor {
	const name = "get_destination_overview"
	return tools.Descriptor{
		Name:        name,
		Description: "Get a general description of a travel destination.",
		InputSchema: locationSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in locationArgs
			if err := tools.DecodeArgs(name, raw, &in); err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Name        *string `json:"name"`
				Description *string `json:"description"`
				Ranking     string  `json:"ranking_string"`
			}
			if err := t.get(ctx, name, locationPath(in.LocationID, "details"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Name == nil || out.Description == nil {
				return tools.Result{}, tools.Malformed(name, "missing name or description")
			}
			text := fmt.Sprintf("%s: %s", *out.Name, *out.Description)
			if out.Ranking != "" {
				text += "\nRanking: " + out.Ranking
			}
			return tools.Result{Text: text}, nil
		},
	}
}

type listingItem struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	Snip   string  `json:"description"`
}

// listing builds a tool that renders the data[].name list under /location/{id}/{suffix}.
func (t *toolset) listing(name, description, suffix, label string) tools.Descriptor {
	return tools.Descriptor{
		Name:        name,
		Description: description,
		InputSchema: locationSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in locationArgs
			if err := tools.DecodeArgs(name, raw, &in); err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Data *[]listingItem `json:"data"`
			}
			if err := t.get(ctx, name, locationPath(in.LocationID, suffix), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Data == nil {
				return tools.Result{}, tools.Malformed(name, "missing data")
			}
			if len(*out.Data) == 0 {
				return tools.Result{Text: fmt.Sprintf("No %s found.", strings.ToLower(label))}, nil
			}
			var b strings.Builder
			b.WriteString(label + ":")
			for i, item := range *out.Data {
				if item.Name == "" {
					return tools.Result{}, tools.Malformed(name, "data[%d] has no name", i)
				}
				b.WriteString("\n- " + item.Name)
				if item.Rating > 0 {
					fmt.Fprintf(&b, " (rated %.1f)", item.Rating)
				}
				if item.Snip != "" {
					b.WriteString(": " + item.Snip)
				}
			}
			return tools.Result{Text: b.String()}, nil
		},
	}
}

func (t *toolset) weather() tools.Descriptor {
	const name = "get_weather"
	return tools.Descriptor{
		Name:        name,
		Description: "Get the current weather at a travel destination.",
		InputSchema: locationSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in locationArgs
			if err := tools.DecodeArgs(name, raw, &in); err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Current *struct {
					TemperatureC *float64 `json:"temperature_c"`
					Conditions   *string  `json:"conditions"`
					Humidity     *int     `json:"humidity"`
				} `json:"current"`
			}
			if err := t.get(ctx, name, locationPath(in.LocationID, "weather"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			if out.Current == nil || out.Current.TemperatureC == nil || out.Current.Conditions == nil {
				return tools.Result{}, tools.Malformed(name, "missing current.temperature_c or current.conditions")
			}
			text := fmt.Sprintf("Current weather: %.0f°C, %s.", *out.Current.TemperatureC, *out.Current.Conditions)
			if out.Current.Humidity != nil {
				text += fmt.Sprintf(" Humidity %d%%.", *out.Current.Humidity)
			}
			return tools.Result{Text: text}, nil
		},
	}
}

func (t *toolset) images() tools.Descriptor {
	const name = "get_images"
	return tools.Descriptor{
		Name:        name,
		Description: "Get a photo URL of a travel destination.",
		InputSchema: locationSchema,
		Invoke: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in locationArgs
			if err := tools.DecodeArgs(name, raw, &in); err != nil {
				return tools.Result{}, err
			}
			var out struct {
				Data []struct {
					Images struct {
						Large struct {
							URL string `json:"url"`
						} `json:"large"`
					} `json:"images"`
				} `json:"data"`
			}
			if err := t.get(ctx, name, locationPath(in.LocationID, "photos"), nil, &out); err != nil {
				return tools.Result{}, err
			}
			for _, photo := range out.Data {
				if u := photo.Images.Large.URL; u != "" {
					return tools.Result{Text: u, Data: u}, nil
				}
			}
			return tools.Result{Text: notFound}, nil
		},
	}
}
