package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

// Kind enumerates the closed set of built-in tools.
type Kind int

const (
	KindCalculator Kind = iota
	KindWeather
	KindDocumentSearch
	KindEncyclopedia
)

func (k Kind) String() string {
	switch k {
	case KindCalculator:
		return "calculator"
	case KindWeather:
		return "weather"
	case KindDocumentSearch:
		return "document_search"
	case KindEncyclopedia:
		return "encyclopedia"
	}
	return "unknown"
}

// Tool names as exposed to the model.
const (
	CalculatorName     = "calculator"
	WeatherName        = "weather"
	SearchDocsName     = "search_documents"
	EncyclopediaName   = "wikipedia"
	DefaultToolTimeout = 15 * time.Second
)

// RunFunc executes a tool against its single string argument.
type RunFunc func(ctx context.Context, argument string) (string, error)

// Descriptor is an immutable, schema-described tool the model may call.
type Descriptor struct {
	Kind           Kind
	Name           string
	Description    string
	ArgName        string
	ArgDescription string
	run            RunFunc
}

// Retriever is the document search capability the search tool delegates to.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Deps are the collaborators the built-in tools need.
type Deps struct {
	Retriever          Retriever
	HTTPClient         *http.Client
	WeatherBaseURL     string
	WikipediaUserAgent string
	Timeout            time.Duration
	Log                *logger.Logger
}

// Registry is the lookup table from tool name to descriptor.
type Registry struct {
	byName  map[string]Descriptor
	ordered []Descriptor
	timeout time.Duration
	log     *logger.Logger
}

// NewRegistry builds the registry with the four built-in tools.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("%w: document search tool needs a retriever", models.ErrInvalidInput)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultToolTimeout
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}

	weather := NewWeather(deps.HTTPClient, deps.WeatherBaseURL)
	wiki := NewEncyclopedia(deps.WikipediaUserAgent)

	return newRegistry(deps.Timeout, deps.Log,
		Descriptor{
			Kind: KindCalculator,
			Name: CalculatorName,
			Description: "Evaluate a single-line mathematical expression. Supports + - * / % ^, parentheses and the constants pi and e. " +
				`Examples: "37593 * 67" for "37593 times 67", "37593^(1/5)" for the fifth root of 37593.`,
			ArgName:        "expression",
			ArgDescription: "The arithmetic expression to evaluate.",
			run: func(_ context.Context, arg string) (string, error) {
				return Evaluate(arg)
			},
		},
		Descriptor{
			Kind:           KindWeather,
			Name:           WeatherName,
			Description:    `Get the current weather for a location. Example: "Cairo" or "New York".`,
			ArgName:        "location",
			ArgDescription: "City or place name.",
			run:            weather.Lookup,
		},
		Descriptor{
			Kind:           KindDocumentSearch,
			Name:           SearchDocsName,
			Description:    "Search relevant information from the user's uploaded documents (PDF and HTML).",
			ArgName:        "query",
			ArgDescription: "A concise search query describing the information needed.",
			run:            deps.Retriever.Retrieve,
		},
		Descriptor{
			Kind: KindEncyclopedia,
			Name: EncyclopediaName,
			Description: "Look up a topic on Wikipedia. Useful for general questions about people, places, companies, " +
				"facts, historical events, or other subjects.",
			ArgName:        "topic",
			ArgDescription: "The topic to look up.",
			run:            wiki.Search,
		},
	), nil
}

func newRegistry(timeout time.Duration, log *logger.Logger, descs ...Descriptor) *Registry {
	r := &Registry{
		byName:  make(map[string]Descriptor, len(descs)),
		timeout: timeout,
		log:     log,
	}
	for _, d := range descs {
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool { return r.ordered[i].Kind < r.ordered[j].Kind })
	return r
}

// List returns the registered descriptors in a stable order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Invoke runs the named tool. An unregistered name is ErrUnknownTool; any
// failure of the tool itself is returned as result text for the model.
func (r *Registry) Invoke(ctx context.Context, name, argument string) (string, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownTool, name)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := d.run(callCtx, argument)
	r.log.Debug("tool invoked", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "failed", err != nil)

	if err != nil {
		// A cancelled parent run is not a tool failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("Error: %s timed out after %s.", name, r.timeout), nil
		}
		return "Error: " + err.Error(), nil
	}
	return out, nil
}
