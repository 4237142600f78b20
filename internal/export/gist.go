// Package export publishes a finished run's graph as a GitHub Gist.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/switchboard/internal/graph"
	"golang.org/x/oauth2"
)

// gistCreator abstracts the GitHub Gists API, enabling test mocks.
type gistCreator interface {
	Create(ctx context.Context, gist *github.Gist) (*github.Gist, *github.Response, error)
}

// Exporter uploads graph snapshots as secret Gists.
type Exporter struct {
	gists       gistCreator
	description string
}

// Opts holds parameters for creating an Exporter.
type Opts struct {
	Token       string // GitHub personal access token with gist scope
	Description string
	// For testing: inject a mock Gists service.
	Gists gistCreator
}

// New creates an Exporter.
func New(opts Opts) (*Exporter, error) {
	gists := opts.Gists
	if gists == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("export: github token is required")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		gists = github.NewClient(oauth2.NewClient(context.Background(), ts)).Gists
	}
	desc := opts.Description
	if desc == "" {
		desc = "Switchboard conversation graph"
	}
	return &Exporter{gists: gists, description: desc}, nil
}

// gistGraph mirrors the dashboard's GET /graph wire shape so the exported
// file round-trips with the API consumers.
type gistGraph struct {
	Nodes []gistNode `json:"nodes"`
	Edges []gistEdge `json:"edges"`
}

type gistNode struct {
	ID         string `json:"id"`
	Utterance  string `json:"utterance"`
	IsTerminal bool   `json:"is_terminal"`
	DepthMin   int    `json:"depth_min"`
	VisitCount int    `json:"visit_count"`
}

type gistEdge struct {
	From             string `json:"from"`
	To               string `json:"to"`
	UserResponse     string `json:"user_response"`
	ObservationCount int    `json:"observation_count"`
}

// Upload publishes the snapshot as a secret Gist and returns its URL.
func (e *Exporter) Upload(ctx context.Context, snap graph.Snapshot) (string, error) {
	view := gistGraph{
		Nodes: make([]gistNode, 0, len(snap.Nodes)),
		Edges: make([]gistEdge, 0, len(snap.Edges)),
	}
	for _, n := range snap.Nodes {
		view.Nodes = append(view.Nodes, gistNode{
			ID:         n.ID,
			Utterance:  n.Utterance,
			IsTerminal: n.Terminal,
			DepthMin:   n.DepthMin,
			VisitCount: n.VisitCount,
		})
	}
	for _, ed := range snap.Edges {
		view.Edges = append(view.Edges, gistEdge{
			From:             ed.From,
			To:               ed.To,
			UserResponse:     ed.Response,
			ObservationCount: ed.ObservationCount,
		})
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal graph: %w", err)
	}

	gist := &github.Gist{
		Description: github.String(e.description),
		Public:      github.Bool(false),
		Files: map[github.GistFilename]github.GistFile{
			"conversation-graph.json": {Content: github.String(string(data))},
		},
	}
	created, _, err := e.gists.Create(ctx, gist)
	if err != nil {
		return "", fmt.Errorf("export: create gist: %w", err)
	}
	return created.GetHTMLURL(), nil
}
