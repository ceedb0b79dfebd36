package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	doorstep "github.com/goliatone/go-doorstep"
)

// tripFeed is the YAML document listing the driver's deliveries in order.
type tripFeed struct {
	Trips []doorstep.TripData `yaml:"trips"`
}

// instanceSource is what the feed needs to know which deliveries are done.
type instanceSource interface {
	Instance() doorstep.Instance
}

// feedFetcher hands out the first delivery of the feed that is neither
// active nor archived. The feed file is re-read on every fetch so edits are
// picked up by a running process.
type feedFetcher struct {
	path   string
	source instanceSource
}

func newFeedFetcher(path string, source instanceSource) *feedFetcher {
	return &feedFetcher{path: path, source: source}
}

func (f *feedFetcher) Fetch(ctx context.Context) (doorstep.TripData, error) {
	if err := ctx.Err(); err != nil {
		return doorstep.TripData{}, err
	}
	if strings.TrimSpace(f.path) == "" {
		return doorstep.TripData{}, fmt.Errorf("no trips_file configured")
	}
	feed, err := loadFeed(f.path)
	if err != nil {
		return doorstep.TripData{}, err
	}

	inst := f.source.Instance()
	for _, t := range feed.Trips {
		id := strings.TrimSpace(t.DeliveryID)
		if id == "" || inst.Outcomes.Contains(id) || id == inst.DeliveryID() {
			continue
		}
		return t, nil
	}
	return doorstep.TripData{}, fmt.Errorf("no pending deliveries left in %s", f.path)
}

func loadFeed(path string) (*tripFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trips file: %w", err)
	}
	var feed tripFeed
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode trips file: %w", err)
	}
	return &feed, nil
}

// parsePatch turns key=value pairs into a state patch. Keys are the
// delivery state fact names; boolean facts take true/false.
func parsePatch(pairs map[string]string) (doorstep.StatePatch, error) {
	var patch doorstep.StatePatch
	if len(pairs) == 0 {
		return patch, nil
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range keys {
		if !doorstep.IsConditionKey(key) {
			return patch, doorstep.NewError(doorstep.ErrUnknownCondition,
				fmt.Sprintf("unknown delivery state fact %q", key), nil,
				map[string]any{"known": doorstep.ConditionKeys()})
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: pairs[key]},
		)
	}
	if err := doc.Decode(&patch); err != nil {
		return patch, fmt.Errorf("invalid state value: %w", err)
	}
	return patch, nil
}
