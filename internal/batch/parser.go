package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoTopics = errors.New("no topics found in file")

// Item is one chapter topic. Language overrides the batch default when set.
type Item struct {
	Index    int
	Topic    string
	Language string
}

// fileItem accepts either a bare topic string or {topic, language}.
type fileItem struct {
	Topic    string `json:"topic" yaml:"topic"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

func (fi *fileItem) UnmarshalJSON(data []byte) error {
	var topic string
	if err := json.Unmarshal(data, &topic); err == nil {
		fi.Topic = topic
		return nil
	}
	type plain fileItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*fi = fileItem(p)
	return nil
}

func (fi *fileItem) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		fi.Topic = node.Value
		return nil
	}
	type plain fileItem
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*fi = fileItem(p)
	return nil
}

func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".yaml", ".yml":
		return ParseYAML(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt, .json or .yaml", ext)
	}
}

// ParseText reads one topic per line. Blank lines and # comments are skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	index := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		index++
		items = append(items, Item{
			Index: index,
			Topic: line,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(items) == 0 {
		return nil, ErrNoTopics
	}

	return items, nil
}

func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var raw []fileItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return toItems(raw)
}

func ParseYAML(r io.Reader) ([]Item, error) {
	var raw []fileItem
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTopics
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return toItems(raw)
}

func toItems(raw []fileItem) ([]Item, error) {
	if len(raw) == 0 {
		return nil, ErrNoTopics
	}

	items := make([]Item, len(raw))
	for i, fi := range raw {
		topic := strings.TrimSpace(fi.Topic)
		if topic == "" {
			return nil, fmt.Errorf("item %d has empty topic", i+1)
		}
		items[i] = Item{
			Index:    i + 1,
			Topic:    topic,
			Language: strings.TrimSpace(fi.Language),
		}
	}
	return items, nil
}
