package corpus

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseYAML accepts either a top-level sequence or a mapping with a
// "payloads" (or "corpus") sequence. Scalars are used as-is; nested nodes are
// re-encoded as YAML.
func parseYAML(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	seq := root
	if root.Kind == yaml.MappingNode {
		seq = nil
		for i := 0; i+1 < len(root.Content); i += 2 {
			switch root.Content[i].Value {
			case "payloads", "corpus":
				seq = root.Content[i+1]
			}
		}
		if seq == nil {
			return nil, errors.New(`mapping has no "payloads" key`)
		}
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence of payloads at line %d", seq.Line)
	}

	payloads := make([]string, 0, len(seq.Content))
	for _, item := range seq.Content {
		if item.Kind == yaml.ScalarNode {
			payloads = append(payloads, item.Value)
			continue
		}
		raw, err := yaml.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", item.Line, err)
		}
		payloads = append(payloads, strings.TrimRight(string(raw), "\n"))
	}
	return payloads, nil
}
