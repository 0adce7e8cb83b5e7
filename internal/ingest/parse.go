package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawField is one key/value pair of a raw metadata entry, in file order.
type rawField struct {
	name  string
	value any
}

// rawEntry is one raw per-step metadata block, parsed but not yet normalized.
type rawEntry struct {
	// key is the full composite identifier, kept for error messages.
	key string
	// ret is the return identifier encoded in the key.
	ret string
	// dependsRet is the depends return identifier, "" for initial steps.
	dependsRet string
	// dedupKey is the key minus its insertion-order prefix; duplicate
	// suffixes mark re-ingested entries.
	dedupKey string
	// fields holds the entry's mapping in declaration order.
	fields []rawField
}

// splitKey parses a composite identifier <order>_<return>[_<depends_return>].
// The order prefix only encodes position and is not interpreted; entries are
// ordered by file and mapping position.
func splitKey(key string) (ret, dependsRet, dedupKey string, err error) {
	parts := strings.Split(key, "_")
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("malformed record key %q: want <order>_<return>[_<depends>]", key)
	}
	ret = parts[1]
	if len(parts) > 2 {
		dependsRet = parts[len(parts)-1]
	}
	return ret, dependsRet, strings.Join(parts[1:], "_"), nil
}

// parseFile reads one metadata file: a YAML mapping of composite keys to
// per-step field mappings. Mapping order is significant (step ids are
// assigned by position), so the document is decoded through yaml.Node
// rather than into a Go map.
func parseFile(path string) ([]rawEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of record keys, got %s", nodeKind(root))
	}

	entries := make([]rawEntry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]

		ret, dependsRet, dedupKey, err := splitKey(keyNode.Value)
		if err != nil {
			return nil, err
		}
		if valNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("record %q: expected a field mapping, got %s", keyNode.Value, nodeKind(valNode))
		}

		fields := make([]rawField, 0, len(valNode.Content)/2)
		for j := 0; j+1 < len(valNode.Content); j += 2 {
			var value any
			if err := valNode.Content[j+1].Decode(&value); err != nil {
				return nil, fmt.Errorf("record %q: field %q: %w", keyNode.Value, valNode.Content[j].Value, err)
			}
			fields = append(fields, rawField{name: valNode.Content[j].Value, value: value})
		}

		entries = append(entries, rawEntry{
			key:        keyNode.Value,
			ret:        ret,
			dependsRet: dependsRet,
			dedupKey:   dedupKey,
			fields:     fields,
		})
	}
	return entries, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
