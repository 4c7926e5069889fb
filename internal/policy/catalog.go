package policy

import (
	"encoding/json"
	"fmt"
)

// ParseJSONCatalog reads a v3 JSON catalog document (a top-level list of
// Pack records, matching Pack's own json tags) into a Memory catalog.
func ParseJSONCatalog(data []byte) (Memory, error) {
	var packs []Pack
	if err := json.Unmarshal(data, &packs); err != nil {
		return nil, fmt.Errorf("policy: parse catalog: %w", err)
	}
	out := make(Memory, len(packs))
	for _, p := range packs {
		out[p.ID] = p
	}
	return out, nil
}
