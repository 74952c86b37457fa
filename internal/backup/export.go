package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/repository"
	"github.com/julianstephens/agencydesk/internal/syncengine"
)

// Export encodes every slot into one JSON document keyed by slot name.
// Keys are sorted, so equal stores export byte-identical documents.
func Export(store *repository.Store) ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(constants.Slots))
	for _, slot := range constants.Slots {
		c, _ := store.Collection(slot)
		value, err := c.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", slot, err)
		}
		doc[slot] = value
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Import replaces every slot named in doc and saves each one immediately.
// The whole document is checked before any slot changes; unknown fields are
// ignored. It returns the imported slots in declared order.
func Import(ctx context.Context, store *repository.Store, doc []byte) ([]string, error) {
	fields, slots, err := check(store, doc)
	if err != nil {
		return nil, err
	}

	results := make([]*syncengine.Result, 0, len(slots))
	for _, slot := range slots {
		c, _ := store.Collection(slot)
		results = append(results, c.Import(fields[slot]))
	}
	if err := syncengine.WaitAll(ctx, results...); err != nil {
		return slots, fmt.Errorf("import saved only partially: %w", err)
	}
	return slots, nil
}

func check(store *repository.Store, doc []byte) (map[string]json.RawMessage, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, nil, fmt.Errorf("malformed export document: %w", err)
	}

	var slots []string
	for _, slot := range constants.Slots {
		value, ok := fields[slot]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			value = json.RawMessage("[]")
			fields[slot] = value
		}
		c, _ := store.Collection(slot)
		if err := c.Check(value); err != nil {
			return nil, nil, fmt.Errorf("invalid export document: %w", err)
		}
		slots = append(slots, slot)
	}
	return fields, slots, nil
}
