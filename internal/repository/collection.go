// Package repository holds the typed in-memory collections. Every mutation
// updates memory first and then asks the save scheduler to persist the
// collection's slot.
package repository

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/julianstephens/agencydesk/internal/constants"
	"github.com/julianstephens/agencydesk/internal/syncengine"
	"github.com/julianstephens/agencydesk/internal/validation"
)

// Keyed is implemented by every record stored in a collection.
type Keyed interface {
	Key() string
}

// Saver is the part of the save scheduler a collection needs.
type Saver interface {
	Save(slot string, policy constants.SavePolicy) *syncengine.Result
}

// Collection is an ordered list of records persisted as one slot.
type Collection[T Keyed] struct {
	slot  string
	saver Saver

	mu    sync.RWMutex
	items []T
}

func NewCollection[T Keyed](slot string, saver Saver) *Collection[T] {
	return &Collection[T]{slot: slot, saver: saver}
}

func (c *Collection[T]) Slot() string {
	return c.slot
}

// All returns a copy of the records in order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Add appends items as one batch and saves once. Any invalid or duplicate
// record rejects the whole batch.
func (c *Collection[T]) Add(items ...T) ([]T, *syncengine.Result) {
	for _, item := range items {
		if err := validation.Struct(item); err != nil {
			return c.All(), syncengine.Resolved(err)
		}
	}

	c.mu.Lock()
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if c.index(item.Key()) >= 0 || seen[item.Key()] {
			c.mu.Unlock()
			return c.All(), syncengine.Resolved(fmt.Errorf("%s: duplicate id %q", c.slot, item.Key()))
		}
		seen[item.Key()] = true
	}
	c.items = append(c.items, items...)
	out := slices.Clone(c.items)
	c.mu.Unlock()

	return out, c.save(constants.SaveImmediate)
}

// Update applies fn to a copy of the record and stores it when valid.
// An unknown id is a no-op.
func (c *Collection[T]) Update(id string, fn func(*T)) ([]T, *syncengine.Result) {
	return c.mutate(id, fn, constants.SaveImmediate)
}

// Edit is Update for high-frequency changes; the save is debounced.
func (c *Collection[T]) Edit(id string, fn func(*T)) ([]T, *syncengine.Result) {
	return c.mutate(id, fn, constants.SaveDebounced)
}

func (c *Collection[T]) mutate(id string, fn func(*T), policy constants.SavePolicy) ([]T, *syncengine.Result) {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return c.All(), syncengine.Resolved(nil)
	}
	next, err := clone(c.items[i])
	if err != nil {
		c.mu.Unlock()
		return c.All(), syncengine.Resolved(err)
	}
	fn(&next)
	if next.Key() != id {
		c.mu.Unlock()
		return c.All(), syncengine.Resolved(fmt.Errorf("%s: update may not change id %q", c.slot, id))
	}
	if err := validation.Struct(next); err != nil {
		c.mu.Unlock()
		return c.All(), syncengine.Resolved(err)
	}
	c.items[i] = next
	out := slices.Clone(c.items)
	c.mu.Unlock()

	return out, c.save(policy)
}

// UpdateWhere applies fn to a copy of every record and keeps the copies fn
// reports as changed. All changes are saved together; nothing changed means
// no save. If any changed record is invalid the whole batch is rejected.
func (c *Collection[T]) UpdateWhere(fn func(*T) bool) ([]T, *syncengine.Result) {
	c.mu.Lock()
	next := slices.Clone(c.items)
	changed := false
	for i := range next {
		item, err := clone(next[i])
		if err != nil {
			c.mu.Unlock()
			return c.All(), syncengine.Resolved(err)
		}
		if !fn(&item) {
			continue
		}
		if item.Key() != next[i].Key() {
			c.mu.Unlock()
			return c.All(), syncengine.Resolved(fmt.Errorf("%s: update may not change id %q", c.slot, next[i].Key()))
		}
		if err := validation.Struct(item); err != nil {
			c.mu.Unlock()
			return c.All(), syncengine.Resolved(err)
		}
		next[i] = item
		changed = true
	}
	if changed {
		c.items = next
	}
	out := slices.Clone(c.items)
	c.mu.Unlock()

	if !changed {
		return out, syncengine.Resolved(nil)
	}
	return out, c.save(constants.SaveImmediate)
}

// Delete removes every listed id in one batch and saves once. Unknown ids
// are ignored; when nothing matched no save is issued.
func (c *Collection[T]) Delete(ids ...string) ([]T, *syncengine.Result) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	c.mu.Lock()
	before := len(c.items)
	c.items = slices.DeleteFunc(c.items, func(item T) bool { return drop[item.Key()] })
	changed := len(c.items) != before
	out := slices.Clone(c.items)
	c.mu.Unlock()

	if !changed {
		return out, syncengine.Resolved(nil)
	}
	return out, c.save(constants.SaveImmediate)
}

// Replace swaps the whole collection and saves immediately.
func (c *Collection[T]) Replace(items []T) *syncengine.Result {
	for _, item := range items {
		if err := validation.Struct(item); err != nil {
			return syncengine.Resolved(err)
		}
	}
	c.mu.Lock()
	c.items = slices.Clone(items)
	c.mu.Unlock()
	return c.save(constants.SaveImmediate)
}

// Snapshot encodes the collection as its slot value. An empty collection
// encodes as [].
func (c *Collection[T]) Snapshot() (json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(c.items)
}

// Restore replaces the in-memory records with a decoded slot value without
// saving. Malformed input leaves the collection unchanged.
func (c *Collection[T]) Restore(value json.RawMessage) error {
	var items []T
	if err := json.Unmarshal(value, &items); err != nil {
		return fmt.Errorf("%s: malformed slot value: %w", c.slot, err)
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Check decodes value and validates every record without touching the
// collection.
func (c *Collection[T]) Check(value json.RawMessage) error {
	var items []T
	if err := json.Unmarshal(value, &items); err != nil {
		return fmt.Errorf("%s: malformed slot value: %w", c.slot, err)
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := validation.Struct(item); err != nil {
			return fmt.Errorf("%s[%d]: %w", c.slot, i, err)
		}
		if seen[item.Key()] {
			return fmt.Errorf("%s[%d]: duplicate id %q", c.slot, i, item.Key())
		}
		seen[item.Key()] = true
	}
	return nil
}

// Import restores value and persists it immediately.
func (c *Collection[T]) Import(value json.RawMessage) *syncengine.Result {
	if err := c.Restore(value); err != nil {
		return syncengine.Resolved(err)
	}
	return c.save(constants.SaveImmediate)
}

// Save persists the current state with the given policy.
func (c *Collection[T]) Save(policy constants.SavePolicy) *syncengine.Result {
	return c.save(policy)
}

func (c *Collection[T]) save(policy constants.SavePolicy) *syncengine.Result {
	if c.saver == nil {
		return syncengine.Resolved(nil)
	}
	return c.saver.Save(c.slot, policy)
}

// index must be called with c.mu held.
func (c *Collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool { return item.Key() == id })
}

// clone deep-copies a record so callers holding earlier copies never see
// nested slices change underneath them.
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}
