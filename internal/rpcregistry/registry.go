package rpcregistry

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry holds every action and stream merged from one or more bundles,
// keyed by name, and performs one-time alias normalization across every
// reachable message type.
type Registry struct {
	mu      sync.Mutex
	actions map[string]ActionEntry
	streams map[string]StreamEntry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		actions: make(map[string]ActionEntry),
		streams: make(map[string]StreamEntry),
	}
}

// Merge concatenates each bundle's actions and streams into the registry.
// A duplicate name within or across bundles is an error: the spec's
// merge semantics assume bundle authors pick disjoint names, and silently
// letting one clobber another would hide that mistake.
func (r *Registry) Merge(bundles ...RpcBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bundles {
		for _, a := range b.Actions {
			if _, exists := r.actions[a.Name]; exists {
				return fmt.Errorf("rpcregistry: duplicate action %q", a.Name)
			}
			r.actions[a.Name] = a
		}
		for _, s := range b.Streams {
			if _, exists := r.streams[s.Name]; exists {
				return fmt.Errorf("rpcregistry: duplicate stream %q", s.Name)
			}
			r.streams[s.Name] = s
		}
	}
	return nil
}

// Finalize performs alias normalization over every type reachable from any
// merged action or stream. It is safe to call multiple times (e.g. after
// further Merge calls); per-type plans are cached, so only newly seen
// types do any work — alias normalization genuinely runs "at most once"
// per type for the process lifetime, per spec.md §4.7.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	visited := make(map[reflect.Type]bool)
	for _, a := range r.actions {
		ensurePlan(a.InputType, visited)
		ensurePlan(a.OutputType, visited)
	}
	for _, s := range r.streams {
		ensurePlan(s.PayloadType, visited)
	}
}

// Action looks up a registered action by name.
func (r *Registry) Action(name string) (ActionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[name]
	return a, ok
}

// Stream looks up a registered stream by name.
func (r *Registry) Stream(name string) (StreamEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[name]
	return s, ok
}

// ActionNames returns every registered action name.
func (r *Registry) ActionNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	return out
}

// StreamNames returns every registered stream name.
func (r *Registry) StreamNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.streams))
	for name := range r.streams {
		out = append(out, name)
	}
	return out
}

// SerializeStreamItem implements spec.md §4.6's serialization rule for one
// published stream item: a struct with a registered alias plan is dumped
// through it; a slice or array is emitted as-is, with any struct elements
// alias-walked recursively via MarshalAliased; a map is emitted by
// encoding/json unchanged, so struct values inside it are not aliased;
// anything else is wrapped as {"value": item}.
func SerializeStreamItem(item any) ([]byte, error) {
	v := reflect.ValueOf(item)
	for v.IsValid() && v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if !v.IsValid() {
		return []byte(`{"value":null}`), nil
	}
	switch v.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return MarshalAliased(item)
	default:
		return MarshalAliased(map[string]any{"value": item})
	}
}
