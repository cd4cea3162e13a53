package glsl

import (
	"regexp"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Routine is a named piece of shader code and the routines it calls.
type Routine struct {
	Name string
	Body string
	Deps []string
}

// Library is a catalogue of routines. Registration order is significant:
// it breaks ties in the dependency sort, which keeps assembly deterministic.
type Library struct {
	routines *orderedmap.OrderedMap[string, *entry]
}

type entry struct {
	routine Routine
	order   int
	ref     *regexp.Regexp
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{routines: orderedmap.New[string, *entry]()}
}

// Add registers r. Registering a name again replaces its body and
// dependencies but keeps its original position.
func (l *Library) Add(r Routine) {
	if e, ok := l.routines.Get(r.Name); ok {
		e.routine = r
		return
	}
	l.routines.Set(r.Name, &entry{
		routine: r,
		order:   l.routines.Len(),
		ref:     regexp.MustCompile(`\b` + regexp.QuoteMeta(r.Name) + `\b`),
	})
}

// Get returns the routine registered under name.
func (l *Library) Get(name string) (Routine, bool) {
	e, ok := l.routines.Get(name)
	if !ok {
		return Routine{}, false
	}
	return e.routine, true
}

// Len returns the number of registered routines.
func (l *Library) Len() int {
	return l.routines.Len()
}

// Names returns the routine names in registration order.
func (l *Library) Names() []string {
	names := make([]string, 0, l.routines.Len())
	for pair := l.routines.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Referenced returns the routines whose names appear as whole words in src,
// in registration order.
func (l *Library) Referenced(src string) []string {
	var names []string
	for pair := l.routines.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.ref.MatchString(src) {
			names = append(names, pair.Key)
		}
	}
	return names
}

// Resolve returns the transitive closure of the routines referenced by src,
// ordered so that every routine follows all of its dependencies.
// A dependency without a registered body or a dependency cycle is an
// AssemblyError.
func (l *Library) Resolve(src string) ([]Routine, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var ordered []Routine

	var visit func(name, from string) error
	visit = func(name, from string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &AssemblyError{Routine: name, Reason: "dependency cycle through " + from}
		}
		e, ok := l.routines.Get(name)
		if !ok || e.routine.Body == "" {
			reason := "missing body"
			if from != "" {
				reason += " (required by " + from + ")"
			}
			return &AssemblyError{Routine: name, Reason: reason}
		}

		state[name] = visiting
		for _, dep := range l.byRegistration(e.routine.Deps) {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, e.routine)
		return nil
	}

	for _, name := range l.Referenced(src) {
		if err := visit(name, ""); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// byRegistration sorts names by registration order. Unknown names sort last
// in their given order so Resolve can report them.
func (l *Library) byRegistration(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	rank := func(n string) int {
		if e, ok := l.routines.Get(n); ok {
			return e.order
		}
		return l.routines.Len()
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}
