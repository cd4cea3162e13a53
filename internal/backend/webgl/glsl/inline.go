package glsl

import (
	"regexp"
	"strings"
)

var (
	inlineDefRe = regexp.MustCompile(`@inline\s+(\w+)\s+(\w+)\s*\(([^)]*)\)\s*\{([^}]*)\}`)
	returnRe    = regexp.MustCompile(`\breturn\b`)
)

type inlineDef struct {
	name   string
	params [][2]string // type, name
	body   string
	call   *regexp.Regexp
}

// Expand replaces every call to an @inline routine with the routine body.
//
// A call must have the form `[type] var = name(args);`. Parameters are
// redeclared from the arguments inside a new block and the routine's return
// becomes an assignment to var. The @inline definitions are removed.
// Inline bodies must not contain braces.
func Expand(u Unit) (Unit, error) {
	var defs []*inlineDef
	collect := func(src string) {
		for _, m := range inlineDefRe.FindAllStringSubmatch(src, -1) {
			defs = append(defs, &inlineDef{
				name:   m[2],
				params: parseParams(m[3]),
				body:   m[4],
				call:   regexp.MustCompile(`(\w+)?\s+(\w+)\s+=\s+` + regexp.QuoteMeta(m[2]) + `\((.*)\)\s*;`),
			})
		}
	}
	for _, r := range u.Routines {
		collect(r.Body)
	}
	collect(u.Body)
	if len(defs) == 0 {
		return u, nil
	}

	expand := func(src string) (string, error) {
		src = inlineDefRe.ReplaceAllString(src, "")
		for _, def := range defs {
			var err error
			src = def.call.ReplaceAllStringFunc(src, func(call string) string {
				m := def.call.FindStringSubmatch(call)
				out, e := def.expandCall(m[1], m[2], m[3])
				if e != nil && err == nil {
					err = e
				}
				return out
			})
			if err != nil {
				return "", err
			}
		}
		return src, nil
	}

	out := Unit{Dialect: u.Dialect, Uniforms: u.Uniforms}
	for _, r := range u.Routines {
		body, err := expand(r.Body)
		if err != nil {
			return Unit{}, err
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		r.Body = body
		out.Routines = append(out.Routines, r)
	}
	body, err := expand(u.Body)
	if err != nil {
		return Unit{}, err
	}
	out.Body = body
	return out, nil
}

func (d *inlineDef) expandCall(typ, variable, args string) (string, error) {
	values := splitArgs(args)
	if len(values) != len(d.params) {
		return "", &AssemblyError{Routine: d.name, Reason: "inline call with wrong argument count"}
	}

	var b strings.Builder
	b.WriteByte('\n')
	if typ != "" {
		b.WriteString(typ + " " + variable + ";\n")
	}
	b.WriteString("{\n")
	for i, p := range d.params {
		b.WriteString(p[0] + " " + p[1] + " = " + values[i] + ";\n")
	}
	body := d.body
	if loc := returnRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]] + variable + " =" + body[loc[1]:]
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n}\n")
	return b.String(), nil
}

func parseParams(list string) [][2]string {
	var params [][2]string
	for _, p := range strings.Split(list, ",") {
		fields := strings.Fields(p)
		if len(fields) < 2 {
			continue
		}
		params = append(params, [2]string{fields[len(fields)-2], fields[len(fields)-1]})
	}
	return params
}

// splitArgs splits a call argument list on top-level commas.
func splitArgs(args string) []string {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i, c := range args {
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(args[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(args[start:]))
}
