package env

import (
	"os"
	"sort"
	"strings"
)

// Set is an environment keyed by variable name.
type Set map[string]string

// FromOS snapshots the current process environment.
func FromOS() Set {
	return Parse(os.Environ())
}

// Parse builds a Set from "K=V" entries. Entries without '=' or with an
// empty key are skipped; later entries win.
func Parse(kvs []string) Set {
	s := make(Set, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		s[kv[:i]] = kv[i+1:]
	}
	return s
}

// With returns a copy of s with each layer applied in order.
func (s Set) With(layers ...map[string]string) Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	for _, l := range layers {
		for k, v := range l {
			if k == "" {
				continue
			}
			out[k] = v
		}
	}
	return out
}

// Expand resolves ${VAR} references against the set itself (one pass,
// no recursion). Unknown references are left untouched.
func (s Set) Expand() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = expand(v, s)
	}
	return out
}

// List renders the set as sorted "K=V" entries suitable for exec.Cmd.Env.
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for k, v := range s {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expand(v string, m Set) string {
	if !strings.Contains(v, "${") {
		return v
	}
	var b strings.Builder
	for {
		i := strings.Index(v, "${")
		if i < 0 {
			b.WriteString(v)
			return b.String()
		}
		j := strings.IndexByte(v[i:], '}')
		if j < 0 {
			b.WriteString(v)
			return b.String()
		}
		name := v[i+2 : i+j]
		b.WriteString(v[:i])
		if val, ok := m[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(v[i : i+j+1])
		}
		v = v[i+j+1:]
	}
}
