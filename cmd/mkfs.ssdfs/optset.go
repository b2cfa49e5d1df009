package main

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// optset parses one -B/-O/-S/-M/-U/-T subsystem option string (spec §6.1:
// "a comma-separated list of key=value options"), e.g.
// "has_copy,log_pages=32,migration_threshold=5,compression=zlib". A bare
// key with no "=" is recorded with an empty value, the teacher's pack.go
// idiom for boolean-flag-style options generalized from a single flag.Bool
// to an arbitrary key set.
type optset map[string]string

func parseOptset(s string) optset {
	o := make(optset)
	if s == "" {
		return o
	}
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		if i := strings.IndexByte(kv, '='); i >= 0 {
			o[kv[:i]] = kv[i+1:]
		} else {
			o[kv] = ""
		}
	}
	return o
}

func (o optset) has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o optset) string(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

func (o optset) int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// validate rejects any key not in allowed, per-group (spec §8.4 scenario 6's
// "-M ...: builder rejects with an invalid argument error naming maptbl"),
// generalized to every -B/-O/-S/-M/-U/-T option group rather than just -M.
func (o optset) validate(group string, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var bad []string
	for k := range o {
		if !ok[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return xerrors.Errorf("invalid argument: unknown %s option %q", group, bad[0])
}
