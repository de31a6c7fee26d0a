// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package routing answers which data-center is authoritative for a
// network/station/location/channel combination, from the response of an
// EIDA routing service.
package routing

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/seismo-tools/stream2segment/internal/project"
)

// Validator reports whether a data-center legitimately serves a channel.
type Validator interface {
	IsAuthoritative(dcID int64, net, sta, loc, cha string) bool
}

type rule struct {
	net, sta, loc, cha *regexp.Regexp
}

func (r *rule) matches(net, sta, loc, cha string) bool {
	return r.net.MatchString(net) && r.sta.MatchString(sta) &&
		r.loc.MatchString(loc) && r.cha.MatchString(cha)
}

// Routes is a Validator built from a routing service response.
type Routes struct {
	rules map[int64][]*rule
}

var _ Validator = (*Routes)(nil)

// IsAuthoritative implements Validator.
func (r *Routes) IsAuthoritative(dcID int64, net, sta, loc, cha string) bool {
	if r == nil {
		return false
	}
	for _, rl := range r.rules[dcID] {
		if rl.matches(net, sta, loc, cha) {
			return true
		}
	}
	return false
}

// DataCenters returns the sorted ids of the data-centers with at least one
// rule.
func (r *Routes) DataCenters() []int64 {
	ids := make([]int64, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Parse parses a routing response in "post" format: blocks separated by
// blank lines, each made of a data-center URL followed by lines of
//
//	NET STA LOC CHA START [END]
//
// A location of "--" denotes the empty location. Blocks whose URL is not a
// key of urlToDC (scheme and trailing slashes ignored) are skipped.
func Parse(text string, urlToDC map[string]int64) (*Routes, error) {
	routes := &Routes{rules: make(map[int64][]*rule)}
	index := urlIndex(urlToDC)

	var (
		dcID    int64
		known   bool
		inBlock bool
		lineNo  int
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		lineNo++
		line := project.TrimSpaceAndNonPrintable(scanner.Text())
		if line == "" {
			inBlock = false
			continue
		}
		if !inBlock {
			inBlock = true
			dcID, known = index[normalizeURL(line)]
			continue
		}
		if !known {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 5 || len(fields) > 6 {
			return nil, fmt.Errorf("line %d: expected 5 or 6 fields, found %d", lineNo, len(fields))
		}
		rl, err := newRule(fields[0], fields[1], fields[2], fields[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		routes.rules[dcID] = append(routes.rules[dcID], rl)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading routing response: %w", err)
	}

	if len(routes.rules) == 0 {
		return nil, fmt.Errorf("no route found for the given data-centers")
	}
	return routes, nil
}

func newRule(net, sta, loc, cha string) (*rule, error) {
	if loc == "--" {
		loc = ""
	}
	var rl rule
	for _, p := range []struct {
		dst   **regexp.Regexp
		value string
	}{
		{&rl.net, net},
		{&rl.sta, sta},
		{&rl.loc, loc},
		{&rl.cha, cha},
	} {
		re, err := Glob(p.value)
		if err != nil {
			return nil, err
		}
		*p.dst = re
	}
	return &rl, nil
}

// Glob compiles an FDSN wildcard pattern ("*" any sequence, "?" any single
// character) into an anchored regular expression.
func Glob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// normalizeURL strips the scheme and trailing slashes so that http and
// https URLs of the same service compare equal.
func normalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	return strings.TrimRight(u, "/")
}

func urlIndex(urls map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(urls))
	for u, id := range urls {
		out[normalizeURL(u)] = id
	}
	return out
}
