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

package download

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/seismo-tools/stream2segment/internal/model"
	"github.com/seismo-tools/stream2segment/internal/routing"
)

// ParseNSLC cleans up a network, station, location or channel parameter.
// Values are split on commas and trimmed. A "!" prefix negates a pattern.
// The result is sorted; an empty result matches everything.
//
// "*" matches everything and leaves only the negations, "!*" and a value
// with its own negation are errors, and inner spaces are invalid.
func ParseNSLC(values []string) ([]string, error) {
	set := make(map[string]struct{})
	for _, v := range values {
		for _, chunk := range strings.Split(v, ",") {
			chunk = strings.TrimSpace(chunk)
			if strings.Contains(chunk, " ") {
				return nil, fmt.Errorf("invalid space char(s): '%s'", chunk)
			}
			set[chunk] = struct{}{}
		}
	}

	if _, ok := set["!*"]; ok {
		return nil, fmt.Errorf("'!*' (=discard all) invalid")
	}
	if _, ok := set["*"]; ok {
		for s := range set {
			if !strings.HasPrefix(s, "!") {
				delete(set, s)
			}
		}
	} else {
		for s := range set {
			if _, ok := set["!"+s]; ok {
				return nil, fmt.Errorf("conflicting values: '%s' and '!%s'", s, s)
			}
		}
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// splitNegations separates the positive patterns from the negated ones,
// stripped of their "!".
func splitNegations(values []string) (include, exclude []string) {
	for _, v := range values {
		if strings.HasPrefix(v, "!") {
			exclude = append(exclude, strings.TrimPrefix(v, "!"))
		} else {
			include = append(include, v)
		}
	}
	return include, exclude
}

// locationCode maps the FDSN "--" placeholder to the empty location.
func locationCode(v string) string {
	if v == "--" {
		return ""
	}
	return v
}

// exclusions matches the codes excluded by the negated patterns of a
// configuration. Station web services cannot be asked to exclude codes, so
// the excluded channels are dropped from their responses.
type exclusions struct {
	network, station, location, channel []*regexp.Regexp
}

func newExclusions(config *Config) (*exclusions, error) {
	var ex exclusions
	for _, p := range []struct {
		dst      *[]*regexp.Regexp
		values   []string
		location bool
	}{
		{&ex.network, config.Networks, false},
		{&ex.station, config.Stations, false},
		{&ex.location, config.Locations, true},
		{&ex.channel, config.Channels, false},
	} {
		_, exclude := splitNegations(p.values)
		for _, v := range exclude {
			if p.location {
				v = locationCode(v)
			}
			re, err := routing.Glob(v)
			if err != nil {
				return nil, err
			}
			*p.dst = append(*p.dst, re)
		}
	}
	return &ex, nil
}

func matchesAny(res []*regexp.Regexp, code string) bool {
	for _, re := range res {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}

// excludes reports whether any code of c matches a negated pattern.
func (ex *exclusions) excludes(c *model.CandidateRow) bool {
	return matchesAny(ex.network, c.Network) ||
		matchesAny(ex.station, c.Station) ||
		matchesAny(ex.location, c.Location) ||
		matchesAny(ex.channel, c.Channel)
}

// filter returns the candidates not excluded.
func (ex *exclusions) filter(rows []*model.CandidateRow) []*model.CandidateRow {
	kept := make([]*model.CandidateRow, 0, len(rows))
	for _, c := range rows {
		if !ex.excludes(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// postValue renders a parameter for a FDSN POST request line.
func postValue(values []string, location bool) string {
	include, _ := splitNegations(values)
	if len(include) == 0 {
		return "*"
	}
	if location {
		out := make([]string, len(include))
		for i, v := range include {
			if v == "" {
				v = "--"
			}
			out[i] = v
		}
		include = out
	}
	return strings.Join(include, ",")
}

// likePattern converts a FDSN wildcard pattern to a SQL LIKE pattern.
func likePattern(s string) string {
	r := strings.NewReplacer("*", "%", "?", "_")
	return r.Replace(s)
}
