/**
 * Copyright 2024 The BorealDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package boreal

import "sort"

// Bookmark is an immutable set of opaque causal-ordering tokens issued by the
// server after a successful commit. A transaction begun with a bookmark is
// guaranteed to observe the effects of the commit that produced it, even when
// the two transactions use different pooled connections.
//
// The zero value is the empty bookmark and carries no ordering constraint.
type Bookmark struct {
	tokens []string
}

// NewBookmark creates a bookmark from the given tokens. Empty tokens are
// dropped, duplicates collapse, and the set is kept sorted so Values is
// deterministic.
func NewBookmark(tokens ...string) Bookmark {
	return newBookmarkFrom(tokens)
}

func newBookmarkFrom(tokens []string) Bookmark {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return Bookmark{tokens: out}
}

// Merge returns a new bookmark holding the union of the token sets of b and
// other. Neither input is mutated. Merge is commutative and idempotent.
func (b Bookmark) Merge(other Bookmark) Bookmark {
	if len(other.tokens) == 0 {
		return b
	}
	if len(b.tokens) == 0 {
		return other
	}
	combined := make([]string, 0, len(b.tokens)+len(other.tokens))
	combined = append(combined, b.tokens...)
	combined = append(combined, other.tokens...)
	return newBookmarkFrom(combined)
}

// Values returns a copy of the token set in sorted order.
func (b Bookmark) Values() []string {
	out := make([]string, len(b.tokens))
	copy(out, b.tokens)
	return out
}

// Empty reports whether the bookmark carries no tokens.
func (b Bookmark) Empty() bool {
	return len(b.tokens) == 0
}
