/*
Copyright 2025 Ghast Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package workflow

import "strings"

// LineMap converts between byte offsets and 1-based line/column pairs
// for a single input file
type LineMap struct {
	content string
	starts  []int // starts[i] = byte offset where line i+1 begins
}

// NewLineMap builds a line map over raw file content
func NewLineMap(content []byte) *LineMap {
	lm := &LineMap{content: string(content)}
	lm.starts = append(lm.starts, 0)
	for i, c := range lm.content {
		if c == '\n' {
			lm.starts = append(lm.starts, i+1)
		}
	}
	return lm
}

// Lines returns the number of lines in the content
func (lm *LineMap) Lines() int {
	return len(lm.starts)
}

// Offset converts a 1-based (line, column) pair to a byte offset.
// Returns -1 for positions outside the content.
func (lm *LineMap) Offset(line, column int) int {
	if line < 1 || line > len(lm.starts) || column < 1 {
		return -1
	}
	off := lm.starts[line-1] + column - 1
	if off > len(lm.content) {
		return -1
	}
	return off
}

// Position converts a byte offset to a 1-based (line, column) pair
func (lm *LineMap) Position(offset int) (line, column int) {
	if offset < 0 {
		return 0, 0
	}
	lo, hi := 0, len(lm.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lm.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - lm.starts[lo] + 1
}

// LineText returns the text of a 1-based line without its newline
func (lm *LineMap) LineText(line int) string {
	if line < 1 || line > len(lm.starts) {
		return ""
	}
	start := lm.starts[line-1]
	end := lm.LineEnd(line)
	return lm.content[start:end]
}

// LineEnd returns the byte offset just past the last character of a
// line, excluding the trailing newline
func (lm *LineMap) LineEnd(line int) int {
	if line < 1 || line > len(lm.starts) {
		return 0
	}
	if line == len(lm.starts) {
		return len(lm.content)
	}
	end := lm.starts[line] - 1
	if end > 0 && strings.HasSuffix(lm.content[:end], "\r") {
		end--
	}
	return end
}
