// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package agent

import (
	"strconv"
	"sync"
)

// Band is a ContextWindow tier. Segments only ever demote forward through
// this sequence: BandHot → BandWarm → BandCold.
type Band int

const (
	BandHot Band = iota
	BandWarm
	BandCold
)

// windowSegmentCap is the number of messages a hot segment accumulates
// before a new tail segment is started, mirroring segmented_memory.go's L1
// rollover behavior (default 10 messages per segment there too).
const windowSegmentCap = 10

// coldSummaryOverheadTokens is the fixed per-segment token cost credited to
// a cold segment's attached summary, approximating message-wrapper overhead
// the same way TokenCounter.EstimateMessagesTokens does per message.
const coldSummaryOverheadTokens = 20

// Segment is one contiguous run of messages sharing a band and a lock state.
// Cold segments carry only a Summary once demoted; Hot and Warm segments
// carry their Messages verbatim.
type Segment struct {
	Messages []Message
	Priority int
	Locked   bool
	Summary  string
	Tokens   int // current token cost charged against the window's budget
}

// ContextWindow is a bounded three-tier message buffer. Hot and warm
// segments render verbatim; cold segments contribute only their attached
// summary text. MemoryManager uses one ContextWindow per session as its
// working set.
type ContextWindow struct {
	mu      sync.Mutex
	bands   [3][]*Segment
	counter *TokenCounter
	budget  *TokenBudget

	// index maps a message ID to its current location, rebuilt on any
	// removal or demotion so it never drifts from the live segment layout.
	index map[string]messageLocation
}

type messageLocation struct {
	band Band
	seg  int
	idx  int
}

// NewContextWindow constructs an empty ContextWindow against budget.
func NewContextWindow(budget *TokenBudget) *ContextWindow {
	return &ContextWindow{
		counter: GetTokenCounter(),
		budget:  budget,
		index:   make(map[string]messageLocation),
	}
}

// CurrentTokens returns the sum of every segment's token cost across all
// three bands — kept exactly in sync with the budget's "used" accounting.
func (w *ContextWindow) CurrentTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTokensLocked()
}

func (w *ContextWindow) currentTokensLocked() int {
	total := 0
	for _, band := range w.bands {
		for _, seg := range band {
			total += seg.Tokens
		}
	}
	return total
}

// AddMessage appends msg to the tail hot segment, starting a new one if the
// current tail is full (≥ windowSegmentCap messages) or locked.
func (w *ContextWindow) AddMessage(msg Message, priority int, lock bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tokens := w.counter.CountTokens(msg.Content) + 10
	if len(msg.ToolCalls) > 0 || msg.ToolResult != nil {
		tokens += 20
	}

	hot := w.bands[BandHot]
	var tail *Segment
	if len(hot) > 0 {
		tail = hot[len(hot)-1]
	}
	if tail == nil || len(tail.Messages) >= windowSegmentCap || tail.Locked {
		tail = &Segment{Priority: priority, Locked: lock}
		w.bands[BandHot] = append(w.bands[BandHot], tail)
	}

	tail.Messages = append(tail.Messages, msg)
	tail.Tokens += tokens
	if lock {
		tail.Locked = true
	}
	if priority > tail.Priority {
		tail.Priority = priority
	}

	if msg.ID != "" {
		w.index[msg.ID] = messageLocation{band: BandHot, seg: len(w.bands[BandHot]) - 1, idx: len(tail.Messages) - 1}
	}
	if w.budget != nil {
		w.budget.Use(tokens)
	}
}

// MoveToWarm demotes the hot segment at idx to the warm band, verbatim.
func (w *ContextWindow) MoveToWarm(idx int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.demote(BandHot, idx, "")
}

// MoveToCold demotes the segment at idx (from hot or warm) to the cold band,
// replacing its token cost with tokens(summary) + coldSummaryOverheadTokens
// and crediting the freed difference back to the budget. A hot segment
// passed with an empty summary moves to the warm band instead.
func (w *ContextWindow) MoveToCold(band Band, idx int, summary string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.demote(band, idx, summary)
}

// demote moves the segment at (band, idx) forward. Passing a non-empty
// summary always lands the segment in BandCold regardless of source band;
// with an empty summary a hot segment goes to warm and a warm segment goes
// to cold with an empty Summary.
func (w *ContextWindow) demote(band Band, idx int, summary string) {
	segs := w.bands[band]
	if idx < 0 || idx >= len(segs) {
		return
	}
	seg := segs[idx]
	if seg.Locked {
		return
	}

	// Remove from source band.
	w.bands[band] = append(segs[:idx], segs[idx+1:]...)

	targetBand := BandWarm
	if summary != "" || band == BandWarm {
		targetBand = BandCold
		seg.Summary = summary
		newTokens := w.counter.CountTokens(summary) + coldSummaryOverheadTokens
		freed := seg.Tokens - newTokens
		seg.Tokens = newTokens
		if w.budget != nil && freed > 0 {
			w.budget.Free(freed)
		}
	}

	w.bands[targetBand] = append(w.bands[targetBand], seg)
	w.rebuildIndex()
}

// Optimize demotes segments — warm→cold first, then hot→warm (locked
// segments are skipped in both passes) — until usage falls to targetRatio
// or there is nothing left to demote. It never crosses hot→cold directly in
// a single step.
func (w *ContextWindow) Optimize(targetRatio float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.usageRatioLocked() > targetRatio {
		if w.demoteOneLocked(BandWarm, "") {
			continue
		}
		if w.demoteOneLocked(BandHot, "") {
			continue
		}
		break
	}
}

// demoteOneLocked demotes the first non-locked segment found in band,
// returning whether a demotion happened. Callers must hold w.mu.
func (w *ContextWindow) demoteOneLocked(band Band, summary string) bool {
	segs := w.bands[band]
	for i, seg := range segs {
		if seg.Locked {
			continue
		}
		placeholderSummary := summary
		if band == BandWarm && placeholderSummary == "" {
			placeholderSummary = placeholderSummaryFor(seg)
		}
		w.bands[band] = append(segs[:i], segs[i+1:]...)

		if band == BandWarm {
			seg.Summary = placeholderSummary
			newTokens := w.counter.CountTokens(placeholderSummary) + coldSummaryOverheadTokens
			freed := seg.Tokens - newTokens
			seg.Tokens = newTokens
			if w.budget != nil && freed > 0 {
				w.budget.Free(freed)
			}
			w.bands[BandCold] = append(w.bands[BandCold], seg)
		} else {
			w.bands[BandWarm] = append(w.bands[BandWarm], seg)
		}
		w.rebuildIndex()
		return true
	}
	return false
}

// placeholderSummaryFor produces a deterministic stand-in summary for a
// segment demoted to cold without an LLM-produced one supplied — Compressor
// owns real summarization; Optimize only needs something non-empty to
// price the segment's remaining token cost against.
func placeholderSummaryFor(seg *Segment) string {
	return "[" + strconv.Itoa(len(seg.Messages)) + " earlier message(s) omitted]"
}

func (w *ContextWindow) usageRatioLocked() float64 {
	if w.budget == nil {
		return 0
	}
	return w.budget.UsagePercentage() / 100
}

// RemoveMessage deletes the message with the given ID from whichever
// segment currently holds it, rebuilding the index afterward.
func (w *ContextWindow) RemoveMessage(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.index[id]
	if !ok {
		return
	}
	segs := w.bands[loc.band]
	if loc.seg < 0 || loc.seg >= len(segs) {
		return
	}
	seg := segs[loc.seg]
	if loc.idx < 0 || loc.idx >= len(seg.Messages) {
		return
	}

	removed := seg.Messages[loc.idx]
	removedTokens := w.counter.CountTokens(removed.Content) + 10
	if len(removed.ToolCalls) > 0 || removed.ToolResult != nil {
		removedTokens += 20
	}
	seg.Messages = append(seg.Messages[:loc.idx], seg.Messages[loc.idx+1:]...)
	seg.Tokens -= removedTokens
	if seg.Tokens < 0 {
		seg.Tokens = 0
	}
	if w.budget != nil {
		w.budget.Free(removedTokens)
	}

	if len(seg.Messages) == 0 && loc.band != BandCold {
		w.bands[loc.band] = append(segs[:loc.seg], segs[loc.seg+1:]...)
	}
	w.rebuildIndex()
}

// Clear empties the window. When keepLocked is true, locked segments survive
// in place (their band and content untouched).
func (w *ContextWindow) Clear(keepLocked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for b := range w.bands {
		if !keepLocked {
			w.bands[b] = nil
			continue
		}
		kept := w.bands[b][:0]
		for _, seg := range w.bands[b] {
			if seg.Locked {
				kept = append(kept, seg)
			} else if w.budget != nil {
				w.budget.Free(seg.Tokens)
			}
		}
		w.bands[b] = kept
	}
	w.rebuildIndex()
	if w.budget != nil && !keepLocked {
		w.budget.Reset()
	}
}

// Render returns every hot and warm message verbatim, in band-then-segment-
// then-message order (hot ahead of warm), followed by cold segments'
// attached summaries. This is MemoryManager.render_for_llm's raw material
// before the synthetic running-summary message is prepended.
func (w *ContextWindow) Render() (messages []Message, coldSummaries []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, band := range []Band{BandHot, BandWarm} {
		for _, seg := range w.bands[band] {
			messages = append(messages, seg.Messages...)
		}
	}
	for _, seg := range w.bands[BandCold] {
		if seg.Summary != "" {
			coldSummaries = append(coldSummaries, seg.Summary)
		}
	}
	return messages, coldSummaries
}

// rebuildIndex recomputes the message-ID → location map from scratch.
// Called after any structural change (removal, demotion) so the index never
// drifts from the live segment layout. Callers must hold w.mu.
func (w *ContextWindow) rebuildIndex() {
	w.index = make(map[string]messageLocation)
	for b, band := range w.bands {
		for s, seg := range band {
			for m, msg := range seg.Messages {
				if msg.ID != "" {
					w.index[msg.ID] = messageLocation{band: Band(b), seg: s, idx: m}
				}
			}
		}
	}
}
