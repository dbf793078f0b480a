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
	"math"
	"strings"
)

// keywordWeights is the fixed lexicon consulted by the importance scorer's
// keyword term. The extractive fallback in LLMCompressor does not use it.
// Weights are deliberately small and few: this is a cheap signal boosting
// messages that look load-bearing, not a classifier.
var keywordWeights = map[string]float64{
	"error":     0.3,
	"failed":    0.3,
	"critical":  0.3,
	"decision":  0.25,
	"decided":   0.25,
	"important": 0.2,
	"warning":   0.2,
	"must":      0.15,
	"required":  0.15,
}

// positionDecayFactor is the base of the exponential decay applied across a
// message's reverse position in the session (most recent = index 0).
const positionDecayFactor = 0.95

// roleWeights assigns a fixed importance contribution per message role.
var roleWeights = map[string]float64{
	"system":    1.0,
	"user":      0.6,
	"assistant": 0.5,
	"tool":      0.3,
}

// ImportanceScorer computes a deterministic [0,1] importance score for a
// message given its position in the session. It has no I/O and no mutable
// state: the same (message, reverseIndex, totalMessages) input always
// produces the same score.
type ImportanceScorer struct{}

// NewImportanceScorer constructs an ImportanceScorer.
func NewImportanceScorer() *ImportanceScorer {
	return &ImportanceScorer{}
}

// Score computes the compression-selection importance of msg, where
// reverseIndex is its distance from the end of the session (0 = most
// recent message). The result is capped at 1.0.
//
// score = 0.3·base + 0.3·position_decay + 0.2·role_weight
//
//	+ 0.15·min(keyword_weight, 0.3) + 0.2·tool_call_bonus
func (s *ImportanceScorer) Score(msg Message, reverseIndex int) float64 {
	base := 0.5
	positionDecay := math.Pow(positionDecayFactor, float64(reverseIndex))
	role := roleWeights[msg.Role]
	keyword := s.keywordWeight(msg.Content)
	if keyword > 0.3 {
		keyword = 0.3
	}
	toolCallBonus := 0.0
	if len(msg.ToolCalls) > 0 || msg.ToolResult != nil {
		toolCallBonus = 1.0
	}

	score := 0.3*base + 0.3*positionDecay + 0.2*role + 0.15*keyword + 0.2*toolCallBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// keywordWeight returns the highest lexicon weight of any keyword present in
// content, or 0 if none match.
func (s *ImportanceScorer) keywordWeight(content string) float64 {
	lower := strings.ToLower(content)
	var best float64
	for kw, weight := range keywordWeights {
		if strings.Contains(lower, kw) && weight > best {
			best = weight
		}
	}
	return best
}

// ScoreAll scores every message in messages, in order, treating the last
// element as reverseIndex 0.
func (s *ImportanceScorer) ScoreAll(messages []Message) []float64 {
	scores := make([]float64, len(messages))
	last := len(messages) - 1
	for i, msg := range messages {
		scores[i] = s.Score(msg, last-i)
	}
	return scores
}
