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
package sandbox

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// blockedModules are top-level imports that are never allowed to enter the
// sandbox, regardless of how they're spelled (import, from-import, aliased).
var blockedModules = map[string]bool{
	"ctypes":          true,
	"multiprocessing": true,
	"signal":          true,
	"_thread":         true,
}

// dangerousCalls are dotted call names that are allowed to run (Docker is
// the real isolation boundary) but are surfaced to the caller as warnings.
var dangerousCalls = map[string]bool{
	"os.system":        true,
	"subprocess.run":   true,
	"subprocess.call":  true,
	"subprocess.Popen": true,
	"eval":             true,
	"exec":             true,
	"__import__":       true,
}

// CheckResult is the outcome of a SecurityChecker pass over one snippet.
type CheckResult struct {
	Blocked       bool
	BlockedReason string
	Warnings      []string
}

// SecurityChecker performs a fast, in-process AST pre-check over Python
// source before it is ever handed to a container. It never executes code.
type SecurityChecker struct {
	parser *sitter.Parser
}

// NewSecurityChecker constructs a SecurityChecker with its own tree-sitter
// parser instance. Parsers are not safe for concurrent use, so callers that
// need to check code from multiple goroutines should keep one checker per
// goroutine or serialize calls to Check.
func NewSecurityChecker() *SecurityChecker {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &SecurityChecker{parser: parser}
}

// Check parses code, walks the resulting AST for blocked imports, and
// collects dangerous-call warnings. A syntax error or a blocked import
// short-circuits with Blocked=true; dangerous calls never block.
func (c *SecurityChecker) Check(ctx context.Context, code string) (*CheckResult, error) {
	source := []byte(code)
	tree, err := c.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("sandbox: parse python source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if errNode := firstErrorNode(root); errNode != nil {
		line := errNode.StartPoint().Row + 1
		return &CheckResult{
			Blocked:       true,
			BlockedReason: fmt.Sprintf("Syntax error at line %d: unexpected token", line),
		}, nil
	}

	result := &CheckResult{}
	walk(root, source, result)
	return result, nil
}

// firstErrorNode returns the first ERROR node tree-sitter produced for an
// unparsable snippet, or nil if the parse was clean.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsError() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// walk recurses the AST collecting blocked-import violations (written into
// result.Blocked/BlockedReason, stopping further descent into that subtree)
// and dangerous-call warnings (never blocking).
func walk(n *sitter.Node, source []byte, result *CheckResult) {
	if result.Blocked {
		return
	}

	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
				mod := topLevelModule(moduleName(child, source))
				if blockedModules[mod] {
					result.Blocked = true
					result.BlockedReason = fmt.Sprintf("Blocked module: %s", mod)
					return
				}
			}
		}
	case "import_from_statement":
		// Child layout: "from" <module_name> "import" ...
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "dotted_name" || child.Type() == "relative_import" {
				mod := topLevelModule(moduleName(child, source))
				if mod != "" && blockedModules[mod] {
					result.Blocked = true
					result.BlockedReason = fmt.Sprintf("Blocked module: %s", mod)
					return
				}
				break
			}
		}
	case "call":
		if name := dottedCallName(n, source); name != "" && dangerousCalls[name] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("dangerous call: %s", name))
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), source, result)
		if result.Blocked {
			return
		}
	}
}

// moduleName extracts the textual module path from a dotted_name/aliased_import node.
func moduleName(n *sitter.Node, source []byte) string {
	if n.Type() == "aliased_import" && n.ChildCount() > 0 {
		return n.Child(0).Content(source)
	}
	return n.Content(source)
}

// topLevelModule returns the first dotted segment of a module path, which
// is what the blocked-module set is keyed on (e.g. "ctypes.util" -> "ctypes").
func topLevelModule(mod string) string {
	if idx := strings.IndexByte(mod, '.'); idx >= 0 {
		return mod[:idx]
	}
	return mod
}

// dottedCallName reconstructs the dotted name a "call" node invokes, e.g.
// "os.system" for os.system(...) or "eval" for a bare eval(...).
func dottedCallName(call *sitter.Node, source []byte) string {
	if call.ChildCount() == 0 {
		return ""
	}
	fn := call.Child(0)
	switch fn.Type() {
	case "identifier":
		return fn.Content(source)
	case "attribute":
		return fn.Content(source)
	default:
		return ""
	}
}
