// Package tools implements the local actions the generation model may
// request while answering a question: directory queries, file listings,
// command lookups, man pages, and the final-answer capture.
//
// Expected failures (missing path, no manual entry) are returned as
// structured {error} data so the model can react; they are never raised
// as Go errors.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Tool names.
const (
	NameCurrentDirectory = "get_current_directory"
	NameListFiles        = "list_files"
	NameCheckCommand     = "check_command_exists"
	NameManPage          = "get_man_page"
	NameSuggestedCommand = "suggested_command"
)

const (
	// maxListEntries caps directory listings sent back to the model.
	maxListEntries = 20

	// maxManLines caps manual page content sent back to the model.
	maxManLines = 100

	// manTimeout bounds the external man invocation.
	manTimeout = 5 * time.Second
)

// Suggestion is the payload of the final-answer tool.
type Suggestion struct {
	Command     string
	Explanation string
}

// Result is the outcome of one tool execution. Data goes back to the
// model as the function response; Final is set only by the final-answer
// tool and terminates the orchestration loop.
type Result struct {
	Data  map[string]any
	Final *Suggestion
}

// Executor dispatches tool calls by name with typed argument decoding.
type Executor struct {
	// workDir overrides the reported working directory in tests.
	workDir string
}

// NewExecutor returns an executor using the process working directory.
func NewExecutor() *Executor {
	return &Executor{}
}

// Execute runs the named tool. Unknown names yield {error} data, not a
// Go error: the conversation continues and the model can pick another
// tool.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) Result {
	switch name {
	case NameCurrentDirectory:
		return e.currentDirectory()
	case NameListFiles:
		return e.listFiles(decodeListFiles(args))
	case NameCheckCommand:
		return e.checkCommand(decodeCheckCommand(args))
	case NameManPage:
		return e.manPage(ctx, decodeManPage(args))
	case NameSuggestedCommand:
		return e.suggestedCommand(decodeSuggestedCommand(args))
	default:
		return errorResult("unknown tool: %s", name)
	}
}

// Typed argument shapes, one per tool. Decoding tolerates missing keys;
// each tool validates what it needs.

type listFilesArgs struct {
	Path string
}

type checkCommandArgs struct {
	Command string
}

type manPageArgs struct {
	Command string
	Section string
}

type suggestedCommandArgs struct {
	Command     string
	Explanation string
}

func decodeListFiles(args map[string]any) listFilesArgs {
	a := listFilesArgs{Path: stringArg(args, "path")}
	if a.Path == "" {
		a.Path = "."
	}
	return a
}

func decodeCheckCommand(args map[string]any) checkCommandArgs {
	return checkCommandArgs{Command: stringArg(args, "command")}
}

func decodeManPage(args map[string]any) manPageArgs {
	return manPageArgs{
		Command: stringArg(args, "command"),
		Section: stringArg(args, "section"),
	}
}

func decodeSuggestedCommand(args map[string]any) suggestedCommandArgs {
	return suggestedCommandArgs{
		Command:     stringArg(args, "command"),
		Explanation: stringArg(args, "explanation"),
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (e *Executor) currentDirectory() Result {
	dir := e.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errorResult("get working directory: %v", err)
		}
		dir = wd
	}
	return dataResult(map[string]any{"result": dir})
}

func (e *Executor) listFiles(args listFilesArgs) Result {
	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return errorResult("%v", err)
	}

	names := make([]string, 0, min(len(entries), maxListEntries))
	for i, entry := range entries {
		if i == maxListEntries {
			break
		}
		names = append(names, entry.Name())
	}

	return dataResult(map[string]any{
		"result":    names,
		"count":     len(entries),
		"truncated": len(entries) > maxListEntries,
	})
}

func (e *Executor) checkCommand(args checkCommandArgs) Result {
	if args.Command == "" {
		return errorResult("command argument is required")
	}
	_, err := exec.LookPath(args.Command)
	return dataResult(map[string]any{
		"exists":  err == nil,
		"command": args.Command,
	})
}

func (e *Executor) manPage(ctx context.Context, args manPageArgs) Result {
	if args.Command == "" {
		return errorResult("command argument is required")
	}

	ctx, cancel := context.WithTimeout(ctx, manTimeout)
	defer cancel()

	manArgs := []string{args.Command}
	if args.Section != "" {
		manArgs = []string{args.Section, args.Command}
	}

	var stdout, stderr strings.Builder
	cmd := exec.CommandContext(ctx, "man", manArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dataResult(map[string]any{
			"found":   false,
			"command": args.Command,
			"error":   "command timed out",
		})
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("No manual entry for %s", args.Command)
		}
		return dataResult(map[string]any{
			"found":   false,
			"command": args.Command,
			"error":   msg,
		})
	}

	lines := strings.Split(stdout.String(), "\n")
	content := strings.Join(lines[:min(len(lines), maxManLines)], "\n")
	return dataResult(map[string]any{
		"found":       true,
		"command":     args.Command,
		"content":     content,
		"truncated":   len(lines) > maxManLines,
		"total_lines": len(lines),
	})
}

func (e *Executor) suggestedCommand(args suggestedCommandArgs) Result {
	if args.Command == "" {
		return errorResult("command argument is required")
	}
	return Result{
		Data: map[string]any{
			"command":     args.Command,
			"explanation": args.Explanation,
		},
		Final: &Suggestion{Command: args.Command, Explanation: args.Explanation},
	}
}

func dataResult(data map[string]any) Result {
	return Result{Data: data}
}

func errorResult(format string, args ...any) Result {
	return Result{Data: map[string]any{"error": fmt.Sprintf(format, args...)}}
}

// Declarations returns the fixed tool set advertised to the generation
// model. Defined once at daemon startup, read-only afterward.
func Declarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        NameCurrentDirectory,
				Description: "Get the user's current working directory path",
			},
			{
				Name:        NameListFiles,
				Description: "List files and directories in a given path",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"path": {
							Type:        genai.TypeString,
							Description: "The directory path to list (use '.' for current)",
						},
					},
					Required: []string{"path"},
				},
			},
			{
				Name:        NameCheckCommand,
				Description: "Check if a bash command or program is installed on the system",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"command": {
							Type:        genai.TypeString,
							Description: "The command name to check (e.g., 'git', 'docker')",
						},
					},
					Required: []string{"command"},
				},
			},
			{
				Name:        NameManPage,
				Description: "Retrieve the manual page for a given bash command",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"command": {
							Type:        genai.TypeString,
							Description: "The command name to get the manual for (e.g., 'ls', 'grep')",
						},
						"section": {
							Type:        genai.TypeString,
							Description: "Optional: Manual section number (1-8). Most commands are in section 1. Leave empty for default.",
						},
					},
					Required: []string{"command"},
				},
			},
			{
				Name:        NameSuggestedCommand,
				Description: "Provide the bash command that answers the user's question. Call this with the final command after explaining it.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"command": {
							Type:        genai.TypeString,
							Description: "The bash command to run",
						},
						"explanation": {
							Type:        genai.TypeString,
							Description: "Brief explanation of what the command does",
						},
					},
					Required: []string{"command", "explanation"},
				},
			},
		},
	}}
}
