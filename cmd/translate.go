package cmd

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/subsh-org/subsh/internal/pipeline"
	"github.com/subsh-org/subsh/internal/shell"
)

// parsedPipeline is one pipeline lifted out of a command line, with the
// connector gating it on the previous one.
type parsedPipeline struct {
	stages     []shell.Stage
	op         pipeline.Connector
	background bool
}

// translate turns a POSIX-ish command line into pipelines for the engine.
// The engine consumes token lists; this is the CLI's thin front end and
// deliberately rejects everything beyond simple commands, pipes, logical
// connectors, redirects and leading env assignments. No expansion happens
// here.
func translate(line string) ([]parsedPipeline, error) {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, fmt.Errorf("parsing command line: %w", err)
	}
	var out []parsedPipeline
	for _, stmt := range file.Stmts {
		if err := walkStmt(&out, stmt, pipeline.Unconditional); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty command line")
	}
	return out, nil
}

func walkStmt(out *[]parsedPipeline, stmt *syntax.Stmt, op pipeline.Connector) error {
	if bin, ok := stmt.Cmd.(*syntax.BinaryCmd); ok &&
		(bin.Op == syntax.AndStmt || bin.Op == syntax.OrStmt) {
		if err := walkStmt(out, bin.X, op); err != nil {
			return err
		}
		next := pipeline.And
		if bin.Op == syntax.OrStmt {
			next = pipeline.Or
		}
		return walkStmt(out, bin.Y, next)
	}

	pp := parsedPipeline{op: op, background: stmt.Background}
	for _, stage := range flattenPipe(stmt) {
		tokens, env, err := stageTokens(stage)
		if err != nil {
			return err
		}
		pp.stages = append(pp.stages, shell.Stage{Tokens: tokens, Env: env})
	}
	*out = append(*out, pp)
	return nil
}

// flattenPipe collects the stages of a pipe sequence in declaration
// order, whichever way the parser associated them.
func flattenPipe(stmt *syntax.Stmt) []*syntax.Stmt {
	bin, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok || bin.Op != syntax.Pipe {
		return []*syntax.Stmt{stmt}
	}
	return append(flattenPipe(bin.X), flattenPipe(bin.Y)...)
}

// stageTokens renders one simple command into the engine's token list:
// argv words followed by redirect tokens, plus env deltas from leading
// assignments.
func stageTokens(stmt *syntax.Stmt) ([]string, map[string]string, error) {
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported shell syntax near %s: only simple commands can feed the engine", stmt.Pos())
	}

	var env map[string]string
	for _, assign := range call.Assigns {
		if assign.Name == nil || assign.Value == nil {
			return nil, nil, fmt.Errorf("unsupported assignment near %s", assign.Pos())
		}
		val, err := wordText(assign.Value)
		if err != nil {
			return nil, nil, err
		}
		if env == nil {
			env = make(map[string]string)
		}
		env[assign.Name.Value] = val
	}
	if len(call.Args) == 0 {
		return nil, nil, fmt.Errorf("assignment without a command near %s", stmt.Pos())
	}

	tokens := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		text, err := wordText(w)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, text)
	}
	for _, r := range stmt.Redirs {
		toks, err := redirTokens(r)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, toks...)
	}
	return tokens, env, nil
}

func wordText(w *syntax.Word) (string, error) {
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, dp := range p.Parts {
				lit, ok := dp.(*syntax.Lit)
				if !ok {
					return "", fmt.Errorf("unsupported expansion near %s: the engine takes expanded tokens", dp.Pos())
				}
				b.WriteString(lit.Value)
			}
		default:
			return "", fmt.Errorf("unsupported expansion near %s: the engine takes expanded tokens", part.Pos())
		}
	}
	return b.String(), nil
}

func redirTokens(r *syntax.Redirect) ([]string, error) {
	prefix := ""
	if r.N != nil {
		prefix = r.N.Value
	}
	target := ""
	if r.Word != nil {
		var err error
		if target, err = wordText(r.Word); err != nil {
			return nil, err
		}
	}
	switch r.Op {
	case syntax.RdrIn:
		return []string{"<", target}, nil
	case syntax.RdrOut, syntax.ClbOut:
		return []string{prefix + ">", target}, nil
	case syntax.AppOut:
		return []string{prefix + ">>", target}, nil
	case syntax.RdrAll:
		return []string{"&>", target}, nil
	case syntax.AppAll:
		return []string{"&>>", target}, nil
	case syntax.DplOut:
		tok := prefix + ">&" + target
		if tok != "2>&1" && tok != "1>&2" {
			return nil, fmt.Errorf("unsupported duplication %q near %s", tok, r.Pos())
		}
		return []string{tok}, nil
	default:
		return nil, fmt.Errorf("unsupported redirect %s near %s", r.Op.String(), r.Pos())
	}
}
