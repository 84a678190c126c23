package adapter

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"parseltongue/internal/isg"
	"parseltongue/internal/keyid"
)

// GoAdapter extracts entities and call/use edges from Go source using the
// standard library's own parser — the teacher's "Cartographer" approach
// (go/parser + go/ast.Inspect) rather than tree-sitter, since Go ships a
// fully-featured AST in the standard library and the teacher's own
// Cartographer never reaches for tree-sitter on .go files either.
type GoAdapter struct{}

// NewGoAdapter returns a ready-to-use Go adapter.
func NewGoAdapter() *GoAdapter { return &GoAdapter{} }

func (a *GoAdapter) Language() isg.Language { return isg.LangGo }

func (a *GoAdapter) SupportedExtensions() []string { return []string{".go"} }

func (a *GoAdapter) Parse(ctx context.Context, path string, content []byte) (Result, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		// A malformed file is absorbed, not propagated: resilience (§4.B).
		return Result{Diagnostics: []Diagnostic{{File: path, Message: err.Error()}}}, nil
	}

	pkgName := node.Name.Name
	var result Result
	offset := 0

	moduleKey := fmt.Sprintf("pkg:%s", pkgName)
	result.Entities = append(result.Entities, isg.Entity{
		Key:        moduleKey,
		Kind:       isg.KindModule,
		Name:       pkgName,
		Language:   isg.LangGo,
		FilePath:   path,
		Visibility: isg.VisibilityPublic,
		InterfaceSignature: isg.Signature{
			Name: pkgName,
		},
		CurrentInd: true,
		FutureInd:  true,
	})

	for _, imp := range node.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		result.Edges = append(result.Edges, EdgeCandidate{
			From:   moduleKey,
			ToName: fmt.Sprintf("pkg:%s", importPath),
			Type:   isg.EdgeUses,
			Offset: offset,
		})
		offset++
	}

	ast.Inspect(node, func(n ast.Node) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		switch x := n.(type) {
		case *ast.FuncDecl:
			name := x.Name.Name
			recv := ""
			if x.Recv != nil {
				for _, field := range x.Recv.List {
					switch t := field.Type.(type) {
					case *ast.Ident:
						recv = t.Name
					case *ast.StarExpr:
						if ident, ok := t.X.(*ast.Ident); ok {
							recv = ident.Name
						}
					}
				}
			}

			kind := isg.KindFunction
			id := fmt.Sprintf("%s.%s", pkgName, name)
			if recv != "" {
				kind = isg.KindMethod
				id = fmt.Sprintf("%s.%s.%s", pkgName, recv, name)
			}
			start := fset.Position(x.Pos()).Line
			end := fset.Position(x.End()).Line
			vis := isg.VisibilityPrivate
			if ast.IsExported(name) {
				vis = isg.VisibilityPublic
			}

			result.Entities = append(result.Entities, isg.Entity{
				Key:        lineKey(isg.LangGo, kind, name, path, start, end, id),
				Ref:        id,
				Kind:       kind,
				Name:       name,
				Language:   isg.LangGo,
				FilePath:   path,
				LineRange:  &isg.LineRange{Start: start, End: end},
				Visibility: vis,
				InterfaceSignature: isg.Signature{
					Name:       name,
					Parameters: funcParams(x.Type),
					ReturnType: funcReturn(x.Type),
				},
				CurrentInd: true,
				FutureInd:  true,
			})

			if recv != "" {
				recvKey := fmt.Sprintf("%s.%s", pkgName, recv)
				result.Edges = append(result.Edges, EdgeCandidate{From: recvKey, ToName: id, Type: isg.EdgeContains, Offset: offset})
				offset++
			} else {
				result.Edges = append(result.Edges, EdgeCandidate{From: moduleKey, ToName: id, Type: isg.EdgeContains, Offset: offset})
				offset++
			}

			// Calls are collected with a separate, scoped Inspect over just
			// this function's body rather than tracked via a "current
			// function" variable on the outer walk: ast.Inspect visits nodes
			// in a single flat pre-order sequence with no built-in notion of
			// "leaving" a FuncDecl, so a package-level call appearing after
			// the first function in the file (e.g. in a var initializer)
			// would otherwise be misattributed to whichever function was
			// last seen.
			if x.Body != nil {
				ast.Inspect(x.Body, func(bn ast.Node) bool {
					call, ok := bn.(*ast.CallExpr)
					if !ok {
						return true
					}
					var callee string
					switch fn := call.Fun.(type) {
					case *ast.Ident:
						callee = fmt.Sprintf("%s.%s", pkgName, fn.Name)
					case *ast.SelectorExpr:
						if ident, ok := fn.X.(*ast.Ident); ok {
							callee = fmt.Sprintf("%s.%s", ident.Name, fn.Sel.Name)
						}
					}
					if callee != "" {
						result.Edges = append(result.Edges, EdgeCandidate{From: id, ToName: callee, Type: isg.EdgeCalls, Offset: offset})
						offset++
					}
					return true
				})
			}

		case *ast.TypeSpec:
			name := x.Name.Name
			id := fmt.Sprintf("%s.%s", pkgName, name)
			start := fset.Position(x.Pos()).Line
			end := fset.Position(x.End()).Line

			kind := isg.KindTypeAlias
			switch x.Type.(type) {
			case *ast.StructType:
				kind = isg.KindStruct
			case *ast.InterfaceType:
				kind = isg.KindTrait
			}

			vis := isg.VisibilityPrivate
			if ast.IsExported(name) {
				vis = isg.VisibilityPublic
			}

			result.Entities = append(result.Entities, isg.Entity{
				Key:        lineKey(isg.LangGo, kind, name, path, start, end, id),
				Ref:        id,
				Kind:       kind,
				Name:       name,
				Language:   isg.LangGo,
				FilePath:   path,
				LineRange:  &isg.LineRange{Start: start, End: end},
				Visibility: vis,
				InterfaceSignature: isg.Signature{
					Name: name,
				},
				CurrentInd: true,
				FutureInd:  true,
			})
			result.Edges = append(result.Edges, EdgeCandidate{From: moduleKey, ToName: id, Type: isg.EdgeContains, Offset: offset})
			offset++
		}
		return true
	})

	return result, nil
}

// lineKey builds a canonical keyid.LineKey, falling back to the ad hoc
// qualified name fallback if the inputs somehow can't be represented (a Go
// identifier never contains a colon, so this only guards unusual paths).
func lineKey(lang isg.Language, kind isg.Kind, name, path string, start, end int, fallback string) string {
	key, err := keyid.LineKey(string(lang), string(kind), name, path, start, end)
	if err != nil {
		return fallback
	}
	return key
}

func funcParams(t *ast.FuncType) []isg.Param {
	if t == nil || t.Params == nil {
		return nil
	}
	var params []isg.Param
	for _, field := range t.Params.List {
		typeName := exprString(field.Type)
		if len(field.Names) == 0 {
			params = append(params, isg.Param{Type: typeName})
			continue
		}
		for _, n := range field.Names {
			params = append(params, isg.Param{Name: n.Name, Type: typeName})
		}
	}
	return params
}

func funcReturn(t *ast.FuncType) string {
	if t == nil || t.Results == nil || len(t.Results.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range t.Results.List {
		parts = append(parts, exprString(field.Type))
	}
	return strings.Join(parts, ", ")
}

// exprString renders a type expression as source-like text without
// importing go/printer, which would require a *token.FileSet round-trip
// the caller doesn't have handy at this point.
func exprString(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.InterfaceType:
		return "interface{}"
	default:
		return "?"
	}
}
