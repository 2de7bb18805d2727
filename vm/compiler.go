// Package vm implements the bytecode compiler and stack-based virtual
// machine: AST -> types.Function, and types.Function -> executed program.
// Function bodies, upvalue capture, call dispatch, and exception unwinding
// follow a fetch-decode-dispatch design over this language's closures and
// classes.
package vm

import (
	"fmt"

	"golang.org/x/exp/slices"

	"neutron/parser"
	"neutron/types"
)

type localVar struct {
	name       string
	depth      int // -1 while being defined (sentinel for "not yet initialized")
	isCaptured bool
	typeTag    string
}

// Compiler compiles one function body (the top-level script is itself a
// function with arity 0). Nested function/class method bodies compile
// with a child Compiler whose enclosing field links back to the parent,
// so upvalue capture can walk outward through any nesting depth.
type Compiler struct {
	enclosing  *Compiler
	fn         *types.Function
	locals     []localVar
	scopeDepth int

	loopStarts []int
	loopDepths []int
	breakJumps [][]int

	// globalTypes records the declared type tag of every typed global
	// seen so far, shared by every Compiler in this compile unit (only
	// the root ever populates it, since `var` at scope depth 0 only
	// happens at the top level — see defineVariable). Consulted when
	// compiling a later assignment to decide between OP_SET_GLOBAL and
	// OP_SET_GLOBAL_TYPED.
	globalTypes map[string]string
	file        string

	// safeDepth > 0 while compiling inside a `safe` region; every binding
	// declared there must carry a type annotation (spec.md §4.1).
	safeDepth int

	errors []*types.CompileError
}

// CompileProgram compiles a parsed top-level statement list into the
// script's entry-point Function (arity 0, no parameters), tagged with a
// generic "<script>" source name.
func CompileProgram(stmts []parser.Stmt) (*types.Function, []*types.CompileError) {
	return CompileFile(stmts, "<script>")
}

// CompileFile is CompileProgram tagged with the real source-file name, so
// that uncaught-exception diagnostics (spec.md §7) can report it; used by
// the module loader when `use "path"` compiles a script file's chunk.
func CompileFile(stmts []parser.Stmt, file string) (*types.Function, []*types.CompileError) {
	c := &Compiler{fn: types.NewFunction("<script>", 0), globalTypes: make(map[string]string), file: file}
	c.fn.File = file
	c.locals = append(c.locals, localVar{name: "", depth: 0}) // slot 0 reserved for the call's receiver/script object
	for _, s := range stmts {
		c.compileStmt(s)
	}
	c.emitReturn(0)
	return c.fn, c.errors
}

func (c *Compiler) errorf(line int, format string, args ...any) {
	c.errors = append(c.errors, &types.CompileError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (c *Compiler) chunk() *types.Chunk { return c.fn.Chunk }

func (c *Compiler) emit(b byte, line int) int        { return c.chunk().Write(b, line) }
func (c *Compiler) emitOp(op types.OpCode, line int) { c.chunk().WriteOp(op, line) }
func (c *Compiler) emitOpByte(op types.OpCode, arg byte, line int) {
	c.emitOp(op, line)
	c.emit(arg, line)
}

func (c *Compiler) emitConstant(v types.Value, line int) {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.emitOp(types.OP_CONSTANT_LONG, line)
		c.chunk().WriteShort(uint16(idx), line)
		return
	}
	c.emitOpByte(types.OP_CONSTANT, byte(idx), line)
}

func (c *Compiler) emitJump(op types.OpCode, line int) int {
	c.emitOp(op, line)
	c.chunk().WriteShort(0xFFFF, line)
	return c.chunk().Len() - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := c.chunk().Len() - offset - 2
	if jump > 0xFFFF {
		c.errorf(c.chunk().Lines[offset], "jump target exceeds 16-bit range")
		jump = 0
	}
	c.chunk().PatchShort(offset, uint16(jump))
}

func (c *Compiler) emitLoop(start int, line int) {
	c.emitOp(types.OP_LOOP, line)
	back := c.chunk().Len() - start + 2
	if back > 0xFFFF {
		c.errorf(line, "loop body exceeds 16-bit jump range")
		back = 0
	}
	c.chunk().WriteShort(uint16(back), line)
}

// nameConstant interns an identifier into the constant pool for the
// one-byte named opcodes (globals, properties, methods, imports).
func (c *Compiler) nameConstant(name string, line int) byte {
	idx := c.chunk().AddConstant(types.NewString(name))
	if idx > 255 {
		c.errorf(line, "too many distinct names in one chunk")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitReturn(line int) {
	c.emitOp(types.OP_NIL, line)
	c.emitOp(types.OP_RETURN, line)
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope(line int) {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emitOp(types.OP_CLOSE_UPVALUE, line)
		} else {
			c.emitOp(types.OP_POP, line)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) declareLocal(name, typeTag string, line int) {
	if c.safeDepth > 0 && name != "" && typeTag == "" {
		c.errorf(line, "%q must carry a type annotation inside a safe block", name)
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth != -1 && c.locals[i].depth < c.scopeDepth {
			break
		}
		if name != "" && c.locals[i].name == name {
			c.errorf(line, "%q is already declared in this scope", name)
		}
	}
	c.locals = append(c.locals, localVar{name: name, depth: -1, typeTag: typeTag})
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue finds name in an enclosing function, adding a capture
// entry to this compiler's function and returning its upvalue index.
// Mirrors the classic clox addUpvalue/resolveUpvalue recursive scheme.
func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(byte(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(byte(up), false)
	}
	return -1
}

// addUpvalue records a new upvalue capture, or returns the index of an
// existing one: "duplicate captures in the same function share a slot"
// (spec.md §4.1).
func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	want := types.UpvalueInfo{IsLocal: isLocal, Index: int(index)}
	if i := slices.IndexFunc(c.fn.UpvalueInfo, func(uv types.UpvalueInfo) bool { return uv == want }); i != -1 {
		return i
	}
	c.fn.UpvalueInfo = append(c.fn.UpvalueInfo, want)
	return len(c.fn.UpvalueInfo) - 1
}

// --- Statements ---

func (c *Compiler) compileStmt(s parser.Stmt) {
	line := s.Position().Line
	switch st := s.(type) {
	case *parser.ExprStmt:
		c.compileExpr(st.Expr)
		c.emitOp(types.OP_POP, line)
	case *parser.SayStmt:
		c.compileExpr(st.Expr)
		c.emitOp(types.OP_SAY, line)
	case *parser.VarStmt:
		if c.scopeDepth > 0 {
			// Declare before compiling the initializer so a self-reference
			// inside it trips the sentinel-depth check instead of silently
			// reading an enclosing binding.
			c.declareLocal(st.Name, st.TypeTag, line)
			if st.Value != nil {
				c.compileExpr(st.Value)
			} else {
				c.emitOp(types.OP_NIL, line)
			}
			c.markInitialized()
			return
		}
		if st.Value != nil {
			c.compileExpr(st.Value)
		} else {
			c.emitOp(types.OP_NIL, line)
		}
		c.defineVariable(st.Name, st.TypeTag, line)
	case *parser.BlockStmt:
		c.beginScope()
		for _, inner := range st.Stmts {
			c.compileStmt(inner)
		}
		c.endScope(line)
	case *parser.IfStmt:
		c.compileExpr(st.Cond)
		thenJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
		c.emitOp(types.OP_POP, line)
		c.compileStmt(st.Then)
		elseJump := c.emitJump(types.OP_JUMP, line)
		c.patchJump(thenJump)
		c.emitOp(types.OP_POP, line)
		if st.Else != nil {
			c.compileStmt(st.Else)
		}
		c.patchJump(elseJump)
	case *parser.WhileStmt:
		c.compileWhile(st, line)
	case *parser.DoWhileStmt:
		c.compileDoWhile(st, line)
	case *parser.ReturnStmt:
		if st.Value != nil {
			c.compileExpr(st.Value)
		} else {
			c.emitOp(types.OP_NIL, line)
		}
		c.emitOp(types.OP_RETURN, line)
	case *parser.BreakStmt:
		if len(c.breakJumps) == 0 {
			c.errorf(line, "break outside of a loop")
			return
		}
		c.discardLoopLocals(line)
		j := c.emitJump(types.OP_JUMP, line)
		top := len(c.breakJumps) - 1
		c.breakJumps[top] = append(c.breakJumps[top], j)
	case *parser.ContinueStmt:
		if len(c.loopStarts) == 0 {
			c.errorf(line, "continue outside of a loop")
			return
		}
		c.discardLoopLocals(line)
		c.emitLoop(c.loopStarts[len(c.loopStarts)-1], line)
	case *parser.FunctionStmt:
		if c.scopeDepth > 0 {
			// The closure lands directly in the new local's slot; marking
			// it initialized first lets the body refer to itself.
			c.declareLocal(st.Fn.Name, "", line)
			c.markInitialized()
			c.compileFunctionExpr(st.Fn, false)
			return
		}
		c.compileFunctionExpr(st.Fn, false)
		c.emitOpByte(types.OP_DEFINE_GLOBAL, c.nameConstant(st.Fn.Name, line), line)
	case *parser.ClassStmt:
		c.compileClass(st, line)
	case *parser.UseStmt:
		c.emitOpByte(types.OP_IMPORT, c.nameConstant(st.Path, line), line)
		name := st.Alias
		if name == "" {
			name = st.Path
		}
		c.defineVariable(name, "", line)
	case *parser.ThrowStmt:
		c.compileExpr(st.Value)
		c.emitOp(types.OP_THROW, line)
	case *parser.TryStmt:
		c.compileTry(st, line)
	case *parser.SafeStmt:
		flag := byte(0) // block-level; the whole-file mode sets bit 0
		if c.scopeDepth == 0 && c.enclosing == nil {
			flag = 1
		}
		c.emitOpByte(types.OP_VALIDATE_SAFE, flag, line)
		c.safeDepth++
		c.compileStmt(st.Body)
		c.safeDepth--
	case *parser.MatchStmt:
		c.compileMatch(st, line)
	default:
		c.errorf(line, "unsupported statement %T", s)
	}
}

func (c *Compiler) compileWhile(st *parser.WhileStmt, line int) {
	start := c.chunk().Len()
	c.loopStarts = append(c.loopStarts, start)
	c.loopDepths = append(c.loopDepths, c.scopeDepth)
	c.breakJumps = append(c.breakJumps, nil)

	c.compileExpr(st.Cond)
	exitJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
	c.emitOp(types.OP_POP, line)
	c.compileStmt(st.Body)
	c.emitLoop(start, line)
	c.patchJump(exitJump)
	c.emitOp(types.OP_POP, line)

	c.patchBreaks(line)
}

func (c *Compiler) compileDoWhile(st *parser.DoWhileStmt, line int) {
	start := c.chunk().Len()
	c.loopStarts = append(c.loopStarts, start)
	c.loopDepths = append(c.loopDepths, c.scopeDepth)
	c.breakJumps = append(c.breakJumps, nil)

	c.compileStmt(st.Body)
	c.compileExpr(st.Cond)
	exitJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
	c.emitLoop(start, line)
	c.patchJump(exitJump)

	c.patchBreaks(line)
}

func (c *Compiler) patchBreaks(line int) {
	jumps := c.breakJumps[len(c.breakJumps)-1]
	c.breakJumps = c.breakJumps[:len(c.breakJumps)-1]
	c.loopStarts = c.loopStarts[:len(c.loopStarts)-1]
	c.loopDepths = c.loopDepths[:len(c.loopDepths)-1]
	for _, j := range jumps {
		c.patchJump(j)
	}
}

// discardLoopLocals emits pops for every local declared since the
// innermost loop began, without touching the compile-time locals table —
// break/continue leave the lexical scope early but the rest of the loop
// body still compiles against the full table.
func (c *Compiler) discardLoopLocals(line int) {
	depth := c.loopDepths[len(c.loopDepths)-1]
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth != -1 && c.locals[i].depth <= depth {
			break
		}
		if c.locals[i].isCaptured {
			c.emitOp(types.OP_CLOSE_UPVALUE, line)
		} else {
			c.emitOp(types.OP_POP, line)
		}
	}
}

func (c *Compiler) compileTry(st *parser.TryStmt, line int) {
	tryJump := c.emitJump(types.OP_TRY, line)
	c.compileStmt(st.Body)
	c.emitOp(types.OP_END_TRY, line)
	doneJump := c.emitJump(types.OP_JUMP, line)

	c.patchJump(tryJump)
	if st.CatchBody != nil {
		c.beginScope()
		if st.CatchName != "" {
			c.declareLocal(st.CatchName, "", line)
			c.markInitialized()
		} else {
			c.emitOp(types.OP_POP, line)
		}
		c.compileStmt(st.CatchBody)
		c.endScope(line)
	} else {
		c.emitOp(types.OP_POP, line)
	}
	c.patchJump(doneJump)
}

func (c *Compiler) compileMatch(st *parser.MatchStmt, line int) {
	c.compileExpr(st.Subject)
	c.beginScope()
	c.declareLocal("", "", line)
	c.markInitialized()
	subjectSlot := byte(len(c.locals) - 1)

	var endJumps []int
	for _, cs := range st.Cases {
		if cs.Pattern == nil {
			c.compileStmt(cs.Body)
			continue
		}
		c.emitOpByte(types.OP_GET_LOCAL, subjectSlot, line)
		c.compileExpr(cs.Pattern)
		c.emitOp(types.OP_EQUAL, line)
		skip := c.emitJump(types.OP_JUMP_IF_FALSE, line)
		c.emitOp(types.OP_POP, line)
		c.compileStmt(cs.Body)
		endJumps = append(endJumps, c.emitJump(types.OP_JUMP, line))
		c.patchJump(skip)
		c.emitOp(types.OP_POP, line)
	}
	for _, j := range endJumps {
		c.patchJump(j)
	}
	c.endScope(line)
}

func (c *Compiler) compileClass(st *parser.ClassStmt, line int) {
	c.emitOpByte(types.OP_CLASS, c.nameConstant(st.Name, line), line)
	c.defineVariable(st.Name, "", line)
	c.getOrSetVariable(st.Name, line, false)

	for _, m := range st.Methods {
		c.compileFunctionExpr(m, true)
		c.emitOpByte(types.OP_METHOD, c.nameConstant(m.Name, line), line)
	}
	c.emitOp(types.OP_POP, line)
}

// --- Expressions ---

func (c *Compiler) compileExpr(e parser.Expr) {
	line := e.Position().Line
	switch ex := e.(type) {
	case *parser.LiteralExpr:
		c.emitLiteral(ex.Value, line)
	case *parser.VariableExpr:
		c.getOrSetVariable(ex.Name, line, false)
	case *parser.ThisExpr:
		if c.fn.IsMethod {
			c.emitOp(types.OP_THIS, line)
		} else {
			c.getOrSetVariable("this", line, false)
		}
	case *parser.GroupingExpr:
		c.compileExpr(ex.Expr)
	case *parser.UnaryExpr:
		c.compileExpr(ex.Operand)
		c.emitUnaryOp(ex.Operator, line)
	case *parser.BinaryExpr:
		c.compileExpr(ex.Left)
		c.compileExpr(ex.Right)
		c.emitBinaryOp(ex.Operator, line)
	case *parser.LogicalExpr:
		c.compileLogical(ex, line)
	case *parser.TernaryExpr:
		c.compileExpr(ex.Cond)
		thenJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
		c.emitOp(types.OP_POP, line)
		c.compileExpr(ex.Then)
		elseJump := c.emitJump(types.OP_JUMP, line)
		c.patchJump(thenJump)
		c.emitOp(types.OP_POP, line)
		c.compileExpr(ex.Else)
		c.patchJump(elseJump)
	case *parser.AssignExpr:
		c.compileExpr(ex.Value)
		c.getOrSetVariable(ex.Name, line, true)
	case *parser.MemberExpr:
		c.compileExpr(ex.Receiver)
		c.emitOpByte(types.OP_GET_PROPERTY, c.nameConstant(ex.Name, line), line)
	case *parser.MemberSetExpr:
		c.compileExpr(ex.Receiver)
		c.compileExpr(ex.Value)
		c.emitOpByte(types.OP_SET_PROPERTY, c.nameConstant(ex.Name, line), line)
	case *parser.IndexExpr:
		c.compileExpr(ex.Receiver)
		c.compileExpr(ex.Index)
		c.emitOp(types.OP_INDEX_GET, line)
	case *parser.IndexSetExpr:
		c.compileExpr(ex.Receiver)
		c.compileExpr(ex.Index)
		c.compileExpr(ex.Value)
		c.emitOp(types.OP_INDEX_SET, line)
	case *parser.CallExpr:
		c.compileExpr(ex.Callee)
		for _, a := range ex.Args {
			c.compileExpr(a)
		}
		c.emitOpByte(types.OP_CALL, byte(len(ex.Args)), line)
	case *parser.ArrayExpr:
		for _, el := range ex.Elements {
			c.compileExpr(el)
		}
		c.emitOpByte(types.OP_ARRAY, byte(len(ex.Elements)), line)
	case *parser.ObjectExpr:
		for i, v := range ex.Values {
			c.emitConstant(types.NewString(ex.Keys[i]), line)
			c.compileExpr(v)
		}
		c.emitOpByte(types.OP_OBJECT, byte(len(ex.Keys)), line)
	case *parser.FunctionExpr:
		c.compileFunctionExpr(ex, false)
	default:
		c.errorf(line, "unsupported expression %T", e)
	}
}

func (c *Compiler) emitLiteral(v types.Value, line int) {
	switch val := v.(type) {
	case types.Nil:
		c.emitOp(types.OP_NIL, line)
	case types.Bool:
		if val {
			c.emitOp(types.OP_TRUE, line)
		} else {
			c.emitOp(types.OP_FALSE, line)
		}
	default:
		c.emitConstant(v, line)
	}
}

func (c *Compiler) compileLogical(ex *parser.LogicalExpr, line int) {
	c.compileExpr(ex.Left)
	if ex.Operator == parser.TOKEN_AND {
		endJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
		c.emitOp(types.OP_POP, line)
		c.compileExpr(ex.Right)
		c.patchJump(endJump)
		return
	}
	elseJump := c.emitJump(types.OP_JUMP_IF_FALSE, line)
	endJump := c.emitJump(types.OP_JUMP, line)
	c.patchJump(elseJump)
	c.emitOp(types.OP_POP, line)
	c.compileExpr(ex.Right)
	c.patchJump(endJump)
}

func (c *Compiler) emitUnaryOp(op parser.TokenType, line int) {
	switch op {
	case parser.TOKEN_MINUS:
		c.emitOp(types.OP_NEGATE, line)
	case parser.TOKEN_BANG:
		c.emitOp(types.OP_NOT, line)
	case parser.TOKEN_TILDE:
		c.emitOp(types.OP_BITWISE_NOT, line)
	}
}

func (c *Compiler) emitBinaryOp(op parser.TokenType, line int) {
	switch op {
	case parser.TOKEN_PLUS:
		c.emitOp(types.OP_ADD, line)
	case parser.TOKEN_MINUS:
		c.emitOp(types.OP_SUBTRACT, line)
	case parser.TOKEN_STAR:
		c.emitOp(types.OP_MULTIPLY, line)
	case parser.TOKEN_SLASH:
		c.emitOp(types.OP_DIVIDE, line)
	case parser.TOKEN_PERCENT:
		c.emitOp(types.OP_MODULO, line)
	case parser.TOKEN_EQ:
		c.emitOp(types.OP_EQUAL, line)
	case parser.TOKEN_NE:
		c.emitOp(types.OP_NOT_EQUAL, line)
	case parser.TOKEN_LT:
		c.emitOp(types.OP_LESS, line)
	case parser.TOKEN_LE:
		c.emitOp(types.OP_LESS_EQUAL, line)
	case parser.TOKEN_GT:
		c.emitOp(types.OP_GREATER, line)
	case parser.TOKEN_GE:
		c.emitOp(types.OP_GREATER_EQUAL, line)
	case parser.TOKEN_AMP:
		c.emitOp(types.OP_BITWISE_AND, line)
	case parser.TOKEN_PIPE:
		c.emitOp(types.OP_BITWISE_OR, line)
	case parser.TOKEN_CARET:
		c.emitOp(types.OP_BITWISE_XOR, line)
	case parser.TOKEN_LSHIFT:
		c.emitOp(types.OP_LEFT_SHIFT, line)
	case parser.TOKEN_RSHIFT:
		c.emitOp(types.OP_RIGHT_SHIFT, line)
	}
}

// rootGlobalTypes returns the shared typed-global table, walking out to
// the outermost (script-level) Compiler — every nested function shares
// one compile unit's view of which globals carry a type annotation.
func (c *Compiler) rootGlobalTypes() map[string]string {
	root := c
	for root.enclosing != nil {
		root = root.enclosing
	}
	return root.globalTypes
}

// defineVariable declares and initializes name as a local (if inside a
// scope) or emits a global-definition opcode (at top level).
func (c *Compiler) defineVariable(name, typeTag string, line int) {
	if c.scopeDepth > 0 {
		c.declareLocal(name, typeTag, line)
		c.markInitialized()
		return
	}
	if c.safeDepth > 0 && typeTag == "" {
		c.errorf(line, "%q must carry a type annotation inside a safe block", name)
	}
	idx := c.nameConstant(name, line)
	if typeTag != "" {
		c.rootGlobalTypes()[name] = typeTag
		tagIdx := c.nameConstant(typeTag, line)
		c.emitOpByte(types.OP_DEFINE_TYPED_GLOBAL, idx, line)
		c.emit(tagIdx, line)
		return
	}
	c.emitOpByte(types.OP_DEFINE_GLOBAL, idx, line)
}

// getOrSetVariable resolves name to a local slot, an upvalue, or a global
// and emits the matching get/set opcode. Assignments to a typed local or
// typed global emit the *_TYPED variant carrying the declared type tag,
// per spec.md §4.1; the VM re-checks it against the assigned value.
func (c *Compiler) getOrSetVariable(name string, line int, isSet bool) {
	if slot := c.resolveLocal(name); slot != -1 {
		if c.locals[slot].depth == -1 && !isSet {
			c.errorf(line, "cannot read %q in its own initializer", name)
		}
		if isSet {
			if tag := c.locals[slot].typeTag; tag != "" {
				c.emitOpByte(types.OP_SET_LOCAL_TYPED, byte(slot), line)
				c.emit(c.nameConstant(tag, line), line)
				return
			}
			c.emitOpByte(types.OP_SET_LOCAL, byte(slot), line)
		} else {
			c.emitOpByte(types.OP_GET_LOCAL, byte(slot), line)
		}
		return
	}
	if up := c.resolveUpvalue(name); up != -1 {
		if isSet {
			c.emitOpByte(types.OP_SET_UPVALUE, byte(up), line)
		} else {
			c.emitOpByte(types.OP_GET_UPVALUE, byte(up), line)
		}
		return
	}
	if isSet {
		if tag, ok := c.rootGlobalTypes()[name]; ok {
			c.emitOpByte(types.OP_SET_GLOBAL_TYPED, c.nameConstant(name, line), line)
			c.emit(c.nameConstant(tag, line), line)
			return
		}
	}
	if isSet {
		c.emitOpByte(types.OP_SET_GLOBAL, c.nameConstant(name, line), line)
	} else {
		c.emitOpByte(types.OP_GET_GLOBAL, c.nameConstant(name, line), line)
	}
}

// compileFunctionExpr compiles a nested function body with a child
// Compiler, emits it as a constant, and emits OP_CLOSURE with its
// upvalue capture list.
func (c *Compiler) compileFunctionExpr(fn *parser.FunctionExpr, isMethod bool) {
	line := fn.Position().Line
	child := &Compiler{enclosing: c, fn: types.NewFunction(fn.Name, len(fn.Params)), file: c.file, safeDepth: c.safeDepth}
	child.fn.IsMethod = isMethod
	child.fn.File = c.file
	child.locals = append(child.locals, localVar{name: "this", depth: 0})
	// The function body is its own local scope (depth 1), not the global
	// scope (depth 0) the child Compiler starts at — otherwise top-level
	// `var` statements in a function body would wrongly compile as
	// globals instead of locals, breaking upvalue capture of them.
	child.beginScope()
	for _, p := range fn.Params {
		child.declareLocal(p.Name, p.TypeTag, line)
		child.markInitialized()
	}
	for _, s := range fn.Body {
		child.compileStmt(s)
	}
	if isMethod && fn.Name == "init" {
		// An initializer's implicit return yields its receiver, so calling
		// the class evaluates to the new instance.
		child.emitOpByte(types.OP_GET_LOCAL, 0, line)
		child.emitOp(types.OP_RETURN, line)
	} else {
		child.emitReturn(line)
	}
	c.errors = append(c.errors, child.errors...)

	idx := c.chunk().AddConstant(child.fn)
	if idx > 255 {
		c.errorf(line, "too many constants in one chunk")
		idx = 0
	}
	c.emitOpByte(types.OP_CLOSURE, byte(idx), line)
	for _, uv := range child.fn.UpvalueInfo {
		if uv.IsLocal {
			c.emit(1, line)
		} else {
			c.emit(0, line)
		}
		c.emit(byte(uv.Index), line)
	}
}
