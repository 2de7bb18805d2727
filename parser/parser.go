package parser

import (
	"fmt"
	"strconv"

	"neutron/types"
)

// Parser is a Pratt (precedence-climbing) recursive-descent parser
// producing the AST consumed by the compiler.
type Parser struct {
	lex     *Lexer
	current Token
	errors  []*types.CompileError
}

func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	return p
}

func (p *Parser) advance() Token {
	tok := p.current
	p.current = p.lex.Next()
	return tok
}

func (p *Parser) check(t TokenType) bool { return p.current.Type == t }

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType, context string) Token {
	if !p.check(t) {
		p.errorf("expected %s %s, got %s", t, context, p.current.Type)
		return p.current
	}
	return p.advance()
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, &types.CompileError{
		Line:    p.current.Position.Line,
		Message: fmt.Sprintf(format, args...),
	})
}

// Errors returns all diagnostics accumulated while parsing.
func (p *Parser) Errors() []*types.CompileError { return p.errors }

// ParseProgram parses a whole source file into a list of top-level
// statements (a function body wrapping the module/script entry point).
func (p *Parser) ParseProgram() []Stmt {
	var stmts []Stmt
	for !p.check(TOKEN_EOF) {
		stmts = append(stmts, p.declaration())
	}
	return stmts
}

func (p *Parser) declaration() Stmt {
	switch {
	case p.check(TOKEN_FUNC):
		return p.functionDecl()
	case p.check(TOKEN_CLASS):
		return p.classDecl()
	case p.check(TOKEN_VAR):
		return p.varDecl()
	default:
		return p.statement()
	}
}

func (p *Parser) typeTag() string {
	if p.match(TOKEN_COLON) {
		name := p.expect(TOKEN_IDENTIFIER, "as type name after ':'")
		return name.Value
	}
	return ""
}

func (p *Parser) varDecl() Stmt {
	pos := p.current.Position
	p.advance() // 'var'
	name := p.expect(TOKEN_IDENTIFIER, "after 'var'")
	tag := p.typeTag()
	var value Expr
	if p.match(TOKEN_ASSIGN) {
		value = p.expression()
	}
	p.match(TOKEN_SEMICOLON)
	return &VarStmt{Pos: pos, Name: name.Value, TypeTag: tag, Value: value}
}

func (p *Parser) functionDecl() Stmt {
	pos := p.current.Position
	p.advance() // 'func'
	name := p.expect(TOKEN_IDENTIFIER, "after 'func'")
	fn := p.functionBody(name.Value, pos)
	return &FunctionStmt{Pos: pos, Fn: fn}
}

func (p *Parser) functionBody(name string, pos Position) *FunctionExpr {
	p.expect(TOKEN_LPAREN, "after function name")
	var params []Param
	for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
		pname := p.expect(TOKEN_IDENTIFIER, "as parameter name")
		params = append(params, Param{Name: pname.Value, TypeTag: p.typeTag()})
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RPAREN, "after parameter list")
	p.expect(TOKEN_LBRACE, "to start function body")
	body := p.blockStmts()
	return &FunctionExpr{Pos: pos, Name: name, Params: params, Body: body}
}

func (p *Parser) classDecl() Stmt {
	pos := p.current.Position
	p.advance() // 'class'
	name := p.expect(TOKEN_IDENTIFIER, "after 'class'")
	super := ""
	if p.match(TOKEN_COLON) {
		super = p.expect(TOKEN_IDENTIFIER, "as superclass name").Value
	}
	p.expect(TOKEN_LBRACE, "to start class body")
	var methods []*FunctionExpr
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) {
		mpos := p.current.Position
		mname := p.expect(TOKEN_IDENTIFIER, "as method name")
		methods = append(methods, p.functionBody(mname.Value, mpos))
	}
	p.expect(TOKEN_RBRACE, "to end class body")
	return &ClassStmt{Pos: pos, Name: name.Value, SuperName: super, Methods: methods}
}

func (p *Parser) blockStmts() []Stmt {
	var stmts []Stmt
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) {
		stmts = append(stmts, p.declaration())
	}
	p.expect(TOKEN_RBRACE, "to close block")
	return stmts
}

func (p *Parser) statement() Stmt {
	switch p.current.Type {
	case TOKEN_LBRACE:
		pos := p.current.Position
		p.advance()
		return &BlockStmt{Pos: pos, Stmts: p.blockStmts()}
	case TOKEN_SAY:
		pos := p.current.Position
		p.advance()
		e := p.expression()
		p.match(TOKEN_SEMICOLON)
		return &SayStmt{Pos: pos, Expr: e}
	case TOKEN_IF:
		return p.ifStmt()
	case TOKEN_WHILE:
		return p.whileStmt()
	case TOKEN_DO:
		return p.doWhileStmt()
	case TOKEN_RETURN:
		pos := p.current.Position
		p.advance()
		var v Expr
		if !p.check(TOKEN_SEMICOLON) && !p.check(TOKEN_RBRACE) {
			v = p.expression()
		}
		p.match(TOKEN_SEMICOLON)
		return &ReturnStmt{Pos: pos, Value: v}
	case TOKEN_BREAK:
		pos := p.current.Position
		p.advance()
		p.match(TOKEN_SEMICOLON)
		return &BreakStmt{Pos: pos}
	case TOKEN_CONTINUE:
		pos := p.current.Position
		p.advance()
		p.match(TOKEN_SEMICOLON)
		return &ContinueStmt{Pos: pos}
	case TOKEN_USE:
		return p.useStmt()
	case TOKEN_MATCH:
		return p.matchStmt()
	case TOKEN_TRY:
		return p.tryStmt()
	case TOKEN_THROW:
		pos := p.current.Position
		p.advance()
		v := p.expression()
		p.match(TOKEN_SEMICOLON)
		return &ThrowStmt{Pos: pos, Value: v}
	case TOKEN_SAFE:
		pos := p.current.Position
		p.advance()
		body := p.statement()
		return &SafeStmt{Pos: pos, Body: body}
	default:
		pos := p.current.Position
		e := p.expression()
		p.match(TOKEN_SEMICOLON)
		return &ExprStmt{Pos: pos, Expr: e}
	}
}

func (p *Parser) ifStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'if'
	p.expect(TOKEN_LPAREN, "after 'if'")
	cond := p.expression()
	p.expect(TOKEN_RPAREN, "after if condition")
	then := p.statement()
	var els Stmt
	if p.match(TOKEN_ELSE) {
		els = p.statement()
	}
	return &IfStmt{Pos: pos, Cond: cond, Then: then, Else: els}
}

func (p *Parser) whileStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'while'
	p.expect(TOKEN_LPAREN, "after 'while'")
	cond := p.expression()
	p.expect(TOKEN_RPAREN, "after while condition")
	body := p.statement()
	return &WhileStmt{Pos: pos, Cond: cond, Body: body}
}

func (p *Parser) doWhileStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'do'
	body := p.statement()
	p.expect(TOKEN_WHILE, "after do-block")
	p.expect(TOKEN_LPAREN, "after 'while'")
	cond := p.expression()
	p.expect(TOKEN_RPAREN, "after while condition")
	p.match(TOKEN_SEMICOLON)
	return &DoWhileStmt{Pos: pos, Body: body, Cond: cond}
}

func (p *Parser) useStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'use'
	path := p.expect(TOKEN_STRING, "as module path")
	alias := ""
	if p.match(TOKEN_ASSIGN) {
		alias = p.expect(TOKEN_IDENTIFIER, "as use alias").Value
	}
	p.match(TOKEN_SEMICOLON)
	return &UseStmt{Pos: pos, Path: path.Literal, Alias: alias}
}

func (p *Parser) matchStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'match'
	p.expect(TOKEN_LPAREN, "after 'match'")
	subject := p.expression()
	p.expect(TOKEN_RPAREN, "after match subject")
	p.expect(TOKEN_LBRACE, "to start match body")
	var cases []MatchCase
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) {
		var pattern Expr
		if p.match(TOKEN_CASE) {
			pattern = p.expression()
		} else {
			p.match(TOKEN_ELSE)
		}
		p.expect(TOKEN_ARROW, "after match case pattern")
		body := p.statement()
		cases = append(cases, MatchCase{Pattern: pattern, Body: body})
	}
	p.expect(TOKEN_RBRACE, "to end match body")
	return &MatchStmt{Pos: pos, Subject: subject, Cases: cases}
}

func (p *Parser) tryStmt() Stmt {
	pos := p.current.Position
	p.advance() // 'try'
	body := p.statement()
	catchName := ""
	var catchBody Stmt
	if p.match(TOKEN_CATCH) {
		if p.match(TOKEN_LPAREN) {
			catchName = p.expect(TOKEN_IDENTIFIER, "as caught binding name").Value
			p.expect(TOKEN_RPAREN, "after catch binding")
		}
		catchBody = p.statement()
	}
	return &TryStmt{Pos: pos, Body: body, CatchName: catchName, CatchBody: catchBody}
}

// --- Expressions (precedence climbing) ---

func (p *Parser) expression() Expr { return p.assignment() }

func (p *Parser) assignment() Expr {
	expr := p.ternary()

	if p.check(TOKEN_ASSIGN) || p.check(TOKEN_COLON_ASSIGN) {
		pos := p.current.Position
		typed := p.check(TOKEN_COLON_ASSIGN)
		p.advance()
		value := p.assignment()
		switch target := expr.(type) {
		case *VariableExpr:
			tag := ""
			if typed {
				tag = "any"
			}
			return &AssignExpr{Pos: pos, Name: target.Name, TypeTag: tag, Value: value}
		case *MemberExpr:
			return &MemberSetExpr{Pos: pos, Receiver: target.Receiver, Name: target.Name, Value: value}
		case *IndexExpr:
			return &IndexSetExpr{Pos: pos, Receiver: target.Receiver, Index: target.Index, Value: value}
		default:
			p.errorf("invalid assignment target")
			return expr
		}
	}
	return expr
}

func (p *Parser) ternary() Expr {
	cond := p.logicalOr()
	if p.match(TOKEN_QUESTION) {
		pos := p.current.Position
		then := p.expression()
		p.expect(TOKEN_COLON, "in ternary expression")
		els := p.assignment()
		return &TernaryExpr{Pos: pos, Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) logicalOr() Expr {
	expr := p.logicalAnd()
	for p.check(TOKEN_OR) {
		pos := p.current.Position
		op := p.advance().Type
		right := p.logicalAnd()
		expr = &LogicalExpr{Pos: pos, Left: expr, Operator: op, Right: right}
	}
	return expr
}

func (p *Parser) logicalAnd() Expr {
	expr := p.bitwiseOr()
	for p.check(TOKEN_AND) {
		pos := p.current.Position
		op := p.advance().Type
		right := p.bitwiseOr()
		expr = &LogicalExpr{Pos: pos, Left: expr, Operator: op, Right: right}
	}
	return expr
}

func (p *Parser) bitwiseOr() Expr {
	expr := p.bitwiseXor()
	for p.check(TOKEN_PIPE) {
		expr = p.binaryStep(expr, p.bitwiseXor)
	}
	return expr
}

func (p *Parser) bitwiseXor() Expr {
	expr := p.bitwiseAnd()
	for p.check(TOKEN_CARET) {
		expr = p.binaryStep(expr, p.bitwiseAnd)
	}
	return expr
}

func (p *Parser) bitwiseAnd() Expr {
	expr := p.equality()
	for p.check(TOKEN_AMP) {
		expr = p.binaryStep(expr, p.equality)
	}
	return expr
}

func (p *Parser) binaryStep(left Expr, next func() Expr) Expr {
	pos := p.current.Position
	op := p.advance().Type
	right := next()
	return &BinaryExpr{Pos: pos, Left: left, Operator: op, Right: right}
}

func (p *Parser) equality() Expr {
	expr := p.comparison()
	for p.check(TOKEN_EQ) || p.check(TOKEN_NE) {
		expr = p.binaryStep(expr, p.comparison)
	}
	return expr
}

func (p *Parser) comparison() Expr {
	expr := p.shift()
	for p.check(TOKEN_LT) || p.check(TOKEN_GT) || p.check(TOKEN_LE) || p.check(TOKEN_GE) {
		expr = p.binaryStep(expr, p.shift)
	}
	return expr
}

func (p *Parser) shift() Expr {
	expr := p.term()
	for p.check(TOKEN_LSHIFT) || p.check(TOKEN_RSHIFT) {
		expr = p.binaryStep(expr, p.term)
	}
	return expr
}

func (p *Parser) term() Expr {
	expr := p.factor()
	for p.check(TOKEN_PLUS) || p.check(TOKEN_MINUS) {
		expr = p.binaryStep(expr, p.factor)
	}
	return expr
}

func (p *Parser) factor() Expr {
	expr := p.unary()
	for p.check(TOKEN_STAR) || p.check(TOKEN_SLASH) || p.check(TOKEN_PERCENT) {
		expr = p.binaryStep(expr, p.unary)
	}
	return expr
}

func (p *Parser) unary() Expr {
	if p.check(TOKEN_BANG) || p.check(TOKEN_MINUS) || p.check(TOKEN_TILDE) {
		pos := p.current.Position
		op := p.advance().Type
		operand := p.unary()
		return &UnaryExpr{Pos: pos, Operator: op, Operand: operand}
	}
	return p.call()
}

func (p *Parser) call() Expr {
	expr := p.primary()
	for {
		switch {
		case p.check(TOKEN_LPAREN):
			pos := p.current.Position
			p.advance()
			var args []Expr
			for !p.check(TOKEN_RPAREN) && !p.check(TOKEN_EOF) {
				args = append(args, p.expression())
				if !p.match(TOKEN_COMMA) {
					break
				}
			}
			p.expect(TOKEN_RPAREN, "after call arguments")
			expr = &CallExpr{Pos: pos, Callee: expr, Args: args}
		case p.check(TOKEN_DOT):
			pos := p.current.Position
			p.advance()
			name := p.expect(TOKEN_IDENTIFIER, "after '.'")
			expr = &MemberExpr{Pos: pos, Receiver: expr, Name: name.Value}
		case p.check(TOKEN_LBRACKET):
			pos := p.current.Position
			p.advance()
			idx := p.expression()
			p.expect(TOKEN_RBRACKET, "after index expression")
			expr = &IndexExpr{Pos: pos, Receiver: expr, Index: idx}
		default:
			return expr
		}
	}
}

func (p *Parser) primary() Expr {
	pos := p.current.Position
	switch p.current.Type {
	case TOKEN_NUMBER:
		tok := p.advance()
		f, _ := strconv.ParseFloat(tok.Value, 64)
		return &LiteralExpr{Pos: pos, Value: types.NewNumber(f)}
	case TOKEN_STRING:
		tok := p.advance()
		return &LiteralExpr{Pos: pos, Value: types.NewString(tok.Literal)}
	case TOKEN_TRUE:
		p.advance()
		return &LiteralExpr{Pos: pos, Value: types.Bool(true)}
	case TOKEN_FALSE:
		p.advance()
		return &LiteralExpr{Pos: pos, Value: types.Bool(false)}
	case TOKEN_NIL:
		p.advance()
		return &LiteralExpr{Pos: pos, Value: types.NilValue}
	case TOKEN_THIS:
		p.advance()
		return &ThisExpr{Pos: pos}
	case TOKEN_IDENTIFIER:
		tok := p.advance()
		return &VariableExpr{Pos: pos, Name: tok.Value}
	case TOKEN_LPAREN:
		p.advance()
		e := p.expression()
		p.expect(TOKEN_RPAREN, "to close grouping")
		return &GroupingExpr{Pos: pos, Expr: e}
	case TOKEN_LBRACKET:
		p.advance()
		var elems []Expr
		for !p.check(TOKEN_RBRACKET) && !p.check(TOKEN_EOF) {
			elems = append(elems, p.expression())
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RBRACKET, "to close array literal")
		return &ArrayExpr{Pos: pos, Elements: elems}
	case TOKEN_LBRACE:
		return p.objectLiteral()
	case TOKEN_FUNC:
		p.advance()
		return p.functionBody("", pos)
	default:
		p.errorf("unexpected token %s", p.current.Type)
		p.advance()
		return &LiteralExpr{Pos: pos, Value: types.NilValue}
	}
}

func (p *Parser) objectLiteral() Expr {
	pos := p.current.Position
	p.advance() // '{'
	var keys []string
	var values []Expr
	for !p.check(TOKEN_RBRACE) && !p.check(TOKEN_EOF) {
		var key string
		if p.check(TOKEN_STRING) {
			key = p.advance().Literal
		} else {
			key = p.expect(TOKEN_IDENTIFIER, "as object key").Value
		}
		p.expect(TOKEN_COLON, "after object key")
		val := p.expression()
		keys = append(keys, key)
		values = append(values, val)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RBRACE, "to close object literal")
	return &ObjectExpr{Pos: pos, Keys: keys, Values: values}
}
