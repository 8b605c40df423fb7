// Package compiler turns sahl source into a vm.Program: lexer, parser,
// semantic checker, and code generator, plus a Starlark-syntax frontend.
package compiler
