package finalize

import (
	"prevc/src/ir/frames"
)

// routine is a runtime support routine. Arguments are read at SP+8 onwards and the result is written to SP+0, as
// for compiled functions; routines have no frame of their own.
type routine struct {
	label frames.Label
	data  []string // Runtime data the routine needs.
	code  []line
}

// Runtime data, by name.
var runtimeData = map[string]line{
	"Buf":   {labels: []string{"Buf"}, op: "OCTA", args: "0,0,0,0"},
	"NewLn": {labels: []string{"NewLn"}, op: "BYTE", args: "#a,0"},
}

// runtimeDataOrder fixes the order in which runtime data is emitted.
var runtimeDataOrder = []string{"Buf", "NewLn"}

// runtime holds every support routine, in emission order.
var runtime = []routine{
	{
		label: "_printint",
		data:  []string{"Buf"},
		code: []line{
			{labels: []string{"_printint"}, op: "LDO", args: "$0,SP,8"},
			{op: "LDA", args: "$1,Buf"},
			{op: "ADD", args: "$1,$1,31"},
			{op: "SETL", args: "$2,0"},
			{op: "STB", args: "$2,$1,0"},
			{op: "SET", args: "$3,$0"},
			{op: "BNN", args: "$0,PrintIntDigit"},
			{op: "NEG", args: "$3,0,$0"},
			{labels: []string{"PrintIntDigit"}, op: "SUB", args: "$1,$1,1"},
			{op: "DIV", args: "$3,$3,10"},
			{op: "GET", args: "$2,rR"},
			{op: "ADD", args: "$2,$2,'0'"},
			{op: "STB", args: "$2,$1,0"},
			{op: "BNZ", args: "$3,PrintIntDigit"},
			{op: "BNN", args: "$0,PrintIntOut"},
			{op: "SUB", args: "$1,$1,1"},
			{op: "SETL", args: "$2,'-'"},
			{op: "STB", args: "$2,$1,0"},
			{labels: []string{"PrintIntOut"}, op: "SET", args: "$255,$1"},
			{op: "TRAP", args: "0,Fputs,StdOut"},
			{op: "POP", args: "0,0"},
		},
	},
	{
		label: "_printchar",
		data:  []string{"Buf"},
		code: []line{
			{labels: []string{"_printchar"}, op: "LDO", args: "$0,SP,8"},
			{op: "LDA", args: "$255,Buf"},
			{op: "STB", args: "$0,$255,0"},
			{op: "SETL", args: "$1,0"},
			{op: "STB", args: "$1,$255,1"},
			{op: "TRAP", args: "0,Fputs,StdOut"},
			{op: "POP", args: "0,0"},
		},
	},
	{
		label: "_println",
		data:  []string{"NewLn"},
		code: []line{
			{labels: []string{"_println"}, op: "LDA", args: "$255,NewLn"},
			{op: "TRAP", args: "0,Fputs,StdOut"},
			{op: "POP", args: "0,0"},
		},
	},
	{
		// Bump allocation from HP.
		label: "_malloc",
		code: []line{
			{labels: []string{"_malloc"}, op: "LDO", args: "$0,SP,8"},
			{op: "STO", args: "HP,SP,0"},
			{op: "ADD", args: "HP,HP,$0"},
			{op: "POP", args: "0,0"},
		},
	},
	{
		label: "_free",
		code: []line{
			{labels: []string{"_free"}, op: "POP", args: "0,0"},
		},
	},
	{
		label: "_exit",
		code: []line{
			{labels: []string{"_exit"}, op: "TRAP", args: "0,Halt,0"},
		},
	},
}

// isRuntime reports whether l is the label of a support routine.
func isRuntime(l frames.Label) bool {
	for _, e1 := range runtime {
		if e1.label == l {
			return true
		}
	}
	return false
}
