// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

var cmds *cmd.Tree

// A helpEntry describes a command in the help listing. Commands inside a
// subtree carry the subtree's name as their group.
type helpEntry struct {
	group string
	name  string
	brief string
}

var helpEntries []helpEntry

func addCommand(t *cmd.Tree, group string, d cmd.CommandDescriptor) {
	t.AddCommand(d)
	helpEntries = append(helpEntries, helpEntry{group: group, name: d.Name, brief: d.Brief})
}

func addSubtree(t *cmd.Tree, d cmd.TreeDescriptor) *cmd.Tree {
	helpEntries = append(helpEntries, helpEntry{name: d.Name, brief: d.Brief})
	return t.AddSubtree(d)
}

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "go8086"})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:        "help",
		Description: "Display help for a command.",
		Usage:       "help [<command>]",
		Data:        (*Host).cmdHelp,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "assemble",
		Brief: "Assemble a file and save the binary",
		Description: "Run the assembler on the specified file, producing a" +
			" binary file and a source map file if successful. If you want" +
			" a listing of the generated code, specify true as a second" +
			" parameter.",
		Usage: "assemble <filename> [<verbose>]",
		Data:  (*Host).cmdAssemble,
	})

	// Breakpoint commands
	bp := addSubtree(root, cmd.TreeDescriptor{Name: "breakpoint", Brief: "Breakpoint commands"})
	addCommand(bp, "breakpoint", cmd.CommandDescriptor{
		Name:        "list",
		Brief:       "List breakpoints",
		Description: "List all current breakpoints.",
		Usage:       "breakpoint list",
		Data:        (*Host).cmdBreakpointList,
	})
	addCommand(bp, "breakpoint", cmd.CommandDescriptor{
		Name:  "add",
		Brief: "Add a breakpoint",
		Description: "Add a breakpoint at the specified address." +
			" An address without a segment lies in the current code" +
			" segment. The breakpoint starts enabled.",
		Usage: "breakpoint add [<segment>:]<address>",
		Data:  (*Host).cmdBreakpointAdd,
	})
	addCommand(bp, "breakpoint", cmd.CommandDescriptor{
		Name:        "remove",
		Brief:       "Remove a breakpoint",
		Description: "Remove a breakpoint at the specified address.",
		Usage:       "breakpoint remove [<segment>:]<address>",
		Data:        (*Host).cmdBreakpointRemove,
	})
	addCommand(bp, "breakpoint", cmd.CommandDescriptor{
		Name:        "enable",
		Brief:       "Enable a breakpoint",
		Description: "Enable a previously added breakpoint.",
		Usage:       "breakpoint enable [<segment>:]<address>",
		Data:        (*Host).cmdBreakpointEnable,
	})
	addCommand(bp, "breakpoint", cmd.CommandDescriptor{
		Name:  "disable",
		Brief: "Disable a breakpoint",
		Description: "Disable a previously added breakpoint. This" +
			" prevents the breakpoint from being hit when running the" +
			" CPU.",
		Usage: "breakpoint disable [<segment>:]<address>",
		Data:  (*Host).cmdBreakpointDisable,
	})

	// Data breakpoint commands
	db := addSubtree(root, cmd.TreeDescriptor{Name: "databreakpoint", Brief: "Data breakpoint commands"})
	addCommand(db, "databreakpoint", cmd.CommandDescriptor{
		Name:        "list",
		Brief:       "List data breakpoints",
		Description: "List all current data breakpoints.",
		Usage:       "databreakpoint list",
		Data:        (*Host).cmdDataBreakpointList,
	})
	addCommand(db, "databreakpoint", cmd.CommandDescriptor{
		Name:  "add",
		Brief: "Add a data breakpoint",
		Description: "Add a new data breakpoint at the specified" +
			" memory address. When the CPU stores data at this address, the" +
			" breakpoint will stop the CPU. Optionally, a byte" +
			" value may be specified, and the CPU will stop only" +
			" when this value is stored. The data breakpoint starts" +
			" enabled.",
		Usage: "databreakpoint add <address> [<value>]",
		Data:  (*Host).cmdDataBreakpointAdd,
	})
	addCommand(db, "databreakpoint", cmd.CommandDescriptor{
		Name:  "remove",
		Brief: "Remove a data breakpoint",
		Description: "Remove a previously added data breakpoint at" +
			" the specified memory address.",
		Usage: "databreakpoint remove <address>",
		Data:  (*Host).cmdDataBreakpointRemove,
	})
	addCommand(db, "databreakpoint", cmd.CommandDescriptor{
		Name:        "enable",
		Brief:       "Enable a data breakpoint",
		Description: "Enable a previously added data breakpoint.",
		Usage:       "databreakpoint enable <address>",
		Data:        (*Host).cmdDataBreakpointEnable,
	})
	addCommand(db, "databreakpoint", cmd.CommandDescriptor{
		Name:        "disable",
		Brief:       "Disable a data breakpoint",
		Description: "Disable a previously added data breakpoint.",
		Usage:       "databreakpoint disable <address>",
		Data:        (*Host).cmdDataBreakpointDisable,
	})

	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "disassemble",
		Brief: "Disassemble code",
		Description: "Disassemble machine code starting at the requested" +
			" address. The number of instruction lines to disassemble may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last disassembly left off.",
		Usage: "disassemble [<address>] [<lines>]",
		Data:  (*Host).cmdDisassemble,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "evaluate",
		Brief: "Evaluate an expression",
		Description: "Evaluate an expression. Registers and the labels of" +
			" the loaded program may be used by name.",
		Usage: "evaluate <expression>",
		Data:  (*Host).cmdEvaluate,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "labels",
		Brief: "List program labels",
		Description: "Display the labels of the loaded program and the" +
			" addresses assigned to them. Labels are stored in a binary" +
			" file's associated source map file.",
		Usage: "labels",
		Data:  (*Host).cmdLabels,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "load",
		Brief: "Load a program",
		Description: "Load a program into the emulated system's memory." +
			" Assembly source files are assembled in memory. Binary files" +
			" load at the origin recorded in their source map, or at the" +
			" specified address.",
		Usage: "load <filename> [<address>]",
		Data:  (*Host).cmdLoad,
	})

	// Memory commands
	me := addSubtree(root, cmd.TreeDescriptor{Name: "memory", Brief: "Memory commands"})
	addCommand(me, "memory", cmd.CommandDescriptor{
		Name:  "dump",
		Brief: "Dump memory at address",
		Description: "Dump the contents of memory starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option. If no address is specified, the" +
			" memory dump continues from where the last dump left off.",
		Usage: "memory dump [<address>] [<bytes>]",
		Data:  (*Host).cmdMemoryDump,
	})
	addCommand(me, "memory", cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set memory at address",
		Description: "Set the contents of memory starting from the specified" +
			" address. The values to assign should be a series of" +
			" space-separated byte values. You may use an expression for each" +
			" byte value.",
		Usage: "memory set <address> <byte> [<byte> ...]",
		Data:  (*Host).cmdMemorySet,
	})

	addCommand(root, "", cmd.CommandDescriptor{
		Name:        "quit",
		Brief:       "Quit the program",
		Description: "Quit the program.",
		Usage:       "quit",
		Data:        (*Host).cmdQuit,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "register",
		Brief: "View or change register values",
		Description: "When used without arguments, this command displays the current" +
			" contents of the CPU registers. When used with arguments, this" +
			" command changes the value of a register or one of the CPU's status" +
			" flags. Allowed register names include AX through DI, AL through BH," +
			" CS, DS, ES, SS and IP. Allowed status flag names are carry, parity," +
			" aux, zero, sign, trap, interrupt, direction and overflow.",
		Usage: "register [<name> <value>]",
		Data:  (*Host).cmdRegister,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "reset",
		Brief: "Reset the CPU",
		Description: "Return the CPU to its power-on state, with IP set to" +
			" the origin of the most recently loaded program. Memory is not" +
			" cleared.",
		Usage: "reset",
		Data:  (*Host).cmdReset,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "run",
		Brief: "Run the CPU",
		Description: "Run the CPU until it halts, a breakpoint is hit, the" +
			" step budget is exhausted, or the user types Ctrl-C.",
		Usage: "run [<address>]",
		Data:  (*Host).cmdRun,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set a configuration variable",
		Description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		Usage: "set [<var> <value>]",
		Data:  (*Host).cmdSet,
	})

	// Step commands
	st := addSubtree(root, cmd.TreeDescriptor{Name: "step", Brief: "Step the debugger"})
	addCommand(st, "step", cmd.CommandDescriptor{
		Name:  "in",
		Brief: "Step into next instruction",
		Description: "Step the CPU by a single instruction. If the" +
			" instruction is a call or interrupt, step into the procedure." +
			" The number of steps may be specified as an option.",
		Usage: "step in [<count>]",
		Data:  (*Host).cmdStepIn,
	})
	addCommand(st, "step", cmd.CommandDescriptor{
		Name:  "over",
		Brief: "Step over next instruction",
		Description: "Step the CPU by a single instruction. If the" +
			" instruction is a call or interrupt, run until the procedure" +
			" returns. The number of steps may be specified as an option.",
		Usage: "step over [<count>]",
		Data:  (*Host).cmdStepOver,
	})

	// Add command shortcuts.
	root.AddShortcut("a", "assemble")
	root.AddShortcut("b", "breakpoint")
	root.AddShortcut("bp", "breakpoint")
	root.AddShortcut("ba", "breakpoint add")
	root.AddShortcut("br", "breakpoint remove")
	root.AddShortcut("bl", "breakpoint list")
	root.AddShortcut("be", "breakpoint enable")
	root.AddShortcut("bd", "breakpoint disable")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("db", "databreakpoint")
	root.AddShortcut("dbp", "databreakpoint")
	root.AddShortcut("dbl", "databreakpoint list")
	root.AddShortcut("dba", "databreakpoint add")
	root.AddShortcut("dbr", "databreakpoint remove")
	root.AddShortcut("dbe", "databreakpoint enable")
	root.AddShortcut("dbd", "databreakpoint disable")
	root.AddShortcut("e", "evaluate")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("ms", "memory set")
	root.AddShortcut("r", "register")
	root.AddShortcut("s", "step over")
	root.AddShortcut("si", "step in")
	root.AddShortcut("?", "help")
	root.AddShortcut(".", "register")

	cmds = root
}
