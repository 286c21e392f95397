package util

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	helpIndent    = "  "
	helpGap       = 2
	helpMaxWidth  = 160
	helpDefCateg  = "Global Options"
	helpWrapSlack = 4
)

func getTermWidth(defaultWidth int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if c, err := strconv.Atoi(cols); err == nil && c > 0 {
			return c
		}
	}
	return defaultWidth
}

// wrapText wraps text at width, keeping paragraphs apart. It always returns at least one line.
func wrapText(text string, width int) []string {
	out := []string{}
	for _, para := range strings.Split(text, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
			} else {
				line += " " + w
			}
		}
		out = append(out, line, "")
	}
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

func flagField(f cli.Flag, name string) reflect.Value {
	v := reflect.ValueOf(f)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v.FieldByName(name)
}

func flagCategory(f cli.Flag) string {
	if fld := flagField(f, "Category"); fld.IsValid() && fld.Kind() == reflect.String {
		return fld.String()
	}
	return ""
}

func flagHidden(f cli.Flag) bool {
	if fld := flagField(f, "Hidden"); fld.IsValid() && fld.Kind() == reflect.Bool {
		return fld.Bool()
	}
	return false
}

func flagLabel(f cli.Flag) (label string, usage string) {
	parts := strings.SplitN(strings.TrimRight(f.String(), "\n"), "\t", 2)
	label = parts[0]
	if len(parts) > 1 {
		usage = parts[1]
	}
	return
}

// PrettierHelpPrinter replaces the urfave/cli help output with one that groups flags by
// category and colors section headers. Flags in the same category keep their declared order.
func PrettierHelpPrinter() {
	var (
		fallback  = cli.HelpPrinter
		section   = color.New(color.FgGreen, color.Bold).SprintFunc()
		category  = color.New(color.FgCyan, color.Bold).SprintFunc()
		wrapWidth = min(helpMaxWidth, getTermWidth(helpMaxWidth)) - helpWrapSlack
	)

	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		var (
			flags    []cli.Flag
			cmds     []*cli.Command
			helpName string
			usage    string
			desc     string
		)
		switch v := data.(type) {
		case *cli.App:
			flags, cmds, helpName, usage, desc = v.Flags, v.Commands, v.HelpName, v.Usage, v.Description
		case *cli.Command:
			flags, cmds, helpName, usage, desc = v.Flags, v.Subcommands, v.HelpName, v.Usage, v.Description
		default:
			fallback(w, templ, data)
			return
		}

		fmt.Fprintf(w, "%s\n%s%s - %s\n\n", section("NAME:"), helpIndent, helpName, usage)

		fmt.Fprintf(w, "%s\n%s%s", section("USAGE:"), helpIndent, helpName)
		if len(cmds) > 0 {
			fmt.Fprint(w, " command")
		}
		if len(flags) > 0 {
			fmt.Fprint(w, " [options]")
		}
		fmt.Fprint(w, "\n\n")

		if desc != "" {
			fmt.Fprintln(w, section("DESCRIPTION:"))
			for _, line := range wrapText(desc, wrapWidth-len(helpIndent)) {
				fmt.Fprintf(w, "%s%s\n", helpIndent, line)
			}
			fmt.Fprint(w, "\n")
		}

		visible := make([]*cli.Command, 0, len(cmds))
		for _, c := range cmds {
			if c.Hidden || c.Name == "help" {
				continue
			}
			visible = append(visible, c)
		}
		if len(visible) > 0 {
			fmt.Fprintln(w, section("COMMANDS:"))
			for _, c := range visible {
				fmt.Fprintf(w, "%s%-20s  %s\n", helpIndent, c.FullName(), c.Usage)
			}
			fmt.Fprint(w, "\n")
		}

		if len(flags) == 0 {
			return
		}
		fmt.Fprintf(w, "%s\n\n", section("OPTIONS:"))

		var (
			byCategory = map[string][]cli.Flag{}
			categories = []string{}
			maxLabel   = 0
		)
		for _, f := range flags {
			label, _ := flagLabel(f)
			if flagHidden(f) || strings.HasPrefix(label, "--help") {
				continue
			}
			c := flagCategory(f)
			if c == "" {
				c = helpDefCateg
			}
			if _, ok := byCategory[c]; !ok {
				categories = append(categories, c)
			}
			byCategory[c] = append(byCategory[c], f)
			maxLabel = max(maxLabel, len(label))
		}
		sort.Strings(categories)

		usageWidth := wrapWidth - len(helpIndent) - maxLabel - helpGap
		continuation := helpIndent + strings.Repeat(" ", maxLabel+helpGap) + helpIndent

		for _, c := range categories {
			fmt.Fprintf(w, "%s%s\n", helpIndent, category(c))
			for _, f := range byCategory[c] {
				label, usageText := flagLabel(f)
				lines := wrapText(usageText, usageWidth)
				fmt.Fprintf(w, "%s%s%s%s\n",
					helpIndent,
					label,
					strings.Repeat(" ", maxLabel-len(label)+helpGap),
					lines[0],
				)
				for _, cont := range lines[1:] {
					fmt.Fprintf(w, "%s%s\n", continuation, cont)
				}
			}
			fmt.Fprint(w, "\n")
		}
	}
}
