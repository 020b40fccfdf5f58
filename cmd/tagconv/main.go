// tagconv converts between tag ids and tag names.
//
//	tagconv 0x001c0797 42 1094861636   # ids to names
//	tagconv --decode aha4x ABCD 42     # names to ids
//
// Ids may be decimal or 0x-prefixed hexadecimal. Each result is printed
// as "0xXXXXXXXX  name", with unprintable bytes of four-letter names
// escaped. Failed conversions are reported on stderr and make the exit
// status 1.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var decode bool
	flagSet := pflag.NewFlagSet("tagconv", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVarP(&decode, "decode", "d", false, "treat arguments as tag names")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}
	if flagSet.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: tagconv [--decode] ARG...")
		return 2
	}

	status := 0
	for _, arg := range flagSet.Args() {
		id, name, err := convert(arg, decode)
		if err != nil {
			fmt.Fprintf(stderr, "tagconv: %s: %v\n", arg, err)
			status = 1
			continue
		}
		quoted := strconv.QuoteToASCII(name)
		fmt.Fprintf(stdout, "0x%08x  %s\n", uint32(id), quoted[1:len(quoted)-1])
	}
	return status
}

func convert(arg string, decode bool) (tagcodec.ID, string, error) {
	if decode {
		id, err := tagcodec.Decode(arg)
		return id, arg, err
	}

	id, err := tagcodec.ParseID(arg)
	if err != nil {
		return 0, "", err
	}
	name, err := tagcodec.Encode(id)
	return id, name, err
}
