package main

import (
	"fmt"
	"strconv"
	"strings"

	"memlayout/hexdump"
	"memlayout/process"
	"memlayout/search"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		address string
		value   string
		scalar  string
		pattern string
		depth   int
		size    uint
		align   uint
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find pointer paths from an address to a value",
		Long: `Walk every pointer reachable from --address up to --depth levels, looking
at the first --size bytes of each object for the value. Each hit is printed
as a path that "read --path" accepts.`,
		Example: `  memlayout search -p game.exe --address base+0x1F00 --value 1337 --type u32
  memlayout search --dump ./dump --address 0x7ff000 --aob "50 6C ?? 79"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			base := st.BaseAddress()
			if address != "" {
				if base, err = parseAddress(address, st.BaseAddress()); err != nil {
					return err
				}
			}

			opts := []search.Option{
				search.WithMaxDepth(depth),
				search.WithMaxStructSize(size),
				search.WithMinAlignment(align),
				search.WithMaxResults(limit),
			}
			if regions, err := st.Regions(); err == nil {
				opts = append(opts, search.WithRegions(regions))
			}

			switch {
			case pattern != "":
				aob, err := process.ParseAOB(pattern)
				if err != nil {
					return err
				}
				opts = append(opts, search.WithAOB(aob))
			case value != "":
				reg, err := st.Registry()
				if err != nil {
					return err
				}
				codec, ok := reg.Lookup(scalar)
				if !ok {
					return fmt.Errorf("unknown scalar type %q", scalar)
				}
				v, err := parseScalar(value)
				if err != nil {
					return err
				}
				opt, err := search.WithValue(codec, v)
				if err != nil {
					return err
				}
				opts = append(opts, opt)
			default:
				return search.ErrNoTarget
			}

			results, err := search.Search(st, base, opts...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%s  --path %s\n", r, joinOffsets(r.Path))
			}
			a.status(out, "%d result(s)\n", len(results))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&address, "address", "a", "", "Start address, absolute or base+offset (default: module base)")
	flags.StringVarP(&value, "value", "v", "", "Value to look for")
	flags.StringVarP(&scalar, "type", "t", "u32", "Scalar type of --value")
	flags.StringVar(&pattern, "aob", "", "Byte pattern to look for, ?? for wildcards")
	flags.IntVarP(&depth, "depth", "d", 3, "Maximum pointer depth")
	flags.UintVar(&size, "size", 256, "Bytes examined per object")
	flags.UintVar(&align, "align", 4, "Value alignment inside an object")
	flags.IntVarP(&limit, "limit", "n", 0, "Stop after this many results (0 for all)")
	return cmd
}

// parseScalar reads a number the way a user types it: integers in any Go base,
// otherwise a float.
func parseScalar(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return u, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q", s)
	}
	return f, nil
}

func joinOffsets(path []int64) string {
	parts := make([]string, len(path))
	for i, off := range path {
		if off < 0 {
			parts[i] = fmt.Sprintf("-%#x", -off)
		} else {
			parts[i] = fmt.Sprintf("%#x", off)
		}
	}
	return strings.Join(parts, ",")
}

func newScanCmd(a *app) *cobra.Command {
	var (
		limit  int
		around int
	)

	cmd := &cobra.Command{
		Use:     "scan AOB",
		Short:   "Scan readable memory for a byte pattern",
		Example: `  memlayout scan -p game.exe "48 8B 05 ?? ?? ?? ?? 48 85 C0"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aob, err := process.ParseAOB(args[0])
			if err != nil {
				return err
			}
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Unload()

			regions, err := st.Regions()
			if err != nil {
				return err
			}
			hits, err := search.Scan(st, regions, aob, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := hexdump.DefaultOptions()
			opts.HighlightPattern = aob.Pattern
			for _, hit := range hits {
				fmt.Fprintf(out, "match at %s\n", hit.ToString())
				if around <= 0 {
					continue
				}
				start := hit.Offset(-int64(around))
				data, err := st.ReadAt(start, process.ProcessMemorySize(2*around+len(aob.Pattern)))
				if err != nil {
					// The window may cross an unmapped edge; fall back to the match itself.
					start = hit
					if data, err = st.ReadAt(hit, process.ProcessMemorySize(len(aob.Pattern))); err != nil {
						continue
					}
				}
				opts.StartOffset = uint64(start)
				hexdump.Dump(out, data, opts)
			}
			a.status(out, "%d match(es)\n", len(hits))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many matches (0 for all)")
	cmd.Flags().IntVarP(&around, "context", "C", 32, "Bytes of hex context around each match")
	return cmd
}
