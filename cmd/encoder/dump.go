package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/config"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/sink"
)

func newDumpCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Summarize a frame file written by the FRAME_FILE output",
		Long:  "Reads a length-prefixed frame file and prints frame statistics. Without an argument the file named by FRAME_FILE is read.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				path = cfg.FrameFile
			}
			if path == "" {
				return errors.New("no frame file given and FRAME_FILE is not set")
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open frame file: %w", err)
			}
			defer f.Close()
			return dumpFrames(cmd.OutOrStdout(), f, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every frame")
	return cmd
}

type frameStats struct {
	frames   int
	bytes    int
	min, max int
}

func dumpFrames(out io.Writer, r io.Reader, verbose bool) error {
	fr := sink.NewFrameReader(r)
	var st frameStats
	for {
		data, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", st.frames, err)
		}
		if verbose {
			fmt.Fprintf(out, "%6d %5d bytes\n", st.frames, len(data))
		}
		if st.frames == 0 || len(data) < st.min {
			st.min = len(data)
		}
		if len(data) > st.max {
			st.max = len(data)
		}
		st.frames++
		st.bytes += len(data)
	}
	fmt.Fprintf(out, "frames=%d bytes=%d min=%d max=%d\n", st.frames, st.bytes, st.min, st.max)
	return nil
}
