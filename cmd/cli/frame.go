// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adiadia/syrphid-receiver/internal/framing"
)

const maxLineSize = 16 * 1024 * 1024

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Convert between JSON lines and native messaging frames",
}

var frameEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Wrap each JSON line from stdin into a frame on stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := encodeFrames(cmd.InOrStdin(), cmd.OutOrStdout())
		logger.Debug("frames encoded", "count", n)
		return err
	},
}

var frameDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Print the payload of each frame from stdin as one line",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := decodeFrames(cmd.InOrStdin(), cmd.OutOrStdout())
		logger.Debug("frames decoded", "count", n)
		return err
	},
}

func init() {
	frameCmd.AddCommand(frameEncodeCmd)
	frameCmd.AddCommand(frameDecodeCmd)
}

// encodeFrames skips blank lines and rejects lines that are not JSON.
func encodeFrames(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	out := framing.NewWriter(w)
	var n, line int
	for scanner.Scan() {
		line++
		payload := bytes.TrimSpace(scanner.Bytes())
		if len(payload) == 0 {
			continue
		}
		if !json.Valid(payload) {
			return n, fmt.Errorf("line %d is not valid json", line)
		}
		if err := out.WriteFrame(payload); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read input: %w", err)
	}
	return n, nil
}

func decodeFrames(r io.Reader, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	var n int
	for {
		payload, err := framing.Decode(r)
		if errors.Is(err, framing.ErrEndOfStream) {
			return n, bw.Flush()
		}
		if err != nil {
			return n, fmt.Errorf("frame %d: %w", n+1, err)
		}
		if _, err := bw.Write(append(payload, '\n')); err != nil {
			return n, err
		}
		n++
	}
}
