package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/pkg/codec"
	"github.com/vango-dev/roomsync/pkg/schema"
)

func inspectCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode captured handshakes, state streams and values",
		Long: `Decode binary captures offline.

Captures are the raw frame payloads, without the leading protocol code.

Examples:
  roomsync inspect handshake join-schema.bin
  roomsync inspect state full.bin patch-1.bin patch-2.bin --handshake join-schema.bin
  roomsync inspect value message.bin --format yaml`,
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")

	cmd.AddCommand(
		inspectHandshakeCmd(&format),
		inspectStateCmd(&format),
		inspectValueCmd(&format),
	)
	return cmd
}

type handshakeReport struct {
	Format   string           `json:"format" yaml:"format"`
	RootType int              `json:"rootType" yaml:"rootType"`
	Types    schema.TypeTable `json:"types" yaml:"types"`
}

func inspectHandshakeCmd(format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake <file>",
		Short: "Print the type table carried by a handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, f, err := loadSchema(args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), *format, handshakeReport{
				Format:   f.String(),
				RootType: s.RootType,
				Types:    s.Types,
			})
		},
	}
}

type stateReport struct {
	State codec.Value          `json:"state" yaml:"state"`
	Refs  int                  `json:"refs" yaml:"refs"`
	Stats schema.StatsSnapshot `json:"stats" yaml:"stats"`
}

func inspectStateCmd(format *string) *cobra.Command {
	var handshake string

	cmd := &cobra.Command{
		Use:   "state <full-state> [patch...]",
		Short: "Apply a full state and patches, then print the replica",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handshake == "" {
				return errors.New("E161")
			}
			s, _, err := loadSchema(handshake)
			if err != nil {
				return err
			}
			dec := schema.NewDecoder(s)
			for i, path := range args {
				data, err := readInput(path)
				if err != nil {
					return err
				}
				if i == 0 {
					dec.ApplyFullState(data)
				} else {
					dec.ApplyPatch(data)
				}
			}
			return writeOutput(cmd.OutOrStdout(), *format, stateReport{
				State: dec.State(),
				Refs:  dec.Refs(),
				Stats: dec.Stats().Snapshot(),
			})
		},
	}
	cmd.Flags().StringVar(&handshake, "handshake", "", "Handshake capture describing the state types")
	return cmd
}

func inspectValueCmd(format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "value <file>",
		Short: "Decode one self-contained value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("E162").WithSource(args[0]).WithDetail("the file is empty")
			}
			return writeOutput(cmd.OutOrStdout(), *format, codec.Unmarshal(data))
		},
	}
}

func loadSchema(path string) (*schema.Schema, schema.Format, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, 0, err
	}
	s, f, err := schema.ParseHandshake(data)
	if err != nil {
		return nil, 0, errors.New("E160").WithSource(path).Wrap(err)
	}
	return s, f, nil
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E121").WithSource(path).Wrap(err)
	}
	return data, nil
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return errors.New("E122").WithDetail(fmt.Sprintf("--format %q", format))
}
