package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/statediff"
)

func linediffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linediff",
		Short: "Make or apply line diffs between text files",
	}
	cmd.AddCommand(linediffMakeCmd(), linediffApplyCmd())
	return cmd
}

func linediffMakeCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "make <old-file> <new-file>",
		Short: "Write the encoded diff from old-file to new-file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldData, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			newData, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			diffBytes := statediff.MakeLineDiff(string(oldData), string(newData))
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(diffBytes)
				return err
			}
			if err := os.WriteFile(outPath, diffBytes, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(diffBytes), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func linediffApplyCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "apply <old-file> <diff-file>",
		Short: "Apply an encoded diff to old-file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldData, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			diffBytes, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			newStr, err := statediff.ApplyLineDiff(string(oldData), diffBytes)
			if err != nil {
				return fmt.Errorf("applying %s: %w", args[1], err)
			}
			if outPath == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), newStr)
				return err
			}
			return os.WriteFile(outPath, []byte(newStr), 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
