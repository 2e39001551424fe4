package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/sqltutor/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a student's profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := e.mastery.ExportProfile(cmd.Context(), resolveStudent(cmd))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" && path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace a student's profile from an exported JSON file",
	Long: "Replace everything stored for the student named in the file. Use - to read\n" +
		"from stdin. --student, when set, imports the document under that id instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		var data store.ProfileData
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("parse profile: %w", err)
		}
		if id, _ := cmd.Flags().GetString("student"); id != "" {
			data.StudentID = id
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.mastery.ImportProfile(cmd.Context(), &data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported profile for %s (%d subtopics, %d mastered).\n",
			data.StudentID, len(data.Subtopics), len(data.Mastered))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "-", "Output file, - for stdout")
}
