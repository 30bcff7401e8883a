package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"teamreport/internal/consumer"
	"teamreport/internal/export"
	"teamreport/internal/query"
	"teamreport/internal/service"
	"teamreport/internal/validator"

	"github.com/spf13/cobra"
)

var errAsyncDisabled = errors.New("ingest stream is not enabled (set REPORT_INGEST_ENABLED=true)")

func newIngestCommand(opts *rootOptions, open opener) *cobra.Command {
	var (
		entries bool
		async   bool
		source  string
	)
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest pasted chat text (or a JSON array of entries) from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			msg := consumer.IngestMessage{Source: source}
			if entries {
				if err := json.Unmarshal(data, &msg.Entries); err != nil {
					return fmt.Errorf("failed to parse entries: %w", err)
				}
			} else {
				msg.Text = string(data)
			}

			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			if async {
				if s.publish == nil {
					return errAsyncDisabled
				}
				id, err := s.publish(cmd.Context(), msg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
				return nil
			}

			resp, err := consumer.Dispatch(cmd.Context(), s.svc, msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, merged %d, duplicates %d, rejected %d\n",
				resp.Created, resp.Merged, resp.Duplicates, len(resp.Rejected))
			for _, r := range resp.Rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected #%d: %s\n", r.Index, r.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&entries, "entries", false, "input is a JSON array of structured entries")
	cmd.Flags().BoolVar(&async, "async", false, "publish to the ingest stream instead of ingesting locally")
	cmd.Flags().StringVar(&source, "source", "reportctl", "source label for logs")
	return cmd
}

// criteriaFlags 导出与统计共用的过滤参数
type criteriaFlags struct {
	start       string
	end         string
	matched     bool
	departments []string
	text        string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first date (inclusive)")
	cmd.Flags().StringVar(&f.end, "end", "", "last date (inclusive)")
	cmd.Flags().BoolVar(&f.matched, "matched", false, "only reports with matched keywords")
	cmd.Flags().StringSliceVar(&f.departments, "department", nil, "restrict to departments")
	cmd.Flags().StringVarP(&f.text, "query", "q", "", "name or content substring")
}

func (f *criteriaFlags) criteria() (query.Criteria, error) {
	c := query.Criteria{
		OnlyMatchedKeywords: f.matched,
		Departments:         f.departments,
		Text:                f.text,
	}
	var err error
	if f.start != "" {
		if c.DateStart, err = validator.ParseDate(f.start, timeNow()); err != nil {
			return c, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if f.end != "" {
		if c.DateEnd, err = validator.ParseDate(f.end, timeNow()); err != nil {
			return c, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return c, nil
}

func newExportCommand(opts *rootOptions, open opener) *cobra.Command {
	var (
		filters criteriaFlags
		format  string
		layout  string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export reports as xlsx or csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			l, err := export.ParseLayout(layout)
			if err != nil {
				return err
			}
			c, err := filters.criteria()
			if err != nil {
				return err
			}

			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			file, err := s.svc.Export(c, f, l)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(file.Data)
				return err
			}
			if output == "" {
				output = file.Name
			}
			if err := os.WriteFile(output, file.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(file.Data))
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or csv")
	cmd.Flags().StringVar(&layout, "layout", "matrix", "matrix or flat")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, - for stdout (default: generated file name)")
	return cmd
}

func newStatsCommand(opts *rootOptions, open opener) *cobra.Command {
	var filters criteriaFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := filters.criteria()
			if err != nil {
				return err
			}
			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			out := struct {
				Stats  any `json:"stats"`
				Status any `json:"status"`
			}{s.svc.Stats(c), s.svc.Status()}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	filters.register(cmd)
	return cmd
}

func newClearCommand(opts *rootOptions, open opener) *cobra.Command {
	var req service.ClearReportsRequest
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Passphrase == "" {
				req.Passphrase = os.Getenv("OPERATOR_PASSPHRASE")
			}
			s, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.svc.Clear(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&req.Confirm, "confirm", false, "confirm the deletion")
	cmd.Flags().StringVar(&req.Passphrase, "passphrase", "", "operator passphrase (default $OPERATOR_PASSPHRASE)")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
