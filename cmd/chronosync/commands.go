package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chronosync/internal/agenda"
	"chronosync/internal/ics"
	"chronosync/internal/model"
	"chronosync/internal/registry"
)

func newDashboardCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Compute and print the next event of every dashboard slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, v := range a.dashboard.Refresh(cmd.Context()) {
				if v.Source == nil {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s: %s\n", v.Index, v.Source.Label(), v.Text)
			}
			return nil
		},
	}
}

func newMonthCommand(opts *rootOptions) *cobra.Command {
	var (
		sources []string
		asICS   bool
	)
	cmd := &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "List the events of a month for the given sources (default: dashboard slots)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			weekStart := opts.cfg.FirstWeekday()
			win := agenda.MonthOf(model.Today(opts.cfg.Location()), weekStart)
			if len(args) == 1 {
				if win, err = agenda.ParseMonth(args[0], weekStart); err != nil {
					return err
				}
			}

			var srcs []model.EventSource
			for _, s := range sources {
				src, err := parseSource(s)
				if err != nil {
					return err
				}
				srcs = append(srcs, a.label(cmd.Context(), src))
			}
			if len(sources) == 0 {
				for _, sl := range a.slots.Assigned() {
					srcs = append(srcs, *sl.Source)
				}
			}

			var active registry.ActiveSet
			if _, err := active.SetActiveSources(srcs); err != nil {
				return err
			}
			b := agenda.Aggregate(cmd.Context(), a.fetcher, win, active.Sources())
			if asICS {
				_, err := io.WriteString(cmd.OutOrStdout(), ics.Encode("ChronoSync "+win.String(), b.Records(), time.Now()))
				return err
			}
			printMonth(cmd.OutOrStdout(), win, b)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, `source to include, "public:ZA" or "custom:<calendar id>" (repeatable)`)
	cmd.Flags().BoolVar(&asICS, "ics", false, "write the month as iCalendar instead of a listing")
	return cmd
}

func printMonth(w io.Writer, win agenda.MonthWindow, b *agenda.Bucket) {
	fmt.Fprintf(w, "%s %d\n", win.Month, win.Year)
	dates := b.Dates()
	if len(dates) == 0 {
		fmt.Fprintln(w, "  no events")
		return
	}
	for _, d := range dates {
		cell := b.Cell(d)
		for _, r := range b.Day(d) {
			fmt.Fprintf(w, "  %s %-3s %s (%s)\n", d.Format("Mon 02"), cell.Tag, r.Title, r.SourceLabel)
		}
	}
}

func newSlotsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the dashboard slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slots, err := registry.OpenSlots(opts.cfg.StateFile)
			if err != nil {
				return err
			}
			for _, sl := range slots.All() {
				if sl.Source == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d] (empty)\n", sl.Index)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s %s\n", sl.Index, sl.Source.Key(), sl.Source.Label())
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <index> <source>",
		Short: `Assign a source ("public:ZA" or "custom:<calendar id>") to a slot`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("slot index %q: %w", args[0], err)
			}
			src, err := parseSource(args[1])
			if err != nil {
				return err
			}
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.slots.Assign(idx, a.label(cmd.Context(), src))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <index>",
		Short: "Empty a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("slot index %q: %w", args[0], err)
			}
			slots, err := registry.OpenSlots(opts.cfg.StateFile)
			if err != nil {
				return err
			}
			return slots.Clear(idx)
		},
	})
	return cmd
}

func newCountriesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "countries [query]",
		Short: "List the countries the holiday provider supports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.countries.Load(cmd.Context()); err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			for _, ch := range registry.FilterChoices(a.countries.Choices(nil), query) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ch.ID, ch.Label())
			}
			return nil
		},
	}
}
