package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/spf13/cobra"
)

type unitsOptions struct {
	State  string
	Limit  int
	Offset int
	JSON   bool
}

func newUnitsCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &unitsOptions{}

	cmd := &cobra.Command{
		Use:   "units",
		Short: "Show sync unit counts per state and the latest units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listUnits(rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "", "only units in this state (PENDING, PROCESSING, CONSENSUS_REACHED, DETAIL_FETCHED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of units to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "units to skip")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON")

	return cmd
}

func listUnits(rootOpts *rootOptions, opts *unitsOptions) error {
	state := domain.UnitState(opts.State)
	if state != "" && !state.Valid() {
		return fmt.Errorf("unknown state %q", opts.State)
	}

	a, err := loadApp(rootOpts, false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	ns := a.cfg.App.Namespace
	counts, err := a.store.Units.CountByState(ctx, ns)
	if err != nil {
		return err
	}
	units, total, err := a.store.Units.List(ctx, repository.UnitFilter{
		Namespace: ns,
		State:     state,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"states": counts,
			"total":  total,
			"units":  units,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, s := range []domain.UnitState{
		domain.UnitStatePending,
		domain.UnitStateProcessing,
		domain.UnitStateConsensusReached,
		domain.UnitStateDetailFetched,
	} {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ID\tDAY\tSTATE\tKEY\tERROR")
	for _, u := range units {
		key := "-"
		if u.ConsensusKey != nil {
			key = *u.ConsensusKey
		}
		errMsg := "-"
		if p := failure.Decode(u.Error); p != nil && p.Kind != "" {
			errMsg = p.Kind + ": " + p.Message
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.BucketKey, u.State, key, errMsg)
	}
	fmt.Fprintf(w, "\n%d of %d units\n", len(units), total)
	return w.Flush()
}
