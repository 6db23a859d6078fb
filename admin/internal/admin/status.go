package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/oceanco2/intake/intake/pkg/expocode"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
	"github.com/oceanco2/intake/intake/pkg/worker"
)

// ShowStatus writes one dataset's status and recent checks as indented JSON.
func ShowStatus(ctx context.Context, store statusstore.Store, raw string, out io.Writer) error {
	code, err := expocode.Normalize(raw)
	if err != nil {
		return err
	}
	st, err := store.Get(ctx, code.Code)
	if err != nil {
		return fmt.Errorf("failed to get status of %s: %w", code.Code, err)
	}
	checks, err := store.Checks(ctx, code.Code, 10)
	if err != nil {
		return fmt.Errorf("failed to get checks of %s: %w", code.Code, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*qcstatus.Status
		Flag     string                  `json:"flag"`
		Blockers []string                `json:"blockers"`
		Checks   []*qcstatus.CheckResult `json:"checks"`
	}{
		Status:   st,
		Flag:     string(st.Flag()),
		Blockers: qcstatus.Submittable(st),
		Checks:   checks,
	})
}

// ListStatuses writes a table of every dataset, optionally limited to one state.
func ListStatuses(ctx context.Context, store statusstore.Store, state string, out io.Writer) error {
	statuses, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list statuses: %w", err)
	}
	slices.SortFunc(statuses, func(a, b *qcstatus.Status) int {
		return strings.Compare(a.Expocode, b.Expocode)
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPOCODE\tFLAG\tACTUAL\tSUGGESTED\tVERSION")
	for _, st := range statuses {
		if state != "" && st.Actual.State.String() != state {
			continue
		}
		fmt.Fprintf(tw, "%s\t%c\t%s\t%s\t%d\n", st.Expocode, st.Flag(), st.Actual, st.Suggested, st.Version)
	}
	return tw.Flush()
}

// ExportArchive runs one archive sweep and returns how many bundles were written.
func ExportArchive(ctx context.Context, log *slog.Logger, store statusstore.Store, exporter worker.Exporter) (int, error) {
	engine, err := qcstatus.NewEngine(qcstatus.EngineConfig{Logger: log})
	if err != nil {
		return 0, err
	}
	w, err := worker.New(worker.Config{
		Logger:   log,
		Store:    store,
		Engine:   engine,
		Exporter: exporter,
	})
	if err != nil {
		return 0, err
	}
	n, err := w.ExportArchived(ctx)
	if err != nil {
		return n, err
	}
	log.Info("admin: archive sweep complete", "exported", n)
	return n, nil
}
