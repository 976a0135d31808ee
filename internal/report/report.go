package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/xtrntr/matchcore/internal/models"
)

// Write prints one line per participant, "id live filled balance", under an
// "Output:" header. Rows are written in the order given; callers pass a
// ledger snapshot, which is already ascending by id.
func Write(w io.Writer, participants []models.Participant) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "Output:"); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	for _, p := range participants {
		if _, err := fmt.Fprintln(bw, Line(p)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Line formats a single participant row
func Line(p models.Participant) string {
	return fmt.Sprintf("%d %d %d %s", p.ID, p.LiveOrders, p.FilledOrders, p.Balance.String())
}
