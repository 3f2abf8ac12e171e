package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/livetemplate/pagepatch"
	"github.com/livetemplate/pagepatch/internal/studio"
)

// ErrInvalidSections is returned when a stream holds structurally invalid
// sections.
var ErrInvalidSections = errors.New("invalid sections found")

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check a section stream without applying it",
		Long: `Reads sections (a JSON object, a JSON array or newline-delimited JSON)
from a file or stdin and reports, per section, whether it would be applied.
Incomplete fragments are reported but are not errors: a live stream is
expected to contain them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return ValidateSections(in, cmd.OutOrStdout())
		},
	}
}

// ValidateSections reports on every section read from r.
func ValidateSections(r io.Reader, w io.Writer) error {
	sections, err := pagepatch.DecodeSections(r)
	if err != nil {
		return fmt.Errorf("failed to decode sections: %w", err)
	}

	var applied, incomplete, invalid int
	for i, sec := range sections {
		_, err := studio.Check(sec)
		switch {
		case err == nil:
			applied++
			fmt.Fprintf(w, "%4d  ok          %s %s#%s\n", i, sec.Action, sec.PageName, sec.RootDomID)
		case errors.Is(err, studio.ErrIncomplete):
			incomplete++
			fmt.Fprintf(w, "%4d  incomplete  %s %s#%s\n", i, sec.Action, sec.PageName, sec.RootDomID)
		default:
			invalid++
			fmt.Fprintf(w, "%4d  invalid     %v\n", i, err)
		}
	}

	fmt.Fprintf(w, "\n%d sections: %d ok, %d incomplete, %d invalid\n", len(sections), applied, incomplete, invalid)
	if invalid > 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSections, invalid)
	}
	return nil
}
