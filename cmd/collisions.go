package cmd

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/spf13/cobra"
)

var (
	collisionBarcodes   string
	collisionMismatches int
	collisionSequences  bool
)

// collisionsCmd reports barcodes that cannot be told apart.
var collisionsCmd = &cobra.Command{
	Use:   "collisions",
	Short: "List barcodes that are too similar for the allowed mismatches",
	Long: `List barcodes that are too similar for the allowed mismatches

Every barcode is expanded to all sequences within the mismatch distance.
A sequence reachable from two barcodes would hit both, so reads carrying
either may end up multicoded. Pairs are printed one per line; with
--sequences every shared sequence is printed with its barcodes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if collisionBarcodes == "" {
			return errors.E(errors.Invalid, "no --barcodes given")
		}
		if collisionMismatches < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("negative mismatches %d", collisionMismatches))
		}
		bcs, err := barcode.Load(collisionBarcodes)
		if err != nil {
			return err
		}
		collisions := barcode.Collisions(bcs, collisionMismatches)
		out := cmd.OutOrStdout()
		if collisionSequences {
			for _, c := range collisions {
				fmt.Fprintf(out, "%s\t%s\n", c.Sequence, strings.Join(c.Barcodes, ","))
			}
			return nil
		}
		for _, pair := range barcode.CollidingPairs(collisions) {
			fmt.Fprintln(out, pair)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collisionsCmd)
	collisionsCmd.Flags().StringVarP(&collisionBarcodes, "barcodes", "b", "", "FASTA file of barcodes")
	collisionsCmd.Flags().IntVarP(&collisionMismatches, "mismatches", "m", 2, "mismatches allowed per barcode")
	collisionsCmd.Flags().BoolVar(&collisionSequences, "sequences", false, "print every shared sequence")
}
