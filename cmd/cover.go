package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Bt1Deck/core/cover"
)

var (
	coverOut      string
	coverSize     int
	coverGradient bool
)

var coverCmd = &cobra.Command{
	Use:   "cover <text>",
	Short: "生成占位封面 PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cover.NewGenerator(coverSize, coverGradient).Generate(args[0])
		if len(c.Data) == 0 {
			return fmt.Errorf("cover rendering failed for %q", args[0])
		}
		// "-" 输出 data URL，便于直接嵌入页面
		if coverOut == "-" {
			fmt.Fprintln(cmd.OutOrStdout(), c.DataURL())
			return nil
		}
		if err := os.WriteFile(coverOut, c.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", coverOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: hue %d, initials %q\n", coverOut, c.Hue, c.Initials)
		return nil
	},
}

func init() {
	coverCmd.Flags().StringVarP(&coverOut, "output", "o", "cover.png", "output file, - prints a data URL")
	coverCmd.Flags().IntVar(&coverSize, "size", cover.DefaultSize, "tile size in pixels")
	coverCmd.Flags().BoolVar(&coverGradient, "gradient", false, "diagonal gradient instead of a solid fill")
	rootCmd.AddCommand(coverCmd)
}
