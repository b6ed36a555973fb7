package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Bt1Deck/core/analysis"
	"Bt1Deck/core/audio"
	"Bt1Deck/core/utils"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <files...>",
	Short: "分析音频文件并打印生成的名称",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		decoder := audio.ChainDecoder{audio.NewBeepDecoder(), audio.NewFFmpegDecoder(cfg.FFmpegPath)}
		analyzeFiles(cmd.Context(), cmd.OutOrStdout(), analysis.NewAnalyzer(decoder), args)
		return nil
	},
}

// analyzeFiles prints one row per file. A file that cannot be decoded keeps
// its source name, as the rename batch does.
func analyzeFiles(ctx context.Context, out io.Writer, ex analysis.Extractor, paths []string) {
	if ctx == nil {
		ctx = context.Background()
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tENERGY\tCENTROID\tTEMPO\tNAME")
	for _, p := range paths {
		src := audio.NewFileSource(p)
		sourceName := utils.SourceName(p)
		f, err := ex.Extract(ctx, src)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\t(%v)\n", src.Name(), sourceName, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%.0f\t%d\t%s\n",
			src.Name(), f.Energy, f.Centroid, f.Tempo, analysis.NameFromFeatures(sourceName, f))
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
