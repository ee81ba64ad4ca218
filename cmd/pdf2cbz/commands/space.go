package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf2cbz/cmd/pdf2cbz/ui"
	"github.com/spherical/pdf2cbz/internal/diskspace"
)

var spaceCmd = &cobra.Command{
	Use:   "space [path]...",
	Short: "Report free space on the working and destination volumes",
	RunE:  runSpace,
}

func init() {
	rootCmd.AddCommand(spaceCmd)
}

type volumeReport struct {
	Path     string `json:"path"`
	Total    uint64 `json:"total"`
	Used     uint64 `json:"used"`
	Free     uint64 `json:"free"`
	Decision string `json:"low_water_mark"`
}

func runSpace(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = []string{app.cfg.Work.Root}
		if app.cfg.Output.Dir != "" {
			paths = append(paths, app.cfg.Output.Dir)
		} else if wd, err := os.Getwd(); err == nil {
			paths = append(paths, wd)
		}
	}

	guard := diskspace.NewGuard()
	mark := app.cfg.LowWaterMark()

	var reports []volumeReport
	for _, p := range paths {
		u, ok := guard.Usage(p)
		if !ok {
			reports = append(reports, volumeReport{Path: p, Decision: diskspace.Unavailable.String()})
			continue
		}
		reports = append(reports, volumeReport{
			Path:     p,
			Total:    u.Total,
			Used:     u.Used,
			Free:     u.Free,
			Decision: guard.Admit(p, mark).String(),
		})
	}

	if jsonOutput {
		app.ui.JSON(reports)
		return nil
	}

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		if r.Decision == diskspace.Unavailable.String() {
			rows = append(rows, []string{r.Path, "-", "-", "-", r.Decision})
			continue
		}
		rows = append(rows, []string{r.Path, ui.FormatBytes(r.Total), ui.FormatBytes(r.Used), ui.FormatBytes(r.Free), r.Decision})
	}
	app.ui.Table([]string{"PATH", "TOTAL", "USED", "FREE", "LOW-WATER"}, rows)
	app.ui.Info("Low-water mark: %s", ui.FormatBytes(mark))
	return nil
}
