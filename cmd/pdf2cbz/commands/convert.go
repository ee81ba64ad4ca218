package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/events"
	"github.com/spherical/pdf2cbz/internal/pipeline"
)

var convertOpts struct {
	outputDir       string
	quality         int
	resize          bool
	deleteSource    bool
	serialRaster    bool
	serialTranscode bool
	workRoot        string
	lowWaterMarkMB  uint64
	stopOnFailure   bool
	redisAddr       string
}

var convertCmd = &cobra.Command{
	Use:   "convert <pdf>...",
	Short: "Convert one or more PDF files",
	Long: `Convert each PDF into a CBZ archive, one after another. Flags override both
the config file and stored settings for this run only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOpts.outputDir, "output-dir", "o", "", "directory for archives (default: next to each PDF)")
	f.IntVarP(&convertOpts.quality, "quality", "q", 70, "WEBP quality 0-100")
	f.BoolVar(&convertOpts.resize, "resize", false, "downscale pages wider than the max width")
	f.BoolVar(&convertOpts.deleteSource, "delete-source", false, "delete each PDF after a successful conversion")
	f.BoolVar(&convertOpts.serialRaster, "serial-raster", false, "rasterize without sharding")
	f.BoolVar(&convertOpts.serialTranscode, "serial-transcode", false, "transcode pages one at a time")
	f.StringVar(&convertOpts.workRoot, "work-root", "", "directory for temporary working trees")
	f.Uint64Var(&convertOpts.lowWaterMarkMB, "low-water-mark-mb", 100, "abort rasterizing below this much free space")
	f.BoolVar(&convertOpts.stopOnFailure, "stop-on-failure", false, "stop the batch at the first failed document")
	f.StringVar(&convertOpts.redisAddr, "redis", "", "publish stage events to this Redis address")
	rootCmd.AddCommand(convertCmd)
}

// applyFlags copies explicitly set flags into the config.
func applyFlags(cmd *cobra.Command) {
	cfg := app.cfg
	f := cmd.Flags()
	if f.Changed("output-dir") {
		cfg.Output.Dir = convertOpts.outputDir
	}
	if f.Changed("quality") {
		cfg.Transcode.Quality = convertOpts.quality
	}
	if f.Changed("resize") {
		cfg.Transcode.Resize = convertOpts.resize
	}
	if f.Changed("delete-source") {
		cfg.Output.DeleteSource = convertOpts.deleteSource
	}
	if f.Changed("serial-raster") {
		cfg.Raster.Parallel = !convertOpts.serialRaster
	}
	if f.Changed("serial-transcode") {
		cfg.Transcode.Parallel = !convertOpts.serialTranscode
	}
	if f.Changed("work-root") {
		cfg.Work.Root = convertOpts.workRoot
	}
	if f.Changed("low-water-mark-mb") {
		cfg.Work.LowWaterMarkMB = convertOpts.lowWaterMarkMB
	}
	if f.Changed("stop-on-failure") {
		cfg.Work.Continuous = !convertOpts.stopOnFailure
	}
	if f.Changed("redis") {
		cfg.Events.RedisAddr = convertOpts.redisAddr
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	applyFlags(cmd)
	if err := app.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := app.ui
	sink := events.NewMulti(out)
	if verbose {
		sink.Add(events.NewLogSink(app.logger))
	}
	if app.cfg.Events.RedisAddr != "" {
		redisSink, err := events.NewRedisSink(events.RedisConfig{
			Addr:     app.cfg.Events.RedisAddr,
			Password: app.cfg.Events.Password,
			DB:       app.cfg.Events.DB,
			Channel:  app.cfg.Events.Channel,
		}, app.logger)
		if err != nil {
			out.Warning("Event publishing disabled: %v", err)
		} else {
			defer redisSink.Close()
			sink.Add(redisSink)
		}
	}

	deps := pipeline.Dependencies{Events: sink}
	if app.store != nil {
		deps.History = app.store
	}
	orch := pipeline.New(*app.cfg, deps, app.logger)

	jobs := make([]domain.Job, len(args))
	for i, source := range args {
		jobs[i] = orch.NewJob(source)
	}

	out.StartBatch(len(jobs))
	results, err := orch.Batch(ctx, jobs)
	out.FinishBatch()

	failed := 0
	for _, res := range results {
		out.FinishJob(res)
		if !res.Succeeded() {
			failed++
		}
	}

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(jobs))
	}
	if skipped := len(jobs) - len(results); skipped > 0 {
		out.Warning("%d documents not converted", skipped)
	}
	return nil
}
