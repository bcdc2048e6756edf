package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/orchestrator"
)

func main() {
	var (
		cfgPath string
		cfg     *config.Root
	)

	root := &cobra.Command{
		Use:           "speech2gesture",
		Short:         "Data pipeline for co-speech gesture generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			lvl, err := logrus.ParseLevel(cfg.Pipeline.LogLvl)
			if err != nil {
				lvl = logrus.InfoLevel
			}
			logrus.SetLevel(lvl)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	var part string
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Build the fixed-shape sample cache for one split",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.NewPipeline(cfg).BuildCache(cmd.Context(), part)
		},
	}
	cacheCmd.Flags().StringVar(&part, "part", "train", "split to cache (train|val|test)")

	var trainPart string
	trainCmd := &cobra.Command{
		Use:   "train-batches",
		Short: "Dry-run one pseudo-epoch of training batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.NewPipeline(cfg).TrainBatches(cmd.Context(), trainPart)
		},
	}
	trainCmd.Flags().StringVar(&trainPart, "part", "train", "split to sample from")

	var synthPart string
	synthCmd := &cobra.Command{
		Use:   "synth",
		Short: "Render every clip of a split through the generator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.NewPipeline(cfg).GenerateAll(cmd.Context(), synthPart)
		},
	}
	synthCmd.Flags().StringVar(&synthPart, "part", "test", "split to synthesize")

	var splitPart string
	var valRatio float64
	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Re-partition a session store into train and val stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.NewPipeline(cfg).SplitStore(cmd.Context(), splitPart, valRatio)
		},
	}
	splitCmd.Flags().StringVar(&splitPart, "part", "all", "source store to split")
	splitCmd.Flags().Float64Var(&valRatio, "val-ratio", 0.1, "fraction of samples routed to val")

	var wavDir, evalDir string
	emotionCmd := &cobra.Command{
		Use:   "emotion",
		Short: "Build the blocked emotion feature archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.NewPipeline(cfg).BuildEmotion(cmd.Context(), wavDir, evalDir)
		},
	}
	emotionCmd.Flags().StringVar(&wavDir, "wav-dir", "", "directory of corpus wav files")
	emotionCmd.Flags().StringVar(&evalDir, "eval-dir", "", "directory of emotion evaluation files")
	emotionCmd.MarkFlagRequired("wav-dir")
	emotionCmd.MarkFlagRequired("eval-dir")

	root.AddCommand(cacheCmd, trainCmd, synthCmd, splitCmd, emotionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}
