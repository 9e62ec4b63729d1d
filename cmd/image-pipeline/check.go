package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check <chain>",
	Short: "Configure a chain and print the live chain",
	Long: `Check parses a chain description, configures it and prints the resulting
live chain, one stage per line. Stages inserted automatically are marked '+'.

  image-pipeline check 'load:filename=photo.tif:contrast:memsink'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = st.log.Sync() }()

		g := filter.NewGraph()
		sink, err := filter.Parse(st.registry, g, args[0])
		if err != nil {
			return err
		}
		ch, err := pipeline.New(g, sink.ID, pipeline.Options{
			Adapters:  st.registry.Adapters(),
			MaxInsert: st.cfg.Pipeline.MaxInsert,
			Logger:    st.log,
		})
		if err != nil {
			return err
		}
		if err := ch.Configure(cmd.Context()); err != nil {
			return err
		}
		defer ch.Deconfigure()

		fmt.Fprint(cmd.OutOrStdout(), ch.Describe())
		fmt.Fprintf(cmd.OutOrStdout(), "hash %016x\n", ch.Hash())
		return nil
	},
}
