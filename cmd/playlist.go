package cmd

import (
	"fmt"
	"log"

	"playd/playlist"

	"github.com/spf13/cobra"
)

var playlistCmd = &cobra.Command{
	Use:   "playlist <file.m3u>",
	Short: "Inspect an M3U playlist",
	Long:  `Parse an M3U playlist and print its entries the way the daemon would seed them.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tracks, err := playlist.Load(args[0])
		if err != nil {
			log.Fatalf("Failed to load playlist: %v", err)
		}
		for i, t := range tracks {
			if t.Title != "" {
				fmt.Printf("%3d  %s  [%s]\n", i, t.String(), t.Path)
			} else {
				fmt.Printf("%3d  %s\n", i, t.Path)
			}
		}
		fmt.Printf("%d tracks\n", len(tracks))
	},
}

func init() {
	rootCmd.AddCommand(playlistCmd)
}
