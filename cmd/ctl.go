package cmd

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var ctlSocket string

var ctlCmd = &cobra.Command{
	Use:   "ctl <command> [args...]",
	Short: "Send a command to a running daemon",
	Long: `Send one control command to a running daemon and print the reply.
Without --socket the newest playd_*.sock in the temp dir is used.
"ctl subscribe" keeps the connection open and prints event lines until
interrupted.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCtl(args)
	},
}

func init() {
	ctlCmd.Flags().StringVar(&ctlSocket, "socket", "", "daemon control socket path")
	rootCmd.AddCommand(ctlCmd)
}

func runCtl(args []string) {
	path := ctlSocket
	if path == "" {
		path = os.Getenv("PLAYD_SOCKET")
	}
	if path == "" {
		var err error
		path, err = findDaemonSocket()
		if err != nil {
			log.Fatalf("No daemon socket found: %v", err)
		}
	}

	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", path, err)
	}
	defer conn.Close()

	line := strings.Join(args, " ")
	if _, err := fmt.Fprintln(conn, line); err != nil {
		log.Fatalf("Failed to send command: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	streaming := strings.EqualFold(args[0], "subscribe")
	for scanner.Scan() {
		fmt.Println(scanner.Text())
		if !streaming {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Connection error: %v", err)
	}
}

// findDaemonSocket locates the most recently created daemon socket in the
// temp dir. Sockets are per-process files, so the newest one belongs to
// the daemon started last.
func findDaemonSocket() (string, error) {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "playd_*.sock"))
	if err != nil {
		return "", err
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, candidate := range matches {
		info, err := os.Stat(candidate)
		if err != nil || info.Mode()&os.ModeSocket == 0 {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = candidate
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no playd_*.sock in %s", os.TempDir())
	}
	return newest, nil
}
