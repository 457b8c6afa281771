package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chisel-dev/chisel/pkg/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session with the monitor API, reading prompts from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			if addr == "" {
				addr = sess.cfg.ServerAddr
			}
			srv := server.New(sess.agent, sess.bus)
			go func() {
				if err := srv.Start(addr); err != nil {
					slog.Error("monitor server stopped", "error", err)
				}
			}()
			defer srv.Shutdown(ctx)

			fmt.Printf("monitor on http://%s, reading prompts from stdin\n", addr)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "/exit" {
					return nil
				}
				answer, err := sess.agent.Run(ctx, input)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					continue
				}
				fmt.Println(answer)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "monitor listen address (default from config)")
	return cmd
}
