// Package cli implements livectl, an operator tool for the live control API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aura-live/backend/internal/realtime"
)

const (
	serverKey  = "server"
	redisKey   = "redis"
	timeoutKey = "timeout"
)

// NewRootCmd builds the livectl command tree. Settings come from flags, then LIVECTL_*
// environment variables, then an optional config file.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	client := func() *Client {
		return NewClient(v.GetString(serverKey), v.GetDuration(timeoutKey))
	}

	root := &cobra.Command{
		Use:           "livectl",
		Short:         "Operate live streams through the control API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String(serverKey, "http://localhost:3000", "base URL of the live server")
	root.PersistentFlags().String(redisKey, "", "Redis address for watch (host:port)")
	root.PersistentFlags().Duration(timeoutKey, 10*time.Second, "request timeout")
	_ = v.BindPFlag(serverKey, root.PersistentFlags().Lookup(serverKey))
	_ = v.BindPFlag(redisKey, root.PersistentFlags().Lookup(redisKey))
	_ = v.BindPFlag(timeoutKey, root.PersistentFlags().Lookup(timeoutKey))
	v.SetEnvPrefix("livectl")
	v.AutomaticEnv()

	root.AddCommand(
		startCmd(client),
		endCmd(client),
		listCmd(client),
		getCmd(client),
		commentsCmd(client),
		tokenCmd(client),
		watchCmd(v),
	)
	return root
}

// Execute runs livectl with os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "livectl:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func startCmd(client func() *Client) *cobra.Command {
	var tokens []string
	cmd := &cobra.Command{
		Use:   "start <host_username>",
		Short: "Start a live stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Start(cmd.Context(), args[0], tokens)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringSliceVar(&tokens, "notify", nil, "device tokens to notify (comma-separated)")
	return cmd
}

func endCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "end <stream_id>",
		Short: "End a live stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().End(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ended %s\n", args[0])
			return nil
		},
	}
}

func listCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live streams, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STREAM_ID\tHOST\tVIEWS\tLIKES\tCOMMENTS\tSINCE")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
					s.ID, s.HostUsername, s.Views, s.Likes, s.CommentCount, s.LiveSince.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func getCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <stream_id>",
		Short: "Show one stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
}

func commentsCmd(client func() *Client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "comments <stream_id>",
		Short: "Print the latest comments of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client().Comments(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", c.CreatedAt.Format(time.TimeOnly), c.Username, c.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of comments (server default when 0)")
	return cmd
}

func tokenCmd(client func() *Client) *cobra.Command {
	var uid, role string
	cmd := &cobra.Command{
		Use:   "token <channel>",
		Short: "Fetch a media token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := client().Token(cmd.Context(), args[0], uid, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "user id the token is issued to")
	cmd.Flags().StringVar(&role, "role", "", "publisher or subscriber")
	return cmd
}

func watchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <stream_id>",
		Short: "Follow the events of a stream through the Redis mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := v.GetString(redisKey)
			if addr == "" {
				return fmt.Errorf("--redis (or LIVECTL_REDIS) is required")
			}
			rdb := goredis.NewClient(&goredis.Options{Addr: addr})
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			out := cmd.OutOrStdout()
			err := realtime.NewRedisPubSub(rdb, nil).SubscribeStream(ctx, args[0], func(ev realtime.StreamEvent) {
				fmt.Fprintf(out, "%s %s %s\n", time.Unix(ev.At, 0).Format(time.TimeOnly), ev.Event, ev.Data)
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
