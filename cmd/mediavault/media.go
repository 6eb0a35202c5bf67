package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/auth"
	"github.com/dharsanguruparan/mediavault/internal/config"
	"github.com/dharsanguruparan/mediavault/internal/media"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var f model.ListFilter
	var kind string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your media, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			if kind != string(model.KindAll) {
				if _, ok := media.ParseKind(kind); !ok {
					return fmt.Errorf("--type must be all, image or video, got %q", kind)
				}
			}
			f.MediaType = model.KindFilter(kind)
			items, err := c.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			printTable(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "type", "all", "all, image or video")
	cmd.Flags().IntVar(&f.Limit, "limit", model.DefaultListLimit, "page size (1-100)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&f.ShowFavorites, "favorites", false, "only favorites")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printTable(w io.Writer, items []model.MediaView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tFAV\tUPLOADED\tFILENAME")
	for _, it := range items {
		fav := ""
		if it.IsFavorite {
			fav = "★"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.MediaType, humanSize(it.FileSize), fav,
			it.UploadedAt.Local().Format(time.DateTime), it.Filename)
	}
	_ = tw.Flush()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one media record with fresh URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			view, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newFavoriteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "favorite ID",
		Short: "Toggle the favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			rec, err := c.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			state := "removed from"
			if rec.IsFavorite {
				state = "added to"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s favorites\n", rec.ID, state)
			return nil
		},
	}
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete media and their stored objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			var failed error
			for _, id := range args {
				rec, err := c.Delete(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", id, err)
					failed = errSomeFailed
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", rec.ID, rec.Filename)
			}
			return failed
		},
	}
}

func newDownloadCmd(v *viper.Viper) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download ID",
		Short: "Download the original file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			link, err := c.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dest := output
			if dest == "" {
				dest = filepath.Base(link.Filename)
			}
			f, err := os.Create(dest)
			if err != nil {
				return fmt.Errorf("create %s: %w", dest, err)
			}
			n, err := c.Fetch(cmd.Context(), link.URL, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(dest)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", dest, humanSize(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path (default: original filename)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint an API token with the server's JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, exp, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL).Issue(args[0])
			if err != nil {
				if errors.Is(err, apperr.ErrInvalidInput) {
					return errors.New("user id must be 1-64 letters, digits, '_' or '-'")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
