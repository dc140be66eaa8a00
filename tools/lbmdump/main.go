// Command lbmdump inspects bitmap index entries stored in an lbm database.
//
//	lbmdump -db lbm.db ls
//	lbmdump -db lbm.db rids color=red
//	lbmdump -db lbm.db windows color=red
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/docker/go-units"
	"github.com/felixge/fgprof"
	"github.com/gernest/lbm/internal/cfg"
	"github.com/gernest/lbm/internal/lbm"
	"github.com/gernest/lbm/internal/scan"
	"github.com/gernest/lbm/internal/store"
	"github.com/gernest/lbm/internal/stream"
	"github.com/gernest/roaring"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(lbmdump(os.Args[1:], os.Stdout))
}

// lbmdump runs the command described by args and returns the exit code. It
// returns instead of exiting so deferred profile writes always run.
func lbmdump(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("lbmdump", flag.ContinueOnError)
	path := fs.String("db", "lbm.db", "path to the database")
	config := fs.String("config", "", "optional yaml configuration")
	profile := fs.String("profile", "", "write a wall clock profile to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := cfg.NewDefaultConfig()
	if *config != "" {
		var err error
		c, err = cfg.Load(*config)
		if err != nil {
			slog.Error("loading configuration", "path", *config, "err", err)
			return 1
		}
	}
	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			slog.Error("creating profile", "path", *profile, "err", err)
			return 1
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		defer func() {
			if err := stop(); err != nil {
				slog.Error("writing profile", "path", *profile, "err", err)
			}
			f.Close()
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, stdout, *path, c, fs.Args()); err != nil {
		slog.Error("lbmdump", "err", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, stdout io.Writer, path string, c *cfg.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command, want one of ls, rids, windows")
	}
	slog.Info("opening", "path", path)
	db := new(store.DB)
	if err := db.Init(path, c, slog.Default()); err != nil {
		return fmt.Errorf("opening database %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "ls":
		return list(stdout, db)
	case "rids", "windows":
		if len(args) < 2 {
			return fmt.Errorf("%s requires an entry name", args[0])
		}
		ra, err := collect(ctx, db, c, args[1])
		if err != nil {
			return err
		}
		if args[0] == "rids" {
			for _, r := range ra.Slice() {
				fmt.Fprintln(stdout, r)
			}
			return nil
		}
		for w, n := range scan.Windows(ra, c.BitmapCapacity) {
			fmt.Fprintf(stdout, "[%d, %d) %d\n", w.Lo, w.Hi, n)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func list(stdout io.Writer, db *store.DB) error {
	var full uint64
	for m := range db.Entries() {
		fmt.Fprintln(stdout, m.Name, m.Tuples, m.Pages, units.BytesSize(float64(m.Bytes)))
		full += m.Bytes
	}
	fmt.Fprintf(stdout, "---\n total %v\n", units.BytesSize(float64(full)))
	return nil
}

func collect(ctx context.Context, db *store.DB, c *cfg.Config, name string) (*roaring.Bitmap, error) {
	buf := stream.NewBuffer(c.BufferTuples)
	r := lbm.NewStreamSegmentReader(buf, lbm.WithLogger(slog.Default()))
	s := scan.New(c, nil, slog.Default())
	var ra *roaring.Bitmap
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return db.Feed(ctx, name, buf)
	})
	g.Go(func() (err error) {
		ra, err = s.Collect(ctx, r, buf.Ready())
		return
	})
	return ra, g.Wait()
}
