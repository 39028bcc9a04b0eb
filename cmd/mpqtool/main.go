// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// The mpqtool CLI extracts MPQ archives into anonymous artifacts named after
// their hash table slots, and assembles such directories back into archives.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	mpq "github.com/suprsokr/mpqkit"
)

var versionGitCommit = "development"

// cipher is shared by every command of one run.
var cipher = mpq.NewCipher()

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:    "mpqtool",
		Usage:   "Extract and rebuild MPQ archives without a listfile",
		Version: versionGitCommit,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "TOML config file", TakesFile: true, EnvVars: []string{"MPQTOOL_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "extract",
			Usage:     "Extract archives into <name>_data directories",
			ArgsUsage: "<archive or pattern>...",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory, only valid for a single archive"},
				&cli.BoolFlag{Name: "skip-out-of-range", Usage: "Skip hash entries pointing outside the block table instead of aborting"},
			},
			Action: extractAction,
		},
		{
			Name:      "create",
			Usage:     "Assemble an extracted directory into an archive",
			ArgsUsage: "<directory>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Archive path (default <directory>.w3x)"},
			},
			Action: createAction,
		},
		{
			Name:      "names",
			Usage:     "Print the hash table index and name hashes of file names",
			ArgsUsage: "<name>...",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "table-size", Value: defaultNamesTableSize, Usage: "Hash table size used to reduce the index hash"},
			},
			Action: namesAction,
		},
		{
			Name:      "verify",
			Usage:     "Check that an archive survives an extract/create round trip unchanged",
			ArgsUsage: "<archive>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "skip-out-of-range", Usage: "Skip hash entries pointing outside the block table instead of aborting"},
			},
			Action: verifyAction,
		},
	}

	return app
}

func prepare(c *cli.Context) (*config, error) {
	cfg, err := resolveConfig(c)
	if err != nil {
		return nil, err
	}
	if err := setupLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractAction(c *cli.Context) error {
	cfg, err := prepare(c)
	if err != nil {
		return err
	}
	if c.NArg() == 0 {
		return errors.New("no archive given")
	}

	var archives []string
	for _, pattern := range c.Args().Slice() {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return errors.Wrapf(err, "bad pattern %q", pattern)
		}
		if len(matches) == 0 {
			return errors.Errorf("no archive matches %q", pattern)
		}
		archives = append(archives, matches...)
	}

	output := c.String("output")
	if output != "" && len(archives) > 1 {
		return errors.Errorf("--output given for %d archives", len(archives))
	}

	for _, archive := range archives {
		dest := output
		if dest == "" {
			dest = dataDir(archive)
		}

		logrus.WithField("archive", archive).Infof("extracting to %s", dest)
		if _, err := mpq.Extract(archive, dest, cfg.options()); err != nil {
			return errors.Wrapf(err, "extract %s", archive)
		}
	}
	return nil
}

func createAction(c *cli.Context) error {
	cfg, err := prepare(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return errors.New("expected exactly one directory")
	}

	src := filepath.Clean(c.Args().First())
	dest := c.String("output")
	if dest == "" {
		dest = src + ".w3x"
	}

	header, err := mpq.AssembleFile(src, dest, cfg.options())
	if err != nil {
		return errors.Wrapf(err, "create %s", dest)
	}
	logrus.WithField("blocks", header.BlockTableSize).Infof("wrote %s", dest)
	return nil
}

func namesAction(c *cli.Context) error {
	cfg, err := prepare(c)
	if err != nil {
		return err
	}
	printNames(c.App.Writer, cfg.HashTableSize, c.Args().Slice())
	return nil
}

func printNames(w io.Writer, tableSize uint32, names []string) {
	for _, name := range names {
		h := cipher.HashName(name)
		fmt.Fprintf(w, "%30s: %04d %08X %08X\n", name, h.Index%tableSize, h.NameA, h.NameB)
	}
}

func verifyAction(c *cli.Context) error {
	cfg, err := prepare(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return errors.New("expected exactly one archive")
	}

	same, err := verifyRoundTrip(c.Args().First(), cfg.options())
	if err != nil {
		return err
	}
	if !same {
		return errors.New("rebuilt archive differs from the original")
	}
	fmt.Fprintln(c.App.Writer, "round trip OK")
	return nil
}

// verifyRoundTrip extracts and reassembles archive in a scratch directory
// and compares the digests of both archives.
func verifyRoundTrip(archive string, opts *mpq.Options) (bool, error) {
	work, err := os.MkdirTemp("", "mpqtool_verify_")
	if err != nil {
		return false, errors.Wrap(err, "create work directory")
	}
	defer os.RemoveAll(work)

	extracted := filepath.Join(work, "data")
	if _, err := mpq.Extract(archive, extracted, opts); err != nil {
		return false, errors.Wrap(err, "extract")
	}
	rebuilt := filepath.Join(work, "rebuilt.mpq")
	if _, err := mpq.AssembleFile(extracted, rebuilt, opts); err != nil {
		return false, errors.Wrap(err, "create")
	}

	want, err := mpq.DigestFile(archive)
	if err != nil {
		return false, err
	}
	got, err := mpq.DigestFile(rebuilt)
	if err != nil {
		return false, err
	}

	logrus.WithFields(logrus.Fields{
		"original": fmt.Sprintf("%016x", want),
		"rebuilt":  fmt.Sprintf("%016x", got),
	}).Debug("compared digests")

	return want == got, nil
}

// dataDir names the extraction directory for an archive: map.w3x -> map_data.
func dataDir(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive)) + "_data"
}
