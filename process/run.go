// Package process implements program subcommands on top of document
// ingestion and annotation.
package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"docaudit/content"
	"docaudit/state"
)

// OutlineExt is appended to the source stem for parse results.
const OutlineExt = ".outline.yaml"

// setupEnv copies command line switches shared by all subcommands into the
// environment.
func setupEnv(cmd *cli.Command, env *state.LocalEnv, log *zap.Logger) {
	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	// plain text has no way to tell its code page, old files may need it forced
	cp := cmd.String("force-cp")
	if len(cp) == 0 {
		return
	}
	enc, err := ianaindex.IANA.Encoding(cp)
	if err != nil || enc == nil {
		log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		env.CodePage = nil
		return
	}
	env.CodePage = enc
	n, _ := ianaindex.IANA.Name(enc)
	log.Debug("Forcefully decoding all text files", zap.String("charset", n))
}

func absArg(cmd *cli.Command, n int, what string) (string, error) {
	p := cmd.Args().Get(n)
	if len(p) == 0 {
		return "", fmt.Errorf("no %s has been specified", what)
	}
	return filepath.Abs(p)
}

func destinationArg(cmd *cli.Command, n int) (string, error) {
	dst := cmd.Args().Get(n)
	if len(dst) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("unable to get working directory: %w", err)
		}
		return wd, nil
	}
	return filepath.Abs(dst)
}

// Parse is "parse" subcommand: writes outline of every supported document
// found at source.
func Parse(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("parse")

	src, err := absArg(cmd, 0, "input source")
	if err != nil {
		return err
	}
	dst, err := destinationArg(cmd, 1)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	setupEnv(cmd, env, log)

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return parseSource(ctx, src, dst, log)
}

// parseSource handles the core logic independently of CLI framework.
func parseSource(ctx context.Context, src, dst string, log *zap.Logger) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}
	if fi.IsDir() {
		if err := parseDir(ctx, src, dst, log); err != nil {
			return fmt.Errorf("unable to process directory: %w", err)
		}
		return nil
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}
	return parseDocument(ctx, src, filepath.Base(src), dst, log)
}

// collectFiles returns regular files under dir in natural order of their
// relative paths.
func collectFiles(ctx context.Context, dir string, log *zap.Logger) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	sort.Sort(natural.StringSlice(files))
	return files, err
}

// parseDir walks directory tree processing every supported document. Failure
// of a single document is logged and does not stop the walk.
func parseDir(ctx context.Context, dir, dst string, log *zap.Logger) error {
	files, err := collectFiles(ctx, dir, log)
	if err != nil {
		return err
	}

	count := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		format, err := content.DetectFormat(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			continue
		}
		if format == content.FormatUnknown {
			log.Debug("Skipping file, not recognized as document", zap.String("file", path))
			continue
		}
		count++
		rel := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		if err := parseDocument(ctx, path, rel, dst, log); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
		}
	}
	if count == 0 {
		log.Debug("Nothing to process", zap.String("dir", dir))
	}
	return nil
}

// parseDocument processes single document. "rel" is path of the document
// relative to the source argument (just base name for a single file).
func parseDocument(ctx context.Context, path, rel, dst string, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	var (
		refID      string
		outputName string
	)

	log.Info("Parsing starting", zap.String("from", rel))
	defer func(start time.Time) {
		// one bad document should not stop directory processing
		if r := recover(); r != nil {
			log.Error("Parsing ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("parsing panic: %v", r)
		} else if rerr == nil {
			log.Info("Parsing completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.String("ref_id", refID))
		}
	}(time.Now())

	c, err := content.Prepare(ctx, path, env.Ingestor, env.CodePage, log)
	if err != nil {
		return fmt.Errorf("unable to parse document (%s): %w", rel, err)
	}
	refID = c.RefID.String()

	outputName = buildOutlinePath(rel, dst, env)
	if err := prepareOutput(outputName, env, log); err != nil {
		return err
	}

	data, err := marshalOutline(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputName, data, 0o644); err != nil {
		return fmt.Errorf("unable to write outline: %w", err)
	}

	if env.Rpt != nil {
		env.Rpt.StoreData(fmt.Sprintf("outline-%s.txt", refID), []byte(c.String()))
		env.Rpt.Store(fmt.Sprintf("result-%s%s", refID, OutlineExt), outputName)
	}
	return nil
}

// prepareOutput makes sure output file may be written: parent directory
// exists and any existing file is only replaced when allowed.
func prepareOutput(outputName string, env *state.LocalEnv, log *zap.Logger) error {
	if _, err := os.Stat(outputName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outputName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outputName))
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputName), 0o755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	return nil
}
