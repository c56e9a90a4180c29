package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"docaudit/annotate"
	"docaudit/content"
	"docaudit/state"
)

// Annotate is "annotate" subcommand: writes copy of the source document with
// review comments attached.
func Annotate(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("annotate")

	src, err := absArg(cmd, 0, "input source")
	if err != nil {
		return err
	}
	issuesPath, err := absArg(cmd, 1, "issues file")
	if err != nil {
		return err
	}
	dst, err := destinationArg(cmd, 2)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 3 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[3:]))
	}
	setupEnv(cmd, env, log)

	issues, err := annotate.LoadIssues(issuesPath)
	if err != nil {
		return err
	}
	if env.Rpt != nil {
		env.Rpt.Store("issues/"+filepath.Base(issuesPath), issuesPath)
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Int("issues", len(issues)))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return annotateDocument(ctx, src, dst, issues, log)
}

func annotateDocument(ctx context.Context, src, dst string, issues []annotate.Issue, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("input source was not found (%s): %w", src, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}

	var outputName string
	log.Info("Annotation starting", zap.String("from", src))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Annotation ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("annotation panic: %v", r)
		} else if rerr == nil {
			log.Info("Annotation completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName))
		}
	}(time.Now())

	// document content is only needed to check issues and to name output,
	// writer itself copes with documents it can not fully understand
	c, err := content.Prepare(ctx, src, env.Ingestor, env.CodePage, log)
	if err != nil {
		log.Warn("Unable to parse document, issues will not be checked", zap.Error(err))
		c = nil
	} else if c.Format != content.FormatDocx {
		return fmt.Errorf("only word processing documents could be annotated, got %s", c.Format)
	}
	checkIssues(c, issues, log)

	outputName = buildAnnotatedPath(c, src, dst, env)
	if outputName == src {
		return fmt.Errorf("output would overwrite source document: %s", src)
	}
	if err := prepareOutput(outputName, env, log); err != nil {
		return err
	}
	if err := env.Annotator.Write(ctx, src, outputName, issues); err != nil {
		return fmt.Errorf("unable to annotate document: %w", err)
	}

	if env.Rpt != nil {
		refID := "unknown"
		if c != nil {
			refID = c.RefID.String()
		}
		env.Rpt.Store(fmt.Sprintf("result-%s%s", refID, filepath.Ext(outputName)), outputName)
	}
	return nil
}

// checkIssues warns about issues pointing to sections document does not have.
func checkIssues(c *content.Content, issues []annotate.Issue, log *zap.Logger) {
	if c == nil {
		return
	}
	known := make(map[int]bool, len(c.Sections))
	for _, s := range c.Sections {
		known[s.ID] = true
	}
	for _, is := range issues {
		if is.SectionID != 0 && !known[is.SectionID] {
			log.Warn("Issue refers to unknown section", zap.Int64("issue", is.ID), zap.Int("section_id", is.SectionID))
		}
	}
}
