package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/mdnorm/internal/parser"
	"github.com/dgallion1/mdnorm/internal/pipeline"
)

type formatOptions struct {
	write bool
	check bool
}

func runFormat(cmd *cobra.Command, args []string, opts formatOptions) error {
	a := getApp(cmd)
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		if opts.write {
			return errors.New("--write cannot be used when reading from standard input")
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read standard input: %w", err)
		}
		res, err := a.normalizer.Run(string(data))
		if err != nil {
			return err
		}
		if opts.check {
			if res.Text != string(data) {
				fmt.Fprintln(out, "<stdin>")
				return errors.New("1 file would be reformatted")
			}
			return nil
		}
		_, err = io.WriteString(out, res.Text)
		return err
	}

	paths, err := collectFiles(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	orch := pipeline.NewOrchestrator(a.cfg, a.normalizer, a.log)
	orch.Start(ctx)
	defer orch.Stop()

	jobs := make([]*pipeline.Job, 0, len(paths))
	for _, p := range paths {
		job := pipeline.NewFileJob(p, opts.write)
		if err := orch.SubmitWait(ctx, job); err != nil {
			return err
		}
		jobs = append(jobs, job)
	}
	if err := orch.Wait(ctx, jobs); err != nil {
		return err
	}

	failed, changed := 0, 0
	for _, job := range jobs {
		if err := job.Err(); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", describeError(job.Path, err))
			continue
		}
		switch {
		case opts.check:
			if job.Changed {
				changed++
				fmt.Fprintln(out, job.Path)
			}
		case opts.write:
			fmt.Fprintf(out, "Written: %s\n", job.Path)
		default:
			if _, err := io.WriteString(out, job.Output()); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return errReported
	}
	if changed > 0 {
		return fmt.Errorf("%d file(s) would be reformatted", changed)
	}
	return nil
}

// collectFiles expands directories into the Markdown files beneath them.
// Files named explicitly are kept whatever their extension.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, describeError(arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return describeError(path, err)
			}
			if !d.IsDir() && parser.IsSupportedExtension(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func describeError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("File not found: %s", path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("Permission denied: %s", path)
	}
	return err
}
